package bot

import (
	"context"
	"fmt"

	"github.com/boo-chat/boo/bot/command"
	"github.com/boo-chat/boo/bot/plugin"
	"github.com/boo-chat/boo/bot/session"
	"github.com/boo-chat/boo/bot/store"
)

// editPrefix marks replies to edited messages, so rooms can tell a re-answer
// from a fresh one.
const editPrefix = "✏️ "

// handleEvent processes a single inbound session event. It runs on its own
// goroutine per event.
func (b *Bot) handleEvent(ctx context.Context, ev session.Event) {
	own := ev.Sender == b.session.UserID()
	b.archive(ctx, ev, own)
	if own {
		return
	}

	switch ev.Kind {
	case session.EventText:
		b.count("text")
		b.handleText(ctx, ev)
	case session.EventMedia:
		b.count("media")
		b.handleMedia(ctx, ev)
	default:
		b.count("unknown")
	}
}

func (b *Bot) handleText(ctx context.Context, ev session.Event) {
	line, ok := command.ParseAddressed(ev.Body, b.DisplayName(), b.conf.Separator)
	if !ok {
		return
	}
	edit := line.Edit || ev.Edit

	if line.Empty {
		b.reply(ctx, ev.RoomID, edit, fmt.Sprintf("Please specify a command. Try '%s%s help'", b.DisplayName(), b.conf.Separator))
		return
	}

	b.count("commands")
	outcome := b.router.Route(ctx, plugin.Call{
		Command: line.Command,
		Args:    line.Args,
		RoomID:  ev.RoomID,
		UserID:  ev.Sender,
	})
	b.log.Debug("Command routed.", "command", line.Command, "plugin", outcome.UnitName, "outcome", outcome.Kind.String(), "duration", outcome.Duration)

	switch outcome.Kind {
	case command.KindHandled:
		if outcome.Reply != "" {
			b.reply(ctx, ev.RoomID, edit, outcome.Reply)
		}
	case command.KindNoHandler, command.KindDeclined:
		b.reply(ctx, ev.RoomID, edit, "Unknown command: "+line.Command)
	case command.KindFailed, command.KindTimedOut:
		b.reply(ctx, ev.RoomID, edit, "Something went wrong handling that command. Please try again.")
	}
}

// handleMedia offers a media event to active units implementing the
// MediaHandler extension, in registration order, until one consumes it.
func (b *Bot) handleMedia(ctx context.Context, ev session.Event) {
	media := plugin.Media{
		RoomID: ev.RoomID,
		UserID: ev.Sender,
		Body:   ev.Body,
	}
	for _, h := range b.manager.MediaHandlers() {
		consumed, err := h.HandleMedia(ctx, media)
		if err != nil {
			b.log.Warn("Media handler failed.", "error", err)
			continue
		}
		if consumed {
			return
		}
	}
}

func (b *Bot) reply(ctx context.Context, roomID string, edit bool, body string) {
	if edit {
		body = editPrefix + body
	}
	b.count("replies")
	if err := b.session.SendMessage(ctx, roomID, body); err != nil {
		b.log.Error("Send reply.", "room", roomID, "error", err)
	}
}

// archive stores the event in the record store, when one is configured.
func (b *Bot) archive(ctx context.Context, ev session.Event, own bool) {
	if b.conf.Store == nil {
		return
	}
	m := store.Message{
		ID:      ev.ID,
		RoomID:  ev.RoomID,
		Sender:  ev.Sender,
		Kind:    ev.Kind.String(),
		Body:    ev.Body,
		Time:    ev.Time,
		FromBot: own,
	}
	if err := b.conf.Store.PutMessage(ctx, m); err != nil {
		b.log.Warn("Archive message.", "error", err)
	}
}
