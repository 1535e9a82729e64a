package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/boo-chat/boo/bot/plugin"
	"github.com/boo-chat/boo/bot/session"
)

// Bot satisfies plugin.Host: these methods are the only bot surface units can
// reach through their capability API.
var _ plugin.Host = (*Bot)(nil)

// Logger returns the bot's logger.
func (b *Bot) Logger() *slog.Logger { return b.log }

// DisplayName returns the display name currently used as the command
// addressing prefix.
func (b *Bot) DisplayName() string {
	return b.name.Load().(string)
}

// RefreshDisplayName re-fetches the display name from the session. The
// fallback name from the configuration is kept when the session cannot report
// one.
func (b *Bot) RefreshDisplayName(ctx context.Context) (string, error) {
	name, err := b.session.DisplayName(ctx)
	if err != nil {
		return b.DisplayName(), err
	}
	if name == "" {
		return b.DisplayName(), nil
	}
	if name != b.DisplayName() {
		b.log.Info("Display name changed.", "name", name)
	}
	b.name.Store(name)
	return name, nil
}

// SendMessage sends a text message to the room with the provided ID.
func (b *Bot) SendMessage(ctx context.Context, roomID, body string) error {
	return b.session.SendMessage(ctx, roomID, body)
}

// SendFile uploads a file and sends it to the room with the provided ID.
func (b *Bot) SendFile(ctx context.Context, roomID, path, filename, mime string) error {
	return b.session.SendFile(ctx, roomID, path, filename, mime)
}

// RoomSummary returns a short description of a room if the transport can
// describe it.
func (b *Bot) RoomSummary(roomID string) (string, bool) {
	if d, ok := b.session.(session.RoomDescriber); ok {
		return d.DescribeRoom(roomID)
	}
	return "", false
}

// UnitStorage returns a persistence view scoped to the named unit, or nil if
// the record store is disabled.
func (b *Bot) UnitStorage(name string) plugin.Storage {
	if b.conf.Store == nil {
		return nil
	}
	return b.conf.Store.Bucket(name)
}

// StorageStats summarises the record store contents.
func (b *Bot) StorageStats(ctx context.Context) (plugin.StorageStats, error) {
	if b.conf.Store == nil {
		return plugin.StorageStats{}, errors.New("record store disabled")
	}
	stats, err := b.conf.Store.Stats(ctx)
	if err != nil {
		return plugin.StorageStats{}, err
	}
	return plugin.StorageStats{
		Messages:  stats.Messages,
		Keys:      stats.Keys,
		SizeBytes: stats.SizeBytes,
		UpdatedAt: stats.UpdatedAt,
	}, nil
}

// StorageHealthy reports an error if the record store is disabled or fails a
// round-trip.
func (b *Bot) StorageHealthy(ctx context.Context) error {
	if b.conf.Store == nil {
		return errors.New("record store disabled")
	}
	return b.conf.Store.Healthy(ctx)
}

// Oracle returns the AI/randomness collaborator, or nil if unconfigured.
func (b *Bot) Oracle() plugin.Oracle { return b.conf.Oracle }

// Subtitler returns the video-processing collaborator, or nil if
// unconfigured.
func (b *Bot) Subtitler() plugin.Subtitler { return b.conf.Subtitler }

// EventCounts returns a snapshot of the dispatcher's event counters.
func (b *Bot) EventCounts() map[string]uint64 {
	b.countMu.Lock()
	defer b.countMu.Unlock()
	out := make(map[string]uint64, len(b.counts))
	for k, v := range b.counts {
		out[k] = v
	}
	return out
}
