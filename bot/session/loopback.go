package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outbound is a message or file sent through a Loopback session.
type Outbound struct {
	RoomID   string
	Body     string
	Path     string
	Filename string
	Mime     string
}

// Loopback is an in-memory Session used by tests and the console runner.
// Inbound events are injected with Inject; everything the bot sends is
// delivered on the Outbound channel.
type Loopback struct {
	userID string
	name   string

	mu      sync.Mutex
	rooms   map[string]int
	closed  bool
	events  chan Event
	outward chan Outbound
}

// NewLoopback constructs a Loopback session with the provided bot user ID and
// display name.
func NewLoopback(userID, displayName string) *Loopback {
	return &Loopback{
		userID:  userID,
		name:    displayName,
		rooms:   make(map[string]int),
		events:  make(chan Event, 64),
		outward: make(chan Outbound, 64),
	}
}

// UserID returns the bot's own user identifier.
func (l *Loopback) UserID() string { return l.userID }

// DisplayName returns the display name the session was created with.
func (l *Loopback) DisplayName(_ context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name, nil
}

// SetDisplayName changes the name reported by DisplayName, letting tests
// exercise the bot's name refresh path.
func (l *Loopback) SetDisplayName(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.name = name
}

// Events returns the inbound event channel.
func (l *Loopback) Events() <-chan Event { return l.events }

// Outbound returns the channel all sent messages and files are delivered on.
func (l *Loopback) Outbound() <-chan Outbound { return l.outward }

// Inject delivers a text event to the bot as if it arrived from the room.
func (l *Loopback) Inject(roomID, sender, body string) Event {
	return l.inject(Event{RoomID: roomID, Sender: sender, Body: body, Kind: EventText})
}

// InjectEdit delivers an edit of a previous message.
func (l *Loopback) InjectEdit(roomID, sender, body string) Event {
	return l.inject(Event{RoomID: roomID, Sender: sender, Body: body, Kind: EventText, Edit: true})
}

// InjectMedia delivers a media event with the provided description.
func (l *Loopback) InjectMedia(roomID, sender, body string) Event {
	return l.inject(Event{RoomID: roomID, Sender: sender, Body: body, Kind: EventMedia})
}

func (l *Loopback) inject(ev Event) Event {
	ev.ID = uuid.NewString()
	ev.Time = time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ev
	}
	l.rooms[ev.RoomID]++
	l.events <- ev
	return ev
}

// SendMessage delivers the body on the outbound channel.
func (l *Loopback) SendMessage(ctx context.Context, roomID, body string) error {
	return l.send(ctx, Outbound{RoomID: roomID, Body: body})
}

// SendFile delivers the file reference on the outbound channel.
func (l *Loopback) SendFile(ctx context.Context, roomID, path, filename, mime string) error {
	return l.send(ctx, Outbound{RoomID: roomID, Path: path, Filename: filename, Mime: mime})
}

func (l *Loopback) send(ctx context.Context, out Outbound) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.New("session closed")
	}
	l.mu.Unlock()

	select {
	case l.outward <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DescribeRoom implements RoomDescriber using the event counts seen per room.
func (l *Loopback) DescribeRoom(roomID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count, ok := l.rooms[roomID]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("Room %s: %d events seen, loopback transport, unencrypted", roomID, count), true
}

// Close shuts the session down and closes the event channel.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.events)
	return nil
}

var _ Session = (*Loopback)(nil)
var _ RoomDescriber = (*Loopback)(nil)
