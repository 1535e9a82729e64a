// Package session defines the narrow chat-transport interface the bot core
// depends on. Concrete transports (a Matrix client, the in-memory loopback)
// live behind it; the core never touches wire protocols or encryption.
package session

import (
	"context"
	"time"
)

// EventKind classifies an inbound room event.
type EventKind uint8

const (
	// EventText is a plain text message.
	EventText EventKind = iota
	// EventMedia is an image, file, audio or video message.
	EventMedia
	// EventUnknown is any event the transport could not classify.
	EventUnknown
)

// String returns a lower-case name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventMedia:
		return "media"
	}
	return "unknown"
}

// Event is a single inbound room event delivered by a transport.
type Event struct {
	ID     string
	RoomID string
	Sender string
	Body   string
	Kind   EventKind
	// Edit reports whether the event replaces an earlier message.
	Edit bool
	Time time.Time
}

// Session is the chat transport as seen by the bot core: log-in, encryption
// and the wire protocol are the transport's own business.
type Session interface {
	// UserID returns the bot's own user identifier, used to ignore the
	// bot's echoes of its outbound messages.
	UserID() string
	// DisplayName fetches the bot's current display name.
	DisplayName(ctx context.Context) (string, error)
	// Events returns the channel inbound events are delivered on. The
	// channel is closed when the session shuts down.
	Events() <-chan Event
	// SendMessage sends a text message to the room with the provided ID.
	SendMessage(ctx context.Context, roomID, body string) error
	// SendFile uploads the file at path and sends it to the room.
	SendFile(ctx context.Context, roomID, path, filename, mime string) error
	// Close shuts the session down and closes the event channel.
	Close() error
}

// RoomDescriber may be implemented by transports that can describe a room
// (name, member count, encryption state) for introspection commands.
type RoomDescriber interface {
	DescribeRoom(roomID string) (string, bool)
}
