package plugin

import (
	"context"
	"log/slog"
)

// Host exposes the subset of bot functionality required by the plugin manager
// and the capability APIs handed to units. It keeps units decoupled from the
// bot's concrete type.
type Host interface {
	// Logger returns the logger used for structured diagnostics.
	Logger() *slog.Logger
	// DisplayName returns the bot's current display name, used as the
	// command addressing prefix.
	DisplayName() string
	// RefreshDisplayName re-fetches the display name from the chat session
	// and returns the updated value.
	RefreshDisplayName(ctx context.Context) (string, error)
	// SendMessage sends a text message to the room with the provided ID.
	SendMessage(ctx context.Context, roomID, body string) error
	// SendFile uploads a file and sends it to the room with the provided ID.
	SendFile(ctx context.Context, roomID, path, filename, mime string) error
	// RoomSummary returns a short human-readable description of a room, or
	// false if the transport cannot describe it.
	RoomSummary(roomID string) (string, bool)
	// UnitStorage returns a persistence view scoped to the named unit's own
	// keyspace. It returns nil if the record store is disabled.
	UnitStorage(name string) Storage
	// StorageStats summarises the record store contents.
	StorageStats(ctx context.Context) (StorageStats, error)
	// StorageHealthy performs a round-trip on the record store and reports
	// an error if it is unavailable.
	StorageHealthy(ctx context.Context) error
	// Oracle returns the AI/randomness collaborator, or nil if unconfigured.
	Oracle() Oracle
	// Subtitler returns the video-processing collaborator, or nil if
	// unconfigured.
	Subtitler() Subtitler
	// EventCounts returns a snapshot of the dispatcher's event counters.
	EventCounts() map[string]uint64
}
