package plugin

import (
	"context"
	"errors"
	"time"
)

// Unit is the capability contract implemented by every handler unit loaded by
// the Manager. A unit declares a non-empty set of commands and handles calls
// routed to it by the bot's dispatcher.
type Unit interface {
	// Name returns the unit's display name. It must be unique for the
	// lifetime of the process and stable across reloads.
	Name() string
	// Version returns the unit's version string.
	Version() string
	// Description returns a short human-readable description of the unit.
	Description() string
	// Commands returns the set of command tokens this unit handles. The set
	// must be non-empty and stable until the unit is reloaded.
	Commands() []string
	// Initialize performs unit setup. Returning an error prevents the unit
	// from becoming active; the error is recorded as the failure reason.
	Initialize(ctx context.Context) error
	// Handle processes a command routed to the unit. The returned bool
	// reports whether the unit actually handled the call; false means the
	// command should be treated as unhandled, which is distinct from an
	// empty reply.
	Handle(ctx context.Context, call Call) (string, bool, error)
	// Cleanup releases all resources held by the unit. It is called once
	// when the unit is unloaded, reloaded or the bot shuts down and must be
	// safe to call even if Initialize failed.
	Cleanup(ctx context.Context) error
}

// Call carries a single parsed command invocation to a unit.
type Call struct {
	Command string
	Args    string
	RoomID  string
	UserID  string
}

// Factory constructs a fresh unit instance around the provided API. The
// manager calls it once during discovery and again on every reload.
type Factory func(api *API) Unit

// Registration binds a stable unit name to its factory. The order of
// registrations decides command ownership when two units declare the same
// command token.
type Registration struct {
	Name string
	New  Factory
}

// State describes where a unit currently is in its lifecycle.
type State uint8

const (
	StateDiscovered State = iota
	StateInitializing
	StateActive
	StateFailed
	StateDisabled
	StateUnloading
	StateRemoved
)

// String returns a lower-case name for the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	case StateDisabled:
		return "disabled"
	case StateUnloading:
		return "unloading"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// Info describes a unit known to the manager at the moment the snapshot was
// produced.
type Info struct {
	Name        string
	Version     string
	Description string
	State       State
	Commands    []string
	// Failure holds the most recent failure reason recorded for the unit,
	// or an empty string if none was recorded.
	Failure string
}

// Config controls the behaviour of the plugin subsystem.
type Config struct {
	// Enabled specifies if the plugin subsystem should be initialised. When
	// false, no units will be discovered or activated.
	Enabled bool
	// DefaultTimeout bounds a single command invocation for units that do
	// not override it. A zero value falls back to ten seconds.
	DefaultTimeout time.Duration
	// Units maps unit names to their configuration record. Units without an
	// entry default to disabled. Entries for unknown units are ignored.
	Units map[string]UnitConfig
}

// UnitConfig is the per-unit configuration record loaded at startup.
type UnitConfig struct {
	// Enabled decides whether the unit's commands are reachable. A runtime
	// enable/disable overrides this only for the remaining process
	// lifetime; a restart reverts to this value.
	Enabled bool
	// Timeout overrides Config.DefaultTimeout for this unit when non-zero.
	Timeout time.Duration
	// Options holds opaque unit-specific configuration values.
	Options map[string]any
}

// Route is a snapshot of the command table entry for a single command token.
type Route struct {
	// UnitName is the owning unit's registered name.
	UnitName string
	// Unit is the instance that was active when the snapshot was taken.
	Unit Unit
	// Timeout bounds a single invocation of the unit's handler.
	Timeout time.Duration
}

// Media describes a single inbound media event offered to units implementing
// MediaHandler.
type Media struct {
	RoomID   string
	UserID   string
	Body     string
	URL      string
	Filename string
	Mime     string
}

// MediaHandler is an optional extension interface. Active units implementing
// it are offered inbound media events in registration order until one of them
// reports the event as consumed.
type MediaHandler interface {
	HandleMedia(ctx context.Context, media Media) (bool, error)
}

// Storage is the narrow persistence collaborator exposed to units. Each unit
// receives a view scoped to its own keyspace.
type Storage interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// StorageStats summarises the contents of the bot's record store.
type StorageStats struct {
	Messages  uint64
	Keys      uint64
	SizeBytes int64
	UpdatedAt time.Time
}

// Oracle is the external AI/randomness collaborator. Pulse returns the
// current value of a public randomness beacon; Complete asks a remote model
// to produce text for a prompt.
type Oracle interface {
	Pulse(ctx context.Context) (uint64, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// Subtitler is the external video-processing collaborator used to produce a
// textual summary for a video URL.
type Subtitler interface {
	Summarize(ctx context.Context, url string) (string, error)
}

var (
	// ErrDisabled is returned when the plugin subsystem is disabled.
	ErrDisabled = errors.New("plugin subsystem disabled")
	// ErrUnknownUnit is returned when an operation names a unit that was
	// never registered.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrNameConflict is returned when two registrations share the same
	// case-insensitive name.
	ErrNameConflict = errors.New("unit name already registered")
	// ErrUnitFailed is returned when attempting to enable a unit whose last
	// initialisation failed. Such units must be reloaded instead.
	ErrUnitFailed = errors.New("unit failed to initialise")
	// ErrNoCommands is returned when a unit declares an empty command set.
	ErrNoCommands = errors.New("unit declares no commands")
)
