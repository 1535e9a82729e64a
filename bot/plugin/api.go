package plugin

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// API exposes bot functionality to units as a passive capability object. It
// is handed to a unit's factory at construction and stays valid until the
// unit is unloaded; it never grants a handle to the whole runtime.
type API struct {
	manager *Manager
	host    Host
	name    string
	ctx     atomic.Value // stores ctxHolder
	opts    atomic.Value // stores map[string]any
}

// ctxHolder wraps the lifecycle context so the atomic.Value always stores
// one concrete type, regardless of the context implementation inside.
type ctxHolder struct {
	ctx context.Context
}

func newAPI(manager *Manager, host Host, name string) *API {
	api := &API{manager: manager, host: host, name: name}
	api.ctx.Store(ctxHolder{ctx: context.Background()})
	api.setOptions(nil)
	return api
}

func (api *API) setContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	api.ctx.Store(ctxHolder{ctx: ctx})
}

func (api *API) setOptions(opts map[string]any) {
	snapshot := make(map[string]any, len(opts))
	for k, v := range opts {
		snapshot[k] = v
	}
	api.opts.Store(snapshot)
}

// UnitName returns the registered name of the unit this API is scoped to.
func (api *API) UnitName() string {
	return api.name
}

// Context returns a context that is cancelled when the unit is unloaded or
// reloaded. Background work owned by the unit should derive from it.
func (api *API) Context() context.Context {
	if v := api.ctx.Load(); v != nil {
		if h, ok := v.(ctxHolder); ok && h.ctx != nil {
			return h.ctx
		}
	}
	return context.Background()
}

// Logger returns a logger scoped to the unit's name for structured logging.
func (api *API) Logger() *slog.Logger {
	logger := api.host.Logger()
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("plugin", api.name)
}

// Options returns the unit's current configuration options snapshot.
func (api *API) Options() map[string]any {
	if v := api.opts.Load(); v != nil {
		if opts, ok := v.(map[string]any); ok {
			return opts
		}
	}
	return map[string]any{}
}

// Option returns a single configuration option by key.
func (api *API) Option(key string) (any, bool) {
	v, ok := api.Options()[key]
	return v, ok
}

// DisplayName returns the bot's current display name.
func (api *API) DisplayName() string {
	return api.host.DisplayName()
}

// RefreshDisplayName re-fetches the bot's display name from the chat session.
func (api *API) RefreshDisplayName(ctx context.Context) (string, error) {
	return api.host.RefreshDisplayName(ctx)
}

// SendMessage sends a text message to the room with the provided ID.
func (api *API) SendMessage(ctx context.Context, roomID, body string) error {
	return api.host.SendMessage(ctx, roomID, body)
}

// SendFile uploads a file and sends it to the room with the provided ID.
func (api *API) SendFile(ctx context.Context, roomID, path, filename, mime string) error {
	return api.host.SendFile(ctx, roomID, path, filename, mime)
}

// RoomSummary returns a short description of a room if the transport can
// provide one.
func (api *API) RoomSummary(roomID string) (string, bool) {
	return api.host.RoomSummary(roomID)
}

// Unit returns another active unit by name for cross-unit calls. Disabled and
// failed units are not returned.
func (api *API) Unit(name string) (Unit, bool) {
	return api.manager.Unit(name)
}

// Units returns status snapshots for all known units.
func (api *API) Units() []Info {
	return api.manager.Infos()
}

// CommandOwners returns the effective command table as command → unit name.
func (api *API) CommandOwners() map[string]string {
	return api.manager.CommandOwners()
}

// EnableUnit makes the named unit's commands reachable for the remainder of
// the process lifetime.
func (api *API) EnableUnit(name string) (Info, error) {
	return api.manager.SetEnabled(name, true)
}

// DisableUnit removes the named unit's commands from the table immediately.
func (api *API) DisableUnit(name string) (Info, error) {
	return api.manager.SetEnabled(name, false)
}

// ReloadUnit replaces the named unit with a freshly constructed instance.
func (api *API) ReloadUnit(ctx context.Context, name string) (Info, error) {
	return api.manager.Reload(ctx, name)
}

// ReloadAllUnits reloads every unit and reports the per-unit results.
func (api *API) ReloadAllUnits(ctx context.Context) map[string]error {
	return api.manager.ReloadAll(ctx)
}

// SetUnitOption overrides a single option for the named unit until the
// process restarts.
func (api *API) SetUnitOption(name, key string, value any) error {
	return api.manager.SetOption(name, key, value)
}

// UnitOptions returns a copy of the named unit's current options.
func (api *API) UnitOptions(name string) (map[string]any, error) {
	return api.manager.Options(name)
}

// Storage returns a persistence view scoped to the unit's own keyspace, or
// nil if the record store is disabled.
func (api *API) Storage() Storage {
	return api.host.UnitStorage(api.name)
}

// StorageStats summarises the bot's record store contents.
func (api *API) StorageStats(ctx context.Context) (StorageStats, error) {
	return api.host.StorageStats(ctx)
}

// StorageHealthy reports an error if the record store is unavailable.
func (api *API) StorageHealthy(ctx context.Context) error {
	return api.host.StorageHealthy(ctx)
}

// Oracle returns the AI/randomness collaborator, or nil if unconfigured.
func (api *API) Oracle() Oracle {
	return api.host.Oracle()
}

// Subtitler returns the video-processing collaborator, or nil if
// unconfigured.
func (api *API) Subtitler() Subtitler {
	return api.host.Subtitler()
}

// EventCounts returns a snapshot of the dispatcher's event counters.
func (api *API) EventCounts() map[string]uint64 {
	return api.host.EventCounts()
}

// Go launches fn on a new goroutine tied to the unit's lifecycle context. A
// panic is captured and recorded as the unit's failure reason.
func (api *API) Go(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	ctx := api.Context()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				api.manager.NoteFailure(api.name, "background panic")
				api.Logger().Error("Unit background panic.", "panic", r)
			}
		}()
		fn(ctx)
	}()
}
