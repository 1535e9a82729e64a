package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultCommandTimeout = 10 * time.Second

// Manager coordinates unit discovery, lifecycle transitions and the derived
// command table. Structural mutation (load, unload, reload, enable, disable)
// is serialised through a single mutex, while command routing reads a table
// snapshot published atomically so dispatch never blocks on a swap.
type Manager struct {
	host Host
	cfg  Config
	log  *slog.Logger

	once  sync.Once
	mu    sync.Mutex
	order []*entry
	names map[string]*entry

	table atomic.Pointer[map[string]Route]
}

type entry struct {
	name    string
	factory Factory
	cfg     UnitConfig
	enabled bool

	state    State
	failure  string
	unit     Unit
	api      *API
	commands []string
	cancel   context.CancelFunc
}

func (e *entry) info() Info {
	return Info{
		Name:        e.displayName(),
		Version:     e.version(),
		Description: e.description(),
		State:       e.state,
		Commands:    slices.Clone(e.commands),
		Failure:     e.failure,
	}
}

func (e *entry) displayName() string {
	if e.unit != nil {
		if name := strings.TrimSpace(e.unit.Name()); name != "" {
			return name
		}
	}
	return e.name
}

func (e *entry) version() string {
	if e.unit == nil {
		return ""
	}
	return e.unit.Version()
}

func (e *entry) description() string {
	if e.unit == nil {
		return ""
	}
	return e.unit.Description()
}

// NewManager constructs a Manager using the provided host, configuration
// snapshot and ordered unit registrations. Registration order is stable and
// decides command ownership on conflicts.
func NewManager(host Host, cfg Config, regs []Registration) (*Manager, error) {
	logger := host.Logger()
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		host:  host,
		cfg:   cfg,
		log:   logger.With("subsystem", "plugin"),
		names: make(map[string]*entry, len(regs)),
	}
	for _, reg := range regs {
		name := strings.TrimSpace(reg.Name)
		if name == "" || reg.New == nil {
			return nil, fmt.Errorf("invalid registration %q: name and factory are required", reg.Name)
		}
		key := strings.ToLower(name)
		if _, exists := m.names[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrNameConflict, name)
		}
		e := &entry{
			name:    name,
			factory: reg.New,
			cfg:     cfg.Units[key],
			state:   StateDiscovered,
		}
		e.enabled = e.cfg.Enabled
		m.names[key] = e
		m.order = append(m.order, e)
	}
	empty := map[string]Route{}
	m.table.Store(&empty)
	return m, nil
}

// Enabled reports whether the plugin subsystem should run.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// Load discovers and initialises every registered unit once. Each unit's
// result is reported under its registered name; a failing unit never aborts
// the discovery of the others.
func (m *Manager) Load(ctx context.Context) map[string]error {
	results := make(map[string]error, len(m.order))
	m.once.Do(func() {
		if !m.cfg.Enabled {
			m.log.Debug("Plugin subsystem disabled.")
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, e := range m.order {
			results[e.name] = m.initLocked(ctx, e)
		}
		m.rebuildTableLocked()
	})
	return results
}

// initLocked instantiates and initialises the entry's unit. The entry ends up
// Active, Disabled or Failed. m.mu must be held.
func (m *Manager) initLocked(ctx context.Context, e *entry) error {
	e.state = StateInitializing
	e.failure = ""

	unitCtx, cancel := context.WithCancel(context.Background())
	api := newAPI(m, m.host, e.name)
	api.setContext(unitCtx)
	api.setOptions(e.cfg.Options)

	unit := e.factory(api)
	if unit == nil {
		cancel()
		err := fmt.Errorf("factory for %s returned nil unit", e.name)
		m.failLocked(e, err)
		return err
	}
	commands := normaliseCommands(unit.Commands())
	if len(commands) == 0 {
		cancel()
		err := fmt.Errorf("%w: %s", ErrNoCommands, e.name)
		e.unit = unit
		m.failLocked(e, err)
		return err
	}

	e.unit = unit
	e.api = api
	e.cancel = cancel
	e.commands = commands

	if err := guard(func() error { return unit.Initialize(ctx) }); err != nil {
		m.failLocked(e, err)
		m.cleanupLocked(ctx, e)
		return err
	}

	if e.enabled {
		e.state = StateActive
	} else {
		e.state = StateDisabled
	}
	m.log.Info("Unit initialised.", "unit", e.name, "version", e.version(), "state", e.state.String(), "commands", len(commands))
	return nil
}

// failLocked records a failure reason and parks the entry in the Failed
// state. Its commands become unreachable on the next table rebuild.
func (m *Manager) failLocked(e *entry, err error) {
	e.state = StateFailed
	e.failure = err.Error()
	m.log.Error("Unit failed.", "unit", e.name, "error", err)
}

// cleanupLocked cancels the unit's context and awaits its Cleanup. Cleanup
// panics are captured so teardown of one unit cannot disturb the manager.
func (m *Manager) cleanupLocked(ctx context.Context, e *entry) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.unit == nil {
		return
	}
	if err := guard(func() error { return e.unit.Cleanup(ctx) }); err != nil {
		m.log.Error("Unit cleanup.", "unit", e.name, "error", err)
	}
}

// Route resolves a command token against the current table snapshot. The read
// is wait-free; the returned Route is immutable.
func (m *Manager) Route(command string) (Route, bool) {
	table := *m.table.Load()
	route, ok := table[strings.ToLower(command)]
	return route, ok
}

// CommandOwners returns the effective command table as a command → unit name
// mapping, for introspection commands.
func (m *Manager) CommandOwners() map[string]string {
	table := *m.table.Load()
	owners := make(map[string]string, len(table))
	for command, route := range table {
		owners[command] = route.UnitName
	}
	return owners
}

// Unit returns an active unit by its case-insensitive name, for cross-unit
// calls. Disabled and failed units are not returned.
func (m *Manager) Unit(name string) (Unit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.names[strings.ToLower(strings.TrimSpace(name))]
	if !ok || e.state != StateActive {
		return nil, false
	}
	return e.unit, true
}

// MediaHandlers returns the active units that implement the MediaHandler
// extension, in registration order.
func (m *Manager) MediaHandlers() []MediaHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	var handlers []MediaHandler
	for _, e := range m.order {
		if e.state != StateActive {
			continue
		}
		if h, ok := e.unit.(MediaHandler); ok {
			handlers = append(handlers, h)
		}
	}
	return handlers
}

// Infos returns a status snapshot for every known unit in registration order.
func (m *Manager) Infos() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]Info, len(m.order))
	for i, e := range m.order {
		infos[i] = e.info()
	}
	return infos
}

// SetEnabled enables or disables a unit for the remainder of the process
// lifetime. Disabling removes the unit's commands from the table immediately;
// re-enabling restores them without re-running Initialize. Units whose last
// initialisation failed cannot be enabled and must be reloaded instead.
func (m *Manager) SetEnabled(name string, enabled bool) (Info, error) {
	if !m.cfg.Enabled {
		return Info{}, ErrDisabled
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownUnit, name)
	}
	if e.state == StateFailed && enabled {
		return e.info(), fmt.Errorf("%w: %s: %s", ErrUnitFailed, e.name, e.failure)
	}
	e.enabled = enabled
	switch {
	case enabled && e.state == StateDisabled:
		e.state = StateActive
	case !enabled && e.state == StateActive:
		e.state = StateDisabled
	}
	m.rebuildTableLocked()
	m.log.Info("Unit toggled.", "unit", e.name, "enabled", enabled, "state", e.state.String())
	return e.info(), nil
}

// Reload tears the named unit down and replaces it with a freshly constructed
// instance. The structural lock is held for the whole swap: the unit's
// commands are first removed from the table, the old instance's Cleanup is
// awaited, and only then is the new instance initialised and published. If
// initialisation fails the previous instance is not restored; the unit stays
// Failed and its commands remain unreachable.
func (m *Manager) Reload(ctx context.Context, name string) (Info, error) {
	if !m.cfg.Enabled {
		return Info{}, ErrDisabled
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownUnit, name)
	}
	info, err := m.reloadLocked(ctx, e)
	if err != nil {
		return info, err
	}
	m.log.Info("Unit reloaded.", "unit", e.name, "version", e.version(), "state", e.state.String())
	return info, nil
}

func (m *Manager) reloadLocked(ctx context.Context, e *entry) (Info, error) {
	if e.state != StateDiscovered {
		e.state = StateUnloading
		m.rebuildTableLocked()
		m.cleanupLocked(ctx, e)
		e.unit = nil
		e.api = nil
		e.commands = nil
	}
	err := m.initLocked(ctx, e)
	m.rebuildTableLocked()
	return e.info(), err
}

// ReloadAll reloads every known unit in registration order and reports the
// per-unit results. One unit's failure never aborts the pass.
func (m *Manager) ReloadAll(ctx context.Context) map[string]error {
	if !m.cfg.Enabled {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make(map[string]error, len(m.order))
	for _, e := range m.order {
		_, results[e.name] = m.reloadLocked(ctx, e)
	}
	return results
}

// ApplyConfig installs a new configuration record for the named unit and
// reloads it so the fresh instance observes the new options. The reload
// watcher and the administrative config path both funnel through here.
func (m *Manager) ApplyConfig(ctx context.Context, name string, cfg UnitConfig) (Info, error) {
	if !m.cfg.Enabled {
		return Info{}, ErrDisabled
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownUnit, name)
	}
	e.cfg = cfg
	e.enabled = cfg.Enabled
	return m.reloadLocked(ctx, e)
}

// SetOption overrides a single option value for the named unit for the
// remainder of the process lifetime. The running instance observes the new
// value through its API without being re-initialised.
func (m *Manager) SetOption(name, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, name)
	}
	opts := make(map[string]any, len(e.cfg.Options)+1)
	for k, v := range e.cfg.Options {
		opts[k] = v
	}
	opts[key] = value
	e.cfg.Options = opts
	if e.api != nil {
		e.api.setOptions(opts)
	}
	return nil
}

// Options returns a copy of the named unit's current option mapping.
func (m *Manager) Options(name string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, name)
	}
	opts := make(map[string]any, len(e.cfg.Options))
	for k, v := range e.cfg.Options {
		opts[k] = v
	}
	return opts, nil
}

// NoteFailure records a failure reason against a unit without changing its
// state. The command router uses it so execution and timeout failures show up
// in status snapshots.
func (m *Manager) NoteFailure(name, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.names[strings.ToLower(strings.TrimSpace(name))]; ok {
		e.failure = reason
	}
}

// Shutdown tears all units down in reverse registration order. Cleanup is
// awaited for each unit before it is considered removed.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	empty := map[string]Route{}
	m.table.Store(&empty)
	for i := len(m.order) - 1; i >= 0; i-- {
		e := m.order[i]
		if e.state == StateDiscovered || e.state == StateRemoved {
			e.state = StateRemoved
			continue
		}
		e.state = StateUnloading
		m.cleanupLocked(ctx, e)
		e.state = StateRemoved
		m.log.Info("Unit removed.", "unit", e.name)
	}
}

// rebuildTableLocked recomputes the derived command table from the current
// set of active units and publishes it atomically. Conflicting command tokens
// go to the earliest registration; losers are logged and left inert.
func (m *Manager) rebuildTableLocked() {
	table := make(map[string]Route)
	for _, e := range m.order {
		if e.state != StateActive {
			continue
		}
		route := Route{UnitName: e.name, Unit: e.unit, Timeout: m.timeoutFor(e)}
		for _, command := range e.commands {
			if owner, taken := table[command]; taken {
				m.log.Warn("Command conflict.", "command", command, "owner", owner.UnitName, "loser", e.name)
				continue
			}
			table[command] = route
		}
	}
	m.table.Store(&table)
}

func (m *Manager) timeoutFor(e *entry) time.Duration {
	if e.cfg.Timeout > 0 {
		return e.cfg.Timeout
	}
	if m.cfg.DefaultTimeout > 0 {
		return m.cfg.DefaultTimeout
	}
	return defaultCommandTimeout
}

// guard invokes fn, converting a panic into an error so one unit's fault
// cannot take the manager down with it.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// normaliseCommands lower-cases, trims and deduplicates a unit's declared
// command set, preserving declaration order.
func normaliseCommands(commands []string) []string {
	out := make([]string, 0, len(commands))
	seen := make(map[string]struct{}, len(commands))
	for _, command := range commands {
		token := strings.ToLower(strings.TrimSpace(command))
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}
