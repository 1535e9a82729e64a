package plugin

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mutableSource is a ConfigSource backed by an in-memory map that tests can
// mutate between syncs.
type mutableSource struct {
	mu   sync.Mutex
	cfgs map[string]UnitConfig
}

func (s *mutableSource) read() (map[string]UnitConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]UnitConfig, len(s.cfgs))
	for k, v := range s.cfgs {
		out[k] = v
	}
	return out, nil
}

func (s *mutableSource) set(name string, cfg UnitConfig) {
	s.mu.Lock()
	s.cfgs[name] = cfg
	s.mu.Unlock()
}

func TestWatcherReloadsOnlyChangedUnits(t *testing.T) {
	t.Parallel()
	var alphaInits, betaInits atomic.Int32
	regs := []Registration{
		{Name: "alpha", New: func(api *API) Unit {
			return &testUnit{name: "alpha", commands: []string{"a"}, inits: &alphaInits}
		}},
		{Name: "beta", New: func(api *API) Unit {
			return &testUnit{name: "beta", commands: []string{"b"}, inits: &betaInits}
		}},
	}
	m := newTestManager(t, Config{Enabled: true, Units: enabledUnits("alpha", "beta")}, regs)
	m.Load(context.Background())

	source := &mutableSource{cfgs: map[string]UnitConfig{
		"alpha": {Enabled: true},
		"beta":  {Enabled: true},
	}}
	w := NewWatcher(m, source.read, "", time.Minute)

	// The first sync seeds the fingerprint baseline.
	w.Sync(context.Background())
	alphaStart, betaStart := alphaInits.Load(), betaInits.Load()

	// An unchanged file must not reload any unit.
	w.Sync(context.Background())
	if alphaInits.Load() != alphaStart || betaInits.Load() != betaStart {
		t.Fatalf("unchanged config caused reloads")
	}

	// Changing only alpha's options reloads only alpha.
	source.set("alpha", UnitConfig{Enabled: true, Options: map[string]any{"limit": 3}})
	w.Sync(context.Background())
	if got := alphaInits.Load(); got != alphaStart+1 {
		t.Fatalf("alpha reloaded %d times, want 1", got-alphaStart)
	}
	if got := betaInits.Load(); got != betaStart {
		t.Fatalf("beta reloaded on alpha's change")
	}

	stats := w.Stats()
	if stats.LastUnit != "alpha" || stats.Reloads == 0 {
		t.Fatalf("stats = %+v, want alpha reload recorded", stats)
	}
}

func TestWatcherRuntimeToggleSurvivesUnrelatedChange(t *testing.T) {
	t.Parallel()
	regs := []Registration{
		{Name: "alpha", New: func(api *API) Unit {
			return &testUnit{name: "alpha", commands: []string{"a"}}
		}},
		{Name: "beta", New: func(api *API) Unit {
			return &testUnit{name: "beta", commands: []string{"b"}}
		}},
	}
	m := newTestManager(t, Config{Enabled: true, Units: enabledUnits("alpha", "beta")}, regs)
	m.Load(context.Background())

	source := &mutableSource{cfgs: map[string]UnitConfig{
		"alpha": {Enabled: true},
		"beta":  {Enabled: true},
	}}
	w := NewWatcher(m, source.read, "", time.Minute)
	w.Sync(context.Background())

	// Disable alpha at runtime, then change only beta in the file.
	if _, err := m.SetEnabled("alpha", false); err != nil {
		t.Fatalf("disable alpha: %v", err)
	}
	source.set("beta", UnitConfig{Enabled: true, Options: map[string]any{"x": 1}})
	w.Sync(context.Background())

	// Alpha's record did not change, so its runtime toggle survives.
	if _, ok := m.Route("a"); ok {
		t.Fatalf("runtime disable of alpha lost after unrelated change")
	}
	if _, ok := m.Route("b"); !ok {
		t.Fatalf("beta unreachable after its own reload")
	}
}

func TestWatcherAppliesEnableDisableFromFile(t *testing.T) {
	t.Parallel()
	regs := []Registration{
		{Name: "gamma", New: func(api *API) Unit {
			return &testUnit{name: "gamma", commands: []string{"g"}}
		}},
	}
	m := newTestManager(t, Config{Enabled: true, Units: enabledUnits("gamma")}, regs)
	m.Load(context.Background())

	source := &mutableSource{cfgs: map[string]UnitConfig{"gamma": {Enabled: true}}}
	w := NewWatcher(m, source.read, "", time.Minute)
	w.Sync(context.Background())

	source.set("gamma", UnitConfig{Enabled: false})
	w.Sync(context.Background())
	if _, ok := m.Route("g"); ok {
		t.Fatalf("file disable not applied")
	}

	source.set("gamma", UnitConfig{Enabled: true})
	w.Sync(context.Background())
	if _, ok := m.Route("g"); !ok {
		t.Fatalf("file enable not applied")
	}
}

func TestWatcherCountsSourceErrors(t *testing.T) {
	t.Parallel()
	regs := []Registration{
		{Name: "delta", New: func(api *API) Unit {
			return &testUnit{name: "delta", commands: []string{"d"}}
		}},
	}
	m := newTestManager(t, Config{Enabled: true, Units: enabledUnits("delta")}, regs)
	m.Load(context.Background())

	var fail atomic.Bool
	source := func() (map[string]UnitConfig, error) {
		if fail.Load() {
			return nil, context.DeadlineExceeded
		}
		return map[string]UnitConfig{"delta": {Enabled: true}}, nil
	}
	w := NewWatcher(m, source, "", time.Minute)
	w.Sync(context.Background())

	fail.Store(true)
	w.Sync(context.Background())
	if stats := w.Stats(); stats.Errors != 1 {
		t.Fatalf("Errors = %d, want 1", stats.Errors)
	}
	// A failed read must not disturb the routing table.
	if _, ok := m.Route("d"); !ok {
		t.Fatalf("unit unreachable after source error")
	}
}

func TestFingerprintStability(t *testing.T) {
	t.Parallel()
	a := UnitConfig{Enabled: true, Options: map[string]any{"x": 1, "y": "two"}}
	b := UnitConfig{Enabled: true, Options: map[string]any{"y": "two", "x": 1}}
	if fingerprint(a) != fingerprint(b) {
		t.Fatalf("fingerprint depends on option iteration order")
	}
	c := UnitConfig{Enabled: false, Options: map[string]any{"x": 1, "y": "two"}}
	if fingerprint(a) == fingerprint(c) {
		t.Fatalf("fingerprint ignores the enabled flag")
	}
	d := UnitConfig{Enabled: true, Timeout: time.Second, Options: map[string]any{"x": 1, "y": "two"}}
	if fingerprint(a) == fingerprint(d) {
		t.Fatalf("fingerprint ignores the timeout")
	}
}
