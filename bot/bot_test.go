package bot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boo-chat/boo/bot/plugin"
	"github.com/boo-chat/boo/bot/plugins/core"
	"github.com/boo-chat/boo/bot/plugins/echo"
	"github.com/boo-chat/boo/bot/session"
	"github.com/boo-chat/boo/bot/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unitsEnabled(names ...string) map[string]plugin.UnitConfig {
	out := make(map[string]plugin.UnitConfig, len(names))
	for _, name := range names {
		out[name] = plugin.UnitConfig{Enabled: true}
	}
	return out
}

// startBot builds a Bot around a Loopback session, runs it and arranges for
// shutdown when the test finishes.
func startBot(t *testing.T, conf Config) (*Bot, *session.Loopback) {
	t.Helper()
	loop := session.NewLoopback("@boo:local", "boo")
	conf.Session = loop
	if conf.Log == nil {
		conf.Log = discardLogger()
	}
	b, err := conf.New()
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(func() {
		cancel()
		_ = b.Close(context.Background())
	})
	return b, loop
}

func awaitReply(t *testing.T, loop *session.Loopback) string {
	t.Helper()
	select {
	case out := <-loop.Outbound():
		return out.Body
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply within deadline")
		return ""
	}
}

func expectSilence(t *testing.T, loop *session.Loopback) {
	t.Helper()
	select {
	case out := <-loop.Outbound():
		t.Fatalf("unexpected reply: %q", out.Body)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestBotAnswersPing(t *testing.T) {
	t.Parallel()
	_, loop := startBot(t, Config{Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")}})

	loop.Inject("!room", "@alice:local", "boo: ping")
	if reply := awaitReply(t, loop); reply != "Pong! 🏓" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestBotAddressingIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	_, loop := startBot(t, Config{Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")}})

	loop.Inject("!room", "@alice:local", "BOO: PING")
	if reply := awaitReply(t, loop); reply != "Pong! 🏓" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestBotUnknownCommand(t *testing.T) {
	t.Parallel()
	_, loop := startBot(t, Config{Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")}})

	loop.Inject("!room", "@alice:local", "boo: frobnicate now")
	if reply := awaitReply(t, loop); reply != "Unknown command: frobnicate" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestBotEmptyCommandHint(t *testing.T) {
	t.Parallel()
	_, loop := startBot(t, Config{Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")}})

	loop.Inject("!room", "@alice:local", "boo:")
	if reply := awaitReply(t, loop); reply != "Please specify a command. Try 'boo: help'" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestBotEditedCommandRepliesWithMarker(t *testing.T) {
	t.Parallel()
	_, loop := startBot(t, Config{Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")}})

	loop.InjectEdit("!room", "@alice:local", "* boo: ping")
	if reply := awaitReply(t, loop); reply != "✏️ Pong! 🏓" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestBotIgnoresOwnMessages(t *testing.T) {
	t.Parallel()
	_, loop := startBot(t, Config{Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")}})

	loop.Inject("!room", "@boo:local", "boo: ping")
	expectSilence(t, loop)
}

func TestBotIgnoresUnaddressedMessages(t *testing.T) {
	t.Parallel()
	_, loop := startBot(t, Config{Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")}})

	loop.Inject("!room", "@alice:local", "good morning everyone")
	expectSilence(t, loop)
}

func TestBotRuntimeEnableMakesCommandsReachable(t *testing.T) {
	t.Parallel()
	b, loop := startBot(t, Config{Plugins: plugin.Config{
		Enabled: true,
		Units: map[string]plugin.UnitConfig{
			"core": {Enabled: true},
			"echo": {Enabled: false},
		},
	}})

	loop.Inject("!room", "@alice:local", "boo: echo hi")
	if reply := awaitReply(t, loop); reply != "Unknown command: echo" {
		t.Fatalf("reply while disabled = %q", reply)
	}

	if _, err := b.Manager().SetEnabled("echo", true); err != nil {
		t.Fatalf("enable echo: %v", err)
	}
	loop.Inject("!room", "@alice:local", "boo: echo hi")
	if reply := awaitReply(t, loop); !strings.Contains(reply, "Echo from @alice:local") || !strings.Contains(reply, "hi") {
		t.Fatalf("reply after enable = %q", reply)
	}
}

func TestBotArchivesMessages(t *testing.T) {
	t.Parallel()
	st, err := store.Open(t.TempDir(), discardLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	_, loop := startBot(t, Config{
		Store:   st,
		Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")},
	})

	loop.Inject("!room", "@alice:local", "hello there")

	// Archiving happens on the event's own goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs, err := st.Messages(context.Background(), "!room", 10)
		if err != nil {
			t.Fatalf("read messages: %v", err)
		}
		if len(msgs) == 1 {
			if msgs[0].Sender != "@alice:local" || msgs[0].Body != "hello there" || msgs[0].FromBot {
				t.Fatalf("archived message = %+v", msgs[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("message not archived, have %d", len(msgs))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// mediaUnit is a handler unit that also consumes media events.
type mediaUnit struct {
	seen atomic.Value
}

func (u *mediaUnit) Name() string                     { return "media" }
func (u *mediaUnit) Version() string                  { return "0.0.1" }
func (u *mediaUnit) Description() string              { return "records media events" }
func (u *mediaUnit) Commands() []string               { return []string{"media"} }
func (u *mediaUnit) Initialize(context.Context) error { return nil }
func (u *mediaUnit) Cleanup(context.Context) error    { return nil }

func (u *mediaUnit) Handle(ctx context.Context, call plugin.Call) (string, bool, error) {
	return "", false, nil
}

func (u *mediaUnit) HandleMedia(ctx context.Context, m plugin.Media) (bool, error) {
	u.seen.Store(m)
	return true, nil
}

func TestBotOffersMediaToHandlers(t *testing.T) {
	t.Parallel()
	unit := &mediaUnit{}
	_, loop := startBot(t, Config{
		Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("media")},
		Registrations: []plugin.Registration{
			{Name: "media", New: func(api *plugin.API) plugin.Unit { return unit }},
		},
	})

	loop.InjectMedia("!room", "@alice:local", "cat.jpg")

	deadline := time.Now().Add(2 * time.Second)
	for {
		if m, ok := unit.seen.Load().(plugin.Media); ok {
			if m.RoomID != "!room" || m.UserID != "@alice:local" || m.Body != "cat.jpg" {
				t.Fatalf("media = %+v", m)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("media event never offered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// flakyUnit initialises once and fails every time after that.
type flakyUnit struct {
	inits atomic.Int32
}

func (u *flakyUnit) Name() string        { return "flaky" }
func (u *flakyUnit) Version() string     { return "0.0.1" }
func (u *flakyUnit) Description() string { return "fails on reload" }
func (u *flakyUnit) Commands() []string  { return []string{"flake"} }

func (u *flakyUnit) Initialize(context.Context) error {
	if u.inits.Add(1) > 1 {
		return errors.New("second init refused")
	}
	return nil
}
func (u *flakyUnit) Cleanup(context.Context) error { return nil }
func (u *flakyUnit) Handle(ctx context.Context, call plugin.Call) (string, bool, error) {
	return "", false, nil
}

func TestBotConfigReloadReportsSuccess(t *testing.T) {
	t.Parallel()
	_, loop := startBot(t, Config{
		Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core", "echo")},
		Registrations: []plugin.Registration{
			{Name: "core", New: core.New},
			{Name: "echo", New: echo.New},
		},
	})

	loop.Inject("!room", "@alice:local", "boo: config reload")
	if reply := awaitReply(t, loop); reply != "✅ Configuration reloaded - all units restarted" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestBotConfigReloadListsOnlyFailedUnits(t *testing.T) {
	t.Parallel()
	flaky := &flakyUnit{}
	_, loop := startBot(t, Config{
		Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core", "flaky")},
		Registrations: []plugin.Registration{
			{Name: "core", New: core.New},
			{Name: "flaky", New: func(api *plugin.API) plugin.Unit { return flaky }},
		},
	})

	loop.Inject("!room", "@alice:local", "boo: config reload")
	if reply := awaitReply(t, loop); reply != "❌ Configuration reloaded with failures: flaky" {
		t.Fatalf("reply = %q", reply)
	}
}

// syncBuffer is an io.Writer safe for the bot's concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBotStartupLogsNoFailuresWhenHealthy(t *testing.T) {
	t.Parallel()
	out := &syncBuffer{}
	_, loop := startBot(t, Config{
		Log:     slog.New(slog.NewTextHandler(out, nil)),
		Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core", "echo")},
		Registrations: []plugin.Registration{
			{Name: "core", New: core.New},
			{Name: "echo", New: echo.New},
		},
	})

	loop.Inject("!room", "@alice:local", "boo: ping")
	awaitReply(t, loop)
	if logged := out.String(); strings.Contains(logged, "Unit failed to initialise.") {
		t.Fatalf("healthy startup logged failures:\n%s", logged)
	}
}

func TestBotStartupLogsFailedUnit(t *testing.T) {
	t.Parallel()
	out := &syncBuffer{}
	_, loop := startBot(t, Config{
		Log:     slog.New(slog.NewTextHandler(out, nil)),
		Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core", "broken")},
		Registrations: []plugin.Registration{
			{Name: "core", New: core.New},
			{Name: "broken", New: func(api *plugin.API) plugin.Unit { return &brokenUnit{} }},
		},
	})

	loop.Inject("!room", "@alice:local", "boo: ping")
	awaitReply(t, loop)
	if logged := out.String(); !strings.Contains(logged, "Unit failed to initialise.") {
		t.Fatalf("broken unit's failure not logged:\n%s", logged)
	}
}

// brokenUnit always refuses to initialise.
type brokenUnit struct{}

func (brokenUnit) Name() string                     { return "broken" }
func (brokenUnit) Version() string                  { return "0.0.1" }
func (brokenUnit) Description() string              { return "never initialises" }
func (brokenUnit) Commands() []string               { return []string{"nope"} }
func (brokenUnit) Initialize(context.Context) error { return errors.New("db gone") }
func (brokenUnit) Cleanup(context.Context) error    { return nil }
func (brokenUnit) Handle(ctx context.Context, call plugin.Call) (string, bool, error) {
	return "", false, nil
}

func TestBotConfigWinsAcrossRestart(t *testing.T) {
	t.Parallel()
	conf := Config{Plugins: plugin.Config{
		Enabled: true,
		Units: map[string]plugin.UnitConfig{
			"core": {Enabled: true},
			"echo": {Enabled: false},
		},
	}}

	b, loop := startBot(t, conf)
	if _, err := b.Manager().SetEnabled("echo", true); err != nil {
		t.Fatalf("enable echo: %v", err)
	}
	loop.Inject("!room", "@alice:local", "boo: echo hi")
	if reply := awaitReply(t, loop); strings.HasPrefix(reply, "Unknown command") {
		t.Fatalf("echo unreachable after enable: %q", reply)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("close first bot: %v", err)
	}

	// A runtime toggle lives only for the process; a bot built from the same
	// persisted configuration starts with echo disabled again.
	_, loop2 := startBot(t, conf)
	loop2.Inject("!room", "@alice:local", "boo: echo hi")
	if reply := awaitReply(t, loop2); reply != "Unknown command: echo" {
		t.Fatalf("reply after restart = %q", reply)
	}
}

func TestBotRunTwice(t *testing.T) {
	t.Parallel()
	b, _ := startBot(t, Config{Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")}})

	// Give the first Run a moment to claim the started flag.
	deadline := time.Now().Add(time.Second)
	for !b.started.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("bot never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := b.Run(context.Background()); err == nil {
		t.Fatalf("second Run succeeded")
	}
}

func TestBotCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	b, _ := startBot(t, Config{Plugins: plugin.Config{Enabled: true, Units: unitsEnabled("core")}})

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestConfigRequiresSession(t *testing.T) {
	t.Parallel()
	if _, err := (Config{Log: discardLogger()}).New(); err == nil {
		t.Fatalf("bot built without a session")
	}
}
