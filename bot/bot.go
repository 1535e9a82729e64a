// Package bot implements a chat bot whose behaviour lives in small handler
// units managed by a plugin runtime. The bot reads events from a chat
// session, routes addressed commands to the owning unit and sends the unit's
// reply back to the room.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boo-chat/boo/bot/command"
	"github.com/boo-chat/boo/bot/plugin"
	"github.com/boo-chat/boo/bot/plugins"
	"github.com/boo-chat/boo/bot/session"
)

// Bot is a chat bot. Its command surface is composed entirely of handler
// units loaded by the plugin manager.
type Bot struct {
	conf    Config
	log     *slog.Logger
	session session.Session
	manager *plugin.Manager
	router  *command.Router
	watcher *plugin.Watcher

	name atomic.Value

	countMu sync.Mutex
	counts  map[string]uint64

	wg      sync.WaitGroup
	started atomic.Bool
	closing chan struct{}
	once    sync.Once
}

// New creates a Bot using fields of conf. The Bot's units are discovered and
// events may be consumed by calling Bot.Run() afterwards.
func (conf Config) New() (*Bot, error) {
	if conf.Session == nil {
		return nil, errors.New("bot: config must hold a session")
	}
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Name == "" {
		conf.Name = "boo"
	}
	if conf.Separator == "" {
		conf.Separator = ":"
	}
	if conf.NameRefreshInterval == 0 {
		conf.NameRefreshInterval = 5 * time.Minute
	}
	if len(conf.Registrations) == 0 {
		conf.Registrations = plugins.Default()
	}

	b := &Bot{
		conf:    conf,
		log:     conf.Log,
		session: conf.Session,
		counts:  make(map[string]uint64),
		closing: make(chan struct{}),
	}
	b.name.Store(conf.Name)

	m, err := plugin.NewManager(b, conf.Plugins, conf.Registrations)
	if err != nil {
		return nil, fmt.Errorf("bot: create plugin manager: %w", err)
	}
	b.manager = m
	b.router = command.NewRouter(m, conf.Log)
	if conf.WatchPath != "" {
		b.watcher = plugin.NewWatcher(m, UnitConfigSource(conf.WatchPath), conf.WatchPath, conf.WatchInterval)
	}
	return b, nil
}

// Manager returns the plugin manager running the bot's handler units.
func (b *Bot) Manager() *plugin.Manager { return b.manager }

// Run discovers the bot's units and consumes session events until ctx is
// cancelled or the session's event channel is closed. It returns nil on a
// clean shutdown.
func (b *Bot) Run(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.New("bot: already running")
	}
	if name, err := b.session.DisplayName(ctx); err == nil && name != "" {
		b.name.Store(name)
	} else if err != nil {
		b.log.Warn("Fetch display name.", "error", err, "fallback", b.conf.Name)
	}
	b.log.Info("Bot starting.", "name", b.DisplayName(), "units", len(b.conf.Registrations))

	for name, err := range b.manager.Load(ctx) {
		if err != nil {
			b.log.Warn("Unit failed to initialise.", "plugin", name, "error", err)
		}
	}
	if b.watcher != nil {
		if err := b.watcher.Start(ctx); err != nil {
			b.log.Warn("Config watcher unavailable.", "error", err)
			b.watcher = nil
		}
	}

	refresh := time.NewTicker(b.conf.NameRefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.closing:
			return nil
		case <-refresh.C:
			if _, err := b.RefreshDisplayName(ctx); err != nil {
				b.log.Warn("Refresh display name.", "error", err)
			}
		case ev, ok := <-b.session.Events():
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleEvent(ctx, ev)
			}()
		}
	}
}

// Close shuts the bot down: the watcher is stopped, in-flight handlers are
// awaited, units are cleaned up in reverse registration order and the record
// store and session are closed.
func (b *Bot) Close(ctx context.Context) error {
	var err error
	b.once.Do(func() {
		close(b.closing)
		if b.watcher != nil {
			b.watcher.Stop()
		}
		b.wg.Wait()
		b.manager.Shutdown(ctx)
		if b.conf.Store != nil {
			if cerr := b.conf.Store.Close(); cerr != nil {
				err = fmt.Errorf("close record store: %w", cerr)
			}
		}
		if cerr := b.session.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
		b.log.Info("Bot stopped.")
	})
	return err
}

// count bumps the named event counter.
func (b *Bot) count(name string) {
	b.countMu.Lock()
	b.counts[name]++
	b.countMu.Unlock()
}
