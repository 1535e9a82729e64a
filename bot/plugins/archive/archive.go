// Package archive exposes the bot's record store to chat: health checks and
// storage statistics.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boo-chat/boo/bot/plugin"
)

// New is the unit factory registered under the name "archive".
func New(api *plugin.API) plugin.Unit {
	return &unit{api: api}
}

type unit struct {
	api *plugin.API
	log *slog.Logger
}

func (u *unit) Name() string        { return "archive" }
func (u *unit) Version() string     { return "1.0.0" }
func (u *unit) Description() string { return "Record store health and statistics" }
func (u *unit) Commands() []string  { return []string{"db"} }

func (u *unit) Initialize(ctx context.Context) error {
	u.log = u.api.Logger()
	if err := u.api.StorageHealthy(ctx); err != nil {
		return fmt.Errorf("record store unavailable: %w", err)
	}
	u.log.Info("Unit initialised.")
	return nil
}

func (u *unit) Cleanup(ctx context.Context) error { return nil }

func (u *unit) Handle(ctx context.Context, call plugin.Call) (string, bool, error) {
	if call.Command != "db" {
		return "", false, nil
	}
	switch strings.TrimSpace(call.Args) {
	case "health":
		return u.health(ctx), true, nil
	case "stats":
		return u.stats(ctx), true, nil
	}
	return "❌ Unknown database command. Use 'db health' or 'db stats'", true, nil
}

func (u *unit) health(ctx context.Context) string {
	if err := u.api.StorageHealthy(ctx); err != nil {
		u.log.Warn("Health check failed.", "error", err)
		return "❌ Database is unhealthy"
	}
	return "✅ Database is healthy!"
}

func (u *unit) stats(ctx context.Context) string {
	stats, err := u.api.StorageStats(ctx)
	if err != nil {
		u.log.Warn("Stats unavailable.", "error", err)
		return "❌ Could not retrieve database statistics"
	}
	return fmt.Sprintf(`📊 **DATABASE STATISTICS**
📨 Messages: %d
🔑 Keys: %d
💾 Database Size: %d bytes
🕒 Updated: %s`, stats.Messages, stats.Keys, stats.SizeBytes, stats.UpdatedAt.Format("2006-01-02 15:04:05"))
}
