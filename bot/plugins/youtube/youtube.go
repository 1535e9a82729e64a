// Package youtube implements a unit that summarises the spoken content of
// video links and keeps a small per-room cache of recent summaries.
package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/boo-chat/boo/bot/plugin"
)

// New is the unit factory registered under the name "youtube".
func New(api *plugin.API) plugin.Unit {
	return &unit{api: api}
}

type summary struct {
	url  string
	text string
}

type unit struct {
	api      *plugin.API
	log      *slog.Logger
	maxCache int

	mu    sync.Mutex
	cache map[string][]summary
}

func (u *unit) Name() string        { return "youtube" }
func (u *unit) Version() string     { return "1.0.0" }
func (u *unit) Description() string { return "Video summaries via the subtitle collaborator" }
func (u *unit) Commands() []string  { return []string{"summary", "videos"} }

func (u *unit) Initialize(ctx context.Context) error {
	u.log = u.api.Logger()
	if u.api.Subtitler() == nil {
		return fmt.Errorf("no subtitle collaborator configured")
	}
	u.maxCache = optionInt(u.api, "max_cached_per_room", 5)
	u.cache = make(map[string][]summary)
	u.log.Info("Unit initialised.", "maxCachedPerRoom", u.maxCache)
	return nil
}

func (u *unit) Cleanup(ctx context.Context) error {
	u.mu.Lock()
	u.cache = nil
	u.mu.Unlock()
	return nil
}

func (u *unit) Handle(ctx context.Context, call plugin.Call) (string, bool, error) {
	switch call.Command {
	case "summary":
		url := strings.TrimSpace(call.Args)
		if url == "" {
			return "❌ Please provide a video URL. Usage: summary <url>", true, nil
		}
		return u.summarize(ctx, call.RoomID, url)
	case "videos":
		return u.recent(call.RoomID), true, nil
	}
	return "", false, nil
}

func (u *unit) summarize(ctx context.Context, roomID, url string) (string, bool, error) {
	text, err := u.api.Subtitler().Summarize(ctx, url)
	if err != nil {
		u.log.Warn("Summarisation failed.", "url", url, "error", err)
		return "❌ Could not summarise that video. Try again later.", true, nil
	}
	u.remember(roomID, summary{url: url, text: text})
	return fmt.Sprintf("🎬 **Summary of %s:**\n%s", url, text), true, nil
}

func (u *unit) remember(roomID string, s summary) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cache == nil {
		return
	}
	entries := append(u.cache[roomID], s)
	if len(entries) > u.maxCache {
		entries = entries[len(entries)-u.maxCache:]
	}
	u.cache[roomID] = entries
}

func (u *unit) recent(roomID string) string {
	u.mu.Lock()
	entries := append([]summary(nil), u.cache[roomID]...)
	u.mu.Unlock()

	if len(entries) == 0 {
		return "🎬 No videos summarised in this room yet."
	}
	var b strings.Builder
	b.WriteString("🎬 **Recent videos:**\n")
	for i, s := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.url)
	}
	return strings.TrimRight(b.String(), "\n")
}

func optionInt(api *plugin.API, key string, fallback int) int {
	v, ok := api.Option(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}
