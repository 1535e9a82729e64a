// Package auth implements PIN-based room authentication. A short-lived PIN
// is minted per room and persisted in the unit's storage bucket, so the web
// dashboard can grant access to that room's archived messages.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/boo-chat/boo/bot/plugin"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const (
	pinTTL        = 24 * time.Hour
	rateLimit     = 3
	rateWindow    = time.Hour
	pinDigits     = 1000000
	recordVersion = 1
)

// New is the unit factory registered under the name "auth".
func New(api *plugin.API) plugin.Unit {
	return &unit{api: api}
}

type record struct {
	Version   int       `json:"version"`
	PIN       string    `json:"pin"`
	ExpiresAt time.Time `json:"expires_at"`
	// Requests holds the mint timestamps inside the rate window.
	Requests []time.Time `json:"requests"`
}

type unit struct {
	api     *plugin.API
	log     *slog.Logger
	storage plugin.Storage
}

func (u *unit) Name() string        { return "auth" }
func (u *unit) Version() string     { return "1.0.0" }
func (u *unit) Description() string { return "PIN authentication for room archive access" }
func (u *unit) Commands() []string  { return []string{"pin", "getpin"} }

func (u *unit) Initialize(ctx context.Context) error {
	u.log = u.api.Logger()
	u.storage = u.api.Storage()
	if u.storage == nil {
		return fmt.Errorf("record store unavailable")
	}
	u.log.Info("Unit initialised.")
	return nil
}

func (u *unit) Cleanup(ctx context.Context) error { return nil }

func (u *unit) Handle(ctx context.Context, call plugin.Call) (string, bool, error) {
	switch call.Command {
	case "pin", "getpin":
		reply, err := u.pin(ctx, call.RoomID)
		if err != nil {
			u.log.Warn("PIN request failed.", "room", call.RoomID, "error", err)
			return "❌ Failed to process PIN request", true, nil
		}
		return reply, true, nil
	}
	return "", false, nil
}

func (u *unit) pin(ctx context.Context, roomID string) (string, error) {
	rec, err := u.load(ctx, roomID)
	if err != nil {
		return "", err
	}
	now := time.Now()

	recent := rec.Requests[:0]
	for _, t := range rec.Requests {
		if now.Sub(t) < rateWindow {
			recent = append(recent, t)
		}
	}
	rec.Requests = recent

	if rec.PIN != "" && now.Before(rec.ExpiresAt) {
		return pinMessage(rec.PIN, rec.ExpiresAt), nil
	}
	if len(rec.Requests) >= rateLimit {
		return "⏱️ **Rate limit exceeded**\n\nThis room has reached the maximum of 3 PIN requests per hour.\nPlease wait and try again later.", nil
	}

	rec.PIN = u.mint(ctx, roomID)
	rec.ExpiresAt = now.Add(pinTTL)
	rec.Requests = append(rec.Requests, now)
	if err := u.save(ctx, roomID, rec); err != nil {
		return "", err
	}
	u.log.Info("PIN minted.", "room", roomID, "expires", rec.ExpiresAt)
	return pinMessage(rec.PIN, rec.ExpiresAt), nil
}

// mint derives a six-digit PIN from a fresh UUID mixed with the current
// beacon pulse, when one is reachable.
func (u *unit) mint(ctx context.Context, roomID string) string {
	seed := xxhash.Sum64String(uuid.NewString() + roomID)
	if oracle := u.api.Oracle(); oracle != nil {
		if pulse, err := oracle.Pulse(ctx); err == nil {
			seed ^= pulse
		}
	}
	return fmt.Sprintf("%06d", seed%pinDigits)
}

func (u *unit) load(ctx context.Context, roomID string) (record, error) {
	rec := record{Version: recordVersion}
	raw, ok, err := u.storage.Get(ctx, roomID)
	if err != nil {
		return rec, fmt.Errorf("load pin record: %w", err)
	}
	if !ok {
		return rec, nil
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		u.log.Warn("Discarding undecodable PIN record.", "room", roomID, "error", err)
		return record{Version: recordVersion}, nil
	}
	return rec, nil
}

func (u *unit) save(ctx context.Context, roomID string, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode pin record: %w", err)
	}
	if err := u.storage.Put(ctx, roomID, raw); err != nil {
		return fmt.Errorf("store pin record: %w", err)
	}
	return nil
}

func pinMessage(pin string, expires time.Time) string {
	return fmt.Sprintf("🔐 **Room Access PIN**: `%s`\n\n"+
		"📝 Use this PIN in the web interface to access messages from this room.\n"+
		"⏰ **Expires**: %s\n"+
		"🔄 **Rate limit**: 3 requests per hour per room", pin, expires.UTC().Format("15:04 UTC"))
}
