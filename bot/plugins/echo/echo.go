// Package echo is a skeleton handler unit kept as a reference for writing
// new units. It echoes user messages back into the room.
package echo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boo-chat/boo/bot/plugin"
)

// New is the unit factory registered under the name "echo".
func New(api *plugin.API) plugin.Unit {
	return &unit{api: api}
}

type unit struct {
	api       *plugin.API
	log       *slog.Logger
	maxLength int
}

func (u *unit) Name() string        { return "echo" }
func (u *unit) Version() string     { return "1.0.0" }
func (u *unit) Description() string { return "Example skeleton unit that echoes user messages" }
func (u *unit) Commands() []string  { return []string{"echo", "repeat", "example"} }

func (u *unit) Initialize(ctx context.Context) error {
	u.log = u.api.Logger()
	u.maxLength = optionInt(u.api, "max_length", 500)
	u.log.Info("Unit initialised.", "maxLength", u.maxLength)
	return nil
}

func (u *unit) Cleanup(ctx context.Context) error { return nil }

func (u *unit) Handle(ctx context.Context, call plugin.Call) (string, bool, error) {
	switch call.Command {
	case "echo":
		return u.echo(call.Args, call.UserID), true, nil
	case "repeat":
		return u.repeat(call.Args, call.UserID), true, nil
	case "example":
		return u.example(call.Args, call.UserID), true, nil
	}
	return "", false, nil
}

func (u *unit) echo(args, userID string) string {
	if args == "" {
		return "🔊 **Echo Command**\n\nUsage: `echo <message>`\nI'll repeat whatever you type!"
	}
	if len(args) > u.maxLength {
		args = args[:u.maxLength] + "... (truncated)"
	}
	return fmt.Sprintf("🔊 **Echo from %s:**\n%s", userID, args)
}

func (u *unit) repeat(args, userID string) string {
	if args == "" {
		return "🔁 **Repeat Command**\n\nUsage: `repeat <message>`\nI'll repeat your message 3 times!"
	}
	lines := make([]string, 3)
	for i := range lines {
		lines[i] = fmt.Sprintf("%d. %s", i+1, args)
	}
	return fmt.Sprintf("🔁 **Repeating message from %s:**\n%s", userID, strings.Join(lines, "\n"))
}

func (u *unit) example(args, userID string) string {
	if args == "" {
		args = "(none)"
	}
	return fmt.Sprintf(`🎯 **Example Unit Demo**

**Available Commands:**
• `+"`echo <message>`"+` - Echo back your message
• `+"`repeat <message>`"+` - Repeat your message 3 times
• `+"`example`"+` - Show this demo

**Unit Info:**
• Name: %s
• Version: %s
• User: %s

**Arguments received:** %s`, u.Name(), u.Version(), userID, args)
}

// optionInt reads an integer option, tolerating whichever numeric type the
// config decoder produced.
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
