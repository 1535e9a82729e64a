// Package core implements the bot's built-in administration unit: help and
// diagnostics, display-name maintenance and runtime management of the other
// handler units.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/boo-chat/boo/bot/plugin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// New is the unit factory registered under the name "core".
func New(api *plugin.API) plugin.Unit {
	return &unit{api: api}
}

type unit struct {
	api *plugin.API
	log *slog.Logger
}

func (u *unit) Name() string        { return "core" }
func (u *unit) Version() string     { return "1.0.0" }
func (u *unit) Description() string { return "Core bot commands (help, debug, ping, unit management)" }

func (u *unit) Commands() []string {
	return []string{
		"debug", "talk", "help", "ping", "room", "refresh", "update", "name",
		"status", "plugins", "reload", "enable", "disable", "config",
	}
}

func (u *unit) Initialize(ctx context.Context) error {
	u.log = u.api.Logger()
	u.log.Info("Unit initialised.")
	return nil
}

func (u *unit) Cleanup(ctx context.Context) error { return nil }

func (u *unit) Handle(ctx context.Context, call plugin.Call) (string, bool, error) {
	switch call.Command {
	case "debug":
		return u.debug(), true, nil
	case "talk":
		return "Hello! 👋 I'm your friendly chat bot. How can I help you today?", true, nil
	case "help":
		return u.help(), true, nil
	case "ping":
		return "Pong! 🏓", true, nil
	case "room":
		return u.room(call.RoomID), true, nil
	case "status":
		return u.status(), true, nil
	case "plugins":
		return u.plugins(), true, nil
	case "reload":
		return u.reload(ctx, call.Args), true, nil
	case "enable":
		return u.enable(call.Args), true, nil
	case "disable":
		return u.disable(call.Args), true, nil
	case "config":
		return u.config(ctx, call.Args), true, nil
	case "refresh", "update":
		if strings.TrimSpace(call.Args) == "name" {
			return u.refreshName(ctx), true, nil
		}
	case "name":
		if args := strings.TrimSpace(call.Args); args == "refresh" || args == "update" {
			return u.refreshName(ctx), true, nil
		}
	}
	return "", false, nil
}

func (u *unit) debug() string {
	counts := u.api.EventCounts()
	var b strings.Builder
	b.WriteString("🔍 **DEBUG INFO**\n\n📊 **Event Counters:**\n")
	fmt.Fprintf(&b, "• Text: %d\n", counts["text"])
	fmt.Fprintf(&b, "• Media: %d\n", counts["media"])
	fmt.Fprintf(&b, "• Unknown: %d\n", counts["unknown"])
	fmt.Fprintf(&b, "• Commands: %d\n", counts["commands"])
	fmt.Fprintf(&b, "• Replies: %d\n", counts["replies"])
	b.WriteString("\n🤖 **Bot Info:**\n")
	fmt.Fprintf(&b, "• Display name: %s", u.api.DisplayName())
	return b.String()
}

// help groups the effective command table by owning unit.
func (u *unit) help() string {
	owners := u.api.CommandOwners()
	byUnit := make(map[string][]string)
	for cmd, unitName := range owners {
		byUnit[unitName] = append(byUnit[unitName], cmd)
	}
	names := make([]string, 0, len(byUnit))
	for name := range byUnit {
		names = append(names, name)
	}
	sort.Strings(names)
	title := cases.Title(language.English)

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 **%s Commands:**\n\n", u.api.DisplayName())
	for _, name := range names {
		cmds := byUnit[name]
		sort.Strings(cmds)
		fmt.Fprintf(&b, "**%s:** %s\n", title.String(name), strings.Join(cmds, ", "))
	}
	return b.String()
}

func (u *unit) room(roomID string) string {
	summary, ok := u.api.RoomSummary(roomID)
	if !ok {
		return "❌ Room information not available"
	}
	return "🏠 ROOM INFO:\n" + summary
}

func (u *unit) status() string {
	var active, failed int
	for _, info := range u.api.Units() {
		switch info.State {
		case plugin.StateActive:
			active++
		case plugin.StateFailed:
			failed++
		}
	}
	counts := u.api.EventCounts()
	return fmt.Sprintf("📊 **Bot Status**\n\n🔌 **Units:** %d active, %d failed\n📨 **Messages processed:** %d",
		active, failed, counts["text"])
}

func (u *unit) plugins() string {
	var b strings.Builder
	b.WriteString("🔌 **Unit Status:**\n\n")
	var failed []plugin.Info
	for _, info := range u.api.Units() {
		if info.State == plugin.StateFailed {
			failed = append(failed, info)
			continue
		}
		mark := "❌"
		if info.State == plugin.StateActive {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s **%s** v%s\n   %s\n   Commands: %s\n\n",
			mark, info.Name, info.Version, info.Description, strings.Join(info.Commands, ", "))
	}
	if len(failed) > 0 {
		b.WriteString("❌ **Failed Units:**\n")
		for _, info := range failed {
			fmt.Fprintf(&b, "• %s: %s\n", info.Name, info.Failure)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (u *unit) reload(ctx context.Context, args string) string {
	name := strings.TrimSpace(args)
	if name == "" {
		return "❌ Please specify a unit name to reload. Example: `reload youtube`"
	}
	if _, err := u.api.ReloadUnit(ctx, name); err != nil {
		u.log.Warn("Reload failed.", "unit", name, "error", err)
		return unitError(name, err, fmt.Sprintf("❌ Failed to reload unit `%s`", name))
	}
	return fmt.Sprintf("✅ Unit `%s` reloaded successfully", name)
}

func (u *unit) enable(args string) string {
	name := strings.TrimSpace(args)
	if name == "" {
		return "❌ Please specify a unit name to enable. Example: `enable youtube`"
	}
	if _, err := u.api.EnableUnit(name); err != nil {
		return unitError(name, err, fmt.Sprintf("❌ Failed to enable unit `%s`", name))
	}
	return fmt.Sprintf("✅ Unit `%s` enabled", name)
}

func (u *unit) disable(args string) string {
	name := strings.TrimSpace(args)
	if name == "" {
		return "❌ Please specify a unit name to disable. Example: `disable youtube`"
	}
	if _, err := u.api.DisableUnit(name); err != nil {
		return unitError(name, err, fmt.Sprintf("❌ Failed to disable unit `%s`", name))
	}
	return fmt.Sprintf("⏸️ Unit `%s` disabled", name)
}

func (u *unit) refreshName(ctx context.Context) string {
	name, err := u.api.RefreshDisplayName(ctx)
	if err != nil {
		u.log.Warn("Display name refresh failed.", "error", err)
		return "❌ Error refreshing name"
	}
	return fmt.Sprintf("✅ Display name refreshed: %s", name)
}

// config implements runtime configuration inspection and mutation:
// `config list <unit>`, `config get <unit> <setting>`,
// `config set <unit> <setting> <value>` and `config reload`.
func (u *unit) config(ctx context.Context, args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "⚙️ **Configuration Commands:**\n\n" +
			"• `config list <unit>` - Show a unit's settings\n" +
			"• `config get <unit> <setting>` - Show one setting\n" +
			"• `config set <unit> <setting> <value>` - Change a setting until restart\n" +
			"• `config reload` - Reload every unit\n" +
			"• `config` - Show this help"
	}
	switch fields[0] {
	case "reload":
		// ReloadAllUnits reports every unit, nil for the successful ones.
		var failed []string
		for name, err := range u.api.ReloadAllUnits(ctx) {
			if err != nil {
				failed = append(failed, name)
			}
		}
		if len(failed) > 0 {
			sort.Strings(failed)
			return "❌ Configuration reloaded with failures: " + strings.Join(failed, ", ")
		}
		return "✅ Configuration reloaded - all units restarted"
	case "list":
		if len(fields) != 2 {
			return "❌ Usage: `config list <unit>`"
		}
		return u.configList(fields[1])
	case "get":
		if len(fields) != 3 {
			return "❌ Usage: `config get <unit> <setting>`"
		}
		return u.configGet(fields[1], fields[2])
	case "set":
		if len(fields) < 4 {
			return "❌ Usage: `config set <unit> <setting> <value>`"
		}
		return u.configSet(fields[1], fields[2], strings.Join(fields[3:], " "))
	}
	return "❌ Unknown config command. Use `config` for help."
}

func (u *unit) configList(name string) string {
	opts, err := u.api.UnitOptions(name)
	if err != nil {
		return unitError(name, err, "❌ Error reading unit config")
	}
	title := cases.Title(language.English)
	var b strings.Builder
	fmt.Fprintf(&b, "⚙️ **%s Unit Settings:**\n", title.String(name))
	if len(opts) == 0 {
		b.WriteString("• (none)")
		return b.String()
	}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "• %s = %v\n", k, opts[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

func (u *unit) configGet(name, setting string) string {
	opts, err := u.api.UnitOptions(name)
	if err != nil {
		return unitError(name, err, "❌ Error reading unit config")
	}
	v, ok := opts[setting]
	if !ok {
		return fmt.Sprintf("❌ Setting '%s' not found in unit '%s'", setting, name)
	}
	return fmt.Sprintf("⚙️ %s.%s = %v", name, setting, v)
}

func (u *unit) configSet(name, setting, raw string) string {
	if reason, ok := protectedSetting(name, setting); ok {
		return "❌ " + reason
	}
	value := parseConfigValue(raw)
	if err := u.api.SetUnitOption(name, setting, value); err != nil {
		return unitError(name, err, "❌ Error updating config")
	}
	u.log.Info("Setting changed.", "unit", name, "setting", setting, "value", value)
	return fmt.Sprintf("✅ Set %s.%s = %v", name, setting, value)
}

// protectedSetting reports settings that must never be changed from chat.
func protectedSetting(unit, setting string) (string, bool) {
	switch unit {
	case "archive":
		if setting == "api_url" || setting == "api_key" {
			return "api_url and api_key cannot be changed via chat commands for security", true
		}
	case "core":
		switch setting {
		case "admin_users", "admin_rooms", "allow_config_commands":
			return "core security settings cannot be changed via chat commands", true
		}
	}
	return "", false
}

// parseConfigValue turns a raw chat token into a typed scalar: booleans,
// integers and floats are recognised, quoted strings are unquoted and
// anything else stays a string.
func parseConfigValue(raw string) any {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "true", "yes", "on", "enabled":
		return true
	case "false", "no", "off", "disabled":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if len(raw) >= 2 {
		if (raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\'') {
			return raw[1 : len(raw)-1]
		}
	}
	return raw
}

// unitError maps the manager's sentinel errors onto user-facing messages,
// keeping "unknown unit" distinct from other failures.
func unitError(name string, err error, fallback string) string {
	switch {
	case errors.Is(err, plugin.ErrUnknownUnit):
		return fmt.Sprintf("❌ Unit `%s` not found", name)
	case errors.Is(err, plugin.ErrUnitFailed):
		return fmt.Sprintf("❌ Unit `%s` failed to initialise and must be reloaded", name)
	}
	return fallback
}
