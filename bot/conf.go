package bot

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/boo-chat/boo/bot/plugin"
	"github.com/boo-chat/boo/bot/plugins"
	"github.com/boo-chat/boo/bot/session"
	"github.com/boo-chat/boo/bot/store"
	"github.com/boo-chat/boo/bot/webapi"
	"github.com/pelletier/go-toml"
)

// Config contains options for running a Bot.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// Session is the chat transport the bot reads events from and sends
	// replies through. It must be set.
	Session session.Session
	// Name is the fallback display name used for command addressing when the
	// session cannot report one.
	Name string
	// Separator is the token between the display name and the command in an
	// addressed message. Defaults to ":".
	Separator string
	// Plugins configures the handler-unit subsystem.
	Plugins plugin.Config
	// Registrations lists the handler units to discover, in registration
	// order. If empty, plugins.Default() is used.
	Registrations []plugin.Registration
	// Store is the record store used for message archiving and per-unit
	// persistence. If nil, archiving is disabled and units see no storage.
	Store *store.Store
	// Oracle is the AI/randomness collaborator handed to units, or nil.
	Oracle plugin.Oracle
	// Subtitler is the video-processing collaborator handed to units, or nil.
	Subtitler plugin.Subtitler
	// WatchPath is the configuration file to watch for per-unit changes. If
	// empty, no watcher is started.
	WatchPath string
	// WatchInterval is the polling interval of the configuration watcher.
	WatchInterval time.Duration
	// NameRefreshInterval is how often the bot re-fetches its display name
	// from the session. Defaults to five minutes.
	NameRefreshInterval time.Duration
}

// UserConfig is the user configuration of the bot. It holds settings that
// affect different aspects of the bot's behaviour and maps directly onto the
// config.toml file. UserConfig may be serialised and can be converted to a
// Config by calling UserConfig.Config().
type UserConfig struct {
	Bot struct {
		// Name is the fallback display name used for command addressing when
		// the chat session cannot report one.
		Name string
		// Separator is the token between the display name and the command in
		// an addressed message.
		Separator string
		// NameRefreshInterval is how often the bot re-fetches its display
		// name from the session, as a duration string such as "5m".
		NameRefreshInterval string
	}
	Plugins struct {
		// Enabled controls whether handler units are discovered and activated
		// at all. When false, the bot only archives messages.
		Enabled bool
		// DefaultTimeout bounds a single command invocation for units that do
		// not override it, as a duration string such as "10s".
		DefaultTimeout string
	}
	Store struct {
		// Enabled controls whether the record store is opened. When false,
		// messages are not archived and units see no storage.
		Enabled bool
		// Folder is the directory the leveldb record store resides in.
		Folder string
	}
	Watch struct {
		// Enabled controls whether the configuration file is watched for
		// per-unit changes while the bot runs.
		Enabled bool
		// Interval is the polling fallback interval of the watcher, as a
		// duration string such as "30s".
		Interval string
	}
	Oracle struct {
		// BeaconURL is the randomness beacon endpoint. Empty selects the
		// public NIST beacon.
		BeaconURL string
		// CompletionURL is the chat-completion endpoint. Empty selects
		// OpenRouter.
		CompletionURL string
		// APIKey authenticates against the completion endpoint. Without it,
		// units fall back to canned responses.
		APIKey string
		// Model is the completion model to request.
		Model string
	}
	Subtitles struct {
		// URL is the video summarisation endpoint. Empty disables the
		// collaborator.
		URL string
		// APIKey authenticates against the summarisation endpoint.
		APIKey string
	}
	// Units maps unit names to their configuration record. Units without an
	// entry default to disabled.
	Units map[string]UnitUserConfig
}

// UnitUserConfig is the serialised per-unit configuration record.
type UnitUserConfig struct {
	// Enabled decides whether the unit's commands are reachable.
	Enabled bool
	// Timeout overrides the subsystem default for this unit, as a duration
	// string such as "30s". Empty means no override.
	Timeout string
	// Options holds opaque unit-specific configuration values.
	Options map[string]any
}

// Config converts a UserConfig to a Config, so that it may be used for
// creating a Bot. An error is returned if opening the record store or parsing
// a duration failed. The Session field of the returned Config is left unset
// and must be filled in by the caller.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	conf := Config{
		Log:       log,
		Name:      uc.Bot.Name,
		Separator: uc.Bot.Separator,
	}
	var err error
	if conf.NameRefreshInterval, err = parseDuration(uc.Bot.NameRefreshInterval, 5*time.Minute); err != nil {
		return conf, fmt.Errorf("parse name refresh interval: %w", err)
	}
	conf.Plugins.Enabled = uc.Plugins.Enabled
	if conf.Plugins.DefaultTimeout, err = parseDuration(uc.Plugins.DefaultTimeout, 0); err != nil {
		return conf, fmt.Errorf("parse default timeout: %w", err)
	}
	if conf.Plugins.Units, err = uc.unitConfigs(); err != nil {
		return conf, err
	}
	if uc.Store.Enabled {
		conf.Store, err = store.Open(uc.Store.Folder, log)
		if err != nil {
			return conf, fmt.Errorf("open record store: %w", err)
		}
	}
	if uc.Watch.Enabled {
		interval, err := parseDuration(uc.Watch.Interval, 30*time.Second)
		if err != nil {
			return conf, fmt.Errorf("parse watch interval: %w", err)
		}
		conf.WatchInterval = interval
	}
	if uc.Oracle.APIKey != "" || uc.Oracle.BeaconURL != "" {
		conf.Oracle = webapi.NewOracleClient(webapi.OracleConfig{
			BeaconURL:     uc.Oracle.BeaconURL,
			CompletionURL: uc.Oracle.CompletionURL,
			APIKey:        uc.Oracle.APIKey,
			Model:         uc.Oracle.Model,
		}, nil)
	}
	if uc.Subtitles.URL != "" {
		conf.Subtitler = webapi.NewSubtitleClient(webapi.SubtitleConfig{
			URL:    uc.Subtitles.URL,
			APIKey: uc.Subtitles.APIKey,
		}, nil)
	}
	conf.Registrations = plugins.Default()
	return conf, nil
}

// unitConfigs converts the serialised unit records into runtime records.
func (uc UserConfig) unitConfigs() (map[string]plugin.UnitConfig, error) {
	out := make(map[string]plugin.UnitConfig, len(uc.Units))
	for name, u := range uc.Units {
		timeout, err := parseDuration(u.Timeout, 0)
		if err != nil {
			return nil, fmt.Errorf("parse timeout of unit %v: %w", name, err)
		}
		out[strings.ToLower(name)] = plugin.UnitConfig{
			Enabled: u.Enabled,
			Timeout: timeout,
			Options: u.Options,
		}
	}
	return out, nil
}

// ReadConfig reads a UserConfig from the TOML file at path, creating the file
// with default values if it does not yet exist.
func ReadConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		data, err := toml.Marshal(c)
		if err != nil {
			return c, fmt.Errorf("encode default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return c, fmt.Errorf("create default config: %w", err)
		}
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// UnitConfigSource returns a watcher source that re-reads the per-unit
// configuration records from the TOML file at path.
func UnitConfigSource(path string) plugin.ConfigSource {
	return func() (map[string]plugin.UnitConfig, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		var uc UserConfig
		if err := toml.Unmarshal(data, &uc); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		return uc.unitConfigs()
	}
}

// parseDuration parses a duration string, returning fallback for an empty
// string.
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Bot.Name = "boo"
	c.Bot.Separator = ":"
	c.Bot.NameRefreshInterval = "5m"
	c.Plugins.Enabled = true
	c.Plugins.DefaultTimeout = "10s"
	c.Store.Enabled = true
	c.Store.Folder = "data"
	c.Watch.Enabled = true
	c.Watch.Interval = "30s"
	c.Units = map[string]UnitUserConfig{
		"core":      {Enabled: true},
		"echo":      {Enabled: false, Options: map[string]any{"max_length": int64(500)}},
		"eightball": {Enabled: true},
		"youtube":   {Enabled: false, Options: map[string]any{"max_cached_per_room": int64(5)}},
		"archive":   {Enabled: true},
		"auth":      {Enabled: false},
	}
	return c
}
