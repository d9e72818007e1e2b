// Package config provides Viper-based configuration loading for the session client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Push transport identifiers.
const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// OutputPaths are zap sink URLs or file paths. Empty means stderr.
	OutputPaths []string `mapstructure:"output_paths"`
}

// APIConfig holds the HTTP game API settings.
type APIConfig struct {
	// BaseURL is the scheme and host of the game API, e.g. "http://localhost:8080".
	BaseURL string `mapstructure:"base_url"`
	// RequestTimeout bounds NPC and chat requests.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// StreamTimeout bounds a single streaming world action from request to terminal event.
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
}

// PushConfig holds the push event channel settings.
type PushConfig struct {
	// Transport is "websocket" or "redis".
	Transport string `mapstructure:"transport"`
	// URL is the WebSocket endpoint, used when Transport is "websocket".
	URL string `mapstructure:"url"`
	// RedisAddr is the host:port of the Redis server, used when Transport is "redis".
	RedisAddr string `mapstructure:"redis_addr"`
	// ChannelPrefix namespaces the per-player Redis channels.
	ChannelPrefix string `mapstructure:"channel_prefix"`
	// OutboundBuffer is the number of queued outbound events before sends fail.
	OutboundBuffer int `mapstructure:"outbound_buffer"`
}

// SessionConfig holds per-player coordinator settings.
type SessionConfig struct {
	PlayerID   string `mapstructure:"player_id"`
	PlayerName string `mapstructure:"player_name"`
	RoomID     string `mapstructure:"room_id"`
	// SpinnerInterval is the placeholder animation period.
	SpinnerInterval time.Duration `mapstructure:"spinner_interval"`
	// NPCContextLimit is the maximum number of ledger entries sent as NPC context.
	NPCContextLimit int `mapstructure:"npc_context_limit"`
	// DuelVitalCap is the vital maximum used when a duel start omits one.
	DuelVitalCap int `mapstructure:"duel_vital_cap"`
	// InboxSize is the coordinator inbox buffer length.
	InboxSize int `mapstructure:"inbox_size"`
	// NPCFile is an optional YAML file seeding the NPC directory.
	NPCFile string `mapstructure:"npc_file"`
}

// DatabaseConfig holds PostgreSQL connection settings for the transcript archive.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// ArchiveConfig controls persisting the ledger transcript when a session closes.
type ArchiveConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Database DatabaseConfig `mapstructure:"database"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	API     APIConfig     `mapstructure:"api"`
	Push    PushConfig    `mapstructure:"push"`
	Session SessionConfig `mapstructure:"session"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAPI(c.API); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validatePush(c.Push); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSession(c.Session); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Archive.Enabled {
		if err := validateDatabase(c.Archive.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateAPI(a APIConfig) error {
	var errs []string
	u, err := url.Parse(a.BaseURL)
	if err != nil || a.BaseURL == "" || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.base_url must be an absolute http(s) URL, got %q", a.BaseURL))
	}
	if a.RequestTimeout <= 0 {
		errs = append(errs, "api.request_timeout must be positive")
	}
	if a.StreamTimeout <= 0 {
		errs = append(errs, "api.stream_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePush(p PushConfig) error {
	var errs []string
	switch p.Transport {
	case TransportWebSocket:
		u, err := url.Parse(p.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("push.url must be a ws(s) URL, got %q", p.URL))
		}
	case TransportRedis:
		if p.RedisAddr == "" {
			errs = append(errs, "push.redis_addr must not be empty")
		}
		if p.ChannelPrefix == "" {
			errs = append(errs, "push.channel_prefix must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("push.transport must be one of [websocket, redis], got %q", p.Transport))
	}
	if p.OutboundBuffer < 1 {
		errs = append(errs, fmt.Sprintf("push.outbound_buffer must be >= 1, got %d", p.OutboundBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.PlayerID == "" {
		errs = append(errs, "session.player_id must not be empty")
	}
	if s.RoomID == "" {
		errs = append(errs, "session.room_id must not be empty")
	}
	if s.SpinnerInterval <= 0 {
		errs = append(errs, "session.spinner_interval must be positive")
	}
	if s.NPCContextLimit < 0 {
		errs = append(errs, fmt.Sprintf("session.npc_context_limit must be >= 0, got %d", s.NPCContextLimit))
	}
	if s.DuelVitalCap < 1 {
		errs = append(errs, fmt.Sprintf("session.duel_vital_cap must be >= 1, got %d", s.DuelVitalCap))
	}
	if s.InboxSize < 1 {
		errs = append(errs, fmt.Sprintf("session.inbox_size must be >= 1, got %d", s.InboxSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "archive.database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("archive.database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "archive.database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "archive.database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("archive.database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("archive.database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("archive.database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "archive.database.min_conns must not exceed archive.database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with MUDCLIENT_ prefix
	v.SetEnvPrefix("MUDCLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the built-in defaults.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_paths", []string{"stderr"})

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.request_timeout", "15s")
	v.SetDefault("api.stream_timeout", "2m")

	v.SetDefault("push.transport", TransportWebSocket)
	v.SetDefault("push.url", "ws://localhost:8080/ws")
	v.SetDefault("push.redis_addr", "localhost:6379")
	v.SetDefault("push.channel_prefix", "mud-events")
	v.SetDefault("push.outbound_buffer", 64)

	v.SetDefault("session.player_id", "player-1")
	v.SetDefault("session.player_name", "Wanderer")
	v.SetDefault("session.room_id", "start")
	v.SetDefault("session.spinner_interval", "100ms")
	v.SetDefault("session.npc_context_limit", 20)
	v.SetDefault("session.duel_vital_cap", 6)
	v.SetDefault("session.inbox_size", 256)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.database.host", "localhost")
	v.SetDefault("archive.database.port", 5432)
	v.SetDefault("archive.database.user", "mud")
	v.SetDefault("archive.database.password", "mud")
	v.SetDefault("archive.database.name", "mud")
	v.SetDefault("archive.database.sslmode", "disable")
	v.SetDefault("archive.database.max_conns", 4)
	v.SetDefault("archive.database.min_conns", 1)
	v.SetDefault("archive.database.max_conn_lifetime", "1h")
}
