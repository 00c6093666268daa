// Package config provides Viper-based configuration loading for the save
// viewer.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SaveConfig locates the save directory and tunes decoding.
type SaveConfig struct {
	// Dir is the world save directory (the one holding Level.sav). Empty means
	// no save is loaded at startup.
	Dir        string `mapstructure:"dir"`
	LevelFile  string `mapstructure:"level_file"`
	MetaFile   string `mapstructure:"meta_file"`
	PlayersDir string `mapstructure:"players_dir"`
	// HintsFile is an optional YAML map of extra struct type hints.
	HintsFile string `mapstructure:"hints_file"`
	// HintFallback decodes unhinted struct maps generically instead of failing.
	HintFallback  bool `mapstructure:"hint_fallback"`
	PlayerWorkers int  `mapstructure:"player_workers"`
}

// SchemaConfig locates the entity schemas and their Lua transforms.
type SchemaConfig struct {
	Dir        string `mapstructure:"dir"`
	ScriptsDir string `mapstructure:"scripts_dir"`
	// InstructionLimit bounds each Lua transform call; 0 means unlimited.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// Lookup table sources.
const (
	GamedataFiles    = "files"
	GamedataPostgres = "postgres"
)

// GamedataConfig selects where lookup tables come from.
type GamedataConfig struct {
	// Source is "files" or "postgres".
	Source string `mapstructure:"source"`
	Dir    string `mapstructure:"dir"`
}

// DatabaseConfig holds PostgreSQL connection settings.
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

// WatchConfig controls the save directory watcher.
type WatchConfig struct {
	// Allowed permits starting the watcher at all.
	Allowed bool `mapstructure:"allowed"`
	// AutoStart starts the watcher after the first load.
	AutoStart    bool          `mapstructure:"auto_start"`
	Debounce     time.Duration `mapstructure:"debounce"`
	StartupGrace time.Duration `mapstructure:"startup_grace"`
}

// BroadcastConfig tunes live update delivery.
type BroadcastConfig struct {
	BufferSize        int           `mapstructure:"buffer_size"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout applies to non-streaming responses; streams are exempt.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// GRPCConfig holds the health service listener settings.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Config is the top-level application configuration.
type Config struct {
	Save      SaveConfig      `mapstructure:"save"`
	Schema    SchemaConfig    `mapstructure:"schema"`
	Gamedata  GamedataConfig  `mapstructure:"gamedata"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateSave(c.Save),
		validateSchema(c.Schema),
		validateGamedata(c.Gamedata),
		validateWatch(c.Watch),
		validateBroadcast(c.Broadcast),
		validatePort("http.port", c.HTTP.Port),
		validatePort("grpc.port", c.GRPC.Port),
		validateLogging(c.Logging),
		validateTracing(c.Tracing),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	// The database only matters when lookup tables live there.
	if c.Gamedata.Source == GamedataPostgres {
		if err := ValidateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func joined(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be 1-65535, got %d", key, port)
	}
	return nil
}

func validateSave(s SaveConfig) error {
	var errs []string
	if s.LevelFile == "" {
		errs = append(errs, "save.level_file must not be empty")
	}
	if s.PlayersDir == "" {
		errs = append(errs, "save.players_dir must not be empty")
	}
	if s.PlayerWorkers < 1 {
		errs = append(errs, fmt.Sprintf("save.player_workers must be >= 1, got %d", s.PlayerWorkers))
	}
	return joined(errs)
}

func validateSchema(s SchemaConfig) error {
	var errs []string
	if s.Dir == "" {
		errs = append(errs, "schema.dir must not be empty")
	}
	if s.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("schema.instruction_limit must be >= 0, got %d", s.InstructionLimit))
	}
	return joined(errs)
}

func validateGamedata(g GamedataConfig) error {
	switch g.Source {
	case GamedataFiles:
		if g.Dir == "" {
			return errors.New("gamedata.dir must not be empty when gamedata.source is files")
		}
		return nil
	case GamedataPostgres:
		return nil
	default:
		return fmt.Errorf("gamedata.source must be one of [files, postgres], got %q", g.Source)
	}
}

// ValidateDatabase checks the PostgreSQL settings on their own, for the
// tools that always need a database.
func ValidateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return joined(errs)
}

func validateWatch(w WatchConfig) error {
	var errs []string
	if w.Debounce <= 0 {
		errs = append(errs, fmt.Sprintf("watch.debounce must be positive, got %s", w.Debounce))
	}
	if w.StartupGrace < 0 {
		errs = append(errs, "watch.startup_grace must not be negative")
	}
	if w.AutoStart && !w.Allowed {
		errs = append(errs, "watch.auto_start requires watch.allowed")
	}
	return joined(errs)
}

func validateBroadcast(b BroadcastConfig) error {
	var errs []string
	if b.BufferSize < 1 {
		errs = append(errs, fmt.Sprintf("broadcast.buffer_size must be >= 1, got %d", b.BufferSize))
	}
	if b.KeepaliveInterval <= 0 {
		errs = append(errs, fmt.Sprintf("broadcast.keepalive_interval must be positive, got %s", b.KeepaliveInterval))
	}
	return joined(errs)
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

func validateTracing(t TracingConfig) error {
	if !t.Enabled {
		return nil
	}
	var errs []string
	if t.Endpoint == "" {
		errs = append(errs, "tracing.endpoint must not be empty when tracing is enabled")
	}
	if t.ServiceName == "" {
		errs = append(errs, "tracing.service_name must not be empty")
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be within [0, 1], got %g", t.SampleRatio))
	}
	return joined(errs)
}

// newViper returns a Viper with defaults and LENS_ environment overrides,
// so LENS_SAVE_DIR overrides save.dir.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("LENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and the
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("save.dir", "")
	v.SetDefault("save.level_file", "Level.sav")
	v.SetDefault("save.meta_file", "LevelMeta.sav")
	v.SetDefault("save.players_dir", "Players")
	v.SetDefault("save.hints_file", "")
	v.SetDefault("save.hint_fallback", false)
	v.SetDefault("save.player_workers", 4)

	v.SetDefault("schema.dir", "schemas")
	v.SetDefault("schema.scripts_dir", "scripts/transforms")
	v.SetDefault("schema.instruction_limit", 100000)

	v.SetDefault("gamedata.source", GamedataFiles)
	v.SetDefault("gamedata.dir", "gamedata")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "lens")
	v.SetDefault("database.password", "lens")
	v.SetDefault("database.name", "lens")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("watch.allowed", true)
	v.SetDefault("watch.auto_start", false)
	v.SetDefault("watch.debounce", "1s")
	v.SetDefault("watch.startup_grace", "3s")

	v.SetDefault("broadcast.buffer_size", 10)
	v.SetDefault("broadcast.keepalive_interval", "30s")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 5175)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "60s")

	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", 50061)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "palworld-lens")
	v.SetDefault("tracing.sample_ratio", 1.0)
}
