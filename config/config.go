// Package config loads the taskboard settings: built-in defaults, then an optional YAML or
// JSONC file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"taskboard/board"
	"taskboard/storage"
)

var (
	errConfigInvalid  = errors.New("invalid config")
	errConfigFileRead = errors.New("cannot read config file")
	errUnknownFormat  = errors.New("unknown config file extension")
)

// Duration is a time.Duration written as a Go duration string ("3s", "1h30m") in config files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config holds all configuration options.
type Config struct {
	Listen              string        `yaml:"listen" json:"listen"`
	Debug               bool          `yaml:"debug" json:"debug"`
	LogFormat           string        `yaml:"log_format" json:"log_format"`
	StartupFetchTimeout Duration      `yaml:"startup_fetch_timeout" json:"startup_fetch_timeout"`
	Source              SourceConfig  `yaml:"source" json:"source"`
	Storage             StorageConfig `yaml:"storage" json:"storage"`
	Board               BoardConfig   `yaml:"board" json:"board"`
	Auth                AuthConfig    `yaml:"auth" json:"auth"`
}

// SourceConfig points at the remote task data endpoint.
type SourceConfig struct {
	URL      string   `yaml:"url" json:"url"`
	DataPath string   `yaml:"data_path" json:"data_path"`
	Token    string   `yaml:"token" json:"token"`
	Timeout  Duration `yaml:"timeout" json:"timeout"`
}

// StorageConfig selects and configures the key-value backend holding the local snapshot.
type StorageConfig struct {
	Backend          string `yaml:"backend" json:"backend"`
	Dir              string `yaml:"dir" json:"dir"`
	RedisURL         string `yaml:"redis_url" json:"redis_url"`
	KeyPrefix        string `yaml:"key_prefix" json:"key_prefix"`
	ConnectionString string `yaml:"connection_string" json:"connection_string"`
	Table            string `yaml:"table" json:"table"`
	Partition        string `yaml:"partition" json:"partition"`
}

type BoardConfig struct {
	FetchAttempts  int      `yaml:"fetch_attempts" json:"fetch_attempts"`
	TasksPerPage   int      `yaml:"tasks_per_page" json:"tasks_per_page"`
	AuthorsPerPage int      `yaml:"authors_per_page" json:"authors_per_page"`
	ToastDuration  Duration `yaml:"toast_duration" json:"toast_duration"`
	MaxCacheAge    Duration `yaml:"max_cache_age" json:"max_cache_age"`
}

// AuthConfig enables bearer authentication on the API. Secret selects HS256, Domain selects
// the JWKS published under https://<domain>/.well-known/jwks.json. Both empty disables auth.
type AuthConfig struct {
	Secret       string   `yaml:"secret" json:"secret"`
	Domain       string   `yaml:"domain" json:"domain"`
	Audience     string   `yaml:"audience" json:"audience"`
	Issuer       string   `yaml:"issuer" json:"issuer"`
	JWKSCacheTTL Duration `yaml:"jwks_cache_ttl" json:"jwks_cache_ttl"`
}

// Enabled reports whether API routes require a token.
func (a AuthConfig) Enabled() bool {
	return a.Secret != "" || a.Domain != ""
}

// Default returns the built-in configuration.
func Default() Config {
	def := board.DefaultConfig()
	return Config{
		Listen:              ":8080",
		LogFormat:           "text",
		StartupFetchTimeout: Duration(30 * time.Second),
		Source: SourceConfig{
			URL:      "http://localhost:3000",
			DataPath: def.DataPath,
			Timeout:  Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Backend:   storage.BackendMemory,
			KeyPrefix: "taskboard:",
			Table:     "taskboard",
			Partition: "taskboard",
		},
		Board: BoardConfig{
			FetchAttempts:  def.FetchAttempts,
			TasksPerPage:   def.TasksPerPage,
			AuthorsPerPage: def.AuthorsPerPage,
			ToastDuration:  Duration(def.ToastDuration),
		},
		Auth: AuthConfig{
			JWKSCacheTTL: Duration(15 * time.Minute),
		},
	}
}

// Load builds the configuration. An empty path skips the file layer; a named file must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile overlays the file at path onto cfg. Keys absent from the file keep their value.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
		}
	case ".json", ".jsonc", ".hujson":
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return fmt.Errorf("%w %s: invalid JSONC: %w", errConfigInvalid, path, err)
		}
		if err := sonic.ConfigStd.Unmarshal(standardized, cfg); err != nil {
			return fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
		}
	default:
		return fmt.Errorf("%w: %s", errUnknownFormat, path)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error
	envString(lookup, "TASKBOARD_LISTEN", &cfg.Listen)
	envBool(lookup, "DEBUG", &cfg.Debug, &errs)
	envString(lookup, "LOG_FORMAT", &cfg.LogFormat)
	envDur(lookup, "STARTUP_FETCH_TIMEOUT", &cfg.StartupFetchTimeout, &errs)

	envString(lookup, "SOURCE_URL", &cfg.Source.URL)
	envString(lookup, "SOURCE_DATA_PATH", &cfg.Source.DataPath)
	envString(lookup, "SOURCE_TOKEN", &cfg.Source.Token)
	envDur(lookup, "SOURCE_TIMEOUT", &cfg.Source.Timeout, &errs)

	envString(lookup, "STORAGE_BACKEND", &cfg.Storage.Backend)
	envString(lookup, "STORAGE_DIR", &cfg.Storage.Dir)
	envString(lookup, "REDIS_CONNECTION_STRING", &cfg.Storage.RedisURL)
	envString(lookup, "STORAGE_KEY_PREFIX", &cfg.Storage.KeyPrefix)
	envString(lookup, "STORAGE_CONNECTION_STRING", &cfg.Storage.ConnectionString)
	envString(lookup, "TASKS_TABLE", &cfg.Storage.Table)
	envString(lookup, "STORAGE_PARTITION", &cfg.Storage.Partition)

	envInt(lookup, "FETCH_ATTEMPTS", &cfg.Board.FetchAttempts, &errs)
	envInt(lookup, "TASKS_PER_PAGE", &cfg.Board.TasksPerPage, &errs)
	envInt(lookup, "AUTHORS_PER_PAGE", &cfg.Board.AuthorsPerPage, &errs)
	envDur(lookup, "TOAST_DURATION", &cfg.Board.ToastDuration, &errs)
	envDur(lookup, "MAX_CACHE_AGE", &cfg.Board.MaxCacheAge, &errs)

	envString(lookup, "LOCAL_AUTH_SHARED_SECRET", &cfg.Auth.Secret)
	envString(lookup, "AUTH0_DOMAIN", &cfg.Auth.Domain)
	envString(lookup, "AUTH0_AUDIENCE", &cfg.Auth.Audience)
	envString(lookup, "AUTH_ISSUER", &cfg.Auth.Issuer)
	envDur(lookup, "JWKS_CACHE_TTL", &cfg.Auth.JWKSCacheTTL, &errs)
	return errors.Join(errs...)
}

func envString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envInt(lookup lookupFunc, key string, dst *int, errs *[]error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = n
}

func envBool(lookup lookupFunc, key string, dst *bool, errs *[]error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = b
}

func envDur(lookup lookupFunc, key string, dst *Duration, errs *[]error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = Duration(d)
}

// Validate reports every setting that cannot be used.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{errConfigInvalid}, args...)...))
	}

	if c.Listen == "" {
		invalid("listen address is empty")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		invalid("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.Source.URL == "" {
		invalid("source url is empty")
	}
	if c.Source.Timeout <= 0 {
		invalid("source timeout must be positive")
	}
	if c.StartupFetchTimeout <= 0 {
		invalid("startup_fetch_timeout must be positive")
	}
	if c.Board.FetchAttempts <= 0 {
		invalid("fetch_attempts must be greater than zero")
	}
	if c.Board.TasksPerPage <= 0 || c.Board.AuthorsPerPage <= 0 {
		invalid("page sizes must be greater than zero")
	}
	if c.Board.ToastDuration <= 0 {
		invalid("toast_duration must be positive")
	}
	if c.Board.MaxCacheAge < 0 {
		invalid("max_cache_age must not be negative")
	}

	switch c.Storage.Backend {
	case storage.BackendMemory:
	case storage.BackendFile:
		if c.Storage.Dir == "" {
			invalid("storage dir is required for the file backend")
		}
	case storage.BackendRedis:
		if c.Storage.RedisURL == "" {
			invalid("redis_url is required for the redis backend")
		}
	case storage.BackendTable:
		if c.Storage.ConnectionString == "" || c.Storage.Table == "" {
			invalid("connection_string and table are required for the table backend")
		}
	default:
		invalid("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Auth.Secret != "" && c.Auth.Domain != "" {
		invalid("auth secret and domain are mutually exclusive")
	}
	return errors.Join(errs...)
}

// BoardConfig converts the board settings for board.New.
func (c Config) BoardConfig() board.Config {
	return board.Config{
		DataPath:       c.Source.DataPath,
		FetchAttempts:  c.Board.FetchAttempts,
		TasksPerPage:   c.Board.TasksPerPage,
		AuthorsPerPage: c.Board.AuthorsPerPage,
		ToastDuration:  time.Duration(c.Board.ToastDuration),
		MaxCacheAge:    time.Duration(c.Board.MaxCacheAge),
	}
}

// Options converts the storage settings for storage.Open.
func (s StorageConfig) Options() storage.Options {
	return storage.Options{
		Backend:          s.Backend,
		Dir:              s.Dir,
		RedisURL:         s.RedisURL,
		KeyPrefix:        s.KeyPrefix,
		ConnectionString: s.ConnectionString,
		Table:            s.Table,
		Partition:        s.Partition,
	}
}
