// Package config loads mango's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath names the environment variable consulted when no explicit
// path is given.
const EnvConfigPath = "MANGO_CONFIG"

// candidatePaths are tried in order after the explicit path and the
// environment.
var candidatePaths = []string{
	"./mango.toml",
	"./.mango/config.toml",
}

// Config is the whole configuration file.
type Config struct {
	Blobstore Blobstore `toml:"blobstore"`
	Ledger    Ledger    `toml:"ledger"`
	Refs      Refs      `toml:"refs"`
	Log       Log       `toml:"log"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// Blobstore selects and tunes the blob store backend.
type Blobstore struct {
	Backend     string `toml:"backend"` // fs, memory, s3, gcs
	Path        string `toml:"path"`
	Bucket      string `toml:"bucket"`
	Region      string `toml:"region"`
	Endpoint    string `toml:"endpoint"`
	Prefix      string `toml:"prefix"`
	Compression string `toml:"compression"` // none, zstd
	MaxAttempts int    `toml:"max_attempts"`
}

// Ledger selects and tunes the ledger backend.
type Ledger struct {
	Backend         string  `toml:"backend"` // sqlite, postgres, memory, redis
	DSN             string  `toml:"dsn"`
	RedisAddr       string  `toml:"redis_addr"`
	RedisPassword   string  `toml:"redis_password"`
	RedisDB         int     `toml:"redis_db"`
	Namespace       string  `toml:"namespace"`
	WritesPerSecond float64 `toml:"writes_per_second"` // 0 disables metering
	Burst           int     `toml:"burst"`
	SigningKey      string  `toml:"signing_key"` // SSH private key; empty disables signing
}

// Refs holds reference defaults.
type Refs struct {
	DefaultHead string `toml:"default_head"`
}

// Log configures the process logger.
type Log struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Default returns the configuration used when no file is found: a local
// filesystem blob store and a sqlite ledger under ./.mango.
func Default() *Config {
	return &Config{
		Blobstore: Blobstore{
			Backend:     "fs",
			Path:        ".mango",
			Compression: "zstd",
			MaxAttempts: 3,
		},
		Ledger: Ledger{
			Backend:   "sqlite",
			DSN:       ".mango/ledger.db",
			Namespace: "mango",
			Burst:     1,
		},
		Refs: Refs{DefaultHead: "refs/heads/master"},
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Load reads the configuration. An explicit path must exist. Otherwise
// $MANGO_CONFIG, then ./mango.toml and ./.mango/config.toml are tried, and
// defaults are returned when none exists. Values absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		return loadFile(path)
	}
	for _, candidate := range candidatePaths {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return loadFile(candidate)
		}
	}
	cfg := Default()
	return cfg, cfg.Validate()
}

func loadFile(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("read config %q: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Blobstore.Backend {
	case "fs":
		if strings.TrimSpace(c.Blobstore.Path) == "" {
			errs = append(errs, errors.New("blobstore.path is required for the fs backend"))
		}
	case "memory":
	case "s3", "gcs":
		if strings.TrimSpace(c.Blobstore.Bucket) == "" {
			errs = append(errs, fmt.Errorf("blobstore.bucket is required for the %s backend", c.Blobstore.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blobstore.backend %q", c.Blobstore.Backend))
	}
	switch c.Blobstore.Compression {
	case "", "none", "zstd":
	default:
		errs = append(errs, fmt.Errorf("unknown blobstore.compression %q", c.Blobstore.Compression))
	}
	if c.Blobstore.MaxAttempts < 0 {
		errs = append(errs, errors.New("blobstore.max_attempts must not be negative"))
	}

	switch c.Ledger.Backend {
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Ledger.DSN) == "" {
			errs = append(errs, fmt.Errorf("ledger.dsn is required for the %s backend", c.Ledger.Backend))
		}
	case "redis":
		if strings.TrimSpace(c.Ledger.RedisAddr) == "" {
			errs = append(errs, errors.New("ledger.redis_addr is required for the redis backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend))
	}
	if c.Ledger.WritesPerSecond < 0 {
		errs = append(errs, errors.New("ledger.writes_per_second must not be negative"))
	}
	if c.Ledger.WritesPerSecond > 0 && c.Ledger.Burst < 1 {
		errs = append(errs, errors.New("ledger.burst must be at least 1 when writes are metered"))
	}

	if !strings.HasPrefix(c.Refs.DefaultHead, "refs/") {
		errs = append(errs, fmt.Errorf("refs.default_head %q must start with refs/", c.Refs.DefaultHead))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
