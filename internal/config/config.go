// Package config assembles tapeview settings from defaults, an optional YAML
// file, and TAPEVIEW_* environment variables, in that order of precedence.
//
//	TAPEVIEW_HTTP_ADDR: listen address (default :5000)
//	TAPEVIEW_LOG_LEVEL: debug|info|warn|error (default info)
//	TAPEVIEW_METRICS: prometheus|expvar (default prometheus)
//	TAPEVIEW_SESSION_CAPACITY: retained dashboard sessions (default 256)
//	TAPEVIEW_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	TAPEVIEW_SQLITE_PATH: path to sqlite file (default ./tapestation.db)
//	TAPEVIEW_POSTGRES_DSN: postgres DSN when driver=postgres
//	TAPEVIEW_BLOB_DRIVER: fs|s3|memory (default fs)
//	TAPEVIEW_BLOB_FS_ROOT: export directory when driver=fs (default ./exports)
//	TAPEVIEW_BLOB_S3_BUCKET / _REGION / _ENDPOINT / _PATH_STYLE: s3 settings
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	HTTPAddr        string  `yaml:"http_addr"`
	LogLevel        string  `yaml:"log_level"`
	Metrics         string  `yaml:"metrics"`
	SessionCapacity int     `yaml:"session_capacity"`
	Storage         Storage `yaml:"storage"`
	Blob            Blob    `yaml:"blob"`
}

// Storage selects the record store.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Blob selects where live-set exports are written.
type Blob struct {
	Driver      string `yaml:"driver"`
	FSRoot      string `yaml:"fs_root"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:        ":5000",
		LogLevel:        "info",
		Metrics:         "prometheus",
		SessionCapacity: 256,
		Storage:         Storage{Driver: "sqlite", SQLitePath: "tapestation.db"},
		Blob:            Blob{Driver: "fs", FSRoot: "exports"},
	}
}

// Load returns defaults overlaid with the YAML file at path (when non-empty)
// and then with the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays TAPEVIEW_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("TAPEVIEW_HTTP_ADDR", &c.HTTPAddr)
	str("TAPEVIEW_LOG_LEVEL", &c.LogLevel)
	str("TAPEVIEW_METRICS", &c.Metrics)
	str("TAPEVIEW_STORAGE_DRIVER", &c.Storage.Driver)
	str("TAPEVIEW_SQLITE_PATH", &c.Storage.SQLitePath)
	str("TAPEVIEW_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("TAPEVIEW_BLOB_DRIVER", &c.Blob.Driver)
	str("TAPEVIEW_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("TAPEVIEW_BLOB_S3_BUCKET", &c.Blob.S3Bucket)
	str("TAPEVIEW_BLOB_S3_REGION", &c.Blob.S3Region)
	str("TAPEVIEW_BLOB_S3_ENDPOINT", &c.Blob.S3Endpoint)
	if v, ok := lookup("TAPEVIEW_BLOB_S3_PATH_STYLE"); ok && v != "" {
		c.Blob.S3PathStyle = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("TAPEVIEW_SESSION_CAPACITY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TAPEVIEW_SESSION_CAPACITY: %w", err)
		}
		c.SessionCapacity = n
	}
	return nil
}

// Validate rejects settings no component can start with.
func (c Config) Validate() error {
	var errs []error
	if c.SessionCapacity <= 0 {
		errs = append(errs, fmt.Errorf("session capacity must be positive, got %d", c.SessionCapacity))
	}
	switch c.Metrics {
	case "prometheus", "expvar":
	default:
		errs = append(errs, fmt.Errorf("unknown metrics backend %q", c.Metrics))
	}
	if c.Blob.Driver == "s3" && c.Blob.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("s3 bucket required for s3 blob driver"))
	}
	return errors.Join(errs...)
}
