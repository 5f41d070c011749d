// Package config loads process configuration from CLIP_* environment
// variables and validates it before anything is started.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// Blob backends.
const (
	BlobMemory = "memory"
	BlobMinio  = "minio"
)

// DefaultMaxUploadBytes caps a whole multipart upload: 50 MiB of files
// plus the text field and form overhead.
const DefaultMaxUploadBytes = 55 << 20

type Config struct {
	Addr    string
	BaseURL string
	Version string
	Commit  string

	Store       string
	DatabaseURL string
	DBDriver    string
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Blob        string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	Bucket      string

	SweepInterval  time.Duration
	MaxUploadBytes int64

	LogFormat string
	LogLevel  string
	Env       string
}

// getenvDefault reads an environment variable and returns def if unset.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// Load reads the environment. Every invalid setting is reported in the
// returned error, not just the first.
func Load() (Config, error) {
	v := NewValidator()

	cfg := Config{
		Addr:    getenvDefault("CLIP_ADDR", ":8080"),
		BaseURL: strings.TrimRight(getenvDefault("CLIP_BASE_URL", "http://localhost:8080"), "/"),
		Version: getenvDefault("CLIP_VERSION", "dev"),
		Commit:  getenvDefault("CLIP_COMMIT", "unknown"),

		Store:       getenvDefault("CLIP_STORE", StoreMemory),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBDriver:    getenvDefault("CLIP_DB_DRIVER", "pgx"),
		SQLitePath:  getenvDefault("CLIP_SQLITE_PATH", "clipboard.db"),

		RedisAddr:     getenvDefault("CLIP_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("CLIP_REDIS_PASSWORD"),

		Blob:        getenvDefault("CLIP_BLOB", BlobMemory),
		S3Endpoint:  os.Getenv("CLIP_S3_ENDPOINT"),
		S3AccessKey: os.Getenv("CLIP_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("CLIP_S3_SECRET_KEY"),
		Bucket:      getenvDefault("CLIP_BUCKET", "clipboard"),

		LogFormat: os.Getenv("CLIP_LOG_FORMAT"),
		LogLevel:  os.Getenv("CLIP_LOG_LEVEL"),
		Env:       os.Getenv("CLIP_ENV"),
	}

	cfg.RedisDB = v.NonNegativeInt("CLIP_REDIS_DB", os.Getenv("CLIP_REDIS_DB"), 0)
	cfg.SweepInterval = v.Duration("CLIP_SWEEP_INTERVAL", os.Getenv("CLIP_SWEEP_INTERVAL"), 5*time.Minute)
	cfg.MaxUploadBytes = v.PositiveInt("CLIP_MAX_UPLOAD_BYTES", os.Getenv("CLIP_MAX_UPLOAD_BYTES"), DefaultMaxUploadBytes)

	cfg.validate(v)
	if v.HasErrors() {
		return cfg, fmt.Errorf("%s", v.ErrorString())
	}
	return cfg, nil
}

func (c Config) validate(v *Validator) {
	v.Addr("CLIP_ADDR", c.Addr)
	v.URL("CLIP_BASE_URL", c.BaseURL)

	v.Enum("CLIP_STORE", c.Store, []string{StoreMemory, StorePostgres, StoreSQLite, StoreRedis})
	switch c.Store {
	case StorePostgres:
		v.Required("DATABASE_URL", c.DatabaseURL)
		if c.DatabaseURL != "" &&
			!strings.HasPrefix(c.DatabaseURL, "postgres://") &&
			!strings.HasPrefix(c.DatabaseURL, "postgresql://") {
			v.AddError("DATABASE_URL", "must be a valid PostgreSQL connection string")
		}
		v.Enum("CLIP_DB_DRIVER", c.DBDriver, []string{"pgx", "postgres"})
	case StoreSQLite:
		v.Required("CLIP_SQLITE_PATH", c.SQLitePath)
	case StoreRedis:
		v.Required("CLIP_REDIS_ADDR", c.RedisAddr)
	}

	v.Enum("CLIP_BLOB", c.Blob, []string{BlobMemory, BlobMinio})
	if c.Blob == BlobMinio {
		v.Required("CLIP_S3_ENDPOINT", c.S3Endpoint)
		v.Required("CLIP_S3_ACCESS_KEY", c.S3AccessKey)
		v.Required("CLIP_S3_SECRET_KEY", c.S3SecretKey)
		v.Required("CLIP_BUCKET", c.Bucket)
		if strings.Contains(c.S3Endpoint, "://") {
			v.URL("CLIP_S3_ENDPOINT", c.S3Endpoint)
		}
	}

	v.Enum("CLIP_LOG_FORMAT", c.LogFormat, []string{"", "json", "text"})
	v.Enum("CLIP_LOG_LEVEL", c.LogLevel, []string{"", "debug", "info", "warn", "error"})
	v.Enum("CLIP_ENV", c.Env, []string{"", "development", "production", "staging"})
}

// SQLiteDSN returns the modernc DSN for the configured database file.
func (c Config) SQLiteDSN() string {
	if c.SQLitePath == ":memory:" {
		return "file::memory:"
	}
	return "file:" + c.SQLitePath
}

// Warnings lists optional settings that are unset or risky.
func (c Config) Warnings() []string {
	var warnings []string
	if os.Getenv("CLIP_BASE_URL") == "" {
		warnings = append(warnings, "CLIP_BASE_URL not set - using default http://localhost:8080")
	}
	if c.Store == StoreMemory {
		warnings = append(warnings, "CLIP_STORE=memory - items are lost on restart")
	}
	if c.Blob == BlobMemory && c.Store != StoreMemory {
		warnings = append(warnings, "CLIP_BLOB=memory with a persistent store - attachments are lost on restart")
	}
	if c.LogFormat == "" {
		warnings = append(warnings, "CLIP_LOG_FORMAT not set - using text format (consider 'json' for production)")
	}
	return warnings
}
