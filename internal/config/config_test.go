package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"CLIP_ADDR", "CLIP_STORE", "CLIP_BLOB", "CLIP_SWEEP_INTERVAL", "CLIP_MAX_UPLOAD_BYTES", "CLIP_BASE_URL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Store != StoreMemory || cfg.Blob != BlobMemory {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("sweep interval = %s", cfg.SweepInterval)
	}
	if cfg.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("max upload = %d", cfg.MaxUploadBytes)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("base url = %q", cfg.BaseURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CLIP_ADDR", "127.0.0.1:9090")
	t.Setenv("CLIP_BASE_URL", "https://clip.example.com/")
	t.Setenv("CLIP_STORE", StoreRedis)
	t.Setenv("CLIP_REDIS_ADDR", "redis:6379")
	t.Setenv("CLIP_REDIS_DB", "2")
	t.Setenv("CLIP_SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://clip.example.com" {
		t.Errorf("trailing slash kept: %q", cfg.BaseURL)
	}
	if cfg.RedisDB != 2 || cfg.SweepInterval != 30*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	t.Setenv("CLIP_ADDR", ":99999")
	t.Setenv("CLIP_STORE", "cassandra")
	t.Setenv("CLIP_BLOB", BlobMinio)
	t.Setenv("CLIP_S3_ENDPOINT", "")
	t.Setenv("CLIP_SWEEP_INTERVAL", "often")
	t.Setenv("CLIP_LOG_LEVEL", "verbose")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, field := range []string{"CLIP_ADDR", "CLIP_STORE", "CLIP_S3_ENDPOINT", "CLIP_SWEEP_INTERVAL", "CLIP_LOG_LEVEL"} {
		if !strings.Contains(msg, field) {
			t.Errorf("error does not mention %s:\n%s", field, msg)
		}
	}
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	t.Setenv("CLIP_STORE", StorePostgres)
	t.Setenv("DATABASE_URL", "mysql://nope")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "PostgreSQL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestValidator(t *testing.T) {
	tests := []struct {
		name    string
		check   func(v *Validator)
		wantErr bool
	}{
		{"port only", func(v *Validator) { v.Addr("a", ":8080") }, false},
		{"host and port", func(v *Validator) { v.Addr("a", "0.0.0.0:80") }, false},
		{"port zero", func(v *Validator) { v.Addr("a", ":0") }, true},
		{"port text", func(v *Validator) { v.Addr("a", ":http") }, true},
		{"https url", func(v *Validator) { v.URL("u", "https://x.io") }, false},
		{"ftp url", func(v *Validator) { v.URL("u", "ftp://x.io") }, true},
		{"enum ok", func(v *Validator) { v.Enum("e", "b", []string{"a", "b"}) }, false},
		{"enum bad", func(v *Validator) { v.Enum("e", "c", []string{"a", "b"}) }, true},
		{"negative int", func(v *Validator) { v.PositiveInt("i", "-1", 1) }, true},
		{"zero duration", func(v *Validator) { v.Duration("d", "0s", time.Second) }, true},
		{"required empty", func(v *Validator) { v.Required("r", "") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			tt.check(v)
			if v.HasErrors() != tt.wantErr {
				t.Errorf("HasErrors = %v, errors: %v", v.HasErrors(), v.Errors())
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := (Config{SQLitePath: ":memory:"}).SQLiteDSN(); got != "file::memory:" {
		t.Errorf("memory dsn = %q", got)
	}
	if got := (Config{SQLitePath: "/var/lib/clip.db"}).SQLiteDSN(); got != "file:/var/lib/clip.db" {
		t.Errorf("file dsn = %q", got)
	}
}
