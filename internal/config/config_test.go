package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != "memory" || cfg.Service.RetentionCap != 1000 || cfg.HTTP.Addr != ":8080" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Archive.Backend != "none" {
		t.Errorf("archive backend = %q", cfg.Archive.Backend)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "smsbox.yaml", `
service:
  retention_cap: 50
  shutdown_timeout: 5s
store:
  driver: sqlite
  dsn: /var/lib/smsbox/smsbox.db
redis:
  addr: localhost:6379
  events: true
http:
  addr: 127.0.0.1:9090
  jwt_key: secret
log:
  level: debug
  json: true
archive:
  backend: s3
  bucket: sms-archive
  region: eu-west-1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.RetentionCap != 50 || cfg.Service.ShutdownTimeout != 5*time.Second {
		t.Errorf("service = %+v", cfg.Service)
	}
	if cfg.Service.QueueSize != 256 {
		t.Errorf("unset fields must keep defaults, queue size = %d", cfg.Service.QueueSize)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "/var/lib/smsbox/smsbox.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if !cfg.Redis.Events || cfg.HTTP.JWTKey != "secret" || !cfg.Log.JSON {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Archive.Bucket != "sms-archive" || cfg.Archive.Prefix != "smsbox-archive" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "smsbox.yaml", "store:\n  drvier: sqlite\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for misspelled key")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "smsbox.yaml", "store:\n  driver: sqlite\n  dsn: file.db\n")
	t.Setenv("SMSBOX_STORE_DSN", "other.db")
	t.Setenv("SMSBOX_SERVICE_RETENTION_CAP", "7")
	t.Setenv("SMSBOX_SERVICE_SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("SMSBOX_LOG_JSON", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.DSN != "other.db" {
		t.Errorf("dsn = %q", cfg.Store.DSN)
	}
	if cfg.Service.RetentionCap != 7 || cfg.Service.ShutdownTimeout != 2*time.Second {
		t.Errorf("service = %+v", cfg.Service)
	}
	if !cfg.Log.JSON {
		t.Error("expected json logging")
	}
}

func TestEnvOverrideBadValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SMSBOX_SERVICE_QUEUE_SIZE", "lots")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "SMSBOX_SERVICE_QUEUE_SIZE") {
		t.Errorf("expected error naming the variable, got %v", err)
	}
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SMSBOX_HTTP_JWT_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SMSBOX_HTTP_JWT_KEY") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.JWTKey != "from-dotenv" {
		t.Errorf("jwt key = %q", cfg.HTTP.JWTKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }, "Driver"},
		{"sql without dsn", func(c *Config) { c.Store.Driver = "postgres" }, "DSN"},
		{"mongo without database", func(c *Config) { c.Store.Driver = "mongo"; c.Store.DSN = "mongodb://x" }, "Database"},
		{"zero retention", func(c *Config) { c.Service.RetentionCap = 0 }, "RetentionCap"},
		{"short shutdown", func(c *Config) { c.Service.ShutdownTimeout = time.Millisecond }, "ShutdownTimeout"},
		{"bad redis addr", func(c *Config) { c.Redis.Addr = "no port" }, "Addr"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "Level"},
		{"archive without bucket", func(c *Config) { c.Archive.Backend = "gcs" }, "Bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}
