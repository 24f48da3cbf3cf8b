package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Backend != BackendFile {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendFile)
	}
	if cfg.Auth.Username != "admin" || cfg.Auth.Password != "changeme" {
		t.Errorf("Auth = %q/%q, want admin/changeme", cfg.Auth.Username, cfg.Auth.Password)
	}
	if cfg.Auth.Expiration != 30*24*time.Hour {
		t.Errorf("Auth.Expiration = %v, want 720h", cfg.Auth.Expiration)
	}
	if cfg.Server.Port != "8000" {
		t.Errorf("Server.Port = %q, want 8000", cfg.Server.Port)
	}
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/n.db")
	t.Setenv("NOTES_SECRET_KEY", "legacy-secret")
	t.Setenv("JWT_EXPIRATION", "1h")
	t.Setenv("WS_MAX_CONN_PER_USER", "not-a-number")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("WS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Backend != BackendSQLite || cfg.Store.SQLitePath != "/tmp/n.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Auth.JWTSecret != "legacy-secret" {
		t.Errorf("Auth.JWTSecret = %q, want the NOTES_SECRET_KEY fallback", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.Expiration != time.Hour {
		t.Errorf("Auth.Expiration = %v, want 1h", cfg.Auth.Expiration)
	}
	if cfg.WebSocket.MaxConnPerUser != 5 {
		t.Errorf("WebSocket.MaxConnPerUser = %d, want default 5", cfg.WebSocket.MaxConnPerUser)
	}
	if cfg.WebSocket.Enabled {
		t.Error("WebSocket.Enabled = true, want false")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "unknown backend", key: "STORE_BACKEND", value: "postgres", wantErr: "STORE_BACKEND"},
		{name: "bad duration", key: "JWT_EXPIRATION", value: "thirty days", wantErr: "JWT_EXPIRATION"},
		{name: "negative expiration", key: "JWT_EXPIRATION", value: "-1h", wantErr: "expirations"},
		{name: "ping slower than pong", key: "WS_PING_PERIOD", value: "2m", wantErr: "WS_PING_PERIOD"},
		{name: "bad log format", key: "LOG_FORMAT", value: "xml", wantErr: "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatal("Load() expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestCouchDBConfig_URL(t *testing.T) {
	c := CouchDBConfig{Host: "db", Port: "5984", User: "u", Password: "p"}
	if got := c.URL(); got != "http://u:p@db:5984" {
		t.Errorf("URL() = %q", got)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
