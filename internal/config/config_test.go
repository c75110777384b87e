package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment does not
// leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "API_PREFIX", "ENABLE_PING", "PING_TIMEOUT", "PING_BINARY", "PING_SWEEP_SCHEDULE",
		"CORS_ORIGINS", "STORE_DRIVER", "MONGODB_URI", "MONGODB_DB", "DATABASE_DSN",
		"MQTT_BROKER_URL", "MQTT_TOPIC_PREFIX", "LOG_LEVEL", "LOG_FORMAT",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "CONFIG_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "3001" || cfg.Addr() != ":3001" {
		t.Fatalf("unexpected port %q", cfg.Port)
	}
	if cfg.APIPrefix != "/api/v1" || !cfg.EnablePing || cfg.PingTimeout != 2*time.Second || cfg.PingBinary != "ping" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
	if cfg.Store.Driver != DriverMongo || cfg.Store.MongoURI != "" || cfg.MQTT.TopicPrefix != "netdevices/device" {
		t.Fatalf("unexpected store/mqtt defaults: %+v %+v", cfg.Store, cfg.MQTT)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "text" {
		t.Fatalf("unexpected log settings: %v %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("API_PREFIX", "/netdev//")
	t.Setenv("ENABLE_PING", " Off ")
	t.Setenv("PING_TIMEOUT", "1")
	t.Setenv("CORS_ORIGINS", "http://a.example, ,http://b.example")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("MONGODB_DB", "inventory")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.APIPrefix != "/netdev" || cfg.EnablePing || cfg.PingTimeout != time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if strings.Join(cfg.CORSOrigins, "|") != "http://a.example|http://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.Store.MongoURI != "mongodb://db:27017" || cfg.Store.MongoDB != "inventory" {
		t.Fatalf("unexpected store %+v", cfg.Store)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log settings: %v %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoad_ConfigFileUnderEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "device-manager.yaml")
	yaml := "port: \"9000\"\nstore_driver: sqlite\ndatabase_dsn: /tmp/devices.db\nping_timeout: 500ms\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Fatalf("env should override file, got port %q", cfg.Port)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Store.DSN != "/tmp/devices.db" || cfg.PingTimeout != 500*time.Millisecond {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"bad port":           {"PORT": "http"},
		"port out of range":  {"PORT": "70000"},
		"unknown driver":     {"STORE_DRIVER": "redis"},
		"sql without dsn":    {"STORE_DRIVER": "postgres"},
		"bad timeout":        {"PING_TIMEOUT": "soon"},
		"zero timeout":       {"PING_TIMEOUT": "0"},
		"bad log level":      {"LOG_LEVEL": "loud"},
		"bad log format":     {"LOG_FORMAT": "xml"},
		"missing configfile": {"CONFIG_FILE": "/nonexistent/device-manager.yaml"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "true", "TRUE", " yes ", "On"} {
		if !ParseBool(s) {
			t.Fatalf("%q should be true", s)
		}
	}
	for _, s := range []string{"", "0", "false", "no", "off", "enabled", "y"} {
		if ParseBool(s) {
			t.Fatalf("%q should be false", s)
		}
	}
}

func TestNormalizePrefix(t *testing.T) {
	cases := map[string]string{
		"/api/v1":  "/api/v1",
		"/api/v1/": "/api/v1",
		"api":      "/api",
		"/":        "",
		"":         "",
	}
	for in, want := range cases {
		if got := NormalizePrefix(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}
