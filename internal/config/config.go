// Package config loads service settings from the environment, with an
// optional YAML file named by CONFIG_FILE underneath.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Store struct {
	Driver   string
	MongoURI string
	MongoDB  string
	DSN      string
}

type MQTT struct {
	BrokerURL   string
	TopicPrefix string
}

type Config struct {
	Port              string
	APIPrefix         string
	EnablePing        bool
	PingTimeout       time.Duration
	PingBinary        string
	PingSweepSchedule string
	CORSOrigins       []string
	Store             Store
	MQTT              MQTT
	LogLevel          slog.Level
	LogFormat         string
	OTLPEndpoint      string
}

// Addr is the listen address for Port.
func (c Config) Addr() string { return ":" + c.Port }

func defaults(v *viper.Viper) {
	v.SetDefault("port", "3001")
	v.SetDefault("api_prefix", "/api/v1")
	v.SetDefault("enable_ping", "true")
	v.SetDefault("ping_timeout", "2s")
	v.SetDefault("ping_binary", "ping")
	v.SetDefault("cors_origins", "http://localhost:3000")
	v.SetDefault("store_driver", DriverMongo)
	v.SetDefault("mqtt_topic_prefix", "netdevices/device")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads configuration. Missing MongoDB settings are not an error here;
// the store reports them on first use.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	get := func(key string) string { return strings.TrimSpace(v.GetString(key)) }

	cfg := Config{
		Port:              get("port"),
		APIPrefix:         NormalizePrefix(get("api_prefix")),
		EnablePing:        ParseBool(get("enable_ping")),
		PingBinary:        get("ping_binary"),
		PingSweepSchedule: get("ping_sweep_schedule"),
		CORSOrigins:       SplitList(get("cors_origins")),
		Store: Store{
			Driver:   strings.ToLower(get("store_driver")),
			MongoURI: get("mongodb_uri"),
			MongoDB:  get("mongodb_db"),
			DSN:      get("database_dsn"),
		},
		MQTT: MQTT{
			BrokerURL:   get("mqtt_broker_url"),
			TopicPrefix: get("mqtt_topic_prefix"),
		},
		LogFormat:    strings.ToLower(get("log_format")),
		OTLPEndpoint: get("otel_exporter_otlp_endpoint"),
	}

	var err error
	if cfg.PingTimeout, err = ParseDuration(get("ping_timeout")); err != nil {
		return Config{}, fmt.Errorf("PING_TIMEOUT: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(get("log_level"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("PORT: invalid port %q", c.Port))
	}
	switch c.Store.Driver {
	case DriverMongo:
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("DATABASE_DSN: required for store driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: unsupported driver %q", c.Store.Driver))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unsupported format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ParseBool treats 1, true, yes and on (any case) as true.
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ParseDuration accepts Go durations ("1500ms") and bare seconds ("2", "0.5").
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	var d time.Duration
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if d, err = time.ParseDuration(raw); err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", raw)
	}
	return d, nil
}

// NormalizePrefix strips trailing slashes and ensures a leading one.
// An empty result mounts routes at the root.
func NormalizePrefix(raw string) string {
	p := strings.TrimRight(strings.TrimSpace(raw), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
