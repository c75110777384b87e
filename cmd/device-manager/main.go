package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/kavia-common/network-device-manager/internal/config"
	"github.com/kavia-common/network-device-manager/internal/events"
	"github.com/kavia-common/network-device-manager/internal/httpapi"
	"github.com/kavia-common/network-device-manager/internal/monitor"
	"github.com/kavia-common/network-device-manager/internal/mqtt"
	"github.com/kavia-common/network-device-manager/internal/observability"
	"github.com/kavia-common/network-device-manager/internal/ping"
	"github.com/kavia-common/network-device-manager/internal/realtime"
	"github.com/kavia-common/network-device-manager/internal/schema"
	"github.com/kavia-common/network-device-manager/internal/store"
)

const serviceName = "device-manager"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	ctx := context.Background()
	tel, err := observability.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("observability setup failed", "error", err)
		os.Exit(1)
	}
	observability.LogStartup(cfg.OTLPEndpoint)

	st, err := openStore(cfg.Store)
	if err != nil {
		slog.Error("store init failed", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}

	validator, err := schema.New()
	if err != nil {
		slog.Error("schema compile failed", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(cfg.CORSOrigins)
	sinks := events.Fanout{hub}
	var pub *mqtt.Publisher
	if cfg.MQTT.BrokerURL != "" {
		pub, err = mqtt.NewPublisher(cfg.MQTT.BrokerURL, cfg.MQTT.TopicPrefix)
		if err != nil {
			slog.Error("mqtt connect failed, device events stay local", "error", err)
		} else {
			sinks = append(sinks, pub)
		}
	}

	mon := monitor.New(st, ping.NewExec(cfg.PingBinary), cfg.PingTimeout, sinks)
	if cfg.PingSweepSchedule != "" {
		if !cfg.EnablePing {
			slog.Warn("ping sweep schedule ignored, ping is disabled", "schedule", cfg.PingSweepSchedule)
		} else if err := mon.Start(cfg.PingSweepSchedule); err != nil {
			slog.Error("ping sweep not started", "error", err)
			os.Exit(1)
		}
	}

	srv := httpapi.NewServer(st, validator, mon, httpapi.Options{
		Prefix:     cfg.APIPrefix,
		EnablePing: cfg.EnablePing,
		Events:     sinks,
		Hub:        hub,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Ping-Note", "Trace-ID"},
		MaxAge:         300,
	}))
	r.Use(tel.Middleware)
	r.Method(http.MethodGet, "/metrics", tel.Metrics)
	srv.Register(r)

	httpSrv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("device-manager started", "port", cfg.Port, "prefix", cfg.APIPrefix, "store", cfg.Store.Driver, "ping", cfg.EnablePing)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
	}
	mon.Stop(shutdownCtx)
	hub.Close()
	pub.Close()
	if err := st.Close(shutdownCtx); err != nil {
		slog.Warn("store close failed", "error", err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}
	slog.Info("device-manager stopped")
}

func setupLogging(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

// openStore builds the configured backend. The mongo backend connects lazily
// so missing MONGODB_* settings surface on the first request.
func openStore(cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return store.NewMongo(cfg.MongoURI, cfg.MongoDB), nil
	case config.DriverPostgres:
		db, err := store.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store.NewSQL(db)
	case config.DriverSQLite:
		db, err := store.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store.NewSQL(db)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
