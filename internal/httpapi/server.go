package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kavia-common/network-device-manager/internal/events"
	"github.com/kavia-common/network-device-manager/internal/monitor"
	"github.com/kavia-common/network-device-manager/internal/schema"
	"github.com/kavia-common/network-device-manager/internal/store"
)

const (
	maxBodyBytes = 1 << 20
	pingNote     = "Ping disabled by configuration"
)

type Options struct {
	// Prefix is the API mount point, e.g. "/api/v1". Empty mounts at root.
	Prefix     string
	EnablePing bool
	Events     events.Sink
	// Hub is served at {Prefix}/devices/events when set.
	Hub http.Handler
}

type Server struct {
	store     store.Store
	validator *schema.Validator
	monitor   *monitor.Monitor
	opts      Options
}

func NewServer(st store.Store, v *schema.Validator, mon *monitor.Monitor, opts Options) *Server {
	if opts.Events == nil {
		opts.Events = events.Discard{}
	}
	return &Server{store: st, validator: v, monitor: mon, opts: opts}
}

func (s *Server) Register(r chi.Router) {
	r.Get("/", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route(s.opts.Prefix+"/devices", func(r chi.Router) {
		if s.opts.Hub != nil {
			r.Get("/events", s.opts.Hub.ServeHTTP)
		}
		r.Get("/", s.handleDevicesList)
		r.Post("/", s.handleDevicesCreate)
		r.Get("/{device_id}", s.handleDevicesGet)
		r.Put("/{device_id}", s.handleDevicesUpdate)
		r.Delete("/{device_id}", s.handleDevicesDelete)
		r.Post("/{device_id}/ping", s.handleDevicesPing)
	})
}

func (s *Server) emit(eventType string, d *store.Device) {
	ev := events.Event{Type: eventType, ID: d.ID, At: d.UpdatedAt}
	if eventType == events.DeviceStatus {
		ev.Status = d.Status
	}
	s.opts.Events.Publish(ev)
}

type jsonErr struct {
	Error  string              `json:"error"`
	Code   int                 `json:"code"`
	Errors []schema.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonErr{Error: msg, Code: status})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// writeInputError maps body read and validation failures to 4xx responses.
func writeInputError(w http.ResponseWriter, err error) {
	var ve *schema.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, jsonErr{Error: "validation failed", Code: http.StatusBadRequest, Errors: ve.Errors})
	case errors.Is(err, schema.ErrEmptyUpdate):
		writeError(w, http.StatusBadRequest, "No fields to update")
	case errors.Is(err, schema.ErrInvalidJSON):
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		writeError(w, http.StatusBadRequest, "invalid request body")
	}
}

// writeStoreError maps store failures. Anything that is not a bad id or a
// missing device is logged and reported as a 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "Invalid device id")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Device not found")
	default:
		slog.Error("store operation failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
