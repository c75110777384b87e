package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kavia-common/network-device-manager/internal/events"
	"github.com/kavia-common/network-device-manager/internal/store"
)

func deviceID(r *http.Request) string {
	return chi.URLParam(r, "device_id")
}

func (s *Server) handleDevicesList(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.List(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if rows == nil {
		rows = []store.Device{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleDevicesCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeInputError(w, err)
		return
	}
	in, err := s.validator.Create(body)
	if err != nil {
		writeInputError(w, err)
		return
	}
	now := store.Now()
	created, err := s.store.Create(r.Context(), &store.Device{
		Name:      in.Name,
		IPAddress: in.IPAddress,
		Type:      in.Type,
		Location:  in.Location,
		Status:    in.Status,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.emit(events.DeviceCreated, created)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDevicesGet(w http.ResponseWriter, r *http.Request) {
	dev, err := s.store.Get(r.Context(), deviceID(r))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleDevicesUpdate(w http.ResponseWriter, r *http.Request) {
	id := deviceID(r)
	if _, err := store.ParseID(id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeInputError(w, err)
		return
	}
	fields, err := s.validator.Update(body)
	if err != nil {
		writeInputError(w, err)
		return
	}
	updated, err := s.store.Update(r.Context(), id, store.Fields(fields), store.Now())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.emit(events.DeviceUpdated, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDevicesDelete(w http.ResponseWriter, r *http.Request) {
	id := deviceID(r)
	if err := s.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	oid, _ := store.ParseID(id)
	s.opts.Events.Publish(events.Event{Type: events.DeviceDeleted, ID: oid.Hex(), At: store.Now()})
	w.WriteHeader(http.StatusNoContent)
}

// handleDevicesPing refreshes status from a live probe. With ping disabled
// the stored device is returned untouched and flagged by X-Ping-Note.
func (s *Server) handleDevicesPing(w http.ResponseWriter, r *http.Request) {
	id := deviceID(r)
	if !s.opts.EnablePing || s.monitor == nil {
		dev, err := s.store.Get(r.Context(), id)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		w.Header().Set("X-Ping-Note", pingNote)
		writeJSON(w, http.StatusOK, dev)
		return
	}

	// The probe and its write complete even if the client goes away.
	dev, err := s.monitor.Refresh(context.WithoutCancel(r.Context()), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}
