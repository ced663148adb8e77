package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salsowa/smarthome-core/internal/hierarchy"
	"github.com/salsowa/smarthome-core/internal/latest"
)

// devicePath holds the four path parameters of a device route.
type devicePath struct {
	house, floor, room, device string
}

func devicePathFrom(r *http.Request) devicePath {
	return devicePath{
		house:  chi.URLParam(r, "houseID"),
		floor:  chi.URLParam(r, "floorID"),
		room:   chi.URLParam(r, "roomID"),
		device: chi.URLParam(r, "deviceID"),
	}
}

// handleCreateDevice adds a device to a room. Its data payload is also
// recorded in the latest-value cache by the store.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.DeviceInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p := devicePathFrom(r)
	dev, err := s.store.AddDevice(r.Context(), p.house, p.floor, p.room, in)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("device created", "device_id", dev.ID, "type", dev.Type, "room_id", p.room)
	writeJSON(w, http.StatusCreated, dev)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	p := devicePathFrom(r)
	dev, err := s.store.GetDevice(r.Context(), p.house, p.floor, p.room, p.device)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var patch hierarchy.DevicePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	p := devicePathFrom(r)
	dev, err := s.store.UpdateDevice(r.Context(), p.house, p.floor, p.room, p.device, patch)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	p := devicePathFrom(r)
	if err := s.store.DeleteDevice(r.Context(), p.house, p.floor, p.room, p.device); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("device deleted", "device_id", p.device)
	writeJSON(w, http.StatusOK, deleted(hierarchy.KindDevice, p.device))
}

// handleGetLatest returns the most recent data payload recorded for a
// device, whether it came from the API or an MQTT report. The cache is
// read directly; it may still hold entries for deleted devices.
func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	if s.latest == nil {
		fail(w, ErrCodeUnavailable, "latest-value cache not configured")
		return
	}

	id := chi.URLParam(r, "deviceID")
	entry, err := s.latest.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, latest.ErrNotFound) {
			fail(w, ErrCodeNotFound, "Latest data not found")
			return
		}
		s.logger.Error("latest-value cache read failed", "device_id", id, "error", err)
		fail(w, ErrCodeUnavailable, "latest-value cache unavailable")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}
