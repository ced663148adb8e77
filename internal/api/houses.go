package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salsowa/smarthome-core/internal/hierarchy"
)

// ─── Houses ────────────────────────────────────────────────────────

// handleListHouses returns every house with its full tree.
func (s *Server) handleListHouses(w http.ResponseWriter, r *http.Request) {
	houses := s.store.ListHouses(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"houses": houses,
		"count":  len(houses),
	})
}

// handleCreateHouse creates a house, with any floors, rooms and devices
// supplied inline.
func (s *Server) handleCreateHouse(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.HouseInput
	if !decodeJSON(w, r, &in) {
		return
	}

	house, err := s.store.CreateHouse(r.Context(), in)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("house created", "house_id", house.ID, "floors", len(house.Floors))
	writeJSON(w, http.StatusCreated, house)
}

func (s *Server) handleGetHouse(w http.ResponseWriter, r *http.Request) {
	house, err := s.store.GetHouse(r.Context(), chi.URLParam(r, "houseID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, house)
}

func (s *Server) handleUpdateHouse(w http.ResponseWriter, r *http.Request) {
	var p hierarchy.LocationPatch
	if !decodeJSON(w, r, &p) {
		return
	}

	house, err := s.store.UpdateHouse(r.Context(), chi.URLParam(r, "houseID"), p)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, house)
}

// handleDeleteHouse deletes a house and everything in it.
func (s *Server) handleDeleteHouse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "houseID")
	if err := s.store.DeleteHouse(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("house deleted", "house_id", id)
	writeJSON(w, http.StatusOK, deleted(hierarchy.KindHouse, id))
}

// ─── Floors ────────────────────────────────────────────────────────

func (s *Server) handleCreateFloor(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.FloorInput
	if !decodeJSON(w, r, &in) {
		return
	}

	floor, err := s.store.AddFloor(r.Context(), chi.URLParam(r, "houseID"), in)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, floor)
}

func (s *Server) handleGetFloor(w http.ResponseWriter, r *http.Request) {
	floor, err := s.store.GetFloor(r.Context(), chi.URLParam(r, "houseID"), chi.URLParam(r, "floorID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, floor)
}

func (s *Server) handleUpdateFloor(w http.ResponseWriter, r *http.Request) {
	var p hierarchy.LocationPatch
	if !decodeJSON(w, r, &p) {
		return
	}

	floor, err := s.store.UpdateFloor(r.Context(), chi.URLParam(r, "houseID"), chi.URLParam(r, "floorID"), p)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, floor)
}

// handleDeleteFloor deletes a floor with its rooms and devices.
func (s *Server) handleDeleteFloor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "floorID")
	if err := s.store.DeleteFloor(r.Context(), chi.URLParam(r, "houseID"), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted(hierarchy.KindFloor, id))
}

// ─── Rooms ─────────────────────────────────────────────────────────

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.RoomInput
	if !decodeJSON(w, r, &in) {
		return
	}

	room, err := s.store.AddRoom(r.Context(), chi.URLParam(r, "houseID"), chi.URLParam(r, "floorID"), in)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.store.GetRoom(r.Context(), chi.URLParam(r, "houseID"), chi.URLParam(r, "floorID"), chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	var p hierarchy.LocationPatch
	if !decodeJSON(w, r, &p) {
		return
	}

	room, err := s.store.UpdateRoom(r.Context(), chi.URLParam(r, "houseID"), chi.URLParam(r, "floorID"), chi.URLParam(r, "roomID"), p)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// handleDeleteRoom deletes a room with its devices.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "roomID")
	if err := s.store.DeleteRoom(r.Context(), chi.URLParam(r, "houseID"), chi.URLParam(r, "floorID"), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted(hierarchy.KindRoom, id))
}
