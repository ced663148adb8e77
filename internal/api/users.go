package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salsowa/smarthome-core/internal/hierarchy"
)

// deleteResponse confirms a delete.
type deleteResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func deleted(kind hierarchy.Kind, id string) deleteResponse {
	return deleteResponse{Message: kind.Title() + " " + id + " deleted", ID: id}
}

// handleListUsers returns every user in creation order.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users := s.store.ListUsers(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser creates a user.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.UserInput
	if !decodeJSON(w, r, &in) {
		return
	}

	user, err := s.store.CreateUser(r.Context(), in)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("user created", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// handleGetUser returns a single user.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser merges the provided fields into a user. PUT and PATCH
// behave the same.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var p hierarchy.UserPatch
	if !decodeJSON(w, r, &p) {
		return
	}

	user, err := s.store.UpdateUser(r.Context(), chi.URLParam(r, "userID"), p)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser deletes a user.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("user deleted", "user_id", id)
	writeJSON(w, http.StatusOK, deleted(hierarchy.KindUser, id))
}
