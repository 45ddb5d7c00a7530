package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/readyforms/readyforms-api/internal/service"
)

// UserHandler is the admin user table. Every route is mounted behind
// auth.RequireAdmin.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleList pages through all users.
//
// HTTP: GET /api/admin/users?limit=&offset=
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleUpdate changes the admin and blocked flags or the name.
//
// HTTP: PUT /api/admin/users/{id}
// REQUEST BODY: {"version": 3, "isBlocked": true}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	user, err := h.users.Update(r.Context(), id, in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	if actor := actorFrom(r); actor != nil {
		h.logger.Info("admin changed user",
			slog.String("adminID", actor.ID),
			slog.String("userID", id),
		)
	}
	writeVersioned(w, http.StatusOK, user.Version, user)
}

// HandleDelete removes the user and everything they own.
//
// HTTP: DELETE /api/admin/users/{id}
// REQUEST BODY: {"version": 3}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	version, err := decodeVersion(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.Delete(r.Context(), chi.URLParam(r, "id"), version); err != nil {
		writeMutationError(w, err)
		return
	}
	writeDeleted(w, "user")
}
