package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/readyforms/readyforms-api/internal/service"
)

// CommentHandler serves the discussion under a template.
type CommentHandler struct {
	comments *service.CommentService
	logger   *slog.Logger
}

func NewCommentHandler(comments *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

// HandleList returns comments, oldest first.
//
// HTTP: GET /api/templates/{id}/comments
func (h *CommentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.comments.List(r.Context(), actorFrom(r), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleAdd posts a comment.
//
// HTTP: POST /api/templates/{id}/comments (auth)
// REQUEST BODY: {"content": "Nice form!"}
func (h *CommentHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var in service.CommentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.comments.Add(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeVersioned(w, http.StatusCreated, c.Version, c)
}

// HandleDelete removes a comment.
//
// HTTP: DELETE /api/comments/{id} (author/admin)
// REQUEST BODY: {"version": 1}
func (h *CommentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	version, err := decodeVersion(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.comments.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id"), version); err != nil {
		writeMutationError(w, err)
		return
	}
	writeDeleted(w, "comment")
}

// LikeHandler toggles the caller's like on a template.
type LikeHandler struct {
	likes  *service.LikeService
	logger *slog.Logger
}

func NewLikeHandler(likes *service.LikeService, logger *slog.Logger) *LikeHandler {
	return &LikeHandler{likes: likes, logger: logger}
}

// HandleLike likes a template. The response carries the like's version,
// which the client sends back to unlike.
//
// HTTP: POST /api/templates/{id}/like (auth)
func (h *LikeHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	state, err := h.likes.Like(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeVersioned(w, http.StatusCreated, state.Like.Version, state)
}

// HandleUnlike removes the caller's like.
//
// HTTP: DELETE /api/templates/{id}/like (auth)
// REQUEST BODY: {"version": 1}
func (h *LikeHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	version, err := decodeVersion(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := h.likes.Unlike(r.Context(), actorFrom(r), chi.URLParam(r, "id"), version)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
