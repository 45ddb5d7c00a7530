package handler

import (
	"log/slog"
	"net/http"

	"github.com/readyforms/readyforms-api/internal/service"
)

// TagHandler serves the tag cloud and autocomplete.
type TagHandler struct {
	tags   *service.TagService
	logger *slog.Logger
}

func NewTagHandler(tags *service.TagService, logger *slog.Logger) *TagHandler {
	return &TagHandler{tags: tags, logger: logger}
}

// HandleList returns tags with usage counts.
//
// HTTP: GET /api/tags?q=sur&limit=10
func (h *TagHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	tags, err := h.tags.List(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
