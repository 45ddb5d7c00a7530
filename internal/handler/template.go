package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/readyforms/readyforms-api/internal/service"
)

// TemplateHandler serves template authoring, browsing and statistics.
type TemplateHandler struct {
	templates *service.TemplateService
	analytics *service.AnalyticsService
	logger    *slog.Logger
}

func NewTemplateHandler(templates *service.TemplateService, analytics *service.AnalyticsService, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{templates: templates, analytics: analytics, logger: logger}
}

// HandleList searches the templates visible to the caller.
//
// HTTP: GET /api/templates?q=&topic=&tag=&owner=&sort=latest|popular&limit=&offset=
func (h *TemplateHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	list, err := h.templates.List(r.Context(), actorFrom(r), service.ListInput{
		Query:   q.Get("q"),
		TopicID: q.Get("topic"),
		Tag:     q.Get("tag"),
		OwnerID: q.Get("owner"),
		Sort:    q.Get("sort"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreate stores a new template owned by the caller.
//
// HTTP: POST /api/templates (auth)
func (h *TemplateHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateTemplateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	tmpl, err := h.templates.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeVersioned(w, http.StatusCreated, tmpl.Version, tmpl)
}

// HandleGet returns one template with its like and comment counters.
//
// HTTP: GET /api/templates/{id}
func (h *TemplateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.templates.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeVersioned(w, http.StatusOK, detail.Version, detail)
}

// HandleUpdate applies a partial edit.
//
// HTTP: PUT /api/templates/{id} (owner/admin)
// REQUEST BODY: {"version": 1, "title": "New title"}
//
// A stale version gets 409 OPTIMISTIC_LOCK_ERROR and the template is left
// as the other writer saved it.
func (h *TemplateHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateTemplateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	tmpl, err := h.templates.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeVersioned(w, http.StatusOK, tmpl.Version, tmpl)
}

// HandleDelete removes the template with its comments, likes and responses.
//
// HTTP: DELETE /api/templates/{id} (owner/admin)
// REQUEST BODY: {"version": 3}
func (h *TemplateHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	version, err := decodeVersion(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.templates.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id"), version); err != nil {
		writeMutationError(w, err)
		return
	}
	writeDeleted(w, "template")
}

// HandleStats returns per-question aggregates.
//
// HTTP: GET /api/templates/{id}/stats (owner/admin)
func (h *TemplateHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.Stats(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
