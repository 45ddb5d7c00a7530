package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/readyforms/readyforms-api/internal/service"
)

// FormResponseHandler serves filled-in forms. It is not named
// ResponseHandler to keep it apart from the HTTP response helpers.
type FormResponseHandler struct {
	responses *service.ResponseService
	logger    *slog.Logger
}

func NewFormResponseHandler(responses *service.ResponseService, logger *slog.Logger) *FormResponseHandler {
	return &FormResponseHandler{responses: responses, logger: logger}
}

// HandleSubmit fills in a template.
//
// HTTP: POST /api/templates/{id}/responses (auth)
// REQUEST BODY: {"answers": [{"questionId": "…", "value": "42"}]}
func (h *FormResponseHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitResponseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.responses.Submit(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeVersioned(w, http.StatusCreated, resp.Version, resp)
}

// HandleListForTemplate lists every response to a template.
//
// HTTP: GET /api/templates/{id}/responses (owner/admin)
func (h *FormResponseHandler) HandleListForTemplate(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.responses.ListForTemplate(r.Context(), actorFrom(r), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleListMine lists the caller's own responses.
//
// HTTP: GET /api/responses/mine (auth)
func (h *FormResponseHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.responses.ListMine(r.Context(), actorFrom(r), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet returns one response.
//
// HTTP: GET /api/responses/{id} (author/owner/admin)
func (h *FormResponseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	resp, err := h.responses.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeVersioned(w, http.StatusOK, resp.Version, resp)
}

// HandleUpdate replaces the answers.
//
// HTTP: PUT /api/responses/{id} (author/admin)
// REQUEST BODY: {"version": 1, "answers": […]}
func (h *FormResponseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateResponseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.responses.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeVersioned(w, http.StatusOK, resp.Version, resp)
}

// HandleDelete removes a response.
//
// HTTP: DELETE /api/responses/{id} (author/owner/admin)
// REQUEST BODY: {"version": 2}
func (h *FormResponseHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	version, err := decodeVersion(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.responses.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id"), version); err != nil {
		writeMutationError(w, err)
		return
	}
	writeDeleted(w, "response")
}
