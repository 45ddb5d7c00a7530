package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/readyforms/readyforms-api/internal/service"
)

// TopicHandler serves the topic list and its admin CRUD.
type TopicHandler struct {
	topics *service.TopicService
	logger *slog.Logger
}

func NewTopicHandler(topics *service.TopicService, logger *slog.Logger) *TopicHandler {
	return &TopicHandler{topics: topics, logger: logger}
}

// HandleList returns every topic, sorted by name.
//
// HTTP: GET /api/topics
func (h *TopicHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	topics, err := h.topics.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

// HandleCreate adds a topic.
//
// HTTP: POST /api/topics (admin)
// REQUEST BODY: {"name": "Education"}
func (h *TopicHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.TopicInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	topic, err := h.topics.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeVersioned(w, http.StatusCreated, topic.Version, topic)
}

// HandleUpdate renames a topic.
//
// HTTP: PUT /api/topics/{id} (admin)
// REQUEST BODY: {"version": 1, "name": "Quizzes"}
func (h *TopicHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateTopicInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	topic, err := h.topics.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeVersioned(w, http.StatusOK, topic.Version, topic)
}

// HandleDelete removes an unused topic.
//
// HTTP: DELETE /api/topics/{id} (admin)
// REQUEST BODY: {"version": 2}
func (h *TopicHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	version, err := decodeVersion(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.topics.Delete(r.Context(), chi.URLParam(r, "id"), version); err != nil {
		writeMutationError(w, err)
		return
	}
	writeDeleted(w, "topic")
}
