package api

import (
	"errors"
	"net/http"

	"github.com/eserdar/outreach-sequencer/internal/engine"
	"github.com/go-chi/chi/v5"
)

type DeliveryHandler struct {
	reporter *engine.StatusReporter
	replies  *engine.Replies
}

func NewDeliveryHandler(reporter *engine.StatusReporter, replies *engine.Replies) *DeliveryHandler {
	return &DeliveryHandler{reporter: reporter, replies: replies}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reporter.Deliveries(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"deliveries": rows})
}

// Reply records an incoming reply against a delivery and stops the
// recipient's later steps.
func (h *DeliveryHandler) Reply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.replies.RecordReply(r.Context(), id)
	if errors.Is(err, engine.ErrDeliveryNotFound) {
		respondError(w, http.StatusNotFound, "delivery not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record reply")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
