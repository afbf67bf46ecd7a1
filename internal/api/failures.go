package api

import (
	"net/http"
	"strconv"

	"github.com/eserdar/outreach-sequencer/internal/store"
)

type FailureHandler struct {
	store *store.PostgresStore
}

func NewFailureHandler(s *store.PostgresStore) *FailureHandler {
	return &FailureHandler{store: s}
}

func (h *FailureHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	failures, err := h.store.ListSendFailures(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list send failures")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"failures": failures})
}
