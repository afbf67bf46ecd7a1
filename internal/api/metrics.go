package api

import (
	"net/http"

	"github.com/eserdar/outreach-sequencer/internal/domain"
	"github.com/eserdar/outreach-sequencer/internal/queue"
	"github.com/eserdar/outreach-sequencer/internal/store"
	ws "github.com/eserdar/outreach-sequencer/internal/websocket"
)

type MetricsHandler struct {
	store *store.PostgresStore
	queue *queue.DelayQueue
	hub   *ws.Hub
}

func NewMetricsHandler(s *store.PostgresStore, q *queue.DelayQueue, hub *ws.Hub) *MetricsHandler {
	return &MetricsHandler{store: s, queue: q, hub: hub}
}

type metricsResponse struct {
	Deliveries *domain.DeliveryMetrics `json:"deliveries"`
	QueueDepth int64                   `json:"queue_depth"`
	WSClients  int                     `json:"ws_clients"`
}

func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.DeliveryMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read queue depth")
		return
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		Deliveries: m,
		QueueDepth: depth,
		WSClients:  h.hub.ClientCount(),
	})
}
