package api

import (
	"net/http"

	"github.com/eserdar/outreach-sequencer/internal/engine"
	"github.com/eserdar/outreach-sequencer/internal/queue"
	"github.com/eserdar/outreach-sequencer/internal/store"
	ws "github.com/eserdar/outreach-sequencer/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, creator *engine.Creator, replies *engine.Replies, reporter *engine.StatusReporter, q *queue.DelayQueue, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS for dashboard
	r.Use(corsMiddleware)

	// Handlers
	campaignHandler := NewCampaignHandler(creator)
	deliveryHandler := NewDeliveryHandler(reporter, replies)
	metricsHandler := NewMetricsHandler(pgStore, q, hub)
	failureHandler := NewFailureHandler(pgStore)

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWebSocket)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", campaignHandler.Create)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", deliveryHandler.List)
			r.Post("/{id}/reply", deliveryHandler.Reply)
		})

		r.Get("/send-failures", failureHandler.List)
		r.Get("/metrics", metricsHandler.Metrics)
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
