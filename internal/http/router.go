package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chrpow/Wearcast-Pebble/internal/observability"
)

// RouterConfig selects optional middleware and routes.
type RouterConfig struct {
	// InboundLimiter throttles POST /companion/inbound. Nil disables limiting.
	InboundLimiter *rate.Limiter
	// RequestTimeout bounds how long companion requests wait on the engine loop.
	RequestTimeout time.Duration
	// TestingMode exposes /test.
	TestingMode bool
}

// NewRouter wires the companion, view, health and metrics routes.
func NewRouter(h *Handler, rc RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.HandleFunc("/view", h.GetView).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	companion := router.PathPrefix("/companion").Subrouter()
	if rc.RequestTimeout > 0 {
		companion.Use(TimeoutMiddleware(rc.RequestTimeout))
	}
	companion.Handle("/inbound", RateLimitMiddleware(rc.InboundLimiter)(http.HandlerFunc(h.PostInbound))).Methods("POST")
	companion.HandleFunc("/outbox", h.GetOutbox).Methods("GET")
	companion.HandleFunc("/refresh", h.PostRefresh).Methods("POST")

	if rc.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods("GET")
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods("POST")
	}
	return router
}
