package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrpow/Wearcast-Pebble/internal/appsync"
	"github.com/chrpow/Wearcast-Pebble/internal/engine"
	"github.com/chrpow/Wearcast-Pebble/internal/lifecycle"
	"github.com/chrpow/Wearcast-Pebble/internal/traffic"
)

// Engine is the part of the engine the HTTP surface drives.
type Engine interface {
	SubmitInbound(ctx context.Context, raw []byte, isJSON bool) error
	RequestRefresh(ctx context.Context) error
	View() *engine.View
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	// RefreshInterval: weather older than twice the interval is stale.
	RefreshInterval time.Duration
	// DegradedWindow and DegradedRejectPct: the companion is unhealthy when at least
	// this share of inbound messages in the window were rejected.
	DegradedWindow    time.Duration
	DegradedRejectPct int
	StartTime         time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine           Engine
	outbox           *Outbox
	healthConfig     *HealthConfig
	logger           *zap.Logger
	now              func() time.Time
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(eng Engine, outbox *Outbox, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:       eng,
		outbox:       outbox,
		healthConfig: healthConfig,
		logger:       logger,
		now:          time.Now,
	}
}

// PostInbound handles POST /companion/inbound. The body is a binary tuple
// dictionary, or the JSON dictionary form when Content-Type is application/json.
func (h *Handler) PostInbound(w http.ResponseWriter, r *http.Request) {
	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	limit := appsync.MaxMessageSize
	if isJSON {
		limit = appsync.MaxJSONMessageSize
	}
	// One byte over the limit lets the decoder reject oversized messages itself.
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	if err != nil {
		traffic.RecordRejected()
		writeError(w, r, http.StatusBadRequest, "MALFORMED_MESSAGE", "unreadable body")
		return
	}

	err = h.engine.SubmitInbound(r.Context(), body, isJSON)
	switch {
	case err == nil:
		traffic.RecordAccepted()
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, appsync.ErrUnknownKey):
		traffic.RecordRejected()
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_KEY", err.Error())
	case errors.Is(err, appsync.ErrMalformed):
		traffic.RecordRejected()
		writeError(w, r, http.StatusBadRequest, "MALFORMED_MESSAGE", err.Error())
	default:
		writeEngineError(w, r, err)
	}
}

// GetOutbox handles GET /companion/outbox. Collecting the message counts as delivery.
func (h *Handler) GetOutbox(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.outbox.Take()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if logger := loggerFrom(r); logger != nil {
		logger.Debug("outbox collected", zap.Int("bytes", len(msg)))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(msg)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(msg)
}

// PostRefresh handles POST /companion/refresh, an out-of-cycle refresh request.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	err := h.engine.RequestRefresh(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
	case errors.Is(err, appsync.ErrChannelBusy):
		writeError(w, r, http.StatusConflict, "CHANNEL_BUSY", "a refresh request is already pending")
	case errors.Is(err, appsync.ErrSendFailure):
		writeError(w, r, http.StatusServiceUnavailable, "SEND_FAILED", "refresh request could not be queued")
	default:
		writeEngineError(w, r, err)
	}
}

// GetView handles GET /view.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.View())
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	view := h.engine.View()
	result := h.computeHealthStatus(view, now)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"companion": "healthy", "weather": "fresh"}
	switch result.status {
	case "degraded":
		checks["companion"] = "unhealthy"
	case "pending", "stale":
		checks["weather"] = result.status
	}
	resp := map[string]interface{}{
		"status":          result.status,
		"service":         "wearcast",
		"version":         "dev",
		"checks":          checks,
		"scheduler_state": view.Scheduler,
		"timestamp":       now.UTC().Format(time.RFC3339),
	}
	if age, ok := view.Age(now); ok {
		resp["weather_age_seconds"] = int(age.Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > degraded > pending > stale > healthy.
// Pending and stale still answer 200: the engine keeps serving the last outfit.
func (h *Handler) computeHealthStatus(view *engine.View, now time.Time) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedRejectPct > 0 {
		counts := traffic.Snapshot(h.healthConfig.DegradedWindow)
		if counts.Rejected > 0 && counts.RejectedPct() >= h.healthConfig.DegradedRejectPct {
			return healthResult{"degraded", http.StatusServiceUnavailable, "companion_reject_rate"}
		}
	}
	if view.Pending {
		return healthResult{"pending", http.StatusOK, "no_weather"}
	}
	if h.healthConfig.RefreshInterval > 0 {
		if age, ok := view.Age(now); ok && age > 2*h.healthConfig.RefreshInterval {
			return healthResult{"stale", http.StatusOK, "weather_age"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationIDFrom(r),
		},
	})
}

// writeEngineError answers 503 when the engine loop is gone or the request gave up waiting.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", "engine not accepting events")
	if logger := loggerFrom(r); logger != nil {
		logger.Debug("engine error", zap.Error(err))
	}
}

// GetTestStatus handles GET /test. Returns the companion traffic window.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	window := 5 * time.Minute
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window = h.healthConfig.DegradedWindow
	}
	counts := traffic.Snapshot(window)
	cfg := make(map[string]interface{})
	if h.healthConfig != nil {
		cfg["degraded_reject_pct"] = h.healthConfig.DegradedRejectPct
		cfg["refresh_interval"] = h.healthConfig.RefreshInterval.String()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window_length":  window.String(),
		"counts":         counts,
		"rejected_pct":   counts.RejectedPct(),
		"outbox_pending": h.outbox.Pending(),
		"config":         cfg,
	})
}

// PostTestAction handles POST /test/{action} for reject, reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "reject":
		var body struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
			body.Count = 1
		}
		for i := 0; i < body.Count; i++ {
			traffic.RecordRejected()
		}
		result := h.computeHealthStatus(h.engine.View(), h.now())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  "reject",
			"message": "Recorded " + strconv.Itoa(body.Count) + " rejected messages",
			"state":   result.status,
		})
	case "reset":
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  "reset",
			"message": "All simulated state cleared",
		})
	case "shutdown":
		lifecycle.SetShuttingDown(true)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  "shutdown",
			"message": "Shutting-down flag set",
		})
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}
