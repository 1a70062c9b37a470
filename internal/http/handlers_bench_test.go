package http

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chrpow/Wearcast-Pebble/internal/appsync"
	"github.com/chrpow/Wearcast-Pebble/internal/engine"
	"github.com/chrpow/Wearcast-Pebble/internal/traffic"
)

// setupBenchmarkHandler creates a handler over a mock engine for benchmarking.
func setupBenchmarkHandler() *Handler {
	eng := &mockEngine{view: freshView(time.Now())}
	return NewHandler(eng, NewOutbox(time.Minute, nil), &HealthConfig{
		RefreshInterval:   30 * time.Minute,
		DegradedWindow:    5 * time.Minute,
		DegradedRejectPct: 50,
	}, zap.NewNop())
}

// BenchmarkHandler_GetView benchmarks the view snapshot endpoint.
func BenchmarkHandler_GetView(b *testing.B) {
	router := NewRouter(setupBenchmarkHandler(), RouterConfig{}, zap.NewNop())
	req := httptest.NewRequest("GET", "/view", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

// BenchmarkHandler_PostInbound benchmarks inbound message submission.
func BenchmarkHandler_PostInbound(b *testing.B) {
	defer traffic.Reset()
	router := NewRouter(setupBenchmarkHandler(), RouterConfig{}, zap.NewNop())
	raw, _ := appsync.EncodeDict([]appsync.Tuple{
		appsync.UintTuple(appsync.KeyCondition, 1),
		appsync.CStringTuple(appsync.KeyTemperature, "60"),
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/companion/inbound", bytes.NewReader(raw)))
	}
}

// BenchmarkHandler_PostInbound_RateLimited benchmarks rate limiting overhead.
func BenchmarkHandler_PostInbound_RateLimited(b *testing.B) {
	defer traffic.Reset()
	limiter := rate.NewLimiter(rate.Limit(100), 250)
	router := NewRouter(setupBenchmarkHandler(), RouterConfig{InboundLimiter: limiter}, zap.NewNop())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/companion/inbound", bytes.NewReader([]byte{0})))
	}
}

// BenchmarkHandler_GetHealth benchmarks the health check endpoint.
func BenchmarkHandler_GetHealth(b *testing.B) {
	router := NewRouter(setupBenchmarkHandler(), RouterConfig{}, zap.NewNop())
	req := httptest.NewRequest("GET", "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

// BenchmarkEngine_Dispatch benchmarks one inbound message through the real engine loop body.
func BenchmarkEngine_Dispatch(b *testing.B) {
	eng := engine.New(NewOutbox(time.Minute, nil), engine.Config{}, zap.NewNop())
	raw, _ := appsync.EncodeDict([]appsync.Tuple{
		appsync.UintTuple(appsync.KeyCondition, 0),
		appsync.CStringTuple(appsync.KeyTemperature, "70"),
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = eng.Dispatch(engine.Event{Type: engine.EventInbound, Payload: raw})
	}
}
