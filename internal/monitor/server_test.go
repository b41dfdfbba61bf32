package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/raaihank/phi-sentinel/internal/audit"
	"github.com/raaihank/phi-sentinel/internal/config"
	"github.com/raaihank/phi-sentinel/internal/engine"
	"github.com/raaihank/phi-sentinel/internal/metrics"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/raaihank/phi-sentinel/internal/redact"
	"github.com/raaihank/phi-sentinel/internal/scan"
	"github.com/raaihank/phi-sentinel/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ engine.Observer = (*Server)(nil)

func newServer(t *testing.T, cfg config.MonitorConfig) (*Server, *privacy.Detector, *metrics.Collector) {
	t.Helper()
	detector := privacy.NewDetector(privacy.NewRegistry(), nil, nil)
	collector := metrics.NewCollector(config.MetricsConfig{}, prometheus.NewRegistry())
	return New(cfg, "medium", detector, collector, nil), detector, collector
}

func TestHealthAndInfo(t *testing.T) {
	s, detector, _ := newServer(t, config.GetDefaults().Monitor)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info struct {
		Kinds  []string                    `json:"kinds"`
		Status websocket.SystemStatusEvent `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Len(t, info.Kinds, len(detector.Registry().Kinds()))
	assert.Equal(t, "none", info.Status.EntityRecognizer)
	assert.Equal(t, "medium", info.Status.Sensitivity)
}

func TestDashboard(t *testing.T) {
	s, _, _ := newServer(t, config.GetDefaults().Monitor)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/ws")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, collector := newServer(t, config.GetDefaults().Monitor)
	collector.RecordOperation("detect", metrics.OutcomeOK, time.Millisecond)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "phi_sentinel_engine_operations_total")
}

func TestWebSocketRequiresCredentialsWhenConfigured(t *testing.T) {
	cfg := config.GetDefaults().Monitor
	cfg.WebSocket.Username = "ops"
	cfg.WebSocket.Password = "s3cret"
	s, _, _ := newServer(t, cfg)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEngineProgressReachesWebSocketClient(t *testing.T) {
	s, detector, _ := newServer(t, config.GetDefaults().Monitor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.wsHub.Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, resp, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	require.Eventually(t, func() bool { return s.wsHub.GetStats().ActiveConnections == 1 }, 2*time.Second, 10*time.Millisecond)

	store, err := audit.NewFileStore(t.TempDir())
	require.NoError(t, err)
	fp, err := redact.NewFingerprinter("salt")
	require.NoError(t, err)
	e := engine.New(detector, fp, nil, engine.WithObserver(s), engine.WithAudit(audit.NewLogger(store, nil)))

	_, err = e.ScanItems(ctx, engine.Actor{ProjectID: "p"}, []scan.Item{{ID: "1", Content: "SSN 123-45-6789"}}, scan.BatchConfig{}, nil)
	require.NoError(t, err)

	seen := map[websocket.EventType]json.RawMessage{}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(seen) < 2 {
		var ev struct {
			Type websocket.EventType `json:"type"`
			Data json.RawMessage     `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&ev))
		seen[ev.Type] = ev.Data
	}

	require.Contains(t, seen, websocket.EventTypeBatchProgress)
	require.Contains(t, seen, websocket.EventTypeAudit)
	assert.NotContains(t, string(seen[websocket.EventTypeAudit]), "metadata")
	assert.NotContains(t, string(seen[websocket.EventTypeBatchProgress]), "123-45-6789")
}
