package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/phi-sentinel/internal/audit"
	"github.com/raaihank/phi-sentinel/internal/config"
	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/metrics"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/raaihank/phi-sentinel/internal/scan"
	"github.com/raaihank/phi-sentinel/internal/web"
	"github.com/raaihank/phi-sentinel/internal/websocket"
	"go.uber.org/zap"
)

const statusInterval = 30 * time.Second

// Server is the operational HTTP surface: health, Prometheus metrics and a
// live WebSocket feed of progress and audit events. It never serves
// scanned content.
type Server struct {
	config    config.MonitorConfig
	logger    *logger.Logger
	detector  *privacy.Detector
	metrics   *metrics.Collector
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	startedAt time.Time
	defaults  privacy.Sensitivity
}

// New creates a monitor server
func New(cfg config.MonitorConfig, sensitivity string, detector *privacy.Detector, collector *metrics.Collector, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastProgress:    cfg.WebSocket.BroadcastProgress,
		BroadcastAudit:       cfg.WebSocket.BroadcastAudit,
		BroadcastSystem:      cfg.WebSocket.BroadcastSystem,
		BroadcastConnections: cfg.WebSocket.BroadcastConnections,
		Username:             cfg.WebSocket.Username,
		Password:             cfg.WebSocket.Password,
	}, log.WithComponent("websocket").Logger)

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("monitor"),
		detector:  detector,
		metrics:   collector,
		router:    mux.NewRouter(),
		wsHub:     wsHub,
		startedAt: time.Now(),
		defaults:  privacy.Sensitivity(sensitivity),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/ws", s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting monitor server", zap.Int("port", s.config.Port))

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsHub.Run(hubCtx)
	go s.broadcastStatus(hubCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("monitor server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Stopping monitor server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) broadcastStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsHub.BroadcastEvent(websocket.Event{Type: websocket.EventTypeSystemStatus, Data: s.status()})
		}
	}
}

func (s *Server) status() websocket.SystemStatusEvent {
	return websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
		PatternKinds:     len(s.detector.Registry().Kinds()),
		EntityRecognizer: s.detector.EntityRecognizerName(),
		Sensitivity:      string(s.defaults),
		ConnectedClients: int(s.wsHub.GetStats().ActiveConnections),
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo reports the detector configuration
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   "phi-sentinel",
		"status": s.status(),
		"kinds":  s.detector.Registry().Kinds(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// BatchProgress forwards batch progress to WebSocket clients
func (s *Server) BatchProgress(runID string, processed, total int) {
	s.wsHub.BroadcastEvent(websocket.Event{
		Type: websocket.EventTypeBatchProgress,
		Data: websocket.BatchProgressEvent{RunID: runID, Processed: processed, Total: total},
	})
}

// StreamProgress forwards one chunk's outcome to WebSocket clients
func (s *Server) StreamProgress(runID string, chunk scan.ChunkProgress) {
	s.wsHub.BroadcastEvent(websocket.Event{
		Type: websocket.EventTypeStreamProgress,
		Data: websocket.StreamProgressEvent{
			RunID:   runID,
			Index:   chunk.Index,
			Offset:  chunk.Offset,
			Bytes:   chunk.Bytes,
			Flagged: chunk.Flagged,
		},
	})
}

// AuditRecorded forwards the identity of an audit record, without its
// metadata or user context
func (s *Server) AuditRecorded(event audit.Event) {
	s.wsHub.BroadcastEvent(websocket.Event{
		Type: websocket.EventTypeAudit,
		Data: websocket.AuditEvent{
			EventID:    event.EventID.String(),
			ProjectID:  event.ProjectID,
			Action:     string(event.Action),
			ResourceID: event.ResourceID,
			Timestamp:  event.Timestamp,
		},
	})
}
