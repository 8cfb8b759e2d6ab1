package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/export"
	"tillsync/internal/models"
	"tillsync/internal/queue"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// TokenStatusSource exposes the current token state for the health
// surface without granting access to the token itself.
type TokenStatusSource interface {
	State() models.TokenState
}

// HealthServer is the device-local HTTP surface the health indicator UI
// polls: queue depth, abandoned-item count, token status, and an
// on-demand abandoned-item export. It never serves entity data.
type HealthServer struct {
	queue     *queue.Service
	tokens    TokenStatusSource
	exportDir string
	server    *http.Server
	logger    zerolog.Logger
}

func NewHealthServer(cfg config.MonitoringConfig, exports config.ExportConfig, q *queue.Service, tokens TokenStatusSource, logger *zerolog.Logger) *HealthServer {
	srv := &HealthServer{
		queue:     q,
		tokens:    tokens,
		exportDir: exports.Path,
		logger:    logger.With().Str("component", "health-server").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/abandoned", srv.handleAbandoned)
	mux.HandleFunc("/abandoned/export", srv.handleAbandonedExport)
	if cfg.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HealthPort),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HealthServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("health server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HealthServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	QueueDepth     int                `json:"queue_depth"`
	AbandonedCount int                `json:"abandoned_count"`
	TokenStatus    models.TokenStatus `json:"token_status"`
	TokenExpiresAt time.Time          `json:"token_expires_at"`
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	depth, err := s.queue.Depth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	abandoned, err := s.queue.Abandoned(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "abandoned list unavailable")
		return
	}

	token := s.tokens.State()
	writeJSON(w, http.StatusOK, healthResponse{
		QueueDepth:     depth,
		AbandonedCount: len(abandoned),
		TokenStatus:    token.Status,
		TokenExpiresAt: token.ExpiresAt,
	})
}

func (s *HealthServer) handleAbandoned(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	items, err := s.queue.Abandoned(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "abandoned list unavailable")
		return
	}
	if items == nil {
		items = []models.AbandonedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HealthServer) handleAbandonedExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	items, err := s.queue.Abandoned(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "abandoned list unavailable")
		return
	}

	path, err := export.WriteAbandonedReport(s.exportDir, items)
	if err != nil {
		s.logger.Error().Err(err).Msg("abandoned export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *HealthServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", recorder.status).Dur("duration", time.Since(start)).Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
