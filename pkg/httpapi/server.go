// Package httpapi exposes the intake workflows over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightlane/crm-intake/pkg/buildinfo"
	"github.com/brightlane/crm-intake/pkg/intake"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// Processor runs the inbound email workflow.
type Processor interface {
	Process(ctx context.Context, raw intake.RawEmail) (*intake.Record, error)
}

// Decider applies operator decisions to pending intakes.
type Decider interface {
	Submit(ctx context.Context, req intake.DecisionRequest) (*intake.Record, error)
}

// HealthFunc reports readiness of a backing dependency.
type HealthFunc func(ctx context.Context) error

// Server routes intake API requests to the workflows.
type Server struct {
	processor Processor
	decider   Decider
	repo      intake.Repository
	health    HealthFunc
	logger    logging.Logger
}

// ServerConfig bundles the server's collaborators. Health may be nil, in
// which case the health endpoint always reports ok.
type ServerConfig struct {
	Processor  Processor
	Decider    Decider
	Repository intake.Repository
	Health     HealthFunc
	Logger     logging.Logger
}

// NewServer assembles the HTTP server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		processor: cfg.Processor,
		decider:   cfg.Decider,
		repo:      cfg.Repository,
		health:    cfg.Health,
		logger:    logger.With(logging.F("component", "httpapi")),
	}
}

// Handler returns the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/email-intakes/process", s.handleProcess)
	mux.HandleFunc("GET /api/v1/email-intakes/pending", s.handlePending)
	mux.HandleFunc("GET /api/v1/email-intakes/{id}", s.handleGet)
	mux.HandleFunc("POST /api/v1/email-intakes/{id}/decision", s.handleDecision)

	mux.HandleFunc("POST /webhooks/{provider}", s.handleWebhook)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /version", buildinfo.Handler("crm-intake"))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.withRequestLog(mux)
}

// withRequestLog assigns a request id and logs each request with its
// duration.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), logging.RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.WithContext(ctx).Info("request handled",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", rec.status),
			logging.F("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
