package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/usecase"
	"companion-billing/internal/infra/logging"
	"companion-billing/internal/infra/metrics"
)

// maxWebhookBody caps the payload read from the processor.
const maxWebhookBody = 65536

// EventDecoder authenticates and decodes a raw processor notification.
type EventDecoder interface {
	Decode(ctx context.Context, payload []byte, signature string) (model.BillingEvent, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server wires the processor webhook to the reconciler, plus health and
// metrics endpoints.
type Server struct {
	decoder     EventDecoder
	reconciler  usecase.EventReconciler
	webhookPath string
	checks      map[string]HealthCheck
	log         *zerolog.Logger
}

// NewServer constructs the public HTTP layer. webhookPath must match the
// endpoint configured in the processor dashboard.
func NewServer(decoder EventDecoder, reconciler usecase.EventReconciler, webhookPath string, logger *zerolog.Logger) *Server {
	if webhookPath == "" {
		webhookPath = "/api/v1/subscription/webhook"
	}
	l := logger.With().Str("component", "webhook").Logger()
	return &Server{
		decoder:     decoder,
		reconciler:  reconciler,
		webhookPath: webhookPath,
		checks:      map[string]HealthCheck{},
		log:         &l,
	}
}

// AddHealthCheck registers a named readiness check for /healthz.
func (s *Server) AddHealthCheck(name string, fn HealthCheck) {
	s.checks[name] = fn
}

// Register attaches the webhook, health and metrics routes.
func (s *Server) Register(r chi.Router) {
	r.Post(s.webhookPath, s.handleWebhook)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.With(ctx, s.log)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		metrics.IncWebhookRejected("body")
		log.Warn().Err(err).Msg("webhook body unreadable")
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	ev, err := s.decoder.Decode(ctx, payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidSignature):
		metrics.IncWebhookRejected("signature")
		log.Warn().Err(err).Msg("webhook signature verification failed")
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	case errors.Is(err, domain.ErrUnsupportedEventShape):
		metrics.IncWebhookRejected("payload")
		log.Warn().Err(err).Msg("webhook payload rejected")
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	case errors.Is(err, domain.ErrEventIgnored):
		log.Debug().Err(err).Msg("webhook event ignored")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case errors.Is(err, domain.ErrNotFound):
		// The referenced object is gone at the processor; a retry cannot fix it.
		metrics.IncWebhookRejected("unresolved")
		log.Warn().Err(err).Msg("webhook references a missing processor object")
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "outcome": string(model.OutcomeUnresolved)})
		return
	default:
		log.Error().Err(err).Msg("webhook event could not be decoded")
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	ctx = logging.WithEventID(ctx, ev.EventID())
	res, err := s.reconciler.HandleEvent(ctx, ev)
	if err != nil {
		logging.With(ctx, s.log).Error().Err(err).Str("kind", string(ev.Kind())).Msg("webhook processing failed")
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "outcome": string(res.Outcome)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	code := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	writeJSON(w, code, map[string]any{"status": http.StatusText(code), "checks": status})
}

// NewRouter builds the chi router with the shared middleware stack.
func NewRouter(logger *zerolog.Logger, timeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(logger), RequestLog(logger), Timeout(timeout))
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
