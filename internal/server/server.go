package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/pulsehook/internal/auth"
	"github.com/clinicore/pulsehook/internal/logging"
	"github.com/clinicore/pulsehook/internal/store"
	"github.com/clinicore/pulsehook/internal/sweeper"
	"github.com/clinicore/pulsehook/internal/worker"
)

// Deliverer runs one delivery attempt. Implemented by worker.Worker.
type Deliverer interface {
	Deliver(ctx context.Context, deliveryID string) (worker.Result, error)
}

// StuckRepairer runs one sweep pass. Implemented by sweeper.Sweeper.
type StuckRepairer interface {
	Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (sweeper.Result, error)
}

// DeliveryReader reads delivery rows for the status endpoint.
type DeliveryReader interface {
	GetDelivery(ctx context.Context, deliveryID string) (*store.Delivery, error)
}

// Server exposes the control-plane HTTP API consumed by the external
// dispatcher and the platform cron.
type Server struct {
	deliverer  Deliverer
	repairer   StuckRepairer
	reader     DeliveryReader
	cron       *auth.CronAuth
	dispatcher *auth.DispatcherValidator
	logger     *logging.Logger
}

func New(d Deliverer, r StuckRepairer, reader DeliveryReader, cron *auth.CronAuth, dispatcher *auth.DispatcherValidator, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New("pulsehook-server")
	}
	return &Server{
		deliverer:  d,
		repairer:   r,
		reader:     reader,
		cron:       cron,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Routes returns the API router. Health and metrics are mounted by the
// caller alongside it.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))

	r.With(s.dispatcher.Middleware).Post("/deliver", s.handleDeliver)
	r.Post("/retry-stuck", s.handleRetryStuck)
	r.Get("/deliveries/{id}", s.handleGetDelivery)
	return r
}

type deliverRequest struct {
	DeliveryID string `json:"deliveryId"`
}

type deliverResponse struct {
	Status     string `json:"status"`
	DeliveryID string `json:"deliveryId"`
	Attempt    int    `json:"attempt,omitempty"`
	LatencyMS  int64  `json:"latencyMs,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeliveryID == "" {
		writeError(w, http.StatusBadRequest, "deliveryId is required")
		return
	}

	res, err := s.deliverer.Deliver(r.Context(), req.DeliveryID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "delivery not found")
		return
	case errors.Is(err, worker.ErrConflict):
		writeError(w, http.StatusConflict, "delivery already in flight")
		return
	case err != nil:
		s.logger.WithContext(r.Context()).WithDelivery(req.DeliveryID).WithError(err).Error("deliver failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Pre-flight rejections surface as 400s; the terminal state was
	// already written before the worker returned.
	switch res.Reject {
	case worker.RejectInsecureURL:
		writeError(w, http.StatusBadRequest, "https required")
		return
	case worker.RejectPayloadTooLarge:
		writeError(w, http.StatusBadRequest, "payload too large")
		return
	}

	writeJSON(w, http.StatusOK, deliverResponse{
		Status:     res.Outcome,
		DeliveryID: res.DeliveryID,
		Attempt:    res.Attempt,
		LatencyMS:  res.LatencyMS,
		StatusCode: res.StatusCode,
		Error:      res.Error,
	})
}

type retryStuckRequest struct {
	MaxAgeMS int64 `json:"maxAgeMs"`
}

func (s *Server) handleRetryStuck(w http.ResponseWriter, r *http.Request) {
	if s.cron == nil || !s.cron.Authorize(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req retryStuckRequest
	if r.Body != nil {
		// Body is optional; a missing or empty one uses the default age.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	maxAge := time.Duration(req.MaxAgeMS) * time.Millisecond

	res, err := s.repairer.Sweep(r.Context(), time.Now(), maxAge)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("sweep failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.reader.GetDelivery(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "delivery not found")
		return
	}
	if err != nil {
		s.logger.WithContext(r.Context()).WithDelivery(id).WithError(err).Error("get delivery failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
