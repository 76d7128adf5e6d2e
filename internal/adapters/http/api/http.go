// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/raceday/internal/app"
	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	// CreatePlan stores a plan and queues its generation.
	CreatePlan(ctx context.Context, userID string, in model.GenerationInput) (*model.RacePlan, error)
	// Resume queues another run of a plan that is still generating.
	Resume(ctx context.Context, planID string) (*model.RacePlan, error)

	Plan(ctx context.Context, planID string) (*model.RacePlan, error)
	Status(ctx context.Context, planID string) (model.StatusReport, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	plansHandler  *PlansHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		plansHandler:  NewPlansHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", chain(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /plans", chain(s.plansHandler.HandleCreate, "plans_create"))
	mux.HandleFunc("GET /plans/{id}", chain(s.plansHandler.HandleGet, "plans_get"))
	mux.HandleFunc("GET /plans/{id}/status", chain(s.plansHandler.HandleStatus, "plans_status"))
	mux.HandleFunc("POST /plans/{id}/retry", chain(s.plansHandler.HandleRetry, "plans_retry"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service errors onto status codes. Causes of
// server-side failures are logged, not returned.
func writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInputInvalid):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
	case errors.Is(err, service.ErrNotGenerating):
		writeError(w, http.StatusConflict, "conflict", WrapKind(op, ErrConflict, err))
	case errors.Is(err, service.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", WrapKind(op, ErrQuota, err))
	case errors.Is(err, service.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	default:
		logger.Get().Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
	}
}
