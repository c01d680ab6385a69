package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/research"
)

const maxBodyBytes = 1 << 20

// Proposer is the propose side of the subsystem.
type Proposer interface {
	DetectGap(ctx context.Context, req research.ProposeRequest) (gap.Result, error)
	Propose(ctx context.Context, req research.ProposeRequest) (*research.ProposeResult, error)
}

// PlanStore reads and cancels plans.
type PlanStore interface {
	GetPlan(ctx context.Context, planID uuid.UUID) (*db.Plan, error)
	Cancel(ctx context.Context, planID uuid.UUID) error
}

// Handler serves the micro-research JSON API.
type Handler struct {
	proposer       Proposer
	plans          PlanStore
	runner         PlanRunner
	requestTimeout time.Duration
	logger         *zap.Logger
}

// NewHandler wires the API.
func NewHandler(proposer Proposer, plans PlanStore, runner PlanRunner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{proposer: proposer, plans: plans, runner: runner, requestTimeout: 30 * time.Minute, logger: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /micro-research/gap", h.handleGap)
	mux.HandleFunc("POST /micro-research/plans", h.handlePropose)
	mux.HandleFunc("GET /micro-research/plans/{id}", h.handleGetPlan)
	mux.HandleFunc("POST /micro-research/plans/{id}/execute", h.handleExecute)
	mux.HandleFunc("POST /micro-research/plans/{id}/cancel", h.handleCancel)
}

// handleGap: POST /micro-research/gap
func (h *Handler) handleGap(w http.ResponseWriter, r *http.Request) {
	var req research.ProposeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.proposer.DetectGap(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// handlePropose: POST /micro-research/plans. 201 when a plan was stored,
// 200 with a null plan when no gap was found.
func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req research.ProposeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.JobID == uuid.Nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "job_id required"})
		return
	}
	res, err := h.proposer.Propose(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	code := http.StatusOK
	if res.Plan != nil {
		code = http.StatusCreated
	}
	h.writeJSON(w, code, res)
}

// handleGetPlan: GET /micro-research/plans/{id}
func (h *Handler) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}
	plan, err := h.plans.GetPlan(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// handleExecute: POST /micro-research/plans/{id}/execute. Blocks until the
// plan reaches a terminal state.
func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()
	res, err := h.runner.Run(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// handleCancel: POST /micro-research/plans/{id}/cancel
func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}
	if err := h.plans.Cancel(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"plan_id": id, "status": db.PlanCancelled})
}

type errorBody struct {
	Error  string `json:"error"`
	PlanID string `json:"plan_id,omitempty"`
}

func (h *Handler) planID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid plan id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

// writeError maps the research error taxonomy onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var execErr *research.ExecutionError
	switch {
	case errors.Is(err, research.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, research.ErrInvalidState):
		h.writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, research.ErrPreconditionFailed):
		h.writeJSON(w, http.StatusPreconditionFailed, errorBody{Error: err.Error()})
	case errors.Is(err, research.ErrInvalidRequest):
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &execErr):
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: execErr.Err.Error(), PlanID: execErr.PlanID.String()})
	case errors.Is(err, context.DeadlineExceeded):
		h.writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "timed out waiting for plan"})
	default:
		h.logger.Error("Micro-research request failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", zap.Error(err))
	}
}
