package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/scout"
)

const (
	defaultExecutionLimit = 20
	maxExecutionLimit     = 100
)

// ScoutService is the scout registry.
type ScoutService interface {
	Create(ctx context.Context, userID string, in domain.ScoutInput) (*domain.Scout, error)
	Get(ctx context.Context, id, userID string) (*domain.Scout, error)
	List(ctx context.Context, userID string) ([]domain.Scout, error)
	Update(ctx context.Context, id, userID string, in domain.ScoutInput) (*domain.Scout, error)
	Delete(ctx context.Context, id, userID string) error
}

// ScoutRunner executes and dry-runs scouts.
type ScoutRunner interface {
	Execute(ctx context.Context, scoutID, userID string, opts scout.Options) (*scout.Result, error)
	DryRun(ctx context.Context, scoutID, userID string) (*scout.TestResult, error)
}

// ExecutionReader reads execution history.
type ExecutionReader interface {
	GetByID(ctx context.Context, id, userID string) (*domain.Execution, error)
	ListByScout(ctx context.Context, scoutID, userID string, limit, offset int) ([]domain.Execution, int, error)
}

// ExecutionUnits lists the units an execution produced.
type ExecutionUnits interface {
	ListByExecution(ctx context.Context, executionID, userID string) ([]domain.InformationUnit, error)
}

// ScoutHandler serves scouts and their executions.
type ScoutHandler struct {
	scouts     ScoutService
	runner     ScoutRunner
	executions ExecutionReader
	units      ExecutionUnits
}

// NewScoutHandler creates a ScoutHandler.
func NewScoutHandler(scouts ScoutService, runner ScoutRunner, executions ExecutionReader, units ExecutionUnits) *ScoutHandler {
	return &ScoutHandler{scouts: scouts, runner: runner, executions: executions, units: units}
}

// Create handles POST /api/v1/scouts.
func (h *ScoutHandler) Create(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var in domain.ScoutInput
	if !bindJSON(c, &in) {
		return
	}

	created, err := h.scouts.Create(c.Request.Context(), user, in)
	if err != nil {
		respondError(c, err, "failed to create scout")
		return
	}
	respondData(c, http.StatusCreated, created)
}

// List handles GET /api/v1/scouts.
func (h *ScoutHandler) List(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	scouts, err := h.scouts.List(c.Request.Context(), user)
	if err != nil {
		respondError(c, err, "failed to list scouts")
		return
	}
	respondData(c, http.StatusOK, scouts)
}

// Get handles GET /api/v1/scouts/:id.
func (h *ScoutHandler) Get(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	found, err := h.scouts.Get(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		respondError(c, err, "failed to load scout")
		return
	}
	respondData(c, http.StatusOK, found)
}

// Update handles PATCH /api/v1/scouts/:id.
func (h *ScoutHandler) Update(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var in domain.ScoutInput
	if !bindJSON(c, &in) {
		return
	}

	updated, err := h.scouts.Update(c.Request.Context(), c.Param("id"), user, in)
	if err != nil {
		respondError(c, err, "failed to update scout")
		return
	}
	respondData(c, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/scouts/:id.
func (h *ScoutHandler) Delete(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	if err := h.scouts.Delete(c.Request.Context(), c.Param("id"), user); err != nil {
		respondError(c, err, "failed to delete scout")
		return
	}
	c.Status(http.StatusNoContent)
}

type runRequest struct {
	ExecutionID      string `json:"execution_id"`
	SkipNotification bool   `json:"skip_notification"`
	ExtractUnits     *bool  `json:"extract_units"`
}

// Run executes the pipeline. Completed and failed runs both answer 200; the
// outcome is in the result status.
// Run handles POST /api/v1/scouts/:id/run.
func (h *ScoutHandler) Run(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondMessage(c, http.StatusBadRequest, CodeValidation, "invalid request body: "+err.Error())
		return
	}

	opts := scout.Options{
		ExecutionID:      req.ExecutionID,
		SkipNotification: req.SkipNotification,
		ExtractUnits:     req.ExtractUnits == nil || *req.ExtractUnits,
	}

	res, err := h.runner.Execute(c.Request.Context(), c.Param("id"), user, opts)
	if err != nil {
		respondError(c, err, "scout execution failed")
		return
	}
	respondData(c, http.StatusOK, res)
}

// Test handles POST /api/v1/scouts/:id/test, a dry run that persists nothing.
func (h *ScoutHandler) Test(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	res, err := h.runner.DryRun(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		respondError(c, err, "scout test failed")
		return
	}
	respondData(c, http.StatusOK, res)
}

// Executions handles GET /api/v1/scouts/:id/executions.
func (h *ScoutHandler) Executions(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	scoutID := c.Param("id")

	if _, err := h.scouts.Get(ctx, scoutID, user); err != nil {
		respondError(c, err, "failed to load scout")
		return
	}

	limit := clampInt(queryInt(c, "limit", defaultExecutionLimit), defaultExecutionLimit, maxExecutionLimit)
	offset := max(queryInt(c, "offset", 0), 0)

	executions, total, err := h.executions.ListByScout(ctx, scoutID, user, limit, offset)
	if err != nil {
		respondError(c, err, "failed to list executions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": executions,
		"meta": gin.H{"total": total, "limit": limit, "offset": offset},
	})
}

// Execution returns one execution with the units it extracted.
// Execution handles GET /api/v1/executions/:id.
func (h *ScoutHandler) Execution(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	execution, err := h.executions.GetByID(ctx, c.Param("id"), user)
	if err != nil {
		respondError(c, err, "failed to load execution")
		return
	}
	units, err := h.units.ListByExecution(ctx, execution.ID, user)
	if err != nil {
		respondError(c, err, "failed to load execution units")
		return
	}
	respondData(c, http.StatusOK, gin.H{"execution": execution, "units": units})
}

func clampInt(v, def, maxV int) int {
	if v <= 0 {
		return def
	}
	return min(v, maxV)
}
