package activities

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/research"
)

// Executor runs one plan to a terminal state.
type Executor interface {
	Execute(ctx context.Context, planID uuid.UUID) (*research.ExecuteResult, error)
}

// Sweeper reclaims stale RUNNING plans.
type Sweeper interface {
	Sweep(ctx context.Context, timeout time.Duration) (int, error)
}

// Purger deletes expired micro-research rows.
type Purger interface {
	PurgeExpired(ctx context.Context, days int, now time.Time) (map[string]int64, error)
}

// Settings returns the current stale timeout and retention window. It is a
// func so hot-reloaded values are seen by the next activity run.
type Settings func() (staleTimeout time.Duration, retentionDays int)

// Activities struct holds dependencies for activities
type Activities struct {
	executor Executor
	sweeper  Sweeper
	purger   Purger
	settings Settings
	logger   *zap.Logger
}

// NewActivities creates a new activities instance with dependencies
func NewActivities(executor Executor, sweeper Sweeper, purger Purger, settings Settings, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings == nil {
		settings = func() (time.Duration, int) { return 30 * time.Minute, 90 }
	}
	return &Activities{executor: executor, sweeper: sweeper, purger: purger, settings: settings, logger: logger}
}

// ExecutePlan runs one confirmed plan. Every error it returns is
// non-retryable: a plan executes at most once.
func (a *Activities) ExecutePlan(ctx context.Context, in ExecutePlanInput) (*ExecutePlanResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Executing micro-research plan", "plan_id", in.PlanID.String())

	res, err := a.executor.Execute(ctx, in.PlanID)
	if err != nil {
		logger.Warn("Micro-research plan did not complete", "plan_id", in.PlanID.String(), "error", err)
		return nil, classify(err)
	}
	logger.Info("Micro-research plan finished",
		"plan_id", in.PlanID.String(),
		"status", string(res.Status),
		"new_sources", len(res.CreatedSourceIDs),
	)
	return &ExecutePlanResult{
		PlanID:           res.PlanID,
		Status:           res.Status,
		ResultQAID:       res.ResultQAID,
		CreatedSourceIDs: res.CreatedSourceIDs,
		ExcerptCount:     res.ExcerptCount,
		Usage:            res.Usage,
	}, nil
}

// SweepStalePlans fails plans stuck in RUNNING.
func (a *Activities) SweepStalePlans(ctx context.Context, in SweepInput) (*SweepResult, error) {
	timeout, _ := a.settings()
	if in.TimeoutMinutes > 0 {
		timeout = time.Duration(in.TimeoutMinutes) * time.Minute
	}
	n, err := a.sweeper.Sweep(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		activity.GetLogger(ctx).Info("Reclaimed stale plans", "count", n, "timeout", timeout.String())
	}
	return &SweepResult{Reclaimed: n}, nil
}

// PurgeExpired applies the retention window.
func (a *Activities) PurgeExpired(ctx context.Context, in PurgeInput) (*PurgeResult, error) {
	_, days := a.settings()
	if in.Days > 0 {
		days = in.Days
	}
	deleted, err := a.purger.PurgeExpired(ctx, days, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	activity.GetLogger(ctx).Info("Purged expired micro-research rows", "days", days, "deleted", deleted)
	return &PurgeResult{Deleted: deleted}, nil
}

// classify converts research errors into Temporal application errors so the
// workflow and its caller can tell them apart.
func classify(err error) error {
	var errType string
	switch {
	case errors.Is(err, research.ErrNotFound):
		errType = constants.ErrTypeNotFound
	case errors.Is(err, research.ErrInvalidState):
		errType = constants.ErrTypeInvalidState
	case errors.Is(err, research.ErrPreconditionFailed):
		errType = constants.ErrTypePreconditionFailed
	default:
		errType = constants.ErrTypeExecutionFailure
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
}
