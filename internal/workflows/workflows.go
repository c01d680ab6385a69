package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/constants"
)

// ExecutePlanTimeout bounds one plan execution. It stays below the stale
// sweep timeout so the sweeper only ever sees crashed workers.
const ExecutePlanTimeout = 25 * time.Minute

// ExecutePlanWorkflow runs a confirmed plan exactly once.
func ExecutePlanWorkflow(ctx workflow.Context, input activities.ExecutePlanInput) (*activities.ExecutePlanResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting ExecutePlanWorkflow", "plan_id", input.PlanID.String())

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: ExecutePlanTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
			NonRetryableErrorTypes: []string{
				constants.ErrTypeNotFound,
				constants.ErrTypeInvalidState,
				constants.ErrTypePreconditionFailed,
				constants.ErrTypeExecutionFailure,
			},
		},
	})

	var result activities.ExecutePlanResult
	if err := workflow.ExecuteActivity(ctx, constants.ExecutePlanActivity, input).Get(ctx, &result); err != nil {
		logger.Error("Plan execution failed", "plan_id", input.PlanID.String(), "error", err)
		return nil, err
	}
	logger.Info("ExecutePlanWorkflow finished", "plan_id", input.PlanID.String(), "status", string(result.Status))
	return &result, nil
}

// SweepStalePlansWorkflow is started by the sweep schedule.
func SweepStalePlansWorkflow(ctx workflow.Context, input activities.SweepInput) (*activities.SweepResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 3,
		},
	})
	var result activities.SweepResult
	if err := workflow.ExecuteActivity(ctx, constants.SweepStalePlansActivity, input).Get(ctx, &result); err != nil {
		workflow.GetLogger(ctx).Error("Stale plan sweep failed", "error", err)
		return nil, err
	}
	return &result, nil
}

// RetentionWorkflow is started by the retention schedule.
func RetentionWorkflow(ctx workflow.Context, input activities.PurgeInput) (*activities.PurgeResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumAttempts: 3,
		},
	})
	var result activities.PurgeResult
	if err := workflow.ExecuteActivity(ctx, constants.PurgeExpiredActivity, input).Get(ctx, &result); err != nil {
		workflow.GetLogger(ctx).Error("Retention purge failed", "error", err)
		return nil, err
	}
	workflow.GetLogger(ctx).Info("Retention purge complete", "deleted", result.Deleted)
	return &result, nil
}
