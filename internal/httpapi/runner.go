package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/research"
)

// PlanRunner executes a plan and waits for its terminal state.
type PlanRunner interface {
	Run(ctx context.Context, planID uuid.UUID) (*activities.ExecutePlanResult, error)
}

// Executor is the in-process plan executor.
type Executor interface {
	Execute(ctx context.Context, planID uuid.UUID) (*research.ExecuteResult, error)
}

// InlineRunner executes in the request goroutine. Used when no Temporal
// client is configured.
type InlineRunner struct {
	Executor Executor
}

func (r InlineRunner) Run(ctx context.Context, planID uuid.UUID) (*activities.ExecutePlanResult, error) {
	res, err := r.Executor.Execute(ctx, planID)
	if err != nil {
		return nil, err
	}
	return &activities.ExecutePlanResult{
		PlanID:           res.PlanID,
		Status:           res.Status,
		ResultQAID:       res.ResultQAID,
		CreatedSourceIDs: res.CreatedSourceIDs,
		ExcerptCount:     res.ExcerptCount,
		Usage:            res.Usage,
	}, nil
}

// SwitchRunner delegates to whichever runner was set last. main starts with
// an InlineRunner and swaps in a WorkflowRunner once Temporal is reachable.
type SwitchRunner struct {
	current atomic.Pointer[PlanRunner]
}

// NewSwitchRunner starts with initial.
func NewSwitchRunner(initial PlanRunner) *SwitchRunner {
	s := &SwitchRunner{}
	s.Set(initial)
	return s
}

// Set replaces the delegate.
func (s *SwitchRunner) Set(r PlanRunner) { s.current.Store(&r) }

func (s *SwitchRunner) Run(ctx context.Context, planID uuid.UUID) (*activities.ExecutePlanResult, error) {
	return (*s.current.Load()).Run(ctx, planID)
}

// WorkflowStarter is the part of client.Client the workflow runner uses.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// WorkflowRunner starts ExecutePlanWorkflow with a plan-derived id, so a
// second request for the same plan cannot start another run.
type WorkflowRunner struct {
	Client    WorkflowStarter
	TaskQueue string
}

// WorkflowID is the Temporal workflow id for a plan.
func WorkflowID(planID uuid.UUID) string {
	return "micro-research-plan-" + planID.String()
}

func (r WorkflowRunner) Run(ctx context.Context, planID uuid.UUID) (*activities.ExecutePlanResult, error) {
	run, err := r.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    WorkflowID(planID),
		TaskQueue:             r.TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,

		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, constants.ExecutePlanWorkflow, activities.ExecutePlanInput{PlanID: planID})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil, fmt.Errorf("%w: plan already executed", research.ErrInvalidState)
		}
		return nil, fmt.Errorf("failed to start plan workflow: %w", err)
	}
	var result activities.ExecutePlanResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fromWorkflowError(planID, err)
	}
	return &result, nil
}

// fromWorkflowError maps activity application error types back onto the
// research error taxonomy.
func fromWorkflowError(planID uuid.UUID, err error) error {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return &research.ExecutionError{PlanID: planID, Err: err}
	}
	switch appErr.Type() {
	case constants.ErrTypeNotFound:
		return fmt.Errorf("%w: %s", research.ErrNotFound, appErr.Message())
	case constants.ErrTypeInvalidState:
		return fmt.Errorf("%w: %s", research.ErrInvalidState, appErr.Message())
	case constants.ErrTypePreconditionFailed:
		return fmt.Errorf("%w: %s", research.ErrPreconditionFailed, appErr.Message())
	}
	return &research.ExecutionError{PlanID: planID, Err: errors.New(appErr.Message())}
}
