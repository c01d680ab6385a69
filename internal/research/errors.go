package research

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound: unknown plan, job or question.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: the plan is not PROPOSED.
	ErrInvalidState = errors.New("invalid plan state")
	// ErrPreconditionFailed: the owning job has not completed.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrInvalidRequest: the request is missing required input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrExecutionFailure matches every *ExecutionError.
	ErrExecutionFailure = errors.New("execution failed")
)

// ExecutionError is an unexpected failure after a plan was claimed. The plan
// is FAILED by the time the caller sees it.
type ExecutionError struct {
	PlanID uuid.UUID
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("micro-research plan %s failed: %v", e.PlanID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionFailure }

func truncateMessage(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
