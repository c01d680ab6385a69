package interceptors

import (
	"context"
	"net/http"

	"go.temporal.io/sdk/activity"
)

const (
	HeaderWorkflowID = "X-Workflow-ID"
	HeaderRunID      = "X-Run-ID"
)

// ActivityHeaders adds the workflow and run ids to outgoing HTTP requests
// made from inside a Temporal activity. Requests made elsewhere (inline
// execution, the CLI, tests) pass through untouched.
type ActivityHeaders struct {
	base http.RoundTripper
	info func(ctx context.Context) (workflowID, runID string, ok bool)
}

// NewActivityHeaders wraps base, or http.DefaultTransport when nil.
func NewActivityHeaders(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &ActivityHeaders{base: base, info: activityInfo}
}

// activityInfo reads the execution from ctx. GetInfo panics outside an
// activity context.
func activityInfo(ctx context.Context) (wfID, runID string, ok bool) {
	defer func() {
		if recover() != nil {
			wfID, runID, ok = "", "", false
		}
	}()
	info := activity.GetInfo(ctx)
	if info.WorkflowExecution.ID == "" {
		return "", "", false
	}
	return info.WorkflowExecution.ID, info.WorkflowExecution.RunID, true
}

// RoundTrip implements http.RoundTripper.
func (a *ActivityHeaders) RoundTrip(req *http.Request) (*http.Response, error) {
	if wfID, runID, ok := a.info(req.Context()); ok {
		req = req.Clone(req.Context())
		req.Header.Set(HeaderWorkflowID, wfID)
		req.Header.Set(HeaderRunID, runID)
	}
	return a.base.RoundTrip(req)
}
