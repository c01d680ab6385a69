package constants

// Activity and workflow names used for worker registration and schedules.
const (
	ExecutePlanActivity     = "ExecuteMicroResearchPlan"
	SweepStalePlansActivity = "SweepStaleMicroResearchPlans"
	PurgeExpiredActivity    = "PurgeExpiredMicroResearch"

	ExecutePlanWorkflow     = "ExecutePlanWorkflow"
	SweepStalePlansWorkflow = "SweepStalePlansWorkflow"
	RetentionWorkflow       = "RetentionWorkflow"
)

// Non-retryable application error types surfaced by activities.
const (
	ErrTypeNotFound           = "NotFound"
	ErrTypeInvalidState       = "InvalidState"
	ErrTypePreconditionFailed = "PreconditionFailed"
	ErrTypeExecutionFailure   = "ExecutionFailure"
)
