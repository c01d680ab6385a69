package registry

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/workflows"
)

// Registrar is the subset of worker.Worker used for registration. The
// workflow test environment satisfies it too.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

var _ Registrar = (worker.Worker)(nil)

// Registry registers the micro-research workflows and activities.
type Registry struct {
	acts   *activities.Activities
	logger *zap.Logger
}

// New creates a registry instance
func New(acts *activities.Activities, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{acts: acts, logger: logger}
}

// RegisterWorkflows registers every workflow under its constant name.
func (r *Registry) RegisterWorkflows(w Registrar) {
	w.RegisterWorkflowWithOptions(workflows.ExecutePlanWorkflow, workflow.RegisterOptions{Name: constants.ExecutePlanWorkflow})
	w.RegisterWorkflowWithOptions(workflows.SweepStalePlansWorkflow, workflow.RegisterOptions{Name: constants.SweepStalePlansWorkflow})
	w.RegisterWorkflowWithOptions(workflows.RetentionWorkflow, workflow.RegisterOptions{Name: constants.RetentionWorkflow})
	r.logger.Info("Registered micro-research workflows")
}

// RegisterActivities registers the receiver methods under their constant names.
func (r *Registry) RegisterActivities(w Registrar) {
	w.RegisterActivityWithOptions(r.acts.ExecutePlan, activity.RegisterOptions{Name: constants.ExecutePlanActivity})
	w.RegisterActivityWithOptions(r.acts.SweepStalePlans, activity.RegisterOptions{Name: constants.SweepStalePlansActivity})
	w.RegisterActivityWithOptions(r.acts.PurgeExpired, activity.RegisterOptions{Name: constants.PurgeExpiredActivity})
	r.logger.Info("Registered micro-research activities")
}

// Register does both.
func (r *Registry) Register(w Registrar) {
	r.RegisterWorkflows(w)
	r.RegisterActivities(w)
}
