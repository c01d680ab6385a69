package schedules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/constants"
)

var (
	ErrInvalidCronExpression = errors.New("invalid cron expression")
	ErrIntervalTooShort      = errors.New("cron interval too short")
	ErrInvalidTimezone       = errors.New("invalid timezone")
)

// Schedule ids are stable so restarts update instead of duplicating.
const (
	SweepScheduleID     = "microresearch-sweep-stale-plans"
	RetentionScheduleID = "microresearch-retention"
)

// ScheduleClient is the part of client.ScheduleClient the manager uses.
type ScheduleClient interface {
	Create(ctx context.Context, options client.ScheduleOptions) (client.ScheduleHandle, error)
	GetHandle(ctx context.Context, scheduleID string) client.ScheduleHandle
}

// Spec describes one recurring workflow.
type Spec struct {
	ID       string
	Workflow string
	Cron     string
	Timezone string
	Args     []interface{}
}

// Config holds the recurring jobs and the minimum allowed cron interval.
type Config struct {
	SweepCron          string
	RetentionCron      string
	Timezone           string
	MinIntervalMinutes int
}

// Manager keeps the sweeper and retention schedules in Temporal in sync with
// configuration.
type Manager struct {
	client     ScheduleClient
	taskQueue  string
	minMinutes int
	logger     *zap.Logger
	cronParser cron.Parser
}

// NewManager creates a new schedule manager
func NewManager(sc ScheduleClient, taskQueue string, minIntervalMinutes int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:     sc,
		taskQueue:  taskQueue,
		minMinutes: minIntervalMinutes,
		logger:     logger,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Validate checks the cron expression, interval floor and timezone, and
// returns the next run time.
func (m *Manager) Validate(expr, timezone string, now time.Time) (time.Time, error) {
	sched, err := m.cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidCronExpression, err)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTimezone, timezone)
	}
	next1 := sched.Next(now.In(tz))
	if m.minMinutes > 0 {
		next2 := sched.Next(next1)
		if next2.Sub(next1) < time.Duration(m.minMinutes)*time.Minute {
			return time.Time{}, fmt.Errorf("%w: must be at least %d minutes", ErrIntervalTooShort, m.minMinutes)
		}
	}
	return next1, nil
}

// Ensure creates the schedule or, when it already exists, replaces its spec
// and action.
func (m *Manager) Ensure(ctx context.Context, spec Spec) error {
	next, err := m.Validate(spec.Cron, spec.Timezone, time.Now())
	if err != nil {
		return err
	}
	tz := spec.Timezone
	if tz == "" {
		tz = "UTC"
	}
	schedSpec := client.ScheduleSpec{CronExpressions: []string{spec.Cron}, TimeZoneName: tz}
	action := &client.ScheduleWorkflowAction{
		Workflow:  spec.Workflow,
		TaskQueue: m.taskQueue,
		Args:      spec.Args,
	}

	_, err = m.client.Create(ctx, client.ScheduleOptions{
		ID:      spec.ID,
		Spec:    schedSpec,
		Action:  action,
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	})
	switch {
	case err == nil:
		m.logger.Info("Schedule created",
			zap.String("schedule_id", spec.ID),
			zap.String("cron", spec.Cron),
			zap.Time("next_run", next),
		)
		return nil
	case !isAlreadyExists(err):
		return fmt.Errorf("failed to create Temporal schedule %s: %w", spec.ID, err)
	}

	handle := m.client.GetHandle(ctx, spec.ID)
	err = handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			s := in.Description.Schedule
			s.Spec = &schedSpec
			s.Action = action
			return &client.ScheduleUpdate{Schedule: &s}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update Temporal schedule %s: %w", spec.ID, err)
	}
	m.logger.Info("Schedule updated",
		zap.String("schedule_id", spec.ID),
		zap.String("cron", spec.Cron),
		zap.Time("next_run", next),
	)
	return nil
}

// EnsureDefaults installs the stale-plan sweep and retention schedules.
func (m *Manager) EnsureDefaults(ctx context.Context, cfg Config) error {
	specs := []Spec{
		{
			ID:       SweepScheduleID,
			Workflow: constants.SweepStalePlansWorkflow,
			Cron:     cfg.SweepCron,
			Timezone: cfg.Timezone,
			Args:     []interface{}{activities.SweepInput{}},
		},
		{
			ID:       RetentionScheduleID,
			Workflow: constants.RetentionWorkflow,
			Cron:     cfg.RetentionCron,
			Timezone: cfg.Timezone,
			Args:     []interface{}{activities.PurgeInput{}},
		},
	}
	var errs []error
	for _, s := range specs {
		if err := m.Ensure(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isAlreadyExists(err error) bool {
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return true
	}
	var exists *serviceerror.AlreadyExists
	return errors.As(err, &exists)
}
