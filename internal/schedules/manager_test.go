package schedules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/constants"
)

type fakeHandle struct {
	client.ScheduleHandle
	updated *client.ScheduleUpdate
}

func (h *fakeHandle) Update(_ context.Context, opts client.ScheduleUpdateOptions) error {
	u, err := opts.DoUpdate(client.ScheduleUpdateInput{})
	h.updated = u
	return err
}

type fakeScheduleClient struct {
	created   []client.ScheduleOptions
	createErr error
	handle    *fakeHandle
}

func (f *fakeScheduleClient) Create(_ context.Context, opts client.ScheduleOptions) (client.ScheduleHandle, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, opts)
	return f.handle, nil
}

func (f *fakeScheduleClient) GetHandle(context.Context, string) client.ScheduleHandle {
	return f.handle
}

func TestValidate(t *testing.T) {
	m := NewManager(&fakeScheduleClient{}, "microresearch", 5, nil)
	now := time.Date(2026, 1, 1, 10, 2, 0, 0, time.UTC)

	next, err := m.Validate("*/5 * * * *", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC), next)

	_, err = m.Validate("* * * * *", "UTC", now)
	assert.ErrorIs(t, err, ErrIntervalTooShort)

	_, err = m.Validate("not a cron", "UTC", now)
	assert.ErrorIs(t, err, ErrInvalidCronExpression)

	_, err = m.Validate("0 3 * * *", "Mars/Olympus", now)
	assert.ErrorIs(t, err, ErrInvalidTimezone)
}

func TestEnsureDefaultsCreates(t *testing.T) {
	fc := &fakeScheduleClient{handle: &fakeHandle{}}
	m := NewManager(fc, "microresearch", 1, nil)

	err := m.EnsureDefaults(context.Background(), Config{SweepCron: "*/5 * * * *", RetentionCron: "0 3 * * *"})
	require.NoError(t, err)
	require.Len(t, fc.created, 2)

	sweep := fc.created[0]
	assert.Equal(t, SweepScheduleID, sweep.ID)
	assert.Equal(t, []string{"*/5 * * * *"}, sweep.Spec.CronExpressions)
	assert.Equal(t, "UTC", sweep.Spec.TimeZoneName)
	action, ok := sweep.Action.(*client.ScheduleWorkflowAction)
	require.True(t, ok)
	assert.Equal(t, constants.SweepStalePlansWorkflow, action.Workflow)
	assert.Equal(t, "microresearch", action.TaskQueue)

	assert.Equal(t, RetentionScheduleID, fc.created[1].ID)
}

func TestEnsureUpdatesExisting(t *testing.T) {
	h := &fakeHandle{}
	fc := &fakeScheduleClient{createErr: temporal.ErrScheduleAlreadyRunning, handle: h}
	m := NewManager(fc, "microresearch", 0, nil)

	err := m.Ensure(context.Background(), Spec{ID: SweepScheduleID, Workflow: constants.SweepStalePlansWorkflow, Cron: "*/10 * * * *"})
	require.NoError(t, err)
	require.NotNil(t, h.updated)
	assert.Equal(t, []string{"*/10 * * * *"}, h.updated.Schedule.Spec.CronExpressions)
}

func TestEnsureRejectsBadCronBeforeCallingTemporal(t *testing.T) {
	fc := &fakeScheduleClient{createErr: errors.New("should not be called")}
	m := NewManager(fc, "microresearch", 0, nil)

	err := m.EnsureDefaults(context.Background(), Config{SweepCron: "bad", RetentionCron: "also bad"})
	assert.ErrorIs(t, err, ErrInvalidCronExpression)
	assert.Empty(t, fc.created)
}
