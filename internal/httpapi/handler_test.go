package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/research"
)

type fakeProposer struct {
	gap  gap.Result
	plan *db.Plan
	err  error
	got  research.ProposeRequest
}

func (f *fakeProposer) DetectGap(_ context.Context, req research.ProposeRequest) (gap.Result, error) {
	f.got = req
	return f.gap, f.err
}

func (f *fakeProposer) Propose(_ context.Context, req research.ProposeRequest) (*research.ProposeResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &research.ProposeResult{Gap: f.gap, Plan: f.plan}, nil
}

type fakePlans struct {
	plans     map[uuid.UUID]*db.Plan
	cancelErr error
}

func (f *fakePlans) GetPlan(_ context.Context, id uuid.UUID) (*db.Plan, error) {
	if p, ok := f.plans[id]; ok {
		return p, nil
	}
	return nil, research.ErrNotFound
}

func (f *fakePlans) Cancel(context.Context, uuid.UUID) error { return f.cancelErr }

type fakeRunner struct {
	res *activities.ExecutePlanResult
	err error
}

func (f *fakeRunner) Run(context.Context, uuid.UUID) (*activities.ExecutePlanResult, error) {
	return f.res, f.err
}

type apiFixture struct {
	proposer *fakeProposer
	plans    *fakePlans
	runner   *fakeRunner
	mux      *http.ServeMux
}

func newAPIFixture() *apiFixture {
	f := &apiFixture{
		proposer: &fakeProposer{},
		plans:    &fakePlans{plans: map[uuid.UUID]*db.Plan{}},
		runner:   &fakeRunner{},
		mux:      http.NewServeMux(),
	}
	NewHandler(f.proposer, f.plans, f.runner, nil).RegisterRoutes(f.mux)
	return f
}

func (f *apiFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestProposeEndpoint(t *testing.T) {
	f := newAPIFixture()
	jobID := uuid.New()
	f.proposer.gap = gap.Result{ShouldPropose: true, Intent: gap.IntentCustomers}
	f.proposer.plan = &db.Plan{ID: uuid.New(), JobID: jobID, Status: db.PlanProposed}

	rec := f.do(http.MethodPost, "/micro-research/plans", map[string]interface{}{
		"job_id":   jobID,
		"question": "Who are the customers?",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, jobID, f.proposer.got.JobID)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PROPOSED", body["plan"].(map[string]interface{})["status"])

	f.proposer.plan = nil
	rec = f.do(http.MethodPost, "/micro-research/plans", map[string]interface{}{"job_id": jobID, "question": "q"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/micro-research/plans", map[string]interface{}{"question": "q"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGapEndpoint(t *testing.T) {
	f := newAPIFixture()
	f.proposer.gap = gap.Result{ShouldPropose: false, DetectionMethod: gap.MethodComprehensiveSkip}
	rec := f.do(http.MethodPost, "/micro-research/gap", map[string]interface{}{"job_id": uuid.New(), "question": "q"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got gap.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, gap.MethodComprehensiveSkip, got.DetectionMethod)
}

func TestGetPlanEndpoint(t *testing.T) {
	f := newAPIFixture()
	p := &db.Plan{ID: uuid.New(), Status: db.PlanNoChange}
	f.plans.plans[p.ID] = p

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/micro-research/plans/"+p.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/micro-research/plans/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/micro-research/plans/not-a-uuid", nil).Code)
}

func TestExecuteErrorMapping(t *testing.T) {
	planID := uuid.New()
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: plan is RUNNING", research.ErrInvalidState), http.StatusConflict},
		{research.ErrNotFound, http.StatusNotFound},
		{research.ErrPreconditionFailed, http.StatusPreconditionFailed},
		{&research.ExecutionError{PlanID: planID, Err: errors.New("reanswer down")}, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		f := newAPIFixture()
		f.runner.err = tc.err
		rec := f.do(http.MethodPost, "/micro-research/plans/"+planID.String()+"/execute", nil)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}

	f := newAPIFixture()
	f.runner.err = &research.ExecutionError{PlanID: planID, Err: errors.New("reanswer down")}
	rec := f.do(http.MethodPost, "/micro-research/plans/"+planID.String()+"/execute", nil)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "reanswer down", body.Error)
	assert.Equal(t, planID.String(), body.PlanID)
}

func TestExecuteSuccessAndCancel(t *testing.T) {
	f := newAPIFixture()
	planID := uuid.New()
	qa := uuid.New()
	f.runner.res = &activities.ExecutePlanResult{PlanID: planID, Status: db.PlanCompleted, ResultQAID: &qa}

	rec := f.do(http.MethodPost, "/micro-research/plans/"+planID.String()+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got activities.ExecutePlanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, qa, *got.ResultQAID)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/micro-research/plans/"+planID.String()+"/cancel", nil).Code)
	f.plans.cancelErr = fmt.Errorf("%w: plan is COMPLETED", research.ErrInvalidState)
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/micro-research/plans/"+planID.String()+"/cancel", nil).Code)
}

type fakeRun struct {
	client.WorkflowRun
	err error
	res activities.ExecutePlanResult
}

func (r *fakeRun) Get(_ context.Context, valuePtr interface{}) error {
	if r.err != nil {
		return r.err
	}
	*(valuePtr.(*activities.ExecutePlanResult)) = r.res
	return nil
}

type fakeStarter struct {
	opts client.StartWorkflowOptions
	run  *fakeRun
	err  error
}

func (s *fakeStarter) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, _ interface{}, _ ...interface{}) (client.WorkflowRun, error) {
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.run, nil
}

func TestWorkflowRunner(t *testing.T) {
	planID := uuid.New()

	starter := &fakeStarter{run: &fakeRun{res: activities.ExecutePlanResult{PlanID: planID, Status: db.PlanNoChange}}}
	res, err := WorkflowRunner{Client: starter, TaskQueue: "microresearch"}.Run(context.Background(), planID)
	require.NoError(t, err)
	assert.Equal(t, db.PlanNoChange, res.Status)
	assert.Equal(t, WorkflowID(planID), starter.opts.ID)
	assert.Equal(t, "microresearch", starter.opts.TaskQueue)
	assert.True(t, starter.opts.WorkflowExecutionErrorWhenAlreadyStarted)

	starter = &fakeStarter{err: serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "")}
	_, err = WorkflowRunner{Client: starter}.Run(context.Background(), planID)
	assert.ErrorIs(t, err, research.ErrInvalidState)

	appErr := temporal.NewNonRetryableApplicationError("job is RUNNING", constants.ErrTypePreconditionFailed, nil)
	starter = &fakeStarter{run: &fakeRun{err: appErr}}
	_, err = WorkflowRunner{Client: starter}.Run(context.Background(), planID)
	assert.ErrorIs(t, err, research.ErrPreconditionFailed)

	appErr = temporal.NewNonRetryableApplicationError("reanswer down", constants.ErrTypeExecutionFailure, nil)
	starter = &fakeStarter{run: &fakeRun{err: appErr}}
	_, err = WorkflowRunner{Client: starter}.Run(context.Background(), planID)
	assert.ErrorIs(t, err, research.ErrExecutionFailure)
}

func TestSwitchRunner(t *testing.T) {
	first := &fakeRunner{res: &activities.ExecutePlanResult{Status: db.PlanNoChange}}
	second := &fakeRunner{res: &activities.ExecutePlanResult{Status: db.PlanCompleted}}
	sr := NewSwitchRunner(first)

	res, err := sr.Run(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, db.PlanNoChange, res.Status)

	sr.Set(second)
	res, err = sr.Run(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, db.PlanCompleted, res.Status)
}
