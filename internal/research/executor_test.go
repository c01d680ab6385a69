package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/connectors"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/reanswer"
)

const newsStep = "micro_exa_news_search_1"

type fakeRunner struct {
	payloads map[string]map[string]interface{}
	started  chan struct{}
	release  chan struct{}
	panicMsg string
}

func (f *fakeRunner) Run(ctx context.Context, steps []microplan.Step, _ microplan.Target) connectors.Result {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	res := connectors.Result{Payloads: map[string]map[string]interface{}{}}
	for _, s := range steps {
		p := f.payloads[s.Name]
		if p == nil {
			p = map[string]interface{}{}
		}
		res.Payloads[s.Name] = p
		res.Outcomes = append(res.Outcomes, connectors.StepOutcome{Name: s.Name, Connector: s.Connector})
	}
	return res
}

type fakeReanswerer struct {
	mu    sync.Mutex
	calls int
	err   error
	qaID  uuid.UUID
}

func (f *fakeReanswerer) Reanswer(_ context.Context, _ reanswer.Request) (*reanswer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &reanswer.Result{QAID: f.qaID, Model: "gpt-4o-mini", InputTokens: 1200, OutputTokens: 300}, nil
}

func exaPayload(items ...map[string]interface{}) map[string]interface{} {
	results := make([]interface{}, len(items))
	for i := range items {
		results[i] = items[i]
	}
	return map[string]interface{}{"results": results}
}

func item(url, text string) map[string]interface{} {
	return map[string]interface{}{"url": url, "title": "Result", "text": text}
}

type executorFixture struct {
	store    *memStore
	runner   *fakeRunner
	reanswer *fakeReanswerer
	exec     *Executor
	job      *db.Job
	qaID     uuid.UUID
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	store := newMemStore()
	job := store.addJob(db.JobStatusCompleted)
	runner := &fakeRunner{payloads: map[string]map[string]interface{}{}}
	re := &fakeReanswerer{qaID: uuid.New()}
	exec := NewExecutor(store, runner, re, ExecutorConfig{ErrorMessageChars: 40}, nil)
	return &executorFixture{store: store, runner: runner, reanswer: re, exec: exec, job: job, qaID: uuid.New()}
}

func (f *executorFixture) newPlan() *db.Plan {
	qa := f.qaID
	return f.store.addPlan(&db.Plan{
		JobID:    f.job.ID,
		QAID:     &qa,
		Question: "Who founded Acme Robotics?",
		Intent:   "founders",
		Steps: db.StepList{{
			Name:      newsStep,
			Connector: "exa",
			Params:    map[string]interface{}{"query": "Acme Robotics founders"},
		}},
	})
}

func TestExecuteCompletedIngestsNewSources(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.payloads[newsStep] = exaPayload(
		item("https://news.example/a", "Acme was founded by Jane Doe in 2015."),
		item("https://news.example/b", "Jane Doe previously worked at Initech."),
	)
	plan := f.newPlan()

	res, err := f.exec.Execute(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PlanCompleted, res.Status)
	assert.Len(t, res.CreatedSourceIDs, 2)
	require.NotNil(t, res.ResultQAID)
	assert.Equal(t, f.reanswer.qaID, *res.ResultQAID)
	assert.Equal(t, 1, f.reanswer.calls)
	assert.Greater(t, res.Usage.TotalCostUSD, 0.0)

	stored := f.store.plan(plan.ID)
	assert.Equal(t, db.PlanCompleted, stored.Status)
	assert.NotNil(t, stored.ConfirmedAt)
	assert.NotNil(t, stored.CompletedAt)
	assert.Len(t, stored.CreatedSourceIDs, 2)
	assert.Equal(t, f.reanswer.qaID, *stored.ResultQAID)

	steps := f.store.traceSteps()
	assert.Equal(t, []string{
		"micro_plan_confirmed",
		"micro_connectors:start",
		"micro_connectors:done",
		"micro_sources_ingested",
		"micro_reanswer:start",
		"micro_reanswer:done",
	}, steps)
}

func TestExecuteNoChangeSkipsReanswer(t *testing.T) {
	f := newExecutorFixture(t)
	f.store.addSource(f.job.ID, "https://news.example/a", "Acme was founded by Jane Doe in 2015.")
	f.runner.payloads[newsStep] = exaPayload(item("https://news.example/a", "Acme was founded by Jane Doe in 2015."))
	plan := f.newPlan()

	first, err := f.exec.Execute(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PlanCompleted, first.Status, "a new excerpt on a known URL counts as new evidence")
	assert.Equal(t, 1, first.ExcerptCount)
	assert.Empty(t, first.CreatedSourceIDs)

	second := f.newPlan()
	res, err := f.exec.Execute(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PlanNoChange, res.Status)
	assert.Equal(t, 0, res.ExcerptCount)
	require.NotNil(t, res.ResultQAID)
	assert.Equal(t, f.qaID, *res.ResultQAID)
	assert.Equal(t, 1, f.reanswer.calls)

	stored := f.store.plan(second.ID)
	assert.Equal(t, db.PlanNoChange, stored.Status)
	assert.Nil(t, stored.ResultQAID)
	assert.Contains(t, f.store.traceSteps(), "micro_no_change")
}

func TestExecuteExcerptDedupAcrossRuns(t *testing.T) {
	f := newExecutorFixture(t)
	f.store.addSource(f.job.ID, "https://acme.example/about", "About Acme")

	f.runner.payloads[newsStep] = exaPayload(item("https://acme.example/about", "Founded in 2015 by Jane Doe."))
	_, err := f.exec.Execute(context.Background(), f.newPlan().ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.excerptCount())

	// Same text modulo case and whitespace.
	f.runner.payloads[newsStep] = exaPayload(item("https://acme.example/about", "  founded in 2015   by JANE doe. "))
	res, err := f.exec.Execute(context.Background(), f.newPlan().ID)
	require.NoError(t, err)
	assert.Equal(t, db.PlanNoChange, res.Status)
	assert.Equal(t, 1, f.store.excerptCount())

	f.runner.payloads[newsStep] = exaPayload(item("https://acme.example/about", "Acme opened a Berlin office in 2021."))
	res, err = f.exec.Execute(context.Background(), f.newPlan().ID)
	require.NoError(t, err)
	assert.Equal(t, db.PlanCompleted, res.Status)
	assert.Equal(t, 2, f.store.excerptCount())
}

func TestExecuteEmptyResultsIsNoChange(t *testing.T) {
	f := newExecutorFixture(t)
	plan := f.newPlan()

	res, err := f.exec.Execute(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PlanNoChange, res.Status)
	assert.Equal(t, 0, f.reanswer.calls)
}

func TestExecuteConcurrentClaimsRunOnce(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.payloads[newsStep] = exaPayload(item("https://news.example/a", "fresh"))
	f.runner.started = make(chan struct{}, 2)
	f.runner.release = make(chan struct{})
	plan := f.newPlan()

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.exec.Execute(context.Background(), plan.ID)
		firstErr <- err
	}()
	<-f.runner.started

	_, err := f.exec.Execute(context.Background(), plan.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	close(f.runner.release)
	require.NoError(t, <-firstErr)
	assert.Equal(t, 1, f.reanswer.calls)
	assert.Equal(t, db.PlanCompleted, f.store.plan(plan.ID).Status)
}

func TestExecuteTerminalPlanRejected(t *testing.T) {
	f := newExecutorFixture(t)
	plan := f.newPlan()
	_, err := f.exec.Execute(context.Background(), plan.ID)
	require.NoError(t, err)

	_, err = f.exec.Execute(context.Background(), plan.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExecuteRequiresCompletedJob(t *testing.T) {
	f := newExecutorFixture(t)
	running := f.store.addJob("RUNNING")
	plan := f.store.addPlan(&db.Plan{JobID: running.ID, Question: "q"})

	_, err := f.exec.Execute(context.Background(), plan.ID)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Equal(t, db.PlanProposed, f.store.plan(plan.ID).Status)
}

func TestExecuteUnknownPlan(t *testing.T) {
	f := newExecutorFixture(t)
	_, err := f.exec.Execute(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecuteReanswerFailureMarksFailed(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.payloads[newsStep] = exaPayload(item("https://news.example/a", "fresh"))
	f.reanswer.err = errors.New(strings.Repeat("upstream answer service unavailable ", 5))
	plan := f.newPlan()

	_, err := f.exec.Execute(context.Background(), plan.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutionFailure)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, plan.ID, execErr.PlanID)

	stored := f.store.plan(plan.ID)
	assert.Equal(t, db.PlanFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.LessOrEqual(t, len([]rune(*stored.ErrorMessage)), 40)
	assert.NotNil(t, stored.CompletedAt)
	assert.Contains(t, f.store.traceSteps(), "micro_research:failed")
}

func TestExecuteSourcePersistFailureMarksFailed(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.payloads[newsStep] = exaPayload(item("https://news.example/a", "fresh"))
	f.store.failCreateSources = errors.New("disk full")
	plan := f.newPlan()

	_, err := f.exec.Execute(context.Background(), plan.ID)
	assert.ErrorIs(t, err, ErrExecutionFailure)
	assert.Equal(t, db.PlanFailed, f.store.plan(plan.ID).Status)
	assert.Equal(t, 0, f.reanswer.calls)
}

func TestExecuteRunnerPanicMarksFailed(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.panicMsg = "boom"
	plan := f.newPlan()

	res, err := f.exec.Execute(context.Background(), plan.ID)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrExecutionFailure)
	stored := f.store.plan(plan.ID)
	assert.Equal(t, db.PlanFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "boom")
}

func TestCancel(t *testing.T) {
	f := newExecutorFixture(t)
	plan := f.newPlan()

	require.NoError(t, f.exec.Cancel(context.Background(), plan.ID))
	assert.Equal(t, db.PlanCancelled, f.store.plan(plan.ID).Status)

	assert.ErrorIs(t, f.exec.Cancel(context.Background(), plan.ID), ErrInvalidState)
	assert.ErrorIs(t, f.exec.Cancel(context.Background(), uuid.New()), ErrNotFound)

	_, err := f.exec.Execute(context.Background(), plan.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSweeperReclaimsStalePlans(t *testing.T) {
	store := newMemStore()
	job := store.addJob(db.JobStatusCompleted)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stale := store.addPlan(&db.Plan{JobID: job.ID, Question: "q"})
	fresh := store.addPlan(&db.Plan{JobID: job.ID, Question: "q"})
	_, err := store.ClaimPlan(context.Background(), stale.ID, now.Add(-31*time.Minute))
	require.NoError(t, err)
	_, err = store.ClaimPlan(context.Background(), fresh.ID, now.Add(-29*time.Minute))
	require.NoError(t, err)

	s := NewSweeper(store, nil)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := store.plan(stale.ID)
	assert.Equal(t, db.PlanFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Timed out after 30 minutes", *got.ErrorMessage)
	assert.Equal(t, db.PlanRunning, store.plan(fresh.ID).Status)

	_, err = s.Sweep(context.Background(), 0)
	assert.Error(t, err)
}

func TestTruncateMessageIsRuneSafe(t *testing.T) {
	assert.Equal(t, "héll", truncateMessage("héllo", 4))
	assert.Equal(t, "short", truncateMessage("short", 10))
	assert.Equal(t, "anything", truncateMessage("anything", 0))
}
