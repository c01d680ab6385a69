package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/pricing"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/reanswer"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/validation"
)

const unexpectedTermination = "Unexpected termination"

// ExecutorConfig bounds persisted text.
type ExecutorConfig struct {
	MaxSnippetChars   int
	ErrorMessageChars int
}

// ExecuteResult is what a caller learns about a finished execution.
type ExecuteResult struct {
	PlanID           uuid.UUID     `json:"plan_id"`
	Status           db.PlanStatus `json:"status"`
	ResultQAID       *uuid.UUID    `json:"result_qa_id,omitempty"`
	CreatedSourceIDs []uuid.UUID   `json:"created_source_ids"`
	ExcerptCount     int           `json:"excerpt_count"`
	Usage            pricing.Usage `json:"llm_usage"`
}

// Executor runs confirmed plans exactly once.
type Executor struct {
	store    Store
	runner   ConnectorRunner
	reanswer reanswer.Reanswerer
	cfg      ExecutorConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewExecutor wires the executor.
func NewExecutor(store Store, runner ConnectorRunner, re reanswer.Reanswerer, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if cfg.MaxSnippetChars <= 0 {
		cfg.MaxSnippetChars = 12000
	}
	if cfg.ErrorMessageChars <= 0 {
		cfg.ErrorMessageChars = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:    store,
		runner:   runner,
		reanswer: re,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetPlan returns a persisted plan.
func (e *Executor) GetPlan(ctx context.Context, planID uuid.UUID) (*db.Plan, error) {
	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return p, nil
}

// Cancel moves a PROPOSED plan to CANCELLED.
func (e *Executor) Cancel(ctx context.Context, planID uuid.UUID) error {
	if err := e.store.CancelPlan(ctx, planID, e.now()); err != nil {
		return mapStoreError(err)
	}
	metrics.PlanExecutions.WithLabelValues(string(db.PlanCancelled)).Inc()
	e.logger.Info("Micro-research plan cancelled", zap.String("plan_id", planID.String()))
	return nil
}

// Execute claims the plan, runs its steps, ingests novel evidence and
// re-answers. The returned ResultQAID is the new answer on COMPLETED and the
// originating answer (if any) on NO_CHANGE.
func (e *Executor) Execute(ctx context.Context, planID uuid.UUID) (res *ExecuteResult, err error) {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		metrics.ClaimRejections.WithLabelValues("not_found").Inc()
		return nil, mapStoreError(err)
	}
	job, err := e.store.GetJob(ctx, plan.JobID)
	if err != nil {
		metrics.ClaimRejections.WithLabelValues("not_found").Inc()
		return nil, mapStoreError(err)
	}
	if job.Status != db.JobStatusCompleted {
		metrics.ClaimRejections.WithLabelValues("precondition").Inc()
		return nil, fmt.Errorf("%w: job %s is %s", ErrPreconditionFailed, job.ID, job.Status)
	}

	claimed, err := e.store.ClaimPlan(ctx, planID, e.now())
	if err != nil {
		mapped := mapStoreError(err)
		if errors.Is(mapped, ErrInvalidState) {
			metrics.ClaimRejections.WithLabelValues("invalid_state").Inc()
		}
		return nil, mapped
	}
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "microresearch.execute", "plan_id", planID.String())
	logger := e.logger.With(zap.String("plan_id", planID.String()), zap.String("job_id", job.ID.String()))

	trace(e.store, job.ID, "micro_plan_confirmed", "Micro-research plan confirmed",
		fmt.Sprintf("Executing %d research steps.", len(claimed.Steps)),
		map[string]interface{}{"plan_id": planID.String()})

	// Terminal bookkeeping must land even if the caller's context is gone.
	bg := context.WithoutCancel(ctx)
	tracker := pricing.NewUsageTracker()

	defer func() {
		if p := recover(); p != nil {
			err = e.fail(bg, claimed, job.ID, tracker, fmt.Errorf("panic: %v", p), logger)
			res = nil
		}
		if changed, ferr := e.store.ForceFailIfRunning(bg, planID, unexpectedTermination, e.now()); ferr != nil {
			logger.Error("Failed to finalize plan", zap.Error(ferr))
		} else if changed {
			logger.Warn("Plan left RUNNING at exit, forced to FAILED")
			metrics.PlanExecutions.WithLabelValues(string(db.PlanFailed)).Inc()
		}
		metrics.PlanExecutionDuration.Observe(time.Since(start).Seconds())
		tracing.EndSpan(span, err)
	}()

	res, runErr := e.run(ctx, claimed, job, tracker, logger)
	if runErr != nil {
		return nil, e.fail(bg, claimed, job.ID, tracker, runErr, logger)
	}
	return res, nil
}

func (e *Executor) run(ctx context.Context, plan *db.Plan, job *db.Job, tracker *pricing.UsageTracker, logger *zap.Logger) (*ExecuteResult, error) {
	target := job.Target()
	steps := []microplan.Step(plan.Steps)

	trace(e.store, job.ID, "micro_connectors:start", "Running micro-research connectors",
		fmt.Sprintf("Executing %d connector steps.", len(steps)), nil)

	out := e.runner.Run(ctx, steps, target)

	var withResults []string
	for i, o := range out.Outcomes {
		if o.Err == nil {
			tracker.AddConnector(o.Connector, validation.StepUnits(steps[i]))
		}
		if len(out.Payloads[o.Name]) > 0 {
			withResults = append(withResults, o.Name)
		}
	}
	trace(e.store, job.ID, "micro_connectors:done", "Micro-research connectors complete",
		"Connector execution finished.", map[string]interface{}{"steps_with_results": withResults})

	snippets := NormalizePayloads(steps, out.Payloads)
	logger.Info("Micro-research extracted snippets",
		zap.Int("snippet_count", len(snippets)),
		zap.Int("failed_steps", out.Failed()),
	)

	existing, err := e.store.ListSources(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing evidence: %w", err)
	}
	fresh, candidates := Partition(snippets, existing)

	excerptCount := 0
	for _, c := range candidates {
		inserted, err := e.store.InsertExcerpt(ctx, &db.Excerpt{
			JobID:       job.ID,
			SourceID:    c.SourceID,
			PlanID:      plan.ID,
			ExcerptText: truncateMessage(c.Snippet.Text, e.cfg.MaxSnippetChars),
			ExcerptType: firstNonEmpty(c.Snippet.Provider, "unknown"),
			ContentHash: c.Hash,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store excerpt: %w", err)
		}
		if inserted {
			excerptCount++
			metrics.EvidenceOutcomes.WithLabelValues("excerpt").Inc()
		} else {
			metrics.EvidenceOutcomes.WithLabelValues("duplicate").Inc()
		}
	}
	metrics.EvidenceOutcomes.WithLabelValues("duplicate").Add(float64(len(snippets) - len(fresh) - len(candidates)))

	logger.Info("Micro-research after dedupe",
		zap.Int("new_snippets", len(fresh)),
		zap.Int("excerpts_stored", excerptCount),
		zap.Int("total_extracted", len(snippets)),
	)

	if len(fresh) == 0 && excerptCount == 0 {
		trace(e.store, job.ID, "micro_no_change", "No new evidence found",
			fmt.Sprintf("All %d extracted snippets were exact duplicates.", len(snippets)),
			map[string]interface{}{"extracted_count": len(snippets), "duplicate_count": len(snippets)})
		return e.finish(ctx, plan, db.PlanNoChange, nil, plan.QAID, excerptCount, tracker, logger)
	}

	sources := make([]db.Source, 0, len(fresh))
	for _, s := range fresh {
		src := db.Source{
			JobID:    job.ID,
			URL:      s.URL,
			Title:    s.Title,
			Snippet:  truncateMessage(s.Text, e.cfg.MaxSnippetChars),
			Provider: firstNonEmpty(s.Provider, "Unknown"),
		}
		if s.PublishedDate != "" {
			d := s.PublishedDate
			src.PublishedDate = &d
		}
		sources = append(sources, src)
	}
	createdIDs, err := e.store.CreateSources(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to persist sources: %w", err)
	}
	metrics.EvidenceOutcomes.WithLabelValues("new_source").Add(float64(len(createdIDs)))

	trace(e.store, job.ID, "micro_sources_ingested",
		fmt.Sprintf("Ingested %d new sources + %d excerpts", len(createdIDs), excerptCount),
		"New evidence added to knowledge base.",
		map[string]interface{}{"new_source_ids": idStrings(createdIDs), "excerpt_count": excerptCount})

	trace(e.store, job.ID, "micro_reanswer:start", "Re-answering with new evidence",
		"Generating updated answer using expanded source set.", nil)

	answer, err := e.reanswer.Reanswer(ctx, reanswer.Request{JobID: job.ID, PlanID: plan.ID, Question: plan.Question})
	if err != nil {
		return nil, fmt.Errorf("failed to re-answer: %w", err)
	}
	if answer.InputTokens+answer.OutputTokens > 0 {
		tracker.AddLLM("reanswer", answer.Model, answer.InputTokens, answer.OutputTokens)
	} else {
		tracker.AddFlat("reanswer", pricing.ReanswerCost())
	}

	trace(e.store, job.ID, "micro_reanswer:done", "Micro-research complete",
		"Updated answer generated with new evidence.",
		map[string]interface{}{
			"new_sources_count": len(createdIDs),
			"new_excerpt_count": excerptCount,
			"total_sources":     len(existing) + len(createdIDs),
		})

	qaID := answer.QAID
	return e.finish(ctx, plan, db.PlanCompleted, createdIDs, &qaID, excerptCount, tracker, logger)
}

func (e *Executor) finish(ctx context.Context, plan *db.Plan, status db.PlanStatus, created []uuid.UUID, qaID *uuid.UUID, excerpts int, tracker *pricing.UsageTracker, logger *zap.Logger) (*ExecuteResult, error) {
	usage := tracker.Snapshot()
	f := db.Finish{
		Status:           status,
		CreatedSourceIDs: created,
		Usage:            db.UsageDoc(usage),
		TotalCostUSD:     usage.TotalCostUSD,
		CompletedAt:      e.now(),
	}
	if status == db.PlanCompleted {
		f.ResultQAID = qaID
	}
	if err := e.store.FinishPlan(ctx, plan.ID, f); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", status, err)
	}
	metrics.PlanExecutions.WithLabelValues(string(status)).Inc()
	metrics.PlanCostUSD.Observe(usage.TotalCostUSD)

	logger.Info("Micro-research finished",
		zap.String("status", string(status)),
		zap.Int("new_sources", len(created)),
		zap.Int("excerpts", excerpts),
		zap.Float64("total_cost_usd", usage.TotalCostUSD),
	)
	if created == nil {
		created = []uuid.UUID{}
	}
	return &ExecuteResult{
		PlanID:           plan.ID,
		Status:           status,
		ResultQAID:       qaID,
		CreatedSourceIDs: created,
		ExcerptCount:     excerpts,
		Usage:            usage,
	}, nil
}

// fail records FAILED with the truncated cause and returns an *ExecutionError.
func (e *Executor) fail(ctx context.Context, plan *db.Plan, jobID uuid.UUID, tracker *pricing.UsageTracker, cause error, logger *zap.Logger) error {
	msg := truncateMessage(cause.Error(), e.cfg.ErrorMessageChars)
	usage := tracker.Snapshot()
	ferr := e.store.FinishPlan(ctx, plan.ID, db.Finish{
		Status:       db.PlanFailed,
		ErrorMessage: msg,
		Usage:        db.UsageDoc(usage),
		TotalCostUSD: usage.TotalCostUSD,
		CompletedAt:  e.now(),
	})
	if ferr != nil {
		logger.Error("Failed to record FAILED status", zap.Error(ferr))
	} else {
		metrics.PlanExecutions.WithLabelValues(string(db.PlanFailed)).Inc()
	}

	trace(e.store, jobID, "micro_research:failed", "Micro-research failed", truncateMessage(cause.Error(), 200), nil)
	logger.Error("Micro-research failed", zap.Error(cause))
	return &ExecutionError{PlanID: plan.ID, Err: cause}
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
