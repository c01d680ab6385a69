package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// StatusConflictError reports a conditional transition that lost against the
// plan's current status.
type StatusConflictError struct {
	PlanID  uuid.UUID
	Current PlanStatus
	Want    PlanStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("plan %s is %s, expected %s", e.PlanID, e.Current, e.Want)
}

const planColumns = `id, job_id, qa_id, question, gap_statement, intent, plan_steps_json, plan_markdown,
	status, created_at, confirmed_at, completed_at, error_message, created_source_ids, result_qa_id,
	estimated_cost_label, llm_usage, total_cost_usd`

// CreatePlan inserts a PROPOSED plan.
func (c *Client) CreatePlan(ctx context.Context, p *Plan) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = PlanProposed
	}
	if p.CreatedSourceIDs == nil {
		p.CreatedSourceIDs = UUIDArray{}
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO research_qa_plans (
			id, job_id, qa_id, question, gap_statement, intent, plan_steps_json, plan_markdown,
			status, created_at, created_source_ids, estimated_cost_label, llm_usage, total_cost_usd
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.JobID, p.QAID, p.Question, p.GapStatement, p.Intent, p.Steps, p.PlanMarkdown,
		p.Status, p.CreatedAt, p.CreatedSourceIDs, p.EstimatedCostLabel, p.LLMUsage, p.TotalCostUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	return nil
}

// GetPlan loads a plan by id.
func (c *Client) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	var p Plan
	err := c.db.GetContext(ctx, &p, `SELECT `+planColumns+` FROM research_qa_plans WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return &p, nil
}

// ClaimPlan locks the plan row and moves it PROPOSED -> RUNNING, committing
// before returning. Concurrent callers serialize on the row lock; the loser
// observes RUNNING and gets a *StatusConflictError.
func (c *Client) ClaimPlan(ctx context.Context, id uuid.UUID, now time.Time) (*Plan, error) {
	var p Plan
	err := c.WithTransaction(ctx, func(tx *circuitbreaker.TxWrapper) error {
		err := tx.GetContext(ctx, &p, `SELECT `+planColumns+` FROM research_qa_plans WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock plan: %w", err)
		}
		if p.Status != PlanProposed {
			return &StatusConflictError{PlanID: id, Current: p.Status, Want: PlanProposed}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE research_qa_plans SET status = $2, confirmed_at = $3 WHERE id = $1 AND status = $4`,
			id, PlanRunning, now, PlanProposed)
		if err != nil {
			return fmt.Errorf("failed to claim plan: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &StatusConflictError{PlanID: id, Current: p.Status, Want: PlanProposed}
		}
		p.Status = PlanRunning
		p.ConfirmedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Finish describes a terminal transition out of RUNNING.
type Finish struct {
	Status           PlanStatus
	ErrorMessage     string
	CreatedSourceIDs []uuid.UUID
	ResultQAID       *uuid.UUID
	Usage            UsageDoc
	TotalCostUSD     float64
	CompletedAt      time.Time
}

// FinishPlan records a terminal state. Only a RUNNING plan can be finished.
func (c *Client) FinishPlan(ctx context.Context, id uuid.UUID, f Finish) error {
	if !f.Status.IsTerminal() {
		return fmt.Errorf("status %s is not terminal", f.Status)
	}
	ids := UUIDArray(f.CreatedSourceIDs)
	if ids == nil {
		ids = UUIDArray{}
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE research_qa_plans
		SET status = $2, completed_at = $3, error_message = $4, created_source_ids = $5,
			result_qa_id = $6, llm_usage = $7, total_cost_usd = $8
		WHERE id = $1 AND status = $9`,
		id, f.Status, f.CompletedAt, nullIfEmpty(f.ErrorMessage), ids, f.ResultQAID, f.Usage, f.TotalCostUSD, PlanRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to finish plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &StatusConflictError{PlanID: id, Current: f.Status, Want: PlanRunning}
	}
	return nil
}

// ForceFailIfRunning moves a still-RUNNING plan to FAILED and reports whether
// it did. completed_at is stamped whenever it is still missing.
func (c *Client) ForceFailIfRunning(ctx context.Context, id uuid.UUID, message string, now time.Time) (bool, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE research_qa_plans
		SET status = $2, error_message = $3, completed_at = COALESCE(completed_at, $4)
		WHERE id = $1 AND status = $5`,
		id, PlanFailed, message, now, PlanRunning,
	)
	if err != nil {
		return false, fmt.Errorf("failed to force-fail plan: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := c.db.ExecContext(ctx,
		`UPDATE research_qa_plans SET completed_at = $2 WHERE id = $1 AND completed_at IS NULL`,
		id, now); err != nil {
		return n > 0, fmt.Errorf("failed to stamp completed_at: %w", err)
	}
	return n > 0, nil
}

// CancelPlan moves a PROPOSED plan to CANCELLED.
func (c *Client) CancelPlan(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE research_qa_plans SET status = $2, completed_at = $3 WHERE id = $1 AND status = $4`,
		id, PlanCancelled, now, PlanProposed)
	if err != nil {
		return fmt.Errorf("failed to cancel plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	p, err := c.GetPlan(ctx, id)
	if err != nil {
		return err
	}
	return &StatusConflictError{PlanID: id, Current: p.Status, Want: PlanProposed}
}

// SweepStale fails every RUNNING plan confirmed before cutoff and returns
// the reclaimed ids.
func (c *Client) SweepStale(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := c.db.SelectContext(ctx, &ids, `
		UPDATE research_qa_plans
		SET status = $1, error_message = $2, completed_at = $3
		WHERE status = $4 AND confirmed_at < $5
		RETURNING id`,
		PlanFailed, message, now, PlanRunning, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep stale plans: %w", err)
	}
	return ids, nil
}

// ListPlans returns the plans of a job, newest first.
func (c *Client) ListPlans(ctx context.Context, jobID uuid.UUID, limit int) ([]Plan, error) {
	if limit <= 0 {
		limit = 50
	}
	var plans []Plan
	err := c.db.SelectContext(ctx, &plans,
		`SELECT `+planColumns+` FROM research_qa_plans WHERE job_id = $1 ORDER BY created_at DESC LIMIT $2`,
		jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
