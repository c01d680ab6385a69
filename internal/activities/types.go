package activities

import (
	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/pricing"
)

// ExecutePlanInput identifies the plan a workflow should run.
type ExecutePlanInput struct {
	PlanID uuid.UUID `json:"plan_id"`
}

// ExecutePlanResult is the terminal outcome of one plan.
type ExecutePlanResult struct {
	PlanID           uuid.UUID     `json:"plan_id"`
	Status           db.PlanStatus `json:"status"`
	ResultQAID       *uuid.UUID    `json:"result_qa_id,omitempty"`
	CreatedSourceIDs []uuid.UUID   `json:"created_source_ids"`
	ExcerptCount     int           `json:"excerpt_count"`
	Usage            pricing.Usage `json:"llm_usage"`
}

// SweepInput overrides the configured stale timeout when TimeoutMinutes > 0.
type SweepInput struct {
	TimeoutMinutes int `json:"timeout_minutes,omitempty"`
}

// SweepResult reports how many plans were reclaimed.
type SweepResult struct {
	Reclaimed int `json:"reclaimed"`
}

// PurgeInput overrides the configured retention when Days > 0.
type PurgeInput struct {
	Days int `json:"days,omitempty"`
}

// PurgeResult holds deleted row counts per table.
type PurgeResult struct {
	Deleted map[string]int64 `json:"deleted"`
}
