package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/pricing"
)

// PlanStatus is the research plan state.
type PlanStatus string

const (
	PlanProposed  PlanStatus = "PROPOSED"
	PlanRunning   PlanStatus = "RUNNING"
	PlanCompleted PlanStatus = "COMPLETED"
	PlanNoChange  PlanStatus = "NO_CHANGE"
	PlanFailed    PlanStatus = "FAILED"
	PlanCancelled PlanStatus = "CANCELLED"
)

// IsTerminal reports whether s can never transition again.
func (s PlanStatus) IsTerminal() bool {
	switch s {
	case PlanCompleted, PlanNoChange, PlanFailed, PlanCancelled:
		return true
	}
	return false
}

// JobStatusCompleted is the only job status that allows plan execution.
const JobStatusCompleted = "COMPLETED"

// JSONB represents a PostgreSQL jsonb column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	data, ok, err := jsonBytes(value)
	if err != nil || !ok {
		*j = nil
		return err
	}
	return json.Unmarshal(data, j)
}

// StepList is the plan_steps_json column.
type StepList []microplan.Step

func (s StepList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]microplan.Step(s))
}

func (s *StepList) Scan(value interface{}) error {
	data, ok, err := jsonBytes(value)
	if err != nil || !ok {
		*s = nil
		return err
	}
	return json.Unmarshal(data, (*[]microplan.Step)(s))
}

// UsageDoc is the llm_usage column.
type UsageDoc pricing.Usage

func (u UsageDoc) Value() (driver.Value, error) {
	return json.Marshal(pricing.Usage(u))
}

func (u *UsageDoc) Scan(value interface{}) error {
	data, ok, err := jsonBytes(value)
	if err != nil || !ok {
		*u = UsageDoc{}
		return err
	}
	return json.Unmarshal(data, (*pricing.Usage)(u))
}

func jsonBytes(value interface{}) ([]byte, bool, error) {
	switch v := value.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return v, true, nil
	case string:
		return []byte(v), true, nil
	default:
		return nil, false, fmt.Errorf("cannot scan %T into json column", value)
	}
}

// UUIDArray maps a Postgres uuid[] column.
type UUIDArray []uuid.UUID

func (a UUIDArray) Value() (driver.Value, error) {
	out := make(pq.StringArray, len(a))
	for i, id := range a {
		out[i] = id.String()
	}
	return out.Value()
}

func (a *UUIDArray) Scan(value interface{}) error {
	var raw pq.StringArray
	if err := raw.Scan(value); err != nil {
		return err
	}
	ids := make(UUIDArray, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid uuid in array: %w", err)
		}
		ids = append(ids, id)
	}
	*a = ids
	return nil
}

// Job is a research_jobs row.
type Job struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TargetInput  JSONB      `db:"target_input" json:"target_input"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
}

// Target extracts the research target from target_input.
func (j *Job) Target() microplan.Target {
	str := func(k string) string {
		if v, ok := j.TargetInput[k].(string); ok {
			return v
		}
		return ""
	}
	t := microplan.Target{
		CompanyName: str("company_name"),
		Website:     str("website"),
		Context:     str("context"),
	}
	if t.CompanyName == "" {
		t.CompanyName = str("name")
	}
	return t
}

// QA is a research_qa row.
type QA struct {
	ID             uuid.UUID `db:"id" json:"id"`
	JobID          uuid.UUID `db:"job_id" json:"job_id"`
	Question       string    `db:"question" json:"question"`
	AnswerMarkdown string    `db:"answer_markdown" json:"answer_markdown"`
	UsedSourceIDs  UUIDArray `db:"used_source_ids" json:"used_source_ids"`
	TotalCostUSD   float64   `db:"total_cost_usd" json:"total_cost_usd"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Source is a persisted evidence item.
type Source struct {
	ID            uuid.UUID `db:"id" json:"id"`
	JobID         uuid.UUID `db:"job_id" json:"job_id"`
	URL           string    `db:"url" json:"url"`
	Title         string    `db:"title" json:"title"`
	Snippet       string    `db:"snippet" json:"snippet"`
	Provider      string    `db:"provider" json:"provider"`
	PublishedDate *string   `db:"published_date" json:"published_date,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Plan is a research_qa_plans row.
type Plan struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	JobID              uuid.UUID  `db:"job_id" json:"job_id"`
	QAID               *uuid.UUID `db:"qa_id" json:"qa_id,omitempty"`
	Question           string     `db:"question" json:"question"`
	GapStatement       string     `db:"gap_statement" json:"gap_statement"`
	Intent             string     `db:"intent" json:"intent"`
	Steps              StepList   `db:"plan_steps_json" json:"steps"`
	PlanMarkdown       string     `db:"plan_markdown" json:"plan_markdown"`
	Status             PlanStatus `db:"status" json:"status"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	ConfirmedAt        *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage       *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedSourceIDs   UUIDArray  `db:"created_source_ids" json:"created_source_ids"`
	ResultQAID         *uuid.UUID `db:"result_qa_id" json:"result_qa_id,omitempty"`
	EstimatedCostLabel string     `db:"estimated_cost_label" json:"estimated_cost_label"`
	LLMUsage           UsageDoc   `db:"llm_usage" json:"llm_usage"`
	TotalCostUSD       float64    `db:"total_cost_usd" json:"total_cost_usd"`
}

// Excerpt is a source_excerpts row.
type Excerpt struct {
	ID          uuid.UUID `db:"id" json:"id"`
	JobID       uuid.UUID `db:"job_id" json:"job_id"`
	SourceID    uuid.UUID `db:"source_id" json:"source_id"`
	PlanID      uuid.UUID `db:"plan_id" json:"plan_id"`
	ExcerptText string    `db:"excerpt_text" json:"excerpt_text"`
	ExcerptType string    `db:"excerpt_type" json:"excerpt_type"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TraceEvent is a research_trace_events row.
type TraceEvent struct {
	ID        int64     `db:"id" json:"id"`
	JobID     uuid.UUID `db:"job_id" json:"job_id"`
	Phase     string    `db:"phase" json:"phase"`
	Step      string    `db:"step" json:"step"`
	Label     string    `db:"label" json:"label"`
	Detail    string    `db:"detail" json:"detail"`
	Meta      JSONB     `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
