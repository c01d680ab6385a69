package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/connectors"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
)

// Store is the persistence the subsystem needs. *db.Client implements it.
type Store interface {
	GetJob(ctx context.Context, id uuid.UUID) (*db.Job, error)
	GetQA(ctx context.Context, id uuid.UUID) (*db.QA, error)
	ListSources(ctx context.Context, jobID uuid.UUID) ([]db.Source, error)
	CreateSources(ctx context.Context, sources []db.Source) ([]uuid.UUID, error)
	InsertExcerpt(ctx context.Context, e *db.Excerpt) (bool, error)

	CreatePlan(ctx context.Context, p *db.Plan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*db.Plan, error)
	ClaimPlan(ctx context.Context, id uuid.UUID, now time.Time) (*db.Plan, error)
	FinishPlan(ctx context.Context, id uuid.UUID, f db.Finish) error
	ForceFailIfRunning(ctx context.Context, id uuid.UUID, message string, now time.Time) (bool, error)
	CancelPlan(ctx context.Context, id uuid.UUID, now time.Time) error
	SweepStale(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]uuid.UUID, error)

	QueueTrace(e *db.TraceEvent)
}

// ConnectorRunner is the connector-execution collaborator.
type ConnectorRunner interface {
	Run(ctx context.Context, steps []microplan.Step, target microplan.Target) connectors.Result
}

// mapStoreError translates store sentinels into this package's taxonomy.
func mapStoreError(err error) error {
	var conflict *db.StatusConflictError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	case errors.As(err, &conflict):
		return fmt.Errorf("%w: plan is %s", ErrInvalidState, conflict.Current)
	}
	return err
}

func trace(s Store, jobID uuid.UUID, step, label, detail string, meta map[string]interface{}) {
	s.QueueTrace(&db.TraceEvent{
		JobID:  jobID,
		Phase:  db.TracePhase,
		Step:   step,
		Label:  label,
		Detail: detail,
		Meta:   meta,
	})
}
