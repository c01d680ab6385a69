package research

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
)

// memStore mimics the Postgres store: one mutex stands in for the row lock
// and conditional updates, and excerpts are unique on (source_id, hash).
type memStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*db.Job
	qas      map[uuid.UUID]*db.QA
	plans    map[uuid.UUID]*db.Plan
	sources  []db.Source
	excerpts map[string]db.Excerpt
	traces   []db.TraceEvent

	failCreateSources error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[uuid.UUID]*db.Job),
		qas:      make(map[uuid.UUID]*db.QA),
		plans:    make(map[uuid.UUID]*db.Plan),
		excerpts: make(map[string]db.Excerpt),
	}
}

func (m *memStore) addJob(status string) *db.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := &db.Job{
		ID:          uuid.New(),
		Status:      status,
		TargetInput: db.JSONB{"company_name": "Acme Robotics", "website": "https://acme.example"},
		CreatedAt:   time.Now(),
	}
	m.jobs[j.ID] = j
	return j
}

func (m *memStore) addSource(jobID uuid.UUID, url, text string) db.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := db.Source{ID: uuid.New(), JobID: jobID, URL: url, Snippet: text, Provider: "exa", CreatedAt: time.Now()}
	m.sources = append(m.sources, s)
	return s
}

func (m *memStore) addPlan(p *db.Plan) *db.Plan {
	_ = m.CreatePlan(context.Background(), p)
	return p
}

func (m *memStore) plan(id uuid.UUID) db.Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.plans[id]
}

func (m *memStore) excerptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.excerpts)
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) GetQA(_ context.Context, id uuid.UUID) (*db.QA, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.qas[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *memStore) ListSources(_ context.Context, jobID uuid.UUID) ([]db.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Source
	for _, s := range m.sources {
		if s.JobID == jobID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) CreateSources(_ context.Context, sources []db.Source) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateSources != nil {
		return nil, m.failCreateSources
	}
	ids := make([]uuid.UUID, 0, len(sources))
	for _, s := range sources {
		s.ID = uuid.New()
		m.sources = append(m.sources, s)
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (m *memStore) InsertExcerpt(_ context.Context, e *db.Excerpt) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := e.SourceID.String() + ":" + e.ContentHash
	if _, ok := m.excerpts[key]; ok {
		return false, nil
	}
	e.ID = uuid.New()
	m.excerpts[key] = *e
	return true, nil
}

func (m *memStore) CreatePlan(_ context.Context, p *db.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = db.PlanProposed
	}
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *memStore) GetPlan(_ context.Context, id uuid.UUID) (*db.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ClaimPlan(_ context.Context, id uuid.UUID, now time.Time) (*db.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if p.Status != db.PlanProposed {
		return nil, &db.StatusConflictError{PlanID: id, Current: p.Status, Want: db.PlanProposed}
	}
	p.Status = db.PlanRunning
	p.ConfirmedAt = &now
	cp := *p
	return &cp, nil
}

func (m *memStore) FinishPlan(_ context.Context, id uuid.UUID, f db.Finish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plans[id]
	if p.Status != db.PlanRunning {
		return &db.StatusConflictError{PlanID: id, Current: p.Status, Want: db.PlanRunning}
	}
	p.Status = f.Status
	p.CompletedAt = &f.CompletedAt
	if f.ErrorMessage != "" {
		msg := f.ErrorMessage
		p.ErrorMessage = &msg
	}
	p.CreatedSourceIDs = db.UUIDArray(f.CreatedSourceIDs)
	p.ResultQAID = f.ResultQAID
	p.LLMUsage = f.Usage
	p.TotalCostUSD = f.TotalCostUSD
	return nil
}

func (m *memStore) ForceFailIfRunning(_ context.Context, id uuid.UUID, message string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plans[id]
	changed := false
	if p.Status == db.PlanRunning {
		p.Status = db.PlanFailed
		p.ErrorMessage = &message
		changed = true
	}
	if p.CompletedAt == nil {
		p.CompletedAt = &now
	}
	return changed, nil
}

func (m *memStore) CancelPlan(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return db.ErrNotFound
	}
	if p.Status != db.PlanProposed {
		return &db.StatusConflictError{PlanID: id, Current: p.Status, Want: db.PlanProposed}
	}
	p.Status = db.PlanCancelled
	p.CompletedAt = &now
	return nil
}

func (m *memStore) SweepStale(_ context.Context, cutoff time.Time, message string, now time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, p := range m.plans {
		if p.Status == db.PlanRunning && p.ConfirmedAt != nil && p.ConfirmedAt.Before(cutoff) {
			p.Status = db.PlanFailed
			msg := message
			p.ErrorMessage = &msg
			p.CompletedAt = &now
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) QueueTrace(e *db.TraceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces = append(m.traces, *e)
}

func (m *memStore) traceSteps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.traces))
	for i, t := range m.traces {
		out[i] = t.Step
	}
	return out
}
