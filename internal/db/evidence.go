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

// GetJob loads a research job.
func (c *Client) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var j Job
	err := c.db.GetContext(ctx, &j, `
		SELECT id, target_input, status, created_at, completed_at, error_message
		FROM research_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return &j, nil
}

// GetQA loads a question/answer record.
func (c *Client) GetQA(ctx context.Context, id uuid.UUID) (*QA, error) {
	var q QA
	err := c.db.GetContext(ctx, &q, `
		SELECT id, job_id, question, answer_markdown, used_source_ids, total_cost_usd, created_at
		FROM research_qa WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load qa: %w", err)
	}
	return &q, nil
}

// ListSources returns the job's evidence items in insertion order.
func (c *Client) ListSources(ctx context.Context, jobID uuid.UUID) ([]Source, error) {
	var out []Source
	err := c.db.SelectContext(ctx, &out, `
		SELECT id, job_id, url, title, snippet, provider, published_date, created_at
		FROM sources WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return out, nil
}

// CreateSources inserts evidence items in one transaction and returns their ids.
func (c *Client) CreateSources(ctx context.Context, sources []Source) ([]uuid.UUID, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	ids := make([]uuid.UUID, 0, len(sources))
	err := c.WithTransaction(ctx, func(tx *circuitbreaker.TxWrapper) error {
		for i := range sources {
			s := &sources[i]
			if s.ID == uuid.Nil {
				s.ID = uuid.New()
			}
			if s.CreatedAt.IsZero() {
				s.CreatedAt = now
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sources (id, job_id, url, title, snippet, provider, published_date, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				s.ID, s.JobID, s.URL, s.Title, s.Snippet, s.Provider, s.PublishedDate, s.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert source %s: %w", s.URL, err)
			}
			ids = append(ids, s.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertExcerpt stores e unless (source_id, content_hash) already exists.
// It reports whether a row was written.
func (c *Client) InsertExcerpt(ctx context.Context, e *Excerpt) (bool, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO source_excerpts (id, job_id, source_id, plan_id, excerpt_text, excerpt_type, content_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (source_id, content_hash) DO NOTHING`,
		e.ID, e.JobID, e.SourceID, e.PlanID, e.ExcerptText, e.ExcerptType, e.ContentHash, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert excerpt: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListExcerpts returns excerpts attached to a source.
func (c *Client) ListExcerpts(ctx context.Context, sourceID uuid.UUID) ([]Excerpt, error) {
	var out []Excerpt
	err := c.db.SelectContext(ctx, &out, `
		SELECT id, job_id, source_id, plan_id, excerpt_text, excerpt_type, content_hash, created_at
		FROM source_excerpts WHERE source_id = $1 ORDER BY created_at`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list excerpts: %w", err)
	}
	return out, nil
}
