package db

import (
	"context"
	"time"
)

// TracePhase is the phase written for every subsystem trace row.
const TracePhase = "micro_research"

// AppendTrace inserts a trace row synchronously.
func (c *Client) AppendTrace(ctx context.Context, e *TraceEvent) error {
	if e == nil {
		return nil
	}
	if e.Phase == "" {
		e.Phase = TracePhase
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO research_trace_events (job_id, phase, step, label, detail, meta, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.JobID, e.Phase, e.Step, e.Label, e.Detail, e.Meta, e.CreatedAt,
	)
	return err
}

// QueueTrace hands e to the background writers. When the queue is full the
// write happens inline so events are not dropped.
func (c *Client) QueueTrace(e *TraceEvent) {
	if e == nil {
		return
	}
	select {
	case <-c.stopCh:
		c.writeTrace(e)
	case c.traceQueue <- e:
	default:
		c.logger.Debug("Trace queue full, writing inline")
		c.writeTrace(e)
	}
}
