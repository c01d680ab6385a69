package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/metrics"
)

// PurgeExpired deletes terminal plans, excerpts and trace events created
// before now-days and returns the per-table row counts. Plans still
// PROPOSED or RUNNING are kept.
func (c *Client) PurgeExpired(ctx context.Context, days int, now time.Time) (map[string]int64, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be > 0, got %d", days)
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	counts := make(map[string]int64, 3)

	err := c.WithTransaction(ctx, func(tx *circuitbreaker.TxWrapper) error {
		stmts := []struct {
			table string
			query string
			args  []interface{}
		}{
			{"source_excerpts", `DELETE FROM source_excerpts WHERE created_at < $1`, []interface{}{cutoff}},
			{"research_trace_events", `DELETE FROM research_trace_events WHERE phase = $2 AND created_at < $1`, []interface{}{cutoff, TracePhase}},
			{"research_qa_plans", `DELETE FROM research_qa_plans WHERE created_at < $1 AND status NOT IN ($2, $3)`, []interface{}{cutoff, PlanProposed, PlanRunning}},
		}
		for _, s := range stmts {
			res, err := tx.ExecContext(ctx, s.query, s.args...)
			if err != nil {
				return fmt.Errorf("failed to purge %s: %w", s.table, err)
			}
			n, _ := res.RowsAffected()
			counts[s.table] = n
			metrics.RetentionPurged.WithLabelValues(s.table).Add(float64(n))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Purged expired micro-research rows",
		zap.Int("days", days),
		zap.Time("cutoff", cutoff),
		zap.Any("counts", counts),
	)
	return counts, nil
}
