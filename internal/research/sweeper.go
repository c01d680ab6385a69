package research

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/metrics"
)

// Sweeper reclaims plans stuck in RUNNING after an executor crash.
type Sweeper struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewSweeper creates a sweeper.
func NewSweeper(store Store, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Sweep fails every RUNNING plan confirmed more than timeout ago and returns
// how many were reclaimed. Plans are never re-executed.
func (s *Sweeper) Sweep(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, fmt.Errorf("sweep timeout must be > 0, got %s", timeout)
	}
	now := s.now()
	minutes := int(timeout / time.Minute)
	msg := fmt.Sprintf("Timed out after %d minutes", minutes)

	ids, err := s.store.SweepStale(ctx, now.Add(-timeout), msg, now)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.logger.Warn("Marked stale plan as FAILED",
			zap.String("plan_id", id.String()),
			zap.Int("timeout_minutes", minutes),
		)
	}
	metrics.StalePlansReclaimed.Add(float64(len(ids)))
	return len(ids), nil
}
