package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const dbBreakerName = "postgresql"
const dbService = "plan-store"

// DatabaseWrapper guards a sqlx handle with a circuit breaker. sql.ErrNoRows
// is a normal outcome and does not count against the breaker.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper wraps db.
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	cb := NewCircuitBreaker(dbBreakerName, DatabaseSettings().ToConfig(), logger)
	GlobalMetricsCollector.Register(dbService, cb)
	return &DatabaseWrapper{db: db, cb: cb, logger: logger}
}

// DB exposes the underlying handle for callers that manage their own guarding.
func (dw *DatabaseWrapper) DB() *sqlx.DB { return dw.db }

// IsOpen reports whether the breaker currently rejects calls.
func (dw *DatabaseWrapper) IsOpen() bool { return dw.cb.State() == StateOpen }

func (dw *DatabaseWrapper) guard(ctx context.Context, fn func() error) error {
	var opErr error
	cbErr := dw.cb.Execute(ctx, func() error {
		opErr = fn()
		if errors.Is(opErr, sql.ErrNoRows) {
			return nil
		}
		return opErr
	})
	GlobalMetricsCollector.RecordRequest(dbBreakerName, dbService, dw.cb.State(), cbErr == nil)
	if cbErr != nil && opErr == nil {
		return cbErr
	}
	return opErr
}

// PingContext pings the database.
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	return dw.guard(ctx, func() error { return dw.db.PingContext(ctx) })
}

// ExecContext runs a statement.
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := dw.guard(ctx, func() error {
		var err error
		res, err = dw.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// GetContext scans a single row into dest.
func (dw *DatabaseWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return dw.guard(ctx, func() error { return dw.db.GetContext(ctx, dest, query, args...) })
}

// SelectContext scans all rows into dest.
func (dw *DatabaseWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return dw.guard(ctx, func() error { return dw.db.SelectContext(ctx, dest, query, args...) })
}

// BeginTxx starts a guarded transaction.
func (dw *DatabaseWrapper) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*TxWrapper, error) {
	var tx *sqlx.Tx
	err := dw.guard(ctx, func() error {
		var err error
		tx, err = dw.db.BeginTxx(ctx, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &TxWrapper{tx: tx, parent: dw}, nil
}

// TxWrapper routes transaction statements through the parent breaker.
type TxWrapper struct {
	tx     *sqlx.Tx
	parent *DatabaseWrapper
}

// ExecContext runs a statement inside the transaction.
func (tw *TxWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := tw.parent.guard(ctx, func() error {
		var err error
		res, err = tw.tx.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// GetContext scans a single row inside the transaction.
func (tw *TxWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return tw.parent.guard(ctx, func() error { return tw.tx.GetContext(ctx, dest, query, args...) })
}

// SelectContext scans rows inside the transaction.
func (tw *TxWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return tw.parent.guard(ctx, func() error { return tw.tx.SelectContext(ctx, dest, query, args...) })
}

// Commit commits the transaction.
func (tw *TxWrapper) Commit() error {
	return tw.tx.Commit()
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (tw *TxWrapper) Rollback() error {
	if err := tw.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
