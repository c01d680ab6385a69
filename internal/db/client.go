package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
)

// Config holds database configuration
type Config struct {
	DSN             string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
}

// Client manages the Postgres pool and the async trace-event writer.
type Client struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger

	// Trace events are best-effort and written off the request path.
	traceQueue chan *TraceEvent
	workers    int
	stopCh     chan struct{}
	workerWg   sync.WaitGroup
	closeOnce  sync.Once
}

// NewClient opens a pooled connection and verifies it with a ping.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.MaxConnections == 0 {
		config.MaxConnections = 25
	}
	if config.IdleConnections == 0 {
		config.IdleConnections = 5
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}

	rawDB, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	rawDB.SetMaxOpenConns(config.MaxConnections)
	rawDB.SetMaxIdleConns(config.IdleConnections)
	rawDB.SetConnMaxLifetime(config.MaxLifetime)

	client := NewFromDB(rawDB, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.db.PingContext(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database client initialized",
		zap.Int("max_connections", config.MaxConnections),
		zap.Int("trace_workers", client.workers),
	)
	return client, nil
}

// NewFromDB wraps an existing handle. Tests pass a sqlmock-backed sqlx.DB.
func NewFromDB(rawDB *sqlx.DB, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		db:         circuitbreaker.NewDatabaseWrapper(rawDB, logger),
		logger:     logger,
		traceQueue: make(chan *TraceEvent, 500),
		workers:    2,
		stopCh:     make(chan struct{}),
	}
	for i := 0; i < c.workers; i++ {
		c.workerWg.Add(1)
		go c.traceWorker(i)
	}
	return c
}

func (c *Client) traceWorker(id int) {
	defer c.workerWg.Done()
	for {
		select {
		case <-c.stopCh:
			c.drainTraces()
			c.logger.Debug("Trace worker stopped", zap.Int("worker_id", id))
			return
		case ev := <-c.traceQueue:
			c.writeTrace(ev)
		}
	}
}

func (c *Client) drainTraces() {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.traceQueue:
			c.writeTrace(ev)
		case <-timeout:
			c.logger.Warn("Timeout draining trace queue")
			return
		default:
			return
		}
	}
}

func (c *Client) writeTrace(ev *TraceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.AppendTrace(ctx, ev); err != nil {
		c.logger.Warn("Failed to write trace event",
			zap.String("job_id", ev.JobID.String()),
			zap.String("step", ev.Step),
			zap.Error(err),
		)
	}
}

// Ping checks connectivity through the breaker.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Wrapper returns the underlying DatabaseWrapper for health checks.
func (c *Client) Wrapper() *circuitbreaker.DatabaseWrapper {
	return c.db
}

// WithTransaction runs fn inside a breaker-guarded transaction.
func (c *Client) WithTransaction(ctx context.Context, fn func(*circuitbreaker.TxWrapper) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// Close drains pending trace events and closes the pool.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.workerWg.Wait()
		if cerr := c.db.DB().Close(); cerr != nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
		c.logger.Info("Database client closed")
	})
	return err
}
