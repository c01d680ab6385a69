package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
)

const slowThreshold = 100 * time.Millisecond

func latencyStatus(d time.Duration, what string) (CheckStatus, string) {
	if d > slowThreshold {
		return StatusDegraded, what + " responding but with high latency"
	}
	return StatusHealthy, what + " healthy"
}

// DatabaseChecker pings Postgres through the breaker-wrapped pool.
type DatabaseChecker struct {
	db *circuitbreaker.DatabaseWrapper
}

func NewDatabaseChecker(db *circuitbreaker.DatabaseWrapper) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (d *DatabaseChecker) Name() string           { return "database" }
func (d *DatabaseChecker) IsCritical() bool       { return true }
func (d *DatabaseChecker) Timeout() time.Duration { return 5 * time.Second }

func (d *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if d.db.IsOpen() {
		return CheckResult{Status: StatusUnhealthy, Error: "circuit breaker open", Message: "Database circuit breaker is open"}
	}
	if err := d.db.PingContext(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "Database ping failed"}
	}
	elapsed := time.Since(start)
	stats := d.db.DB().Stats()
	status, msg := latencyStatus(elapsed, "Database")
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		status, msg = StatusDegraded, "Database connection pool exhausted"
	}
	return CheckResult{
		Status:   status,
		Message:  msg,
		Duration: elapsed,
		Details: map[string]interface{}{
			"latency_ms":           elapsed.Milliseconds(),
			"open_connections":     stats.OpenConnections,
			"max_open_connections": stats.MaxOpenConnections,
			"in_use_connections":   stats.InUse,
		},
	}
}

// RedisChecker pings the synthesis cache. The cache is optional, so a
// failure only degrades the service.
type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(c redis.UniversalClient) *RedisChecker { return &RedisChecker{client: c} }

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return false }
func (r *RedisChecker) Timeout() time.Duration { return 2 * time.Second }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "Redis ping failed"}
	}
	elapsed := time.Since(start)
	status, msg := latencyStatus(elapsed, "Redis")
	return CheckResult{Status: status, Message: msg, Duration: elapsed,
		Details: map[string]interface{}{"latency_ms": elapsed.Milliseconds()}}
}

// HTTPChecker probes a collaborator's GET {base}/health.
type HTTPChecker struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

func NewHTTPChecker(name, baseURL string, critical bool) *HTTPChecker {
	return &HTTPChecker{
		name:     name,
		url:      strings.TrimRight(baseURL, "/") + "/health",
		critical: critical,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPChecker) Name() string           { return h.name }
func (h *HTTPChecker) IsCritical() bool       { return h.critical }
func (h *HTTPChecker) Timeout() time.Duration { return 5 * time.Second }

func (h *HTTPChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "invalid health url"}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: h.name + " unreachable"}
	}
	resp.Body.Close()
	elapsed := time.Since(start)
	details := map[string]interface{}{"url": h.url, "status_code": resp.StatusCode, "latency_ms": elapsed.Milliseconds()}
	if resp.StatusCode >= 500 {
		return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("%s returned %d", h.name, resp.StatusCode), Details: details}
	}
	status, msg := latencyStatus(elapsed, h.name)
	return CheckResult{Status: status, Message: msg, Duration: elapsed, Details: details}
}

// TemporalChecker calls the frontend health endpoint.
type TemporalChecker struct {
	client client.Client
}

func NewTemporalChecker(c client.Client) *TemporalChecker { return &TemporalChecker{client: c} }

func (t *TemporalChecker) Name() string           { return "temporal" }
func (t *TemporalChecker) IsCritical() bool       { return true }
func (t *TemporalChecker) Timeout() time.Duration { return 5 * time.Second }

func (t *TemporalChecker) Check(ctx context.Context) CheckResult {
	if _, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{}); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "Temporal health check failed"}
	}
	return CheckResult{Status: StatusHealthy, Message: "Temporal healthy"}
}

// FuncChecker adapts a function into a Checker.
type FuncChecker struct {
	name     string
	critical bool
	fn       func(ctx context.Context) CheckResult
}

func NewFuncChecker(name string, critical bool, fn func(ctx context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, critical: critical, fn: fn}
}

func (f *FuncChecker) Name() string                          { return f.name }
func (f *FuncChecker) IsCritical() bool                      { return f.critical }
func (f *FuncChecker) Timeout() time.Duration                { return 5 * time.Second }
func (f *FuncChecker) Check(ctx context.Context) CheckResult { return f.fn(ctx) }

// BreakerChecker reports degraded while any circuit breaker is open.
type BreakerChecker struct {
	open func() []string
}

func NewBreakerChecker(open func() []string) *BreakerChecker { return &BreakerChecker{open: open} }

func (b *BreakerChecker) Name() string           { return "circuit_breakers" }
func (b *BreakerChecker) IsCritical() bool       { return false }
func (b *BreakerChecker) Timeout() time.Duration { return time.Second }

func (b *BreakerChecker) Check(context.Context) CheckResult {
	open := b.open()
	if len(open) == 0 {
		return CheckResult{Status: StatusHealthy, Message: "all breakers closed"}
	}
	return CheckResult{
		Status:  StatusDegraded,
		Message: "circuit breakers open",
		Details: map[string]interface{}{"open": open},
	}
}
