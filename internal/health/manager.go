package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers and caches the latest report.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	last     *Report
	interval time.Duration
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a health manager that refreshes every interval once
// started.
func NewManager(interval time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Manager{checkers: make(map[string]Checker), interval: interval, logger: logger}
}

// RegisterChecker adds a checker. Names must be unique.
func (m *Manager) RegisterChecker(c Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[c.Name()]; exists {
		return fmt.Errorf("health checker %s already registered", c.Name())
	}
	m.checkers[c.Name()] = c
	m.logger.Info("Registered health checker",
		zap.String("name", c.Name()),
		zap.Bool("critical", c.IsCritical()),
	)
	return nil
}

// Check runs every checker concurrently, each bounded by its own timeout.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			r := m.runOne(ctx, c)
			mu.Lock()
			results[c.Name()] = r
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	report := aggregate(results)
	m.mu.Lock()
	m.last = &report
	m.mu.Unlock()
	return report
}

func (m *Manager) runOne(ctx context.Context, c Checker) (res CheckResult) {
	timeout := c.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = CheckResult{Status: StatusUnhealthy, Error: fmt.Sprint(p), Message: "health check panicked"}
		}
		res.Component = c.Name()
		res.Critical = c.IsCritical()
		if res.Timestamp.IsZero() {
			res.Timestamp = start
		}
		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}
	}()
	return c.Check(cctx)
}

func aggregate(results map[string]CheckResult) Report {
	r := Report{Status: StatusHealthy, Ready: true, Components: results, Timestamp: time.Now()}
	for _, res := range results {
		switch {
		case res.Status == StatusUnhealthy && res.Critical:
			r.Status = StatusUnhealthy
			r.Ready = false
		case res.Status != StatusHealthy && r.Status == StatusHealthy:
			r.Status = StatusDegraded
		}
	}
	return r
}

// Last returns the cached report, running the checks if none exists yet.
func (m *Manager) Last(ctx context.Context) Report {
	m.mu.RLock()
	last := m.last
	m.mu.RUnlock()
	if last != nil {
		return *last
	}
	return m.Check(ctx)
}

// IsReady reports whether every critical checker passed on the last run.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.Last(ctx).Ready
}

// Start begins background checking. Stop must be called to release it.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	stop := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.Check(ctx)
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				report := m.Check(ctx)
				if report.Status != StatusHealthy {
					m.logger.Warn("Service health degraded", zap.String("status", report.Status.String()))
				}
			}
		}
	}()
}

// Stop halts background checking.
func (m *Manager) Stop() {
	m.mu.Lock()
	stop := m.stopCh
	m.stopCh = nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
		m.wg.Wait()
	}
}
