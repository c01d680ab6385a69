package connectors

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/ratecontrol"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/tracing"
)

var errPanic = errors.New("connector step panicked")

// StepOutcome records how one step went.
type StepOutcome struct {
	Name      string
	Connector string
	Err       error
	Duration  time.Duration
}

// Result maps step names to provider payloads. Failed steps map to an empty
// payload.
type Result struct {
	Payloads map[string]map[string]interface{}
	Outcomes []StepOutcome
}

// Failed counts steps that errored.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Runner dispatches plan steps concurrently. A failing step never aborts the
// batch.
type Runner struct {
	caller         Caller
	limiters       *ratecontrol.Limiters
	stepTimeout    time.Duration
	maxConcurrency int
	logger         *zap.Logger
}

// NewRunner creates a runner. limiters may be nil for unlimited dispatch.
func NewRunner(caller Caller, limiters *ratecontrol.Limiters, stepTimeout time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiters == nil {
		limiters = ratecontrol.NewLimiters(nil)
	}
	return &Runner{
		caller:         caller,
		limiters:       limiters,
		stepTimeout:    stepTimeout,
		maxConcurrency: 4,
		logger:         logger,
	}
}

// Run executes every step and returns one payload per step name.
func (r *Runner) Run(ctx context.Context, steps []microplan.Step, target microplan.Target) Result {
	ctx, span := tracing.StartSpan(ctx, "connectors.run", "target", target.CompanyName)
	defer span.End()

	res := Result{
		Payloads: make(map[string]map[string]interface{}, len(steps)),
		Outcomes: make([]StepOutcome, len(steps)),
	}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.maxConcurrency)

	for i, step := range steps {
		wg.Add(1)
		go func(i int, step microplan.Step) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			payload, outcome := r.runStep(ctx, step, target)
			mu.Lock()
			res.Payloads[step.Name] = payload
			res.Outcomes[i] = outcome
			mu.Unlock()
		}(i, step)
	}
	wg.Wait()
	return res
}

func (r *Runner) runStep(ctx context.Context, step microplan.Step, target microplan.Target) (payload map[string]interface{}, outcome StepOutcome) {
	outcome = StepOutcome{Name: step.Name, Connector: step.Connector}
	start := time.Now()
	status := "success"

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Connector step panicked", zap.String("step", step.Name), zap.Any("panic", p))
			payload = map[string]interface{}{}
			outcome.Err = errPanic
			status = "error"
		}
		outcome.Duration = time.Since(start)
		metrics.ConnectorCalls.WithLabelValues(step.Connector, status).Inc()
		metrics.ConnectorLatency.WithLabelValues(step.Connector).Observe(outcome.Duration.Seconds())
	}()

	stepCtx := ctx
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}

	if err := r.limiters.Wait(stepCtx, step.Connector); err != nil {
		status = "rate_limited"
		outcome.Err = err
		r.logger.Warn("Connector step skipped by rate limiter",
			zap.String("step", step.Name),
			zap.String("connector", step.Connector),
			zap.Error(err),
		)
		return map[string]interface{}{}, outcome
	}

	out, err := r.caller.Call(stepCtx, step.Connector, step.Params, target)
	if err != nil {
		status = "error"
		outcome.Err = err
		r.logger.Warn("Connector step failed",
			zap.String("step", step.Name),
			zap.String("connector", step.Connector),
			zap.Error(err),
		)
		return map[string]interface{}{}, outcome
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, outcome
}
