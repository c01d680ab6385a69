package microplan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/llm"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/tracing"
)

const (
	plannerMaxTokens   = 500
	plannerTemperature = 0.3
)

// ProposeRequest carries the question, detector result and what is already
// known about the job's evidence.
type ProposeRequest struct {
	Question    string
	Gap         gap.Result
	Target      Target
	SourceCount int
	Providers   []string
	Domains     []string
}

// Synthesizer turns a detected gap into a capped, connector-ready plan.
type Synthesizer struct {
	completer   llm.Completer
	limits      Limits
	maxTokens   int
	temperature float64
	logger      *zap.Logger
	now         func() time.Time
}

// NewSynthesizer creates a synthesizer. A nil completer always uses the
// deterministic fallback table.
func NewSynthesizer(completer llm.Completer, limits Limits, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxSteps <= 0 || limits.MaxExaQueries <= 0 {
		limits = DefaultLimits()
	}
	return &Synthesizer{
		completer:   completer,
		limits:      limits,
		maxTokens:   plannerMaxTokens,
		temperature: plannerTemperature,
		logger:      logger,
		now:         time.Now,
	}
}

// WithSampling overrides the planner call's token limit and temperature.
// Non-positive maxTokens and negative temperature keep the defaults.
func (s *Synthesizer) WithSampling(maxTokens int, temperature float64) *Synthesizer {
	if maxTokens > 0 {
		s.maxTokens = maxTokens
	}
	if temperature >= 0 {
		s.temperature = temperature
	}
	return s
}

// Limits returns the caps the synthesizer enforces.
func (s *Synthesizer) Limits() Limits { return s.limits }

// Propose never fails: any planner error falls back to the intent table.
// The returned usage is nil when no LLM call completed.
func (s *Synthesizer) Propose(ctx context.Context, req ProposeRequest) (*Plan, *llm.Response) {
	ctx, span := tracing.StartSpan(ctx, "microplan.propose", "intent", string(req.Gap.Intent))
	defer span.End()

	hints := SlotHintsFromGap(req.Gap.MissingSlots, req.Question, req.Target.CompanyName)
	tr := newTranslator(req.Target, hints, s.now())

	if s.completer == nil {
		return s.fallback(req, tr), nil
	}

	prompt := BuildPrompt(PromptInput{
		Question:     req.Question,
		GapStatement: req.Gap.GapStatement,
		Intent:       string(req.Gap.Intent),
		Target:       req.Target,
		Hints:        hints,
		SourceCount:  req.SourceCount,
		Providers:    req.Providers,
		Domains:      req.Domains,
	})
	resp, err := s.completer.Complete(ctx, llm.Request{
		SystemPrompt: SystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
	})
	if err != nil {
		s.logger.Warn("Planner LLM call failed, using fallback", zap.Error(err))
		return s.fallback(req, tr), nil
	}

	dsl, err := ParseResponse(resp.Content, hints, s.logger)
	if err != nil || len(dsl.Tasks) == 0 {
		s.logger.Warn("LLM did not produce valid plan, using fallback", zap.Error(err))
		return s.fallback(req, tr), resp
	}

	tr.hints = dsl.SlotHints
	steps, accepted := s.assemble(tr, dsl.Tasks)
	if len(steps) == 0 {
		s.logger.Warn("No valid plan steps generated, using fallback")
		return s.fallback(req, tr), resp
	}

	intent := dsl.Intent
	if (intent == "" || intent == string(gap.IntentGeneral)) && req.Gap.Intent != "" {
		intent = string(req.Gap.Intent)
	}
	gapStatement := dsl.Gap
	if gapStatement == "" {
		gapStatement = req.Gap.GapStatement
	}

	steps = tr.repairLowQuality(steps, hints.QueryHint, intent, s.limits)
	plan := &Plan{
		GapStatement:        gapStatement,
		Intent:              intent,
		Steps:               steps,
		SummaryMarkdown:     SummaryMarkdown(gapStatement, accepted),
		EstimatedQueryCount: countExa(steps),
	}
	s.logger.Info("Micro-plan generated",
		zap.Int("steps", len(plan.Steps)),
		zap.Int("exa_queries", plan.EstimatedQueryCount),
		zap.String("intent", plan.Intent),
	)
	return plan, resp
}

// assemble translates tasks in order, dropping candidates once a cap is hit.
func (s *Synthesizer) assemble(tr translator, tasks []Task) ([]Step, []Task) {
	steps := make([]Step, 0, s.limits.MaxSteps)
	accepted := make([]Task, 0, s.limits.MaxSteps)
	exa := 0
	for i, task := range tasks {
		if len(steps) >= s.limits.MaxSteps {
			break
		}
		if task.Type.IsExa() && exa >= s.limits.MaxExaQueries {
			continue
		}
		step, ok := tr.Translate(task, i)
		if !ok {
			s.logger.Debug("Dropping task without required inputs", zap.String("type", string(task.Type)))
			continue
		}
		steps = append(steps, step)
		accepted = append(accepted, task)
		if task.Type.IsExa() {
			exa++
		}
	}
	return steps, accepted
}

func (s *Synthesizer) fallback(req ProposeRequest, tr translator) *Plan {
	intent := req.Gap.Intent
	if intent == "" {
		intent = gap.IntentGeneral
	}
	tasks := FallbackTasks(intent, tr.hints, s.now())
	steps, accepted := s.assemble(tr, tasks)
	steps = tr.repairLowQuality(steps, tr.hints.QueryHint, string(intent), s.limits)
	return &Plan{
		GapStatement:        req.Gap.GapStatement,
		Intent:              string(intent),
		Steps:               steps,
		SummaryMarkdown:     SummaryMarkdown(req.Gap.GapStatement, accepted),
		EstimatedQueryCount: countExa(steps),
		UsedFallback:        true,
	}
}

func countExa(steps []Step) int {
	n := 0
	for _, s := range steps {
		if s.Connector == ConnectorExa {
			n++
		}
	}
	return n
}
