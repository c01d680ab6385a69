package research

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/pricing"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/validation"
)

// ProposeRequest asks for a plan for one answered question. Question and
// AnswerMarkdown are loaded from QAID when empty. Gap skips detection when
// set; Providers and Domains are derived from the job's evidence when nil.
type ProposeRequest struct {
	JobID          uuid.UUID   `json:"job_id"`
	QAID           *uuid.UUID  `json:"qa_id,omitempty"`
	Question       string      `json:"question"`
	AnswerMarkdown string      `json:"answer_markdown"`
	UsedSourceIDs  []uuid.UUID `json:"used_source_ids"`
	Gap            *gap.Result `json:"gap,omitempty"`
	Providers      []string    `json:"providers,omitempty"`
	Domains        []string    `json:"domains,omitempty"`
}

// ProposeResult carries the gap decision and, when a gap was found and a
// usable plan produced, the persisted plan with its validation report.
type ProposeResult struct {
	Gap        gap.Result         `json:"gap"`
	Plan       *db.Plan           `json:"plan,omitempty"`
	Validation *validation.Result `json:"validation,omitempty"`
}

// Service is the propose side of the subsystem.
type Service struct {
	store       Store
	detector    *gap.Detector
	synthesizer *microplan.Synthesizer
	validator   *validation.Validator
	logger      *zap.Logger
}

// NewService wires the proposal pipeline.
func NewService(store Store, detector *gap.Detector, synth *microplan.Synthesizer, validator *validation.Validator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, detector: detector, synthesizer: synth, validator: validator, logger: logger}
}

// DetectGap runs the detector only.
func (s *Service) DetectGap(ctx context.Context, req ProposeRequest) (gap.Result, error) {
	if err := s.fillQuestion(ctx, &req); err != nil {
		return gap.Result{}, err
	}
	sources, err := s.store.ListSources(ctx, req.JobID)
	if err != nil {
		return gap.Result{}, fmt.Errorf("failed to load evidence: %w", err)
	}
	return s.detect(req, sources), nil
}

// Propose detects a gap and, if one exists, synthesizes, validates and
// persists a PROPOSED plan.
func (s *Service) Propose(ctx context.Context, req ProposeRequest) (*ProposeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "microresearch.propose", "job_id", req.JobID.String())
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	job, err := s.store.GetJob(ctx, req.JobID)
	if err != nil {
		spanErr = mapStoreError(err)
		return nil, spanErr
	}
	if err := s.fillQuestion(ctx, &req); err != nil {
		spanErr = err
		return nil, err
	}
	sources, err := s.store.ListSources(ctx, job.ID)
	if err != nil {
		spanErr = fmt.Errorf("failed to load evidence: %w", err)
		return nil, spanErr
	}

	var detected gap.Result
	if req.Gap != nil {
		detected = *req.Gap
	} else {
		detected = s.detect(req, sources)
	}
	out := &ProposeResult{Gap: detected}
	if !detected.ShouldPropose {
		return out, nil
	}

	providers, domains := req.Providers, req.Domains
	if providers == nil || domains == nil {
		p, d := EvidenceSummary(sources)
		if providers == nil {
			providers = p
		}
		if domains == nil {
			domains = d
		}
	}

	target := job.Target()
	plan, llmResp := s.synthesizer.Propose(ctx, microplan.ProposeRequest{
		Question:    req.Question,
		Gap:         detected,
		Target:      target,
		SourceCount: len(sources),
		Providers:   providers,
		Domains:     domains,
	})
	if plan == nil || len(plan.Steps) == 0 {
		s.logger.Warn("Synthesized plan has no usable steps, discarding",
			zap.String("job_id", job.ID.String()),
			zap.String("intent", string(detected.Intent)),
		)
		return out, nil
	}

	report := s.validator.Validate(plan.Steps, target)
	metrics.PlanValidationIssues.WithLabelValues("error").Add(float64(len(report.Errors)))
	metrics.PlanValidationIssues.WithLabelValues("warning").Add(float64(len(report.Warnings)))
	if verr := report.Err(); verr != nil {
		s.logger.Warn("Plan validation found errors", zap.Error(verr))
	}

	tracker := pricing.NewUsageTracker()
	if llmResp != nil && !llmResp.Cached {
		tracker.AddLLM(llmResp.Provider, llmResp.Model, llmResp.InputTokens, llmResp.OutputTokens)
	}
	usage := tracker.Snapshot()

	row := &db.Plan{
		JobID:              job.ID,
		QAID:               req.QAID,
		Question:           req.Question,
		GapStatement:       plan.GapStatement,
		Intent:             plan.Intent,
		Steps:              db.StepList(plan.Steps),
		PlanMarkdown:       plan.SummaryMarkdown,
		Status:             db.PlanProposed,
		EstimatedCostLabel: report.CostLabel,
		LLMUsage:           db.UsageDoc(usage),
		TotalCostUSD:       usage.TotalCostUSD,
	}
	if err := s.store.CreatePlan(ctx, row); err != nil {
		spanErr = fmt.Errorf("failed to persist plan: %w", err)
		return nil, spanErr
	}

	source := "llm"
	if plan.UsedFallback {
		source = "fallback"
	}
	metrics.PlansProposed.WithLabelValues(plan.Intent, source).Inc()
	metrics.PlanSteps.Observe(float64(len(plan.Steps)))

	trace(s.store, job.ID, "micro_plan_proposed", "Micro-research plan proposed", plan.GapStatement,
		map[string]interface{}{
			"plan_id":               row.ID.String(),
			"intent":                plan.Intent,
			"step_count":            len(plan.Steps),
			"estimated_query_count": plan.EstimatedQueryCount,
			"cost_label":            report.CostLabel,
			"used_fallback":         plan.UsedFallback,
		})
	s.logger.Info("Micro-research plan proposed",
		zap.String("plan_id", row.ID.String()),
		zap.String("job_id", job.ID.String()),
		zap.String("intent", plan.Intent),
		zap.Int("steps", len(plan.Steps)),
		zap.Bool("used_fallback", plan.UsedFallback),
	)

	out.Plan = row
	out.Validation = &report
	return out, nil
}

func (s *Service) fillQuestion(ctx context.Context, req *ProposeRequest) error {
	if req.QAID == nil || (req.Question != "" && req.AnswerMarkdown != "") {
		if req.Question == "" {
			return fmt.Errorf("%w: question is required", ErrInvalidRequest)
		}
		return nil
	}
	qa, err := s.store.GetQA(ctx, *req.QAID)
	if err != nil {
		return mapStoreError(err)
	}
	if qa.JobID != req.JobID {
		return fmt.Errorf("%w: qa %s does not belong to job %s", ErrNotFound, qa.ID, req.JobID)
	}
	if req.Question == "" {
		req.Question = qa.Question
	}
	if req.AnswerMarkdown == "" {
		req.AnswerMarkdown = qa.AnswerMarkdown
	}
	if req.UsedSourceIDs == nil {
		req.UsedSourceIDs = qa.UsedSourceIDs
	}
	return nil
}

func (s *Service) detect(req ProposeRequest, sources []db.Source) gap.Result {
	evidence := make([]gap.Evidence, len(sources))
	for i, src := range sources {
		evidence[i] = gap.Evidence{ID: src.ID, URL: src.URL}
	}
	res := s.detector.Detect(req.Question, req.AnswerMarkdown, req.UsedSourceIDs, evidence)
	metrics.GapDetections.WithLabelValues(string(res.DetectionMethod), fmt.Sprint(res.ShouldPropose)).Inc()
	return res
}

// EvidenceSummary returns the sorted provider and domain sets of sources.
func EvidenceSummary(sources []db.Source) (providers, domains []string) {
	ps := make(map[string]bool)
	ds := make(map[string]bool)
	for _, s := range sources {
		if s.Provider != "" {
			ps[s.Provider] = true
		}
		if d := microplan.ExtractDomain(s.URL); d != "" {
			ds[d] = true
		}
	}
	providers = make([]string, 0, len(ps))
	for p := range ps {
		providers = append(providers, p)
	}
	domains = make([]string, 0, len(ds))
	for d := range ds {
		domains = append(domains, d)
	}
	sort.Strings(providers)
	sort.Strings(domains)
	return providers, domains
}
