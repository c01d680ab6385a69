// Package validation checks proposed plans against connector capabilities
// and estimates their cost and runtime.
package validation

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/pricing"
)

const (
	costThresholdSmall    = 0.10
	costThresholdModerate = 0.30

	runtimeThresholdShort  = 2
	runtimeThresholdMedium = 4

	reanswerBreakdownKey = "llm_reanswer"
)

// Issue is a single validation finding.
type Issue struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Result of validating a plan.
type Result struct {
	IsValid                bool               `json:"is_valid"`
	Errors                 []Issue            `json:"errors"`
	Warnings               []Issue            `json:"warnings"`
	CostEstimateUSD        float64            `json:"cost_estimate_usd"`
	CostLabel              string             `json:"cost_label"`
	CostBreakdown          map[string]float64 `json:"cost_breakdown"`
	RuntimeEstimateSeconds int                `json:"runtime_estimate_seconds"`
	RuntimeLabel           string             `json:"runtime_label"`
}

// Error is a plan that failed structural validation. It is logged, never
// returned to proposers.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.Field + ": " + is.Message
	}
	return "plan validation failed: " + strings.Join(parts, "; ")
}

// Err returns an *Error when the result has errors, else nil.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &Error{Issues: r.Errors}
}

// Validator checks steps against the capability registry and plan caps.
type Validator struct {
	registry CapabilityRegistry
	limits   microplan.Limits
	logger   *zap.Logger
}

// NewValidator creates a Validator.
func NewValidator(registry CapabilityRegistry, limits microplan.Limits, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxSteps <= 0 || limits.MaxExaQueries <= 0 {
		limits = microplan.DefaultLimits()
	}
	return &Validator{registry: registry, limits: limits, logger: logger}
}

// Validate never blocks a plan by itself; callers decide what to do with
// errors. Target is accepted for connector checks that depend on it.
func (v *Validator) Validate(steps []microplan.Step, _ microplan.Target) Result {
	res := Result{CostBreakdown: make(map[string]float64)}
	available := v.registry.AvailableConnectors()

	if len(steps) > v.limits.MaxSteps {
		res.Errors = append(res.Errors, Issue{
			Field:    "plan_steps",
			Message:  fmt.Sprintf("Plan exceeds maximum steps (%d > %d)", len(steps), v.limits.MaxSteps),
			Severity: "error",
		})
	}

	exaQueries := 0
	for _, s := range steps {
		if s.Connector == microplan.ConnectorExa {
			exaQueries += queryUnits(s)
		}
	}
	if exaQueries > v.limits.MaxExaQueries {
		res.Warnings = append(res.Warnings, Issue{
			Field:    "plan_steps",
			Message:  fmt.Sprintf("Plan has many Exa queries (%d), may be costly", exaQueries),
			Severity: "warning",
		})
	}

	for _, s := range steps {
		for _, issue := range validateStep(s, available) {
			if issue.Severity == "warning" {
				res.Warnings = append(res.Warnings, issue)
			} else {
				res.Errors = append(res.Errors, issue)
			}
		}
		cost := stepCost(s)
		key := s.Connector
		if key == "" {
			key = "unknown"
		}
		res.CostBreakdown[key] += cost
		res.CostEstimateUSD += cost
		res.RuntimeEstimateSeconds += stepRuntime(s)
	}

	reanswer := pricing.ReanswerCost()
	res.CostBreakdown[reanswerBreakdownKey] = reanswer
	res.CostEstimateUSD += reanswer

	res.CostLabel = CostLabel(res.CostEstimateUSD)
	res.RuntimeLabel = RuntimeLabel(len(steps))
	res.IsValid = len(res.Errors) == 0

	v.logger.Info("Plan validation",
		zap.Bool("is_valid", res.IsValid),
		zap.Int("error_count", len(res.Errors)),
		zap.Int("warning_count", len(res.Warnings)),
		zap.Float64("cost_usd", res.CostEstimateUSD),
		zap.String("cost_label", res.CostLabel),
	)
	return res
}

func validateStep(s microplan.Step, available map[string]bool) []Issue {
	name := s.Name
	if name == "" {
		name = "unnamed"
	}
	field := func(suffix string) string { return "step." + name + "." + suffix }
	errorf := func(f, format string, args ...interface{}) Issue {
		return Issue{Field: f, Message: fmt.Sprintf(format, args...), Severity: "error"}
	}

	var issues []Issue
	switch {
	case s.Connector == "":
		issues = append(issues, errorf(field("connector"), "Connector name is required"))
	case !available[s.Connector]:
		issues = append(issues, errorf(field("connector"),
			"Connector '%s' is not available (missing API key or not registered)", s.Connector))
	}

	p := s.Params
	switch s.Connector {
	case microplan.ConnectorExa:
		mode, hasMode := p["mode"]
		modeStr, _ := mode.(string)
		if hasMode && mode != nil && modeStr != "search" && modeStr != "similar" {
			issues = append(issues, errorf(field("params.mode"), "Invalid Exa mode: %v", mode))
		}
		if modeStr == "search" && len(queries(s)) == 0 {
			issues = append(issues, errorf(field("params.queries"), "Exa search requires at least one query"))
		}

	case microplan.ConnectorOpenAIWeb:
		mode, _ := p["mode"].(string)
		switch mode {
		case "":
			issues = append(issues, errorf(field("params.mode"),
				"OpenAI web search requires explicit mode (competitors, founding, leadership, person, news)"))
		case "competitors", "founding", "leadership", "person", "news", "general":
		default:
			issues = append(issues, errorf(field("params.mode"), "Invalid OpenAI web mode: %s", mode))
		}
		if personName, _ := p["person_name"].(string); mode == "person" && personName == "" {
			issues = append(issues, errorf(field("params.person_name"), "OpenAI person mode requires person_name"))
		}

	case microplan.ConnectorPDL:
		// An empty full_name is the leadership sentinel; only a missing key is suspicious.
		if _, ok := p["full_name"]; !ok {
			issues = append(issues, Issue{
				Field:    field("params.full_name"),
				Message:  "PDL search should specify full_name (use empty string for leadership search)",
				Severity: "warning",
			})
		}

	case microplan.ConnectorPDLCompany:
		company, _ := p["company_name"].(string)
		website, _ := p["website"].(string)
		if company == "" && website == "" {
			issues = append(issues, errorf(field("params"),
				"PDL company requires at least one identifier (company_name or website)"))
		}

	case microplan.ConnectorGLEIF:
		if company, _ := p["company_name"].(string); company == "" {
			issues = append(issues, errorf(field("params.company_name"), "GLEIF lookup requires company_name"))
		}
	}
	return issues
}

func queries(s microplan.Step) []string {
	switch q := s.Params["queries"].(type) {
	case []string:
		return q
	case []interface{}:
		out := make([]string, 0, len(q))
		for _, item := range q {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func queryUnits(s microplan.Step) int {
	if n := len(queries(s)); n > 1 {
		return n
	}
	return 1
}

// StepUnits is the billable unit count of a step: one per full-text search
// sub-query, one call for every other connector.
func StepUnits(s microplan.Step) int {
	if s.Connector == microplan.ConnectorExa {
		return queryUnits(s)
	}
	return 1
}

func stepCost(s microplan.Step) float64 {
	return pricing.ConnectorUnitCost(s.Connector) * float64(StepUnits(s))
}

func stepRuntime(s microplan.Step) int {
	switch s.Connector {
	case microplan.ConnectorExa:
		return 3
	case microplan.ConnectorOpenAIWeb:
		return 8
	case microplan.ConnectorPDL, microplan.ConnectorPDLCompany:
		return 2
	case microplan.ConnectorGLEIF:
		return 1
	}
	return 3
}

// CostLabel buckets a USD estimate into small, moderate or large.
func CostLabel(cost float64) string {
	switch {
	case cost < costThresholdSmall:
		return "small"
	case cost < costThresholdModerate:
		return "moderate"
	default:
		return "large"
	}
}

// RuntimeLabel buckets a step count into short, medium or long.
func RuntimeLabel(steps int) string {
	switch {
	case steps < runtimeThresholdShort:
		return "short"
	case steps < runtimeThresholdMedium:
		return "medium"
	default:
		return "long"
	}
}
