package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gap detection
	GapDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_gap_detections_total",
			Help: "Gap detector decisions by method and outcome",
		},
		[]string{"method", "should_propose"},
	)

	// Plan synthesis
	PlansProposed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_plans_proposed_total",
			Help: "Plans persisted by intent and source (llm or fallback)",
		},
		[]string{"intent", "source"},
	)

	PlanSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "microresearch_plan_steps",
			Help:    "Number of connector steps per proposed plan",
			Buckets: []float64{0, 1, 2, 3, 4},
		},
	)

	PlanValidationIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_plan_validation_issues_total",
			Help: "Validator errors and warnings",
		},
		[]string{"severity"},
	)

	SynthesisCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_synthesis_cache_total",
			Help: "Planner prompt cache lookups",
		},
		[]string{"result"},
	)

	// Execution
	PlanExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_plan_executions_total",
			Help: "Plans reaching a terminal state",
		},
		[]string{"status"},
	)

	PlanExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "microresearch_plan_execution_duration_seconds",
			Help:    "Wall time from claim to terminal state",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
		},
	)

	ClaimRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_claim_rejections_total",
			Help: "Execute calls rejected before claiming",
		},
		[]string{"reason"},
	)

	ConnectorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_connector_calls_total",
			Help: "Connector step dispatches",
		},
		[]string{"connector", "status"},
	)

	ConnectorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microresearch_connector_latency_seconds",
			Help:    "Connector step latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connector"},
	)

	EvidenceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_evidence_outcomes_total",
			Help: "Normalized snippets by dedup outcome (new_source, excerpt, duplicate)",
		},
		[]string{"outcome"},
	)

	PlanCostUSD = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "microresearch_plan_cost_usd",
			Help:    "Recorded cost per terminal plan",
			Buckets: []float64{0.01, 0.05, 0.1, 0.3, 1},
		},
	)

	PricingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_pricing_fallback_total",
			Help: "Total number of pricing fallbacks (missing/unknown model)",
		},
		[]string{"reason"},
	)

	// Recovery
	StalePlansReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "microresearch_stale_plans_reclaimed_total",
			Help: "RUNNING plans forced to FAILED by the sweeper",
		},
	)

	RetentionPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_retention_purged_total",
			Help: "Rows deleted by retention",
		},
		[]string{"table"},
	)

	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microresearch_config_reloads_total",
			Help: "Configuration hot reloads",
		},
		[]string{"status"},
	)
)
