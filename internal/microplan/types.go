package microplan

import (
	"fmt"
	"strings"
)

// TaskType is a DSL task kind the planner LLM may emit.
type TaskType string

const (
	TaskExaNews       TaskType = "exa_news_search"
	TaskExaSite       TaskType = "exa_site_search"
	TaskExaFunding    TaskType = "exa_funding_search"
	TaskExaPatent     TaskType = "exa_patent_search"
	TaskExaGeneral    TaskType = "exa_general_search"
	TaskExaSimilar    TaskType = "exa_similar_search"
	TaskExaPaper      TaskType = "exa_research_paper"
	TaskExaHistorical TaskType = "exa_historical_search"
	TaskOpenAIWeb     TaskType = "openai_web_search"
	TaskPDLEnrich     TaskType = "pdl_person_enrich"
	TaskPDLLeadership TaskType = "pdl_company_leadership"
	TaskPDLCompany    TaskType = "pdl_company_search"
	TaskGLEIF         TaskType = "gleif_lei_lookup"

	// TaskPDLPersonSearch is deprecated; repair rewrites it to enrich or leadership.
	TaskPDLPersonSearch TaskType = "pdl_person_search"
)

// Connector keys of the external connector registry.
const (
	ConnectorExa        = "exa"
	ConnectorOpenAIWeb  = "openai_web"
	ConnectorPDL        = "pdl"
	ConnectorPDLCompany = "pdl_company"
	ConnectorGLEIF      = "gleif"
)

var taskConnectors = map[TaskType]string{
	TaskExaNews:       ConnectorExa,
	TaskExaSite:       ConnectorExa,
	TaskExaFunding:    ConnectorExa,
	TaskExaPatent:     ConnectorExa,
	TaskExaGeneral:    ConnectorExa,
	TaskExaSimilar:    ConnectorExa,
	TaskExaPaper:      ConnectorExa,
	TaskExaHistorical: ConnectorExa,
	TaskOpenAIWeb:     ConnectorOpenAIWeb,
	TaskPDLEnrich:     ConnectorPDL,
	TaskPDLLeadership: ConnectorPDL,
	TaskPDLCompany:    ConnectorPDLCompany,
	TaskGLEIF:         ConnectorGLEIF,
}

// ConnectorFor returns the connector key serving a task kind.
func ConnectorFor(t TaskType) (string, bool) {
	c, ok := taskConnectors[t]
	return c, ok
}

// IsExa reports whether the task kind runs a full-text search sub-query.
func (t TaskType) IsExa() bool {
	return strings.HasPrefix(string(t), "exa_")
}

// Priority of a DSL task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// OpenAIMode selects the reasoning-search behaviour.
type OpenAIMode string

const (
	ModeCompetitors OpenAIMode = "competitors"
	ModeFounding    OpenAIMode = "founding"
	ModeLeadership  OpenAIMode = "leadership"
	ModePerson      OpenAIMode = "person"
	ModeNews        OpenAIMode = "news"
)

func (m OpenAIMode) valid() bool {
	switch m {
	case ModeCompetitors, ModeFounding, ModeLeadership, ModePerson, ModeNews:
		return true
	}
	return false
}

// Task is one accepted DSL task.
type Task struct {
	Type            TaskType   `json:"type"`
	Priority        Priority   `json:"priority"`
	QueryHint       string     `json:"query_hint,omitempty"`
	OpenAIMode      OpenAIMode `json:"openai_mode,omitempty"`
	PersonName      string     `json:"person_name,omitempty"`
	SubpageTargets  []string   `json:"subpage_targets,omitempty"`
	HighlightsQuery string     `json:"highlights_query,omitempty"`
	StartDate       string     `json:"start_date,omitempty"`
	EndDate         string     `json:"end_date,omitempty"`
}

// DSL is the parsed and repaired planner output.
type DSL struct {
	Gap       string
	Intent    string
	Tasks     []Task
	SlotHints SlotHints
}

// Step is a connector-ready unit of work. Name is unique within a plan.
type Step struct {
	Name      string                 `json:"name"`
	Connector string                 `json:"connector"`
	Params    map[string]interface{} `json:"params"`
}

func stepName(t TaskType, index int) string {
	return fmt.Sprintf("micro_%s_%d", t, index)
}

// TaskTypeFromStepName recovers the task kind from a step name.
func TaskTypeFromStepName(name string) (TaskType, bool) {
	rest, ok := strings.CutPrefix(name, "micro_")
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return "", false
	}
	t := TaskType(rest[:i])
	if _, known := taskConnectors[t]; !known {
		return "", false
	}
	return t, true
}

// Limits are the hard caps applied while assembling a plan.
type Limits struct {
	MaxSteps      int `mapstructure:"max_steps" yaml:"max_steps"`
	MaxExaQueries int `mapstructure:"max_exa_queries" yaml:"max_exa_queries"`
}

// DefaultLimits returns 4 steps and 3 full-text queries.
func DefaultLimits() Limits {
	return Limits{MaxSteps: 4, MaxExaQueries: 3}
}

// Target identifies the research subject of the owning job.
type Target struct {
	CompanyName string `json:"company_name"`
	Website     string `json:"website"`
	Context     string `json:"context"`
}

// Domain is the website host without a www. prefix.
func (t Target) Domain() string {
	return ExtractDomain(t.Website)
}

// Plan is the synthesizer output.
type Plan struct {
	GapStatement        string `json:"gap_statement"`
	Intent              string `json:"intent"`
	Steps               []Step `json:"steps"`
	SummaryMarkdown     string `json:"summary_markdown"`
	EstimatedQueryCount int    `json:"estimated_query_count"`
	UsedFallback        bool   `json:"used_fallback"`
}
