package microplan

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ErrNoJSON is returned when the planner output holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in planner response")

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// RawTask is the loosely-typed task shape emitted by the planner LLM.
type RawTask struct {
	Type            string   `json:"type" jsonschema:"enum=exa_news_search,enum=exa_site_search,enum=exa_funding_search,enum=exa_patent_search,enum=exa_general_search,enum=exa_similar_search,enum=exa_research_paper,enum=exa_historical_search,enum=openai_web_search,enum=pdl_person_enrich,enum=pdl_company_leadership,enum=pdl_company_search,enum=gleif_lei_lookup"`
	Priority        string   `json:"priority,omitempty" jsonschema:"enum=high,enum=medium,enum=low"`
	QueryHint       string   `json:"query_hint,omitempty"`
	OpenAIMode      string   `json:"openai_mode,omitempty" jsonschema:"enum=competitors,enum=founding,enum=leadership,enum=person,enum=news"`
	PersonName      string   `json:"person_name,omitempty"`
	SubpageTargets  []string `json:"subpage_targets,omitempty"`
	HighlightsQuery string   `json:"highlights_query,omitempty"`
	StartDate       string   `json:"start_date,omitempty" jsonschema:"format=date"`
	EndDate         string   `json:"end_date,omitempty" jsonschema:"format=date"`
}

// Response is the JSON document the planner LLM is asked to produce.
type Response struct {
	Gap       string    `json:"gap" jsonschema:"description=Brief description of what is missing"`
	Intent    string    `json:"intent"`
	Tasks     []RawTask `json:"tasks" jsonschema:"maxItems=3"`
	SlotHints SlotHints `json:"slot_hints,omitempty"`
}

// wireResponse decodes tasks one by one so a malformed task drops alone.
type wireResponse struct {
	Gap       string            `json:"gap"`
	Intent    *string           `json:"intent"`
	Tasks     []json.RawMessage `json:"tasks"`
	SlotHints SlotHints         `json:"slot_hints"`
}

// ParseResponse extracts the first JSON object from text and repairs each
// task against defaults merged with the planner's own slot hints.
func ParseResponse(text string, defaults SlotHints, logger *zap.Logger) (*DSL, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return nil, ErrNoJSON
	}
	var wire wireResponse
	if err := json.Unmarshal([]byte(match), &wire); err != nil {
		return nil, err
	}

	hints := defaults.Merge(wire.SlotHints)
	dsl := &DSL{Gap: wire.Gap, Intent: "general", SlotHints: hints}
	if wire.Intent != nil {
		dsl.Intent = *wire.Intent
	}

	for _, raw := range wire.Tasks {
		var rt RawTask
		if err := json.Unmarshal(raw, &rt); err != nil {
			logger.Warn("Dropping undecodable planner task", zap.Error(err))
			continue
		}
		task, ok := RepairTask(rt, hints)
		if !ok {
			logger.Warn("Task failed validation and repair, dropping", zap.String("type", rt.Type))
			continue
		}
		dsl.Tasks = append(dsl.Tasks, task)
	}
	return dsl, nil
}

type modeKeywords struct {
	mode     OpenAIMode
	keywords []string
}

// Checked in order; the first keyword hit wins.
var modeInference = []modeKeywords{
	{ModeCompetitors, []string{"competitor", "alternative", "rival", "vs", "versus", "market"}},
	{ModeFounding, []string{"founding", "founded", "incorporation", "registered", "legal entity", "sec"}},
	{ModeLeadership, []string{"founder", "executive", "ceo", "leadership", "team", "board"}},
	{ModePerson, []string{"biography", "career", "background", "education"}},
	{ModeNews, []string{"news", "announcement", "press", "recent"}},
}

// InferOpenAIMode guesses a reasoning-search mode from a query hint.
func InferOpenAIMode(hint string) (OpenAIMode, bool) {
	h := strings.ToLower(hint)
	for _, mk := range modeInference {
		for _, kw := range mk.keywords {
			if strings.Contains(h, kw) {
				return mk.mode, true
			}
		}
	}
	return "", false
}

// RepairTask applies the repair rules to one planner task. It returns false
// when the task cannot be salvaged and must be dropped.
func RepairTask(rt RawTask, hints SlotHints) (Task, bool) {
	t := TaskType(strings.TrimSpace(rt.Type))

	if t == TaskPDLPersonSearch {
		if rt.PersonName != "" || hints.PersonName != "" {
			t = TaskPDLEnrich
			if rt.PersonName == "" {
				rt.PersonName = hints.PersonName
			}
		} else {
			t = TaskPDLLeadership
		}
	}
	if _, known := taskConnectors[t]; !known {
		return Task{}, false
	}

	mode := OpenAIMode(strings.TrimSpace(rt.OpenAIMode))
	if t == TaskOpenAIWeb && mode == "" {
		inferred, ok := InferOpenAIMode(rt.QueryHint)
		if !ok {
			return Task{}, false
		}
		mode = inferred
	}
	if mode != "" && !mode.valid() {
		return Task{}, false
	}

	if mode == ModePerson && rt.PersonName == "" {
		if hints.PersonName != "" {
			rt.PersonName = hints.PersonName
		} else {
			mode = ModeLeadership
		}
	}

	if t == TaskPDLEnrich && rt.PersonName == "" {
		if hints.PersonName == "" {
			return Task{}, false
		}
		rt.PersonName = hints.PersonName
	}

	if rt.QueryHint == "" {
		rt.QueryHint = hints.QueryHint
	}

	priority := Priority(strings.TrimSpace(rt.Priority))
	switch priority {
	case "":
		priority = PriorityMedium
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return Task{}, false
	}

	return Task{
		Type:            t,
		Priority:        priority,
		QueryHint:       rt.QueryHint,
		OpenAIMode:      mode,
		PersonName:      rt.PersonName,
		SubpageTargets:  rt.SubpageTargets,
		HighlightsQuery: rt.HighlightsQuery,
		StartDate:       rt.StartDate,
		EndDate:         rt.EndDate,
	}, true
}
