package microplan

import (
	"fmt"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
)

// repairLowQuality rewrites full-text queries that reduce to the target's
// name or domain and, for customer questions, adds missing site and news
// coverage while the caps allow.
func (tr translator) repairLowQuality(steps []Step, questionHint string, intent string, limits Limits) []Step {
	if len(steps) == 0 || questionHint == "" {
		return steps
	}

	company := strings.ToLower(strings.TrimSpace(tr.target.CompanyName))
	vacuous := make(map[string]struct{})
	if company != "" {
		vacuous[company] = struct{}{}
	}
	if tr.domain != "" {
		vacuous[strings.ToLower(tr.domain)] = struct{}{}
	}

	repaired := make([]Step, 0, len(steps)+2)
	for _, step := range steps {
		if step.Connector != ConnectorExa {
			repaired = append(repaired, step)
			continue
		}
		queries := stringSlice(step.Params["queries"])
		needsRepair := false
		for _, q := range queries {
			if _, hit := vacuous[strings.ToLower(strings.TrimSpace(q))]; hit {
				needsRepair = true
				break
			}
		}
		if needsRepair {
			params := cloneParams(step.Params)
			expanded := make([]string, 0, len(queries))
			for _, q := range queries {
				expanded = append(expanded, join(q, questionHint))
			}
			params["queries"] = expanded
			if s, _ := params["highlights_query"].(string); s == "" {
				params["highlights_query"] = questionHint
			}
			step.Params = params
		}
		repaired = append(repaired, step)
	}

	if intent != string(gap.IntentCustomers) {
		return repaired
	}

	hasSite, hasNews := false, false
	exaCount := 0
	for _, s := range repaired {
		if s.Connector == ConnectorExa {
			exaCount++
			if _, ok := s.Params["include_domains"]; ok || strings.Contains(s.Name, "site") {
				hasSite = true
			}
		}
		if c, _ := s.Params["category"].(string); c == "news" {
			hasNews = true
		}
	}

	query := join(tr.target.CompanyName, questionHint)
	if !hasSite && exaCount < limits.MaxExaQueries && len(repaired) < limits.MaxSteps {
		repaired = append(repaired, Step{
			Name:      fmt.Sprintf("micro_%s_%d", TaskExaSite, len(repaired)),
			Connector: ConnectorExa,
			Params: map[string]interface{}{
				"mode":             "search",
				"queries":          []string{query},
				"category":         "company",
				"subpage_targets":  []string{"customers", "case-studies", "partners"},
				"highlights_query": questionHint,
			},
		})
		exaCount++
	}
	if !hasNews && exaCount < limits.MaxExaQueries && len(repaired) < limits.MaxSteps {
		repaired = append(repaired, Step{
			Name:      fmt.Sprintf("micro_%s_%d", TaskExaNews, len(repaired)),
			Connector: ConnectorExa,
			Params: map[string]interface{}{
				"mode":                 "search",
				"queries":              []string{query},
				"category":             "news",
				"start_published_date": tr.daysAgo(365 * 5),
				"highlights_query":     questionHint,
			},
		})
	}
	return repaired
}

func cloneParams(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// stringSlice reads a string list param that may have been decoded from JSON.
func stringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
