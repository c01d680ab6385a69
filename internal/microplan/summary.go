package microplan

import (
	"fmt"
	"strings"
)

var taskDescriptions = map[TaskType]string{
	TaskExaNews:       "Search recent news and press releases",
	TaskExaSite:       "Deep crawl the company's website (with subpages)",
	TaskExaFunding:    "Search for funding announcements and investors",
	TaskExaPatent:     "Search patent databases and IP filings",
	TaskExaGeneral:    "Search primary web sources (excluding aggregators)",
	TaskExaSimilar:    "Find similar/competitor companies",
	TaskExaPaper:      "Search academic and technical papers",
	TaskExaHistorical: "Search historical records (time-bounded)",
	TaskOpenAIWeb:     "AI-powered web research with reasoning",
	TaskPDLEnrich:     "Enrich person profile with LinkedIn data",
	TaskPDLLeadership: "Discover company leadership and executives",
	TaskPDLCompany:    "Look up company firmographics and stats",
	TaskGLEIF:         "Look up Legal Entity Identifier (LEI) from GLEIF registry",
}

// SummaryMarkdown renders the human-readable plan shown before confirmation.
func SummaryMarkdown(gapStatement string, tasks []Task) string {
	if len(tasks) == 0 {
		return "No additional research tasks proposed."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Gap:** %s\n\n**Proposed research:**", gapStatement)
	for i, t := range tasks {
		desc, ok := taskDescriptions[t.Type]
		if !ok {
			desc = string(t.Type)
		}
		line := fmt.Sprintf("%d. %s", i+1, desc)
		if t.QueryHint != "" {
			line += fmt.Sprintf(" - _%s_", t.QueryHint)
		}
		if t.Priority != "" && t.Priority != PriorityMedium {
			line += fmt.Sprintf(" [%s]", t.Priority)
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}
