package microplan

import (
	"time"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
)

var customerSitePages = []string{"customers", "case-studies", "success-stories", "partners", "news", "press"}

// fallbackTable maps a detected intent to a deterministic task list used when
// the planner LLM yields nothing usable.
var fallbackTable = map[gap.Intent][]Task{
	gap.IntentFundingInvestors: {
		{Type: TaskExaFunding, Priority: PriorityHigh},
		{Type: TaskPDLCompany, Priority: PriorityMedium},
		{Type: TaskExaNews, Priority: PriorityLow, QueryHint: "funding round investors lead"},
	},
	gap.IntentResearchPapers: {
		{Type: TaskExaPaper, Priority: PriorityHigh, QueryHint: "paper publication DOI journal"},
		{Type: TaskExaGeneral, Priority: PriorityMedium, QueryHint: "research paper academic publication"},
	},
	gap.IntentPatents: {
		{Type: TaskExaPatent, Priority: PriorityHigh},
		{Type: TaskExaPaper, Priority: PriorityMedium, QueryHint: "patent technology innovation"},
	},
	gap.IntentFounderBackground: {
		{Type: TaskOpenAIWeb, Priority: PriorityHigh, OpenAIMode: ModeLeadership, QueryHint: "founders executives biography career history"},
		{Type: TaskExaSite, Priority: PriorityMedium, QueryHint: "team founders leadership bio"},
	},
	gap.IntentCompetitors: {
		{Type: TaskOpenAIWeb, Priority: PriorityHigh, OpenAIMode: ModeCompetitors, QueryHint: "competitors alternatives market"},
		{Type: TaskExaSimilar, Priority: PriorityMedium},
	},
	gap.IntentTechnology: {
		{Type: TaskExaSite, Priority: PriorityHigh, QueryHint: "technology platform architecture API",
			SubpageTargets: []string{"technology", "api", "docs", "developers", "platform", "solutions"}},
		{Type: TaskExaPaper, Priority: PriorityMedium},
	},
	gap.IntentRegulatory: {
		{Type: TaskExaNews, Priority: PriorityHigh, QueryHint: "regulatory compliance approval FDA SEC"},
		{Type: TaskExaGeneral, Priority: PriorityMedium, QueryHint: "filing certification license"},
	},
	gap.IntentRevenueARR: {
		{Type: TaskExaNews, Priority: PriorityHigh, QueryHint: "revenue growth ARR financials earnings"},
		{Type: TaskPDLCompany, Priority: PriorityMedium},
	},
	gap.IntentLitigation: {
		{Type: TaskExaNews, Priority: PriorityHigh, QueryHint: "lawsuit litigation legal dispute court"},
		{Type: TaskExaGeneral, Priority: PriorityMedium, QueryHint: "settlement judgment ruling"},
	},
	gap.IntentAcquisitions: {
		{Type: TaskExaNews, Priority: PriorityHigh, QueryHint: "acquisition merger M&A deal buy"},
		{Type: TaskExaHistorical, Priority: PriorityMedium, QueryHint: "acquired merged"},
	},
	gap.IntentLegalEntity: {
		{Type: TaskGLEIF, Priority: PriorityHigh},
		{Type: TaskOpenAIWeb, Priority: PriorityMedium, OpenAIMode: ModeFounding, QueryHint: "legal entity registration SEC incorporation"},
	},
	gap.IntentProgramsContracts: {
		{Type: TaskExaGeneral, Priority: PriorityHigh, QueryHint: "program project initiative consortium grant award"},
		{Type: TaskExaNews, Priority: PriorityMedium, QueryHint: "government contract award announcement grant program"},
	},
	gap.IntentCustomers: {
		{Type: TaskExaSite, Priority: PriorityHigh, QueryHint: "customers clients commercial partners case study",
			SubpageTargets:  customerSitePages,
			HighlightsQuery: "customer client case study partner deployment contract procurement pilot"},
		{Type: TaskExaNews, Priority: PriorityHigh, QueryHint: "commercial customer client partner collaboration deployment contract pilot",
			HighlightsQuery: "customer client partner agreement strategic announces deployment contract"},
		{Type: TaskExaGeneral, Priority: PriorityLow, QueryHint: "commercial customers clients partners case study deployment"},
	},
}

// FallbackTasks returns the deterministic task list for an intent. The
// customer news task gets a five-year window ending now.
func FallbackTasks(intent gap.Intent, hints SlotHints, now time.Time) []Task {
	tmpl, ok := fallbackTable[intent]
	if !ok {
		return []Task{{Type: TaskExaGeneral, Priority: PriorityMedium, QueryHint: hints.QueryHint}}
	}
	tasks := make([]Task, len(tmpl))
	copy(tasks, tmpl)
	if intent == gap.IntentCustomers {
		for i := range tasks {
			if tasks[i].Type == TaskExaNews {
				tasks[i].StartDate = now.UTC().AddDate(0, 0, -365*5).Format(dateLayout)
			}
		}
	}
	return tasks
}
