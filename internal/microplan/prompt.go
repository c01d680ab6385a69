package microplan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/llm"
)

// SystemPrompt frames the planner call.
const SystemPrompt = "You are a research planning assistant that outputs JSON."

const maxListedDomains = 10

// PromptInput is everything the planner prompt renders.
type PromptInput struct {
	Question     string
	GapStatement string
	Intent       string
	Target       Target
	Hints        SlotHints
	SourceCount  int
	Providers    []string
	Domains      []string
}

var responseSchema = llm.SchemaJSON(&Response{})

// BuildPrompt renders the planner user prompt.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("You are a research planning assistant. A user asked a question about a company,\n")
	b.WriteString("but the existing sources did not fully answer it. Your job is to propose a minimal\n")
	b.WriteString("set of targeted searches to fill the gap.\n\n")

	b.WriteString("## TARGET COMPANY\n")
	fmt.Fprintf(&b, "- Name: %s\n- Website: %s\n- Domain: %s\n- Context: %s\n\n",
		in.Target.CompanyName, in.Target.Website, in.Target.Domain(), in.Target.Context)

	fmt.Fprintf(&b, "## USER QUESTION\n%s\n\n", in.Question)

	intent := in.Intent
	if intent == "" {
		intent = "general"
	}
	b.WriteString("## GAP ANALYSIS\n")
	fmt.Fprintf(&b, "- Gap: %s\n- Detected Intent: %s", in.GapStatement, intent)
	if slots := slotLines(in.Hints); len(slots) > 0 {
		b.WriteString("\n## DETECTED SLOTS (use these in slot_hints)\n- ")
		b.WriteString(strings.Join(slots, "\n- "))
	}
	b.WriteString("\n\n")

	b.WriteString("## EXISTING RESEARCH\n")
	fmt.Fprintf(&b, "- Sources collected: %d", in.SourceCount)
	if len(in.Providers) > 0 {
		providers := append([]string(nil), in.Providers...)
		sort.Strings(providers)
		fmt.Fprintf(&b, "\n- Already queried providers: %s", strings.Join(providers, ", "))
	}
	if len(in.Domains) > 0 {
		domains := append([]string(nil), in.Domains...)
		sort.Strings(domains)
		shown := domains
		if len(shown) > maxListedDomains {
			shown = shown[:maxListedDomains]
		}
		fmt.Fprintf(&b, "\n- Already crawled domains: %s", strings.Join(shown, ", "))
		if extra := len(domains) - maxListedDomains; extra > 0 {
			fmt.Fprintf(&b, " (and %d more)", extra)
		}
	}
	b.WriteString("\n- Avoid re-querying the same providers/domains unless you believe different parameters will yield new results.\n\n")

	b.WriteString(connectorReference)
	b.WriteString("\n## OUTPUT FORMAT\nRespond with a single JSON object matching this schema:\n")
	b.WriteString(responseSchema)
	b.WriteString("\n")
	b.WriteString(rules)
	return b.String()
}

func slotLines(h SlotHints) []string {
	var out []string
	if len(h.Years) > 0 {
		out = append(out, "Years mentioned: "+strings.Join(h.Years, ", "))
	}
	if h.Round != "" {
		out = append(out, "Funding round: "+h.Round)
	}
	if h.CountryCode != "" {
		out = append(out, "Country/Jurisdiction: "+h.CountryCode)
	}
	if h.PersonName != "" {
		out = append(out, "Person name: "+h.PersonName)
	}
	if len(h.MustIncludeTerms) > 0 {
		out = append(out, "Must include: "+strings.Join(h.MustIncludeTerms, "; "))
	}
	if h.QueryHint != "" {
		out = append(out, "Query hint: "+h.QueryHint)
	}
	return out
}

const connectorReference = `## PROVIDER NAME MAPPING
Source database uses these provider labels:
- "exa" -> Exa connector
- "openai-web" -> OpenAI web search connector (note: hyphen, not underscore)
- "pdl" -> PDL person connector
- "pdl_company" -> PDL company connector
- "gleif" -> GLEIF LEI registry

## AVAILABLE CONNECTORS

### 1. EXA (Neural Search)
Best for: Raw web content, date-filtered news, deep site crawling, similar company discovery.
Cost: Medium (~$0.02/query)

| Task Type | Use Case | Key Params |
|-----------|----------|------------|
| exa_site_search | Content ON company website | subpage_targets, highlights_query |
| exa_news_search | Press coverage, announcements | start_date, end_date |
| exa_funding_search | Investor names, round details | start_date (default: 5 years) |
| exa_patent_search | Patent numbers, IP filings | highlights_query |
| exa_general_search | Broad primary-source search | exclude aggregators |
| exa_similar_search | Find competitor/similar companies | requires company website |
| exa_research_paper | Academic papers | category: research paper |
| exa_historical_search | Time-bounded events | start_date, end_date |

### 2. OPENAI WEB SEARCH (AI-Powered Reasoning)
Best for: Complex reasoning, structured extraction, ambiguous questions.
Cost: High (~$0.05/call)

| Mode | Use Case |
|------|----------|
| competitors | Discover and categorize competitors |
| founding | Legal entity, incorporation, registration numbers |
| leadership | Founders, executives, board members |
| person | Individual biography and career history (requires person_name) |
| news | Categorized recent news events |

### 3. PDL (Structured LinkedIn Data)
Best for: Verified professional data, company firmographics.
Cost: Low (~$0.05-0.10/call)

| Task Type | Returns |
|-----------|---------|
| pdl_person_enrich | Work history, education, LinkedIn (requires person_name) |
| pdl_company_leadership | Executives and founders of the target company |
| pdl_company_search | Founded year, HQ, headcount, total_funding_raised, funding_details |

### 4. GLEIF (Legal Entity Registry)
Best for: LEI, legal entity name, jurisdiction, registration authority IDs.
Cost: Free

| Task Type | Returns |
|-----------|---------|
| gleif_lei_lookup | LEI, legal_name, jurisdiction, registration_authority_entity_id |
`

const rules = `
## RULES
1. Propose 1-3 tasks maximum
2. For openai_web_search, ALWAYS include "openai_mode"
3. For pdl_person_enrich or openai_mode="person", ALWAYS include "person_name"
4. For exa_site_search with specific needs, include "subpage_targets" and "highlights_query"
5. Prefer PDL for structured data (funding totals, headcount) over Exa press releases
6. Prefer GLEIF for LEI/legal entity questions over OpenAI
7. Avoid re-querying providers/domains already searched
8. If the question contains specific topic terms (customers, patents, etc.), query_hint MUST include those terms

## CUSTOMER/COMMERCIAL QUESTIONS
For questions about customers, clients, commercial deals, or partnerships:
- Use exa_site_search with subpage_targets: ["customers", "case-studies", "success-stories", "partners"]
- Use exa_news_search with a 5-year date window for partnership announcements
- query_hint MUST include customer synonyms: "customers clients commercial partner case study deployment contract"
- highlights_query should target: "customer client partner agreement deployment contract procurement"
`
