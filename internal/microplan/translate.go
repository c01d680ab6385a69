package microplan

import (
	"strings"
	"time"
)

// AggregatorDomains are excluded from primary-source searches.
var AggregatorDomains = []string{
	"crunchbase.com", "pitchbook.com", "linkedin.com", "bloomberg.com",
	"wikipedia.org", "glassdoor.com", "zoominfo.com", "apollo.io",
	"golden.com", "tracxn.com", "owler.com",
}

// DefaultSiteSubpages are crawled by a site search without explicit targets.
var DefaultSiteSubpages = []string{
	"about", "company", "team", "leadership", "customers", "partners",
	"case-studies", "success-stories", "solutions", "products", "news", "press",
	"portfolio", "investments", "technology", "api", "docs", "developers",
}

const dateLayout = "2006-01-02"

type translator struct {
	target Target
	domain string
	hints  SlotHints
	today  time.Time
}

func newTranslator(target Target, hints SlotHints, now time.Time) translator {
	return translator{
		target: target,
		domain: target.Domain(),
		hints:  hints,
		today:  now.UTC().Truncate(24 * time.Hour),
	}
}

func (tr translator) subject() string {
	switch {
	case tr.target.CompanyName != "":
		return tr.target.CompanyName
	case tr.domain != "":
		return tr.domain
	default:
		return "target company"
	}
}

func (tr translator) mustInclude() string {
	terms := tr.hints.MustIncludeTerms
	if len(terms) > 3 {
		terms = terms[:3]
	}
	return strings.Join(terms, " ")
}

func (tr translator) daysAgo(days int) string {
	return tr.today.AddDate(0, 0, -days).Format(dateLayout)
}

func aggregatorsPlus(extra ...string) []string {
	out := make([]string, 0, len(AggregatorDomains)+len(extra))
	out = append(out, AggregatorDomains...)
	return append(out, extra...)
}

// join concatenates the non-empty parts with single spaces.
func join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Translate builds the connector step for task at index. It returns false
// when the task's required inputs are unavailable.
func (tr translator) Translate(task Task, index int) (Step, bool) {
	connector, ok := ConnectorFor(task.Type)
	if !ok {
		return Step{}, false
	}
	subject := tr.subject()
	hint := task.QueryHint
	must := tr.mustInclude()

	var params map[string]interface{}
	switch task.Type {
	case TaskExaNews:
		base := join(subject, "news announcement")
		if hint != "" {
			base = join(subject, hint)
		}
		params = map[string]interface{}{
			"mode":                 "search",
			"queries":              []string{join(base, must)},
			"category":             "news",
			"start_published_date": firstNonEmpty(task.StartDate, tr.daysAgo(365)),
			"num_results":          10,
			"highlights_query": firstNonEmpty(task.HighlightsQuery, must, hint,
				join(subject, "customer partner announcement deal contract")),
			"exclude_domains": aggregatorsPlus(),
		}
		if task.EndDate != "" {
			params["end_published_date"] = task.EndDate
		}

	case TaskExaSite:
		query := join(subject, "about team company")
		if hint != "" {
			query = join(subject, hint)
		}
		subpages := task.SubpageTargets
		if len(subpages) == 0 {
			subpages = append([]string(nil), DefaultSiteSubpages...)
		}
		params = map[string]interface{}{
			"mode":            "search",
			"queries":         []string{query},
			"category":        "company",
			"num_results":     10,
			"subpages":        3,
			"subpage_targets": subpages,
			"highlights_query": firstNonEmpty(task.HighlightsQuery, hint,
				join(subject, "customers partners case study deployment")),
		}
		if tr.domain != "" {
			params["include_domains"] = []string{tr.domain}
		}

	case TaskExaFunding:
		params = map[string]interface{}{
			"mode":                 "search",
			"queries":              []string{join(subject, "funding", tr.hints.Round, "investors raised")},
			"category":             "news",
			"start_published_date": firstNonEmpty(task.StartDate, tr.daysAgo(365*5)),
			"num_results":          12,
			"highlights_query": firstNonEmpty(task.HighlightsQuery,
				"funding round investors lead investor amount raised valuation post-money"),
			"exclude_domains": aggregatorsPlus(),
		}
		if task.EndDate != "" {
			params["end_published_date"] = task.EndDate
		}

	case TaskExaPatent:
		base := join(subject, "patent filing IP intellectual property", hint)
		params = map[string]interface{}{
			"mode":        "search",
			"queries":     []string{join(base, must)},
			"category":    "company",
			"num_results": 10,
			"highlights_query": firstNonEmpty(task.HighlightsQuery, must,
				"patent number US EP WO filing date inventor assignee claims granted"),
		}

	case TaskExaGeneral:
		base := subject
		if hint != "" {
			base = join(subject, hint)
		}
		params = map[string]interface{}{
			"mode":             "search",
			"queries":          []string{join(base, must)},
			"num_results":      10,
			"highlights_query": firstNonEmpty(task.HighlightsQuery, must, hint, subject),
			"exclude_domains":  aggregatorsPlus(),
		}

	case TaskExaSimilar:
		if tr.domain == "" {
			return Step{}, false
		}
		params = map[string]interface{}{
			"mode":            "similar",
			"url":             "https://" + tr.domain,
			"num_results":     10,
			"exclude_domains": aggregatorsPlus(tr.domain),
			"highlights_query": firstNonEmpty(task.HighlightsQuery, hint,
				"product offering business model customers competitors positioning"),
		}

	case TaskExaPaper:
		query := join(subject, "research paper study")
		if hint != "" {
			query = join(subject, hint)
		}
		params = map[string]interface{}{
			"mode":        "search",
			"queries":     []string{query},
			"category":    "research paper",
			"num_results": 8,
			"highlights_query": firstNonEmpty(task.HighlightsQuery, hint,
				"methodology results findings conclusions data"),
		}

	case TaskExaHistorical:
		start, end := tr.historicalWindow(task)
		query := subject
		if hint != "" {
			query = join(subject, hint)
		}
		params = map[string]interface{}{
			"mode":                 "search",
			"queries":              []string{query},
			"start_published_date": start,
			"end_published_date":   end,
			"num_results":          10,
			"highlights_query":     firstNonEmpty(task.HighlightsQuery, hint, subject),
			"exclude_domains":      aggregatorsPlus(),
		}

	case TaskOpenAIWeb:
		mode := task.OpenAIMode
		if mode == "" {
			mode = tr.hints.OpenAIMode
		}
		if mode == "" {
			mode = ModeCompetitors
		}
		context := tr.target.Context
		if hint != "" {
			context = join(context, hint)
		}
		params = map[string]interface{}{
			"mode":         string(mode),
			"company_name": tr.target.CompanyName,
			"website":      tr.target.Website,
			"context":      context,
		}
		if mode == ModePerson {
			params["person_name"] = firstNonEmpty(task.PersonName, tr.hints.PersonName)
			params["company"] = tr.target.CompanyName
		}

	case TaskPDLEnrich:
		name := firstNonEmpty(task.PersonName, tr.hints.PersonName)
		if name == "" {
			return Step{}, false
		}
		params = map[string]interface{}{
			"full_name":      name,
			"company_name":   tr.target.CompanyName,
			"company_domain": tr.domain,
		}
		if tr.hints.LinkedInURL != "" {
			params["linkedin_url"] = tr.hints.LinkedInURL
		}
		if tr.hints.Location != "" {
			params["location"] = tr.hints.Location
		}

	case TaskPDLLeadership:
		// An empty full_name asks the connector for the company's executives.
		params = map[string]interface{}{
			"full_name":      "",
			"company_name":   tr.target.CompanyName,
			"company_domain": tr.domain,
		}

	case TaskPDLCompany:
		params = map[string]interface{}{
			"company_name": tr.target.CompanyName,
			"website":      tr.domain,
		}

	case TaskGLEIF:
		params = map[string]interface{}{
			"company_name": tr.target.CompanyName,
		}
		if tr.domain != "" {
			params["company_domain"] = tr.domain
		}
		if tr.hints.CountryCode != "" {
			params["country_code"] = tr.hints.CountryCode
		}

	default:
		return Step{}, false
	}

	return Step{Name: stepName(task.Type, index), Connector: connector, Params: params}, true
}

func (tr translator) historicalWindow(task Task) (string, string) {
	if task.StartDate != "" || task.EndDate != "" {
		return firstNonEmpty(task.StartDate, tr.daysAgo(365*5)),
			firstNonEmpty(task.EndDate, tr.daysAgo(365))
	}
	if lo, hi, ok := tr.hints.yearRange(); ok {
		return lo + "-01-01", hi + "-12-31"
	}
	return tr.daysAgo(365 * 5), tr.daysAgo(365)
}
