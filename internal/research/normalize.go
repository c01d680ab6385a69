package research

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
)

// Snippet is the canonical evidence record every connector payload is
// normalized into.
type Snippet struct {
	Provider      string `json:"provider"`
	Title         string `json:"title"`
	URL           string `json:"url,omitempty"`
	Text          string `json:"text"`
	PublishedDate string `json:"published_date,omitempty"`
}

// Ordered so that pdl_company wins over pdl.
var stepProviders = []struct{ prefix, provider string }{
	{"exa", "exa"},
	{"openai", "openai-web"},
	{"pdl_company", "pdl_company"},
	{"pdl", "pdl"},
	{"gleif", "gleif"},
}

// ProviderForStep infers the provider label from a step name such as
// micro_exa_news_search_1.
func ProviderForStep(stepName string) string {
	name := strings.ToLower(stepName)
	for _, p := range stepProviders {
		if strings.Contains(name, "_"+p.prefix+"_") || strings.HasPrefix(name, p.prefix+"_") {
			return p.provider
		}
	}
	switch {
	case strings.Contains(name, "openai"):
		return "openai-web"
	case strings.Contains(name, "exa"):
		return "exa"
	case strings.Contains(name, "pdl"):
		if strings.Contains(name, "company") {
			return "pdl_company"
		}
		return "pdl"
	case strings.Contains(name, "gleif"):
		return "gleif"
	}
	return "unknown"
}

// NormalizePayloads flattens step payloads into snippets, in step order,
// dropping repeated URLs within the batch. Payload keys that are not plan
// steps are processed last in name order.
func NormalizePayloads(steps []microplan.Step, payloads map[string]map[string]interface{}) []Snippet {
	order := make([]string, 0, len(payloads))
	known := make(map[string]bool, len(steps))
	for _, s := range steps {
		if _, ok := payloads[s.Name]; ok && !known[s.Name] {
			order = append(order, s.Name)
			known[s.Name] = true
		}
	}
	var extra []string
	for name := range payloads {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	n := &normalizer{seen: make(map[string]bool)}
	for _, name := range order {
		n.payload(name, payloads[name])
	}
	return n.out
}

type normalizer struct {
	seen map[string]bool
	out  []Snippet
}

// claim marks url as used and reports whether it was free. Empty URLs are
// always free.
func (n *normalizer) claim(url string) bool {
	if url == "" {
		return true
	}
	if n.seen[url] {
		return false
	}
	n.seen[url] = true
	return true
}

func (n *normalizer) payload(step string, p map[string]interface{}) {
	if len(p) == 0 {
		return
	}
	provider := ProviderForStep(step)

	items := list(p["results"])
	if len(items) == 0 {
		items = list(p["snippets"])
	}
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		url := str(item["url"])
		if !n.claim(url) {
			continue
		}
		text := firstNonEmpty(str(item["text"]), str(item["snippet"]), str(item["description"]))
		if text == "" {
			text = joinHighlights(list(item["highlights"]))
		}
		if text == "" {
			continue
		}
		n.out = append(n.out, Snippet{
			Provider:      firstNonEmpty(str(item["provider"]), provider),
			Title:         firstNonEmpty(str(item["title"]), "Web result"),
			URL:           url,
			Text:          text,
			PublishedDate: firstNonEmpty(str(item["published_date"]), str(item["publishedDate"])),
		})
	}

	for _, raw := range list(p["web_snippets"]) {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		url := str(item["url"])
		if !n.claim(url) {
			continue
		}
		text := firstNonEmpty(str(item["snippet"]), str(item["text"]))
		if text == "" {
			continue
		}
		n.out = append(n.out, Snippet{
			Provider:      "openai-web",
			Title:         firstNonEmpty(str(item["title"]), "OpenAI Web Search"),
			URL:           url,
			Text:          text,
			PublishedDate: str(item["published_date"]),
		})
	}

	if structured, ok := p["structured_output"].(map[string]interface{}); ok {
		if b, err := json.Marshal(structured); err == nil {
			n.out = append(n.out, Snippet{
				Provider: "openai-web",
				Title:    "Structured data from " + step,
				Text:     truncateMessage(string(b), 2000),
			})
		}
	}

	for _, raw := range list(p["people"]) {
		person, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if s, ok := personSnippet(person); ok && n.claim(s.URL) {
			n.out = append(n.out, s)
		}
	}

	if company, ok := p["company"].(map[string]interface{}); ok {
		if s, ok := companySnippet(company); ok {
			n.claim(s.URL)
			n.out = append(n.out, s)
		}
	}
}

func personSnippet(person map[string]interface{}) (Snippet, bool) {
	name := str(person["full_name"])
	var parts []string
	if name != "" {
		parts = append(parts, "Name: "+name)
	}
	if title := firstNonEmpty(str(person["title"]), str(person["job_title"])); title != "" {
		parts = append(parts, "Title: "+title)
	}
	if company := firstNonEmpty(str(person["company"]), str(person["job_company_name"])); company != "" {
		parts = append(parts, "Company: "+company)
	}
	data, ok := person["pdl_data"].(map[string]interface{})
	if !ok {
		data = person
	}
	if edu := list(data["education"]); len(edu) > 0 {
		if first, ok := edu[0].(map[string]interface{}); ok {
			if school, ok := first["school"].(map[string]interface{}); ok {
				if s := str(school["name"]); s != "" {
					parts = append(parts, "Education: "+s)
				}
			}
		}
	}
	if len(parts) == 0 {
		return Snippet{}, false
	}
	return Snippet{
		Provider: "pdl",
		Title:    "PDL Person: " + name,
		URL:      str(person["linkedin_url"]),
		Text:     strings.Join(parts, " | "),
	}, true
}

func companySnippet(c map[string]interface{}) (Snippet, bool) {
	name := firstNonEmpty(str(c["name"]), str(c["display_name"]))
	var parts []string
	if name != "" {
		parts = append(parts, "Company: "+name)
	}
	if founded := scalar(c["founded"]); founded != "" {
		parts = append(parts, "Founded: "+founded)
	}
	if funding := c["total_funding_raised"]; funding != nil {
		if f, ok := funding.(float64); ok && f != 0 {
			parts = append(parts, "Total Funding: $"+thousands(f))
		} else if s := scalar(funding); s != "" && s != "0" {
			parts = append(parts, "Total Funding: "+s)
		}
	}
	if loc, ok := c["location"].(map[string]interface{}); ok {
		if hq := str(loc["locality"]); hq != "" {
			parts = append(parts, "HQ: "+hq)
		}
	}
	if len(parts) == 0 {
		return Snippet{}, false
	}
	return Snippet{
		Provider: "pdl_company",
		Title:    "PDL Company: " + name,
		URL:      str(c["website"]),
		Text:     strings.Join(parts, " | "),
	}, true
}

// thousands renders 1500000 as 1,500,000 and 1234.5 as 1,234.5.
func thousands(f float64) string {
	neg := f < 0
	f = math.Abs(f)
	intPart, frac := math.Modf(f)
	digits := strconv.FormatFloat(intPart, 'f', 0, 64)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	out := b.String()
	if frac > 0 {
		fs := strconv.FormatFloat(frac, 'f', -1, 64)
		out += strings.TrimPrefix(fs, "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}

func joinHighlights(h []interface{}) string {
	if len(h) > 5 {
		h = h[:5]
	}
	parts := make([]string, 0, len(h))
	for _, v := range h {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, " ... ")
}

func list(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	}
	return nil
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	return fmt.Sprint(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
