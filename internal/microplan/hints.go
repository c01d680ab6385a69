package microplan

import (
	"net/url"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b\w+\b`)

const customerSynonyms = "customers clients commercial partner partnership case study deployment contract"

var customerTerms = []string{"customer", "client", "commercial"}

var queryHintStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"what": {}, "who": {}, "where": {}, "when": {}, "how": {}, "does": {},
	"do": {}, "did": {}, "have": {}, "has": {}, "their": {}, "they": {},
	"this": {}, "that": {}, "for": {}, "with": {}, "and": {}, "or": {},
	"can": {}, "you": {}, "look": {}, "up": {}, "search": {}, "find": {},
	"dig": {}, "deeper": {}, "more": {}, "about": {}, "any": {},
}

const maxHintKeywords = 8

// DeriveQueryHint builds a compact search hint from the question. Questions
// about customers get a fixed synonym pack.
func DeriveQueryHint(question, companyName string) string {
	lower := strings.ToLower(question)
	for _, term := range customerTerms {
		if strings.Contains(lower, term) {
			return customerSynonyms
		}
	}

	companyTokens := make(map[string]struct{})
	for _, tok := range wordPattern.FindAllString(strings.ToLower(companyName), -1) {
		companyTokens[tok] = struct{}{}
	}

	seen := make(map[string]struct{})
	keywords := make([]string, 0, maxHintKeywords)
	for _, w := range wordPattern.FindAllString(lower, -1) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := queryHintStopwords[w]; stop {
			continue
		}
		if _, company := companyTokens[w]; company {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
		if len(keywords) >= maxHintKeywords {
			break
		}
	}
	return strings.Join(keywords, " ")
}

var jurisdictionCodes = map[string]string{
	"us": "US", "usa": "US", "united states": "US",
	"uk": "GB", "united kingdom": "GB", "gb": "GB",
	"eu":        "EU",
	"australia": "AU", "au": "AU",
	"canada": "CA", "ca": "CA",
	"germany": "DE", "de": "DE",
	"france": "FR", "fr": "FR",
	"japan": "JP", "jp": "JP",
	"china": "CN", "cn": "CN",
	"india": "IN", "in": "IN",
	"singapore": "SG", "sg": "SG",
	"hong kong": "HK", "hk": "HK",
	"ireland": "IE", "ie": "IE",
	"netherlands": "NL", "nl": "NL",
	"switzerland": "CH", "ch": "CH",
}

// CountryCode maps a jurisdiction mention to an ISO 3166 alpha-2 code.
// Unknown values fall back to their first two letters upper-cased.
func CountryCode(jurisdiction string) string {
	j := strings.ToLower(strings.TrimSpace(jurisdiction))
	if j == "" {
		return ""
	}
	if code, ok := jurisdictionCodes[j]; ok {
		return code
	}
	if len(j) > 2 {
		j = j[:2]
	}
	return strings.ToUpper(j)
}

// ExtractDomain returns the host of a website with any www. prefix removed.
func ExtractDomain(website string) string {
	w := strings.TrimSpace(website)
	if w == "" {
		return ""
	}
	if !strings.HasPrefix(w, "http://") && !strings.HasPrefix(w, "https://") {
		w = "https://" + w
	}
	u, err := url.Parse(w)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
