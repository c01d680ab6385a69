package gap

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	yearPattern        = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	punctuationPattern = regexp.MustCompile(`[?!.,;:]`)

	personVerbPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Rr]esearch\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})(?:\s*\(|\s+and\b|\s+\w)`),
		regexp.MustCompile(`[Ll]ook\s+[Uu]p\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})(?:'s|\s|$|\?)`),
		regexp.MustCompile(`[Aa]bout\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})(?:'s|\s|$|\?)`),
	}
	personPossessivePattern    = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})'s\b`)
	personParentheticalPattern = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})\s*\(`)
	personPairPattern          = regexp.MustCompile(`\b([A-Z][a-z]+\s+[A-Z][a-z]+)\b`)

	doubleQuotedPattern = regexp.MustCompile(`"([^"]+)"`)
	singleQuotedPattern = regexp.MustCompile(`'([^']+)'`)
	acronymPattern      = regexp.MustCompile(`\b([A-Z]{2,6})\b`)
	titleSpanPattern    = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){2,})\b`)
)

var roundTypes = []string{"seed", "series a", "series b", "series c", "series d", "pre-seed", "bridge"}

var jurisdictions = []string{"us", "uk", "eu", "australia", "canada", "germany", "france"}

var personSignalWords = []string{"background", "prior", "previous", "career", "education"}

var nonNameFirstWords = map[string]bool{
	"the": true, "company": true, "ceo": true, "cto": true, "cfo": true, "coo": true,
	"series": true, "what": true, "who": true, "how": true, "where": true, "when": true, "why": true,
	"can": true, "could": true, "would": true, "should": true, "look": true, "find": true, "search": true,
	"research": true, "tell": true, "list": true, "get": true, "about": true, "for": true,
}

var genericAcronyms = map[string]bool{
	"US": true, "UK": true, "EU": true, "CEO": true, "CFO": true, "CTO": true, "COO": true,
	"VP": true, "HR": true, "LLC": true, "INC": true, "LTD": true, "PTY": true, "CO": true,
	"OR": true, "AND": true, "THE": true, "FOR": true,
}

// ExtractSlots pulls structured hints out of a question. The intent gates
// person-name extraction.
func ExtractSlots(question string, intent Intent) Slots {
	var slots Slots
	lower := strings.ToLower(strings.TrimSpace(question))

	for _, m := range yearPattern.FindAllStringSubmatch(question, -1) {
		slots.Years = append(slots.Years, m[1])
	}

	for _, rt := range roundTypes {
		if strings.Contains(lower, rt) {
			slots.Round = rt
			break
		}
	}

	normalized := " " + punctuationPattern.ReplaceAllString(lower, " ") + " "
	for _, j := range jurisdictions {
		if strings.Contains(normalized, " "+j+" ") {
			slots.Jurisdiction = j
			break
		}
	}

	if strings.Contains(lower, "commercial") {
		slots.CustomerSegment = "commercial"
	}

	if intent == IntentFounderBackground || containsAny(lower, personSignalWords) {
		slots.PersonName = ExtractPersonName(question)
	}

	slots.MustIncludeTerms = ExtractMustIncludeTerms(question)
	return slots
}

// ExtractPersonName runs the name cascade: verb form, possessive form,
// parenthetical role form, then any Title-Case pair.
func ExtractPersonName(question string) string {
	for _, p := range personVerbPatterns {
		if m := p.FindStringSubmatch(question); m != nil {
			if name := strings.TrimSpace(m[1]); isValidName(name) {
				return name
			}
		}
	}
	if m := personPossessivePattern.FindStringSubmatch(question); m != nil {
		if name := strings.TrimSpace(m[1]); isValidName(name) {
			return name
		}
	}
	if m := personParentheticalPattern.FindStringSubmatch(question); m != nil {
		if name := strings.TrimSpace(m[1]); isValidName(name) {
			return name
		}
	}
	for _, m := range personPairPattern.FindAllStringSubmatch(question, -1) {
		if isValidName(m[1]) {
			return m[1]
		}
	}
	return ""
}

func isValidName(name string) bool {
	words := strings.Fields(name)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	if nonNameFirstWords[strings.ToLower(words[0])] {
		return false
	}
	for _, w := range words {
		if !unicode.IsUpper([]rune(w)[0]) {
			return false
		}
	}
	return true
}

// ExtractMustIncludeTerms returns quoted strings, specific acronyms and long
// Title-Case spans, deduplicated case-insensitively in order of appearance.
func ExtractMustIncludeTerms(question string) []string {
	var terms []string
	for _, m := range doubleQuotedPattern.FindAllStringSubmatch(question, -1) {
		terms = append(terms, m[1])
	}
	for _, m := range singleQuotedPattern.FindAllStringSubmatch(question, -1) {
		terms = append(terms, m[1])
	}
	for _, m := range acronymPattern.FindAllStringSubmatch(question, -1) {
		if !genericAcronyms[m[1]] {
			terms = append(terms, m[1])
		}
	}
	for _, m := range titleSpanPattern.FindAllStringSubmatch(question, -1) {
		terms = append(terms, m[1])
	}

	seen := make(map[string]bool, len(terms))
	var unique []string
	for _, t := range terms {
		key := strings.ToLower(t)
		if seen[key] || len(t) <= 1 {
			continue
		}
		seen[key] = true
		unique = append(unique, t)
	}
	return unique
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
