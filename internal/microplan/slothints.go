package microplan

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
)

// StringList decodes either a JSON array of scalars or a single scalar.
// Planner output mixes numbers and strings for years.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*s = nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, scalarString(item))
		}
		*s = out
	default:
		*s = []string{scalarString(v)}
	}
	return nil
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

// SlotHints carry planner context used for repair and translation.
type SlotHints struct {
	Years            StringList `json:"years,omitempty"`
	Round            string     `json:"round,omitempty"`
	CountryCode      string     `json:"country_code,omitempty"`
	PersonName       string     `json:"person_name,omitempty"`
	QueryHint        string     `json:"query_hint,omitempty"`
	OpenAIMode       OpenAIMode `json:"openai_mode,omitempty"`
	LinkedInURL      string     `json:"linkedin_url,omitempty"`
	Location         string     `json:"location,omitempty"`
	MustIncludeTerms StringList `json:"must_include_terms,omitempty"`
	CustomerSegment  string     `json:"customer_segment,omitempty"`
}

// SlotHintsFromGap normalises detector slots for planning: jurisdiction
// becomes a country code and the question-derived hint is attached.
func SlotHintsFromGap(slots gap.Slots, question, companyName string) SlotHints {
	h := SlotHints{
		Years:            StringList(append([]string(nil), slots.Years...)),
		Round:            slots.Round,
		CountryCode:      CountryCode(slots.Jurisdiction),
		PersonName:       slots.PersonName,
		MustIncludeTerms: StringList(append([]string(nil), slots.MustIncludeTerms...)),
		CustomerSegment:  slots.CustomerSegment,
	}
	h.QueryHint = DeriveQueryHint(question, companyName)
	return h
}

// Merge overlays the non-empty fields of o onto h.
func (h SlotHints) Merge(o SlotHints) SlotHints {
	if len(o.Years) > 0 {
		h.Years = o.Years
	}
	if o.Round != "" {
		h.Round = o.Round
	}
	if o.CountryCode != "" {
		h.CountryCode = o.CountryCode
	}
	if o.PersonName != "" {
		h.PersonName = o.PersonName
	}
	if o.QueryHint != "" {
		h.QueryHint = o.QueryHint
	}
	if o.OpenAIMode != "" {
		h.OpenAIMode = o.OpenAIMode
	}
	if o.LinkedInURL != "" {
		h.LinkedInURL = o.LinkedInURL
	}
	if o.Location != "" {
		h.Location = o.Location
	}
	if len(o.MustIncludeTerms) > 0 {
		h.MustIncludeTerms = o.MustIncludeTerms
	}
	if o.CustomerSegment != "" {
		h.CustomerSegment = o.CustomerSegment
	}
	return h
}

// yearRange returns the lowest and highest year as strings.
func (h SlotHints) yearRange() (string, string, bool) {
	if len(h.Years) == 0 {
		return "", "", false
	}
	years := append([]string(nil), h.Years...)
	sort.Strings(years)
	return years[0], years[len(years)-1], true
}
