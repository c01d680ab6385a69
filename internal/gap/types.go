package gap

import "github.com/google/uuid"

// Method records which rule decided a gap detection outcome.
type Method string

const (
	MethodExplicitRequest   Method = "explicit_request"
	MethodPhraseMatch       Method = "phrase_match"
	MethodComprehensiveSkip Method = "comprehensive_skip"
	MethodRegistryOverride  Method = "registry_override"
	MethodNone              Method = "none"
)

// Intent is a coarse topical classification of a question.
type Intent string

const (
	IntentFundingInvestors  Intent = "funding_investors"
	IntentRevenueARR        Intent = "revenue_arr"
	IntentResearchPapers    Intent = "research_papers"
	IntentPatents           Intent = "patents"
	IntentLitigation        Intent = "litigation"
	IntentFounderBackground Intent = "founder_background"
	IntentCompetitors       Intent = "competitors"
	IntentTechnology        Intent = "technology"
	IntentRegulatory        Intent = "regulatory"
	IntentAcquisitions      Intent = "acquisitions"
	IntentProgramsContracts Intent = "programs_contracts"
	IntentCustomers         Intent = "customers"
	// IntentLegalEntity is never produced by keyword classification but the
	// planner LLM may emit it and the fallback table handles it.
	IntentLegalEntity Intent = "legal_entity"
	IntentGeneral     Intent = "general"
)

// Slots are structured hints pulled out of a question.
type Slots struct {
	Years            []string `json:"years,omitempty"`
	Round            string   `json:"round,omitempty"`
	Jurisdiction     string   `json:"jurisdiction,omitempty"`
	CustomerSegment  string   `json:"customer_segment,omitempty"`
	PersonName       string   `json:"person_name,omitempty"`
	MustIncludeTerms []string `json:"must_include_terms,omitempty"`
}

// IsEmpty reports whether no slot was extracted.
func (s Slots) IsEmpty() bool {
	return len(s.Years) == 0 && s.Round == "" && s.Jurisdiction == "" &&
		s.CustomerSegment == "" && s.PersonName == "" && len(s.MustIncludeTerms) == 0
}

// Result is the outcome of Detect. It is never persisted.
type Result struct {
	ShouldPropose   bool    `json:"should_propose"`
	GapStatement    string  `json:"gap_statement"`
	Intent          Intent  `json:"intent,omitempty"`
	MissingSlots    Slots   `json:"missing_slots"`
	Confidence      float64 `json:"confidence"`
	DetectionMethod Method  `json:"detection_method"`
}

// Evidence is the minimal view of a persisted evidence item the detector needs.
type Evidence struct {
	ID  uuid.UUID
	URL string
}
