package gap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSlots_PersonNameFromPossessive(t *testing.T) {
	q := "Look up Stefanie Tardo's prior roles"
	slots := ExtractSlots(q, ClassifyIntent(q))
	assert.Equal(t, "Stefanie Tardo", slots.PersonName)
}

func TestExtractSlots_RoundYearsJurisdiction(t *testing.T) {
	slots := ExtractSlots("What did they raise in their Series A in 2021 and 2022 in the US?", IntentFundingInvestors)

	assert.Equal(t, []string{"2021", "2022"}, slots.Years)
	assert.Equal(t, "series a", slots.Round)
	assert.Equal(t, "us", slots.Jurisdiction)
	assert.Empty(t, slots.MustIncludeTerms)
	assert.Empty(t, slots.PersonName)
}

func TestExtractSlots_PersonNameOnlyWhenRelevant(t *testing.T) {
	slots := ExtractSlots("Jane Doe signed the contract?", IntentCustomers)
	assert.Empty(t, slots.PersonName)

	slots = ExtractSlots("Jane Doe: any previous startups?", IntentCustomers)
	assert.Equal(t, "Jane Doe", slots.PersonName)
}

func TestExtractPersonName(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"Research Jane Doe (CEO) and her prior companies", "Jane Doe"},
		{"Tell me about Maria Lopez background", "Maria Lopez"},
		{"Alan Turing (founder) education", "Alan Turing"},
		{"What did Michael Johnson do before joining?", "Michael Johnson"},
		{"What Company background matters?", ""},
		{"no names here at all", ""},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPersonName(tt.question))
		})
	}
}

func TestExtractMustIncludeTerms(t *testing.T) {
	terms := ExtractMustIncludeTerms(`Did they join the "Quantum Benchmarking Initiative" with DARPA and the US DOE?`)
	assert.Equal(t, []string{"Quantum Benchmarking Initiative", "DARPA", "DOE"}, terms)

	terms = ExtractMustIncludeTerms("Which patents mention 'readout' or 'control'?")
	assert.Equal(t, []string{"readout", "control"}, terms)
}

func TestExtractSlots_CustomerSegment(t *testing.T) {
	slots := ExtractSlots("Who are their commercial customers?", IntentCustomers)
	assert.Equal(t, "commercial", slots.CustomerSegment)
	assert.False(t, slots.IsEmpty())
	assert.True(t, Slots{}.IsEmpty())
}
