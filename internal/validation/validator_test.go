package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
)

func exaStep(name string, queries ...string) microplan.Step {
	return microplan.Step{Name: name, Connector: "exa", Params: map[string]interface{}{"mode": "search", "queries": queries}}
}

func TestValidateHappyPath(t *testing.T) {
	v := NewValidator(NewStaticRegistry("exa", "pdl_company", "gleif"), microplan.DefaultLimits(), nil)
	res := v.Validate([]microplan.Step{
		exaStep("micro_exa_news_search_0", "Acme news"),
		{Name: "micro_pdl_company_search_1", Connector: "pdl_company", Params: map[string]interface{}{"company_name": "Acme"}},
		{Name: "micro_gleif_lei_lookup_2", Connector: "gleif", Params: map[string]interface{}{"company_name": "Acme"}},
	}, microplan.Target{CompanyName: "Acme"})

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.InDelta(t, 0.02+0.05+0+0.02, res.CostEstimateUSD, 1e-9)
	assert.Equal(t, "small", res.CostLabel)
	assert.InDelta(t, 0.02, res.CostBreakdown["llm_reanswer"], 1e-9)
	assert.Equal(t, 6, res.RuntimeEstimateSeconds)
	assert.Equal(t, "medium", res.RuntimeLabel)
}

func TestValidateUnavailableConnector(t *testing.T) {
	v := NewValidator(NewStaticRegistry(), microplan.DefaultLimits(), nil)
	res := v.Validate([]microplan.Step{exaStep("micro_exa_general_search_0", "q")}, microplan.Target{})
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "step.micro_exa_general_search_0.connector", res.Errors[0].Field)
}

func TestValidateConnectorParams(t *testing.T) {
	v := NewValidator(NewStaticRegistry("exa", "openai_web", "pdl", "pdl_company", "gleif"), microplan.DefaultLimits(), nil)
	res := v.Validate([]microplan.Step{
		{Name: "a", Connector: "exa", Params: map[string]interface{}{"mode": "search"}},
		{Name: "b", Connector: "openai_web", Params: map[string]interface{}{"mode": "person"}},
		{Name: "c", Connector: "pdl", Params: map[string]interface{}{"company_name": "Acme"}},
		{Name: "d", Connector: "pdl_company", Params: map[string]interface{}{}},
	}, microplan.Target{})

	fields := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"step.a.params.queries", "step.b.params.person_name", "step.d.params"}, fields)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "step.c.params.full_name", res.Warnings[0].Field)
}

func TestValidateLeadershipSentinelIsAccepted(t *testing.T) {
	v := NewValidator(NewStaticRegistry("pdl"), microplan.DefaultLimits(), nil)
	res := v.Validate([]microplan.Step{{Name: "p", Connector: "pdl", Params: map[string]interface{}{"full_name": ""}}}, microplan.Target{})
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Warnings)
}

func TestValidateCaps(t *testing.T) {
	v := NewValidator(NewStaticRegistry("exa"), microplan.DefaultLimits(), nil)
	steps := []microplan.Step{
		exaStep("s0", "q"), exaStep("s1", "q"), exaStep("s2", "q"), exaStep("s3", "q"), exaStep("s4", "q"),
	}
	res := v.Validate(steps, microplan.Target{})
	assert.False(t, res.IsValid)
	assert.Equal(t, "plan_steps", res.Errors[0].Field)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "(5)")
	assert.Equal(t, "long", res.RuntimeLabel)
	assert.Equal(t, "moderate", res.CostLabel)
}

func TestCredentialRegistry(t *testing.T) {
	r := NewCredentialRegistry(Credentials{PDLAPIKey: "k"})
	assert.Equal(t, []string{"gleif", "pdl", "pdl_company"}, Names(r))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "small", CostLabel(0.099))
	assert.Equal(t, "moderate", CostLabel(0.10))
	assert.Equal(t, "large", CostLabel(0.30))
	assert.Equal(t, "short", RuntimeLabel(1))
	assert.Equal(t, "medium", RuntimeLabel(3))
	assert.Equal(t, "long", RuntimeLabel(4))
}
