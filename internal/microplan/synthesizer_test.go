package microplan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/llm"
)

type stubCompleter struct {
	content string
	err     error
	calls   int
	last    llm.Request
}

func (s *stubCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content, Model: "gpt-test", Provider: "openai", InputTokens: 900, OutputTokens: 120}, nil
}

var fixedNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestSynthesizer(c llm.Completer) *Synthesizer {
	s := NewSynthesizer(c, DefaultLimits(), nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

var acme = Target{CompanyName: "Acme Robotics", Website: "https://www.acme.com", Context: "warehouse robots"}

func TestProposeFromLLM(t *testing.T) {
	stub := &stubCompleter{content: `{
		"gap": "Lead investors of the Series B are not named",
		"intent": "funding_investors",
		"tasks": [
			{"type": "exa_funding_search", "priority": "high"},
			{"type": "pdl_company_search"},
			{"type": "pdl_person_enrich"}
		],
		"slot_hints": {"round": "Series B"}
	}`}
	s := newTestSynthesizer(stub)

	plan, usage := s.Propose(context.Background(), ProposeRequest{
		Question: "Who led their Series B?",
		Gap:      gap.Result{ShouldPropose: true, GapStatement: "Investors missing", Intent: gap.IntentFundingInvestors},
		Target:   acme,
	})

	require.NotNil(t, usage)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, SystemPrompt, stub.last.SystemPrompt)
	assert.Equal(t, 500, stub.last.MaxTokens)
	assert.InDelta(t, 0.3, stub.last.Temperature, 1e-9)
	assert.Contains(t, stub.last.UserPrompt, "- Domain: acme.com")

	assert.False(t, plan.UsedFallback)
	assert.Equal(t, "Lead investors of the Series B are not named", plan.GapStatement)
	assert.Equal(t, "funding_investors", plan.Intent)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "micro_exa_funding_search_0", plan.Steps[0].Name)
	assert.Equal(t, []string{"Acme Robotics funding Series B investors raised"}, plan.Steps[0].Params["queries"])
	assert.Equal(t, "2020-06-16", plan.Steps[0].Params["start_published_date"])
	assert.Equal(t, "micro_pdl_company_search_1", plan.Steps[1].Name)
	assert.Equal(t, ConnectorPDLCompany, plan.Steps[1].Connector)
	assert.Equal(t, 1, plan.EstimatedQueryCount)
	assert.NotContains(t, plan.SummaryMarkdown, "Enrich person profile")
}

func TestProposeEnforcesCaps(t *testing.T) {
	stub := &stubCompleter{content: `{"gap": "g", "intent": "technology", "tasks": [
		{"type": "exa_news_search"},
		{"type": "exa_general_search"},
		{"type": "exa_research_paper"},
		{"type": "exa_patent_search"},
		{"type": "gleif_lei_lookup"},
		{"type": "pdl_company_search"}
	]}`}
	plan, _ := newTestSynthesizer(stub).Propose(context.Background(), ProposeRequest{
		Question: "How does their platform work?",
		Gap:      gap.Result{GapStatement: "x", Intent: gap.IntentTechnology},
		Target:   acme,
	})

	require.Len(t, plan.Steps, 4)
	assert.Equal(t, 3, plan.EstimatedQueryCount)
	names := []string{plan.Steps[0].Name, plan.Steps[1].Name, plan.Steps[2].Name, plan.Steps[3].Name}
	assert.Equal(t, []string{
		"micro_exa_news_search_0",
		"micro_exa_general_search_1",
		"micro_exa_research_paper_2",
		"micro_gleif_lei_lookup_4",
	}, names)
}

func TestProposeFallsBackOnLLMError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("boom")}
	plan, usage := newTestSynthesizer(stub).Propose(context.Background(), ProposeRequest{
		Question: "Find peer-reviewed papers about their technology",
		Gap:      gap.Result{GapStatement: "Papers missing", Intent: gap.IntentResearchPapers},
		Target:   acme,
	})

	assert.Nil(t, usage)
	assert.True(t, plan.UsedFallback)
	assert.Equal(t, "research_papers", plan.Intent)
	require.NotEmpty(t, plan.Steps)
	var sawPaper bool
	for _, st := range plan.Steps {
		tt, ok := TaskTypeFromStepName(st.Name)
		require.True(t, ok)
		assert.NotEqual(t, TaskExaPatent, tt)
		if tt == TaskExaPaper {
			sawPaper = true
			assert.Equal(t, "research paper", st.Params["category"])
		}
	}
	assert.True(t, sawPaper)
}

func TestProposeFallsBackWhenEveryTaskDropped(t *testing.T) {
	stub := &stubCompleter{content: `{"gap": "g", "intent": "founder_background", "tasks": [{"type": "pdl_person_enrich"}]}`}
	plan, usage := newTestSynthesizer(stub).Propose(context.Background(), ProposeRequest{
		Question: "What is the founders' background?",
		Gap:      gap.Result{GapStatement: "Founders", Intent: gap.IntentFounderBackground},
		Target:   acme,
	})

	assert.NotNil(t, usage)
	assert.True(t, plan.UsedFallback)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, ConnectorOpenAIWeb, plan.Steps[0].Connector)
	assert.Equal(t, "leadership", plan.Steps[0].Params["mode"])
	assert.Equal(t, []string{"acme.com"}, plan.Steps[1].Params["include_domains"])
}

func TestProposeWithoutCompleterUsesGapIntent(t *testing.T) {
	plan, _ := newTestSynthesizer(nil).Propose(context.Background(), ProposeRequest{
		Question: "What else?",
		Gap:      gap.Result{GapStatement: "Something"},
		Target:   acme,
	})
	assert.True(t, plan.UsedFallback)
	assert.Equal(t, "general", plan.Intent)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "micro_exa_general_search_0", plan.Steps[0].Name)
}

func TestSimilarSearchWithoutDomainIsDropped(t *testing.T) {
	stub := &stubCompleter{content: `{"gap": "g", "intent": "competitors", "tasks": [
		{"type": "exa_similar_search"},
		{"type": "openai_web_search", "openai_mode": "competitors"}
	]}`}
	plan, _ := newTestSynthesizer(stub).Propose(context.Background(), ProposeRequest{
		Question: "Who are their competitors?",
		Gap:      gap.Result{GapStatement: "Competitors", Intent: gap.IntentCompetitors},
		Target:   Target{CompanyName: "Acme Robotics"},
	})
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "micro_openai_web_search_1", plan.Steps[0].Name)
}

func TestQualityGateRewritesVacuousQueriesAndAddsCustomerCoverage(t *testing.T) {
	tr := newTranslator(acme, SlotHints{}, fixedNow)
	steps := []Step{{
		Name:      "micro_exa_general_search_0",
		Connector: ConnectorExa,
		Params:    map[string]interface{}{"mode": "search", "queries": []string{"Acme Robotics"}},
	}}

	out := tr.repairLowQuality(steps, customerSynonyms, "customers", DefaultLimits())

	require.Len(t, out, 3)
	assert.Equal(t, []string{"Acme Robotics " + customerSynonyms}, out[0].Params["queries"])
	assert.Equal(t, customerSynonyms, out[0].Params["highlights_query"])
	assert.Equal(t, "micro_exa_site_search_1", out[1].Name)
	assert.Equal(t, "company", out[1].Params["category"])
	assert.Equal(t, "micro_exa_news_search_2", out[2].Name)
	assert.Equal(t, "2020-06-16", out[2].Params["start_published_date"])
	assert.Equal(t, []string{"Acme Robotics"}, steps[0].Params["queries"], "input not mutated")
}

func TestQualityGateRespectsCaps(t *testing.T) {
	tr := newTranslator(acme, SlotHints{}, fixedNow)
	steps := []Step{
		{Name: "micro_exa_general_search_0", Connector: ConnectorExa, Params: map[string]interface{}{"queries": []string{"q1"}}},
		{Name: "micro_exa_research_paper_1", Connector: ConnectorExa, Params: map[string]interface{}{"queries": []string{"q2"}}},
		{Name: "micro_exa_patent_search_2", Connector: ConnectorExa, Params: map[string]interface{}{"queries": []string{"q3"}}},
	}
	out := tr.repairLowQuality(steps, "customers", "customers", DefaultLimits())
	assert.Len(t, out, 3)
}

func TestStepConnectorRoundTrip(t *testing.T) {
	tr := newTranslator(acme, SlotHints{PersonName: "Jane Doe", Years: StringList{"2019", "2021"}}, fixedNow)
	for tt := range taskConnectors {
		step, ok := tr.Translate(Task{Type: tt, Priority: PriorityMedium, OpenAIMode: ModeNews}, 7)
		require.True(t, ok, tt)
		back, ok := TaskTypeFromStepName(step.Name)
		require.True(t, ok, step.Name)
		assert.Equal(t, tt, back)
		want, _ := ConnectorFor(back)
		assert.Equal(t, want, step.Connector)
	}
}

func TestHistoricalWindowFromYears(t *testing.T) {
	tr := newTranslator(acme, SlotHints{Years: StringList{"2021", "2018"}}, fixedNow)
	step, ok := tr.Translate(Task{Type: TaskExaHistorical}, 0)
	require.True(t, ok)
	assert.Equal(t, "2018-01-01", step.Params["start_published_date"])
	assert.Equal(t, "2021-12-31", step.Params["end_published_date"])
}

func TestMustIncludeTermsFoldedIntoPatentQuery(t *testing.T) {
	tr := newTranslator(acme, SlotHints{MustIncludeTerms: StringList{"EP3966938B1", "DARPA", "QBI", "IQMP"}}, fixedNow)
	step, ok := tr.Translate(Task{Type: TaskExaPatent}, 0)
	require.True(t, ok)
	assert.Equal(t, []string{"Acme Robotics patent filing IP intellectual property EP3966938B1 DARPA QBI"}, step.Params["queries"])
	assert.Equal(t, "EP3966938B1 DARPA QBI", step.Params["highlights_query"])
}
