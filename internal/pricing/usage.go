package pricing

import (
	"math"
	"sync"
)

// ProviderUsage accumulates calls and spend for one provider.
type ProviderUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Calls        int     `json:"calls"`
	CostUSD      float64 `json:"cost_usd"`
}

// Usage is the persisted llm_usage document.
type Usage struct {
	Providers    map[string]ProviderUsage `json:"providers"`
	TotalCostUSD float64                  `json:"total_cost_usd"`
}

// UsageTracker collects LLM and connector spend for one plan. Safe for
// concurrent use.
type UsageTracker struct {
	mu        sync.Mutex
	providers map[string]ProviderUsage
}

// NewUsageTracker returns an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{providers: make(map[string]ProviderUsage)}
}

// AddLLM records one completion priced by model.
func (u *UsageTracker) AddLLM(provider, model string, inputTokens, outputTokens int) {
	if provider == "" {
		provider = "llm"
	}
	cost := CostForSplit(model, inputTokens, outputTokens)
	u.mu.Lock()
	defer u.mu.Unlock()
	p := u.providers[provider]
	p.InputTokens += inputTokens
	p.OutputTokens += outputTokens
	p.Calls++
	p.CostUSD += cost
	u.providers[provider] = p
}

// AddConnector records one connector step that consumed units (queries).
func (u *UsageTracker) AddConnector(connector string, units int) {
	if units < 1 {
		units = 1
	}
	cost := ConnectorUnitCost(connector) * float64(units)
	u.mu.Lock()
	defer u.mu.Unlock()
	p := u.providers[connector]
	p.Calls++
	p.CostUSD += cost
	u.providers[connector] = p
}

// AddFlat records one call billed at a fixed cost.
func (u *UsageTracker) AddFlat(provider string, cost float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p := u.providers[provider]
	p.Calls++
	p.CostUSD += cost
	u.providers[provider] = p
}

// Snapshot returns a copy of the current totals rounded to micro-dollars.
func (u *UsageTracker) Snapshot() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := Usage{Providers: make(map[string]ProviderUsage, len(u.providers))}
	for k, v := range u.providers {
		v.CostUSD = round6(v.CostUSD)
		out.Providers[k] = v
		out.TotalCostUSD += v.CostUSD
	}
	out.TotalCostUSD = round6(out.TotalCostUSD)
	return out
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
