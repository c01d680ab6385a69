package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPricing = `
pricing:
  defaults:
    combined_per_1k: 0.002
  models:
    openai:
      gpt-4o-mini:
        input_per_1k: 0.00015
        output_per_1k: 0.0006
connectors:
  reanswer: 0.03
  units:
    exa: 0.01
`

func loadTestPricing(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	require.NoError(t, LoadFile(path))
	t.Cleanup(Reload)
}

func TestCostForSplit(t *testing.T) {
	loadTestPricing(t, testPricing)

	assert.InDelta(t, 0.00015+0.0006, CostForSplit("gpt-4o-mini", 1000, 1000), 1e-12)
	assert.InDelta(t, 2000*0.000002, CostForSplit("unknown-model", 1000, 1000), 1e-12)
	assert.InDelta(t, 0, CostForSplit("gpt-4o-mini", -5, 0), 1e-12)
}

func TestConnectorUnitCost(t *testing.T) {
	loadTestPricing(t, testPricing)

	assert.InDelta(t, 0.01, ConnectorUnitCost("exa"), 1e-12)
	assert.InDelta(t, 0.10, ConnectorUnitCost("PDL"), 1e-12)
	assert.InDelta(t, 0, ConnectorUnitCost("gleif"), 1e-12)
	assert.InDelta(t, 0.01, ConnectorUnitCost("mystery"), 1e-12)
	assert.InDelta(t, 0.03, ReanswerCost(), 1e-12)
}

func TestLoadFileRejectsNegativePrices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connectors:\n  units:\n    exa: -1\n"), 0o600))
	assert.Error(t, LoadFile(path))
}

func TestUsageTracker(t *testing.T) {
	loadTestPricing(t, testPricing)

	u := NewUsageTracker()
	u.AddLLM("openai", "gpt-4o-mini", 1000, 1000)
	u.AddConnector("exa", 3)
	u.AddConnector("gleif", 0)

	snap := u.Snapshot()
	require.Contains(t, snap.Providers, "openai")
	assert.Equal(t, 1, snap.Providers["openai"].Calls)
	assert.Equal(t, 1000, snap.Providers["openai"].InputTokens)
	assert.InDelta(t, 0.03, snap.Providers["exa"].CostUSD, 1e-9)
	assert.Equal(t, 1, snap.Providers["gleif"].Calls)
	assert.InDelta(t, 0.00075+0.03, snap.TotalCostUSD, 1e-9)
}
