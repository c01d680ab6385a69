package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Plan.MaxSteps)
	assert.Equal(t, 3, cfg.Plan.MaxExaQueries)
	assert.Equal(t, 2000, cfg.GapPolicy.LongAnswerChars)
	assert.True(t, cfg.GapPolicy.RegistryOverride)
	assert.Equal(t, 30*time.Minute, cfg.Execution.StaleTimeout())
	assert.Equal(t, 12000, cfg.Execution.MaxSnippetChars)
	assert.Equal(t, 90, cfg.Retention.Days)
	assert.Equal(t, "http://llm-service:8000", cfg.LLM.ServiceURL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "microresearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gap_policy:
  long_answer_chars: 1500
plan:
  max_steps: 3
connectors:
  limits:
    exa:
      rpm: 10
      burst: 2
`), 0o600))
	t.Setenv("MICRORESEARCH_RETENTION_DAYS", "30")
	t.Setenv("EXA_API_KEY", "exa-key")
	t.Setenv("POSTGRES_HOST", "db.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1500, cfg.GapPolicy.LongAnswerChars)
	assert.Equal(t, 8, cfg.GapPolicy.LongAnswerMinEvidence)
	assert.Equal(t, 3, cfg.Plan.MaxSteps)
	assert.Equal(t, 10, cfg.Connectors.Limits["exa"].RPM)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, "exa-key", cfg.Credentials.ExaAPIKey)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Contains(t, cfg.Postgres.DSN(), "host=db.internal")
}

func TestValidateRejectsBadValues(t *testing.T) {
	_, err := FromMap(map[string]interface{}{"plan": map[string]interface{}{"max_steps": 0}})
	assert.Error(t, err)
	_, err = FromMap(map[string]interface{}{"llm": map[string]interface{}{"provider": "carrier-pigeon"}})
	assert.Error(t, err)
}

func TestManagerHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("gap_policy:\n  long_answer_chars: 2000\n"), 0o600))

	m, err := NewManager(dir, zap.NewNop())
	require.NoError(t, err)

	initial, err := Load(path)
	require.NoError(t, err)
	rt := NewRuntime(initial, zap.NewNop())

	var mu sync.Mutex
	var seen []int
	rt.OnChange(func(_, next *Config) {
		mu.Lock()
		seen = append(seen, next.GapPolicy.LongAnswerChars)
		mu.Unlock()
	})
	rt.Attach(m, DefaultFileName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	require.NoError(t, os.WriteFile(path, []byte("gap_policy:\n  long_answer_chars: 3000\n"), 0o600))

	assert.Eventually(t, func() bool {
		return rt.Current().GapPolicy.LongAnswerChars == 3000
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, 3000)
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("plan:\n  max_steps: 4\n"), 0o600))

	m, err := NewManager(dir, zap.NewNop())
	require.NoError(t, err)
	rt := NewRuntime(nil, zap.NewNop())
	rt.Attach(m, DefaultFileName)
	require.NoError(t, m.loadAll())
	require.NotNil(t, rt.Current())

	require.NoError(t, os.WriteFile(path, []byte("plan:\n  max_steps: -1\n"), 0o600))
	assert.Error(t, m.Reload(DefaultFileName))
	assert.Equal(t, 4, rt.Current().Plan.MaxSteps)
}
