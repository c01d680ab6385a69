package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapAdapterFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapAdapter(zap.New(core)).(*ZapAdapter)

	l.With("workflow_id", "wf-1").Info("started",
		"plan_id", "p-1",
		"error", errors.New("boom"),
		"callback", func() {},
		42, "ignored",
		"dangling",
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "started", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "wf-1", ctx["workflow_id"])
	assert.Equal(t, "p-1", ctx["plan_id"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "<func()>", ctx["callback"])
	assert.NotContains(t, ctx, "dangling")
	assert.Len(t, ctx, 4)
}
