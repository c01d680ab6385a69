package ratecontrol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineLimits(t *testing.T) {
	combined := CombineLimits(RateLimit{RPM: 30, Burst: 5}, RateLimit{RPM: 20, Burst: 0})
	assert.Equal(t, RateLimit{RPM: 20, Burst: 5}, combined)
}

func TestLimitForConnector(t *testing.T) {
	assert.Equal(t, RateLimit{RPM: 60, Burst: 3}, LimitForConnector(nil, "EXA"))
	assert.Equal(t, RateLimit{RPM: 5, Burst: 1}, LimitForConnector(map[string]RateLimit{"exa": {RPM: 5, Burst: 1}}, "exa"))
	assert.Equal(t, RateLimit{}, LimitForConnector(nil, "unknown"))
}

func TestLimitersBurstThenDeny(t *testing.T) {
	l := NewLimiters(map[string]RateLimit{"Exa": {RPM: 1, Burst: 2}})
	assert.True(t, l.Allow("exa"))
	assert.True(t, l.Allow("exa"))
	assert.False(t, l.Allow("exa"))

	// Unknown connectors are unlimited.
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("custom"))
	}
}

func TestLimitersWaitHonoursContext(t *testing.T) {
	l := NewLimiters(map[string]RateLimit{"gleif": {RPM: 1, Burst: 1}})
	require.NoError(t, l.Wait(context.Background(), "gleif"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "gleif"))
}

func TestLimitersUpdateRetunesExistingBuckets(t *testing.T) {
	l := NewLimiters(map[string]RateLimit{"pdl": {RPM: 1, Burst: 1}})
	assert.True(t, l.Allow("pdl"))
	assert.False(t, l.Allow("pdl"))

	l.Update(map[string]RateLimit{"pdl": {RPM: 0}})
	assert.True(t, l.Allow("pdl"))
	assert.Equal(t, RateLimit{}, l.Limit("pdl"))
}
