package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zap.NewNop())
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, SynthesisPrefix+"missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, SynthesisPrefix+"k", []byte(`{"content":"x"}`), time.Minute))
	val, ok, err := s.Get(ctx, SynthesisPrefix+"k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"content":"x"}`, string(val))

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Get(ctx, SynthesisPrefix+"k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreErrorsWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), zap.NewNop())
	defer s.Close()
	mr.Close()

	_, ok, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLocalLRUEvictsAndExpires(t *testing.T) {
	l := NewLocalLRU(2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, l.Set(ctx, "b", []byte("2"), time.Minute))
	_, ok, _ := l.Get(ctx, "a")
	assert.True(t, ok)
	require.NoError(t, l.Set(ctx, "c", []byte("3"), time.Minute))

	_, ok, _ = l.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry is evicted")
	assert.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	_, ok, _ = l.Get(ctx, "a")
	assert.False(t, ok)
}
