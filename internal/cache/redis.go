package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/metrics"
)

// SynthesisPrefix namespaces cached planner responses.
const SynthesisPrefix = "microresearch:synth:"

// RedisStore is a byte cache on Redis behind a circuit breaker.
type RedisStore struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects and pings.
func NewRedisStore(opts Options, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	s := NewRedisStoreFromClient(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := circuitbreaker.NewCircuitBreaker("redis", circuitbreaker.CacheSettings().ToConfig(), logger)
	circuitbreaker.GlobalMetricsCollector.Register("synthesis-cache", cb)
	return &RedisStore{client: client, cb: cb, logger: logger}
}

// Client exposes the raw client for health checks.
func (s *RedisStore) Client() *redis.Client { return s.client }

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.cb.Execute(ctx, func() error { return s.client.Ping(ctx).Err() })
}

// Get returns the value for key; a miss is (nil, false, nil).
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	err := s.cb.Execute(ctx, func() error {
		b, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		val = b
		return nil
	})
	switch {
	case err != nil:
		metrics.SynthesisCacheResults.WithLabelValues("error").Inc()
		return nil, false, err
	case val == nil:
		metrics.SynthesisCacheResults.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	metrics.SynthesisCacheResults.WithLabelValues("hit").Inc()
	return val, true, nil
}

// Set stores value with ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.cb.Execute(ctx, func() error {
		return s.client.Set(ctx, key, value, ttl).Err()
	})
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
