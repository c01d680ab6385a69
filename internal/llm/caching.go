package llm

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// ByteStore is the cache backend, implemented by cache.RedisStore.
type ByteStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachingCompleter serves identical prompts from a ByteStore. Store errors
// fall through to the wrapped completer.
type CachingCompleter struct {
	next   Completer
	store  ByteStore
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewCachingCompleter wraps next.
func NewCachingCompleter(next Completer, store ByteStore, prefix string, ttl time.Duration, logger *zap.Logger) *CachingCompleter {
	return &CachingCompleter{next: next, store: store, ttl: ttl, prefix: prefix, logger: logger}
}

// Complete returns a cached response when one exists, otherwise calls through
// and stores the result.
func (c *CachingCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	key := c.prefix + PromptKey(req)

	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("LLM cache read failed", zap.Error(err))
	} else if ok {
		var cached Response
		if err := json.Unmarshal(raw, &cached); err == nil {
			cached.Cached = true
			return &cached, nil
		}
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(resp); err == nil {
		if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("LLM cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

// PromptKey is the hex blake3 digest of the request.
func PromptKey(req Request) string {
	h := blake3.New()
	fmt.Fprintf(h, "%d|%.3f|", req.MaxTokens, req.Temperature)
	h.Write([]byte(req.SystemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(req.UserPrompt))
	return hex.EncodeToString(h.Sum(nil))
}
