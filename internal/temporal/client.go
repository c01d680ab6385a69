package temporal

import (
	"context"
	"net"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// Options select the Temporal frontend.
type Options struct {
	Host      string
	Namespace string
}

// Dial waits for the frontend TCP endpoint, then dials the SDK client with a
// linear backoff capped at 15s. It returns only on success or when ctx ends.
func Dial(ctx context.Context, opts Options, logger *zap.Logger) (client.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for i := 1; i <= 60; i++ {
		c, err := net.DialTimeout("tcp", opts.Host, 2*time.Second)
		if err == nil {
			_ = c.Close()
			break
		}
		logger.Warn("Waiting for Temporal TCP endpoint", zap.String("host", opts.Host), zap.Int("attempt", i))
		if err := sleep(ctx, time.Second); err != nil {
			return nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		c, err := client.Dial(client.Options{
			HostPort:  opts.Host,
			Namespace: opts.Namespace,
			Logger:    NewZapAdapter(logger),
		})
		if err == nil {
			return c, nil
		}
		delay := time.Duration(attempt) * time.Second
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt),
			zap.String("host", opts.Host),
			zap.Duration("sleep", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
