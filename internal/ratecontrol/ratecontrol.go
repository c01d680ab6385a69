package ratecontrol

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit is a per-connector request budget.
type RateLimit struct {
	RPM   int `mapstructure:"rpm" yaml:"rpm"`
	Burst int `mapstructure:"burst" yaml:"burst"`
}

var builtInConnectorLimits = map[string]RateLimit{
	"exa":         {RPM: 60, Burst: 3},
	"openai_web":  {RPM: 20, Burst: 2},
	"pdl":         {RPM: 30, Burst: 2},
	"pdl_company": {RPM: 30, Burst: 2},
	"gleif":       {RPM: 60, Burst: 5},
}

func normalize(connector string) string {
	return strings.ToLower(strings.TrimSpace(connector))
}

// LimitForConnector returns the configured override for connector, else
// the built-in default. A zero RateLimit means unlimited.
func LimitForConnector(overrides map[string]RateLimit, connector string) RateLimit {
	key := normalize(connector)
	if override, ok := overrides[key]; ok {
		return override
	}
	return builtInConnectorLimits[key]
}

// CombineLimits keeps the tighter positive value of each field.
func CombineLimits(a, b RateLimit) RateLimit {
	limit := RateLimit{
		RPM:   minPositive(a.RPM, b.RPM),
		Burst: minPositive(a.Burst, b.Burst),
	}
	if limit.RPM == 0 {
		limit.RPM = max(a.RPM, b.RPM)
	}
	if limit.Burst == 0 {
		limit.Burst = max(a.Burst, b.Burst)
	}
	return limit
}

func minPositive(a, b int) int {
	switch {
	case a <= 0 && b <= 0:
		return 0
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		if a < b {
			return a
		}
		return b
	}
}

func toLimiter(l RateLimit) *rate.Limiter {
	if l.RPM <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(l.RPM)/60.0), burst)
}

// Limiters holds one token bucket per connector. Safe for concurrent use.
type Limiters struct {
	mu        sync.RWMutex
	overrides map[string]RateLimit
	limiters  map[string]*rate.Limiter
}

// NewLimiters builds limiters from configured overrides.
func NewLimiters(overrides map[string]RateLimit) *Limiters {
	l := &Limiters{limiters: make(map[string]*rate.Limiter)}
	l.Update(overrides)
	return l
}

// Update swaps the overrides. Existing buckets are retuned in place so
// in-flight waiters observe the new rate.
func (l *Limiters) Update(overrides map[string]RateLimit) {
	norm := make(map[string]RateLimit, len(overrides))
	for k, v := range overrides {
		norm[normalize(k)] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides = norm
	for key, lim := range l.limiters {
		next := LimitForConnector(norm, key)
		if next.RPM <= 0 {
			lim.SetLimit(rate.Inf)
			continue
		}
		lim.SetLimit(rate.Limit(float64(next.RPM) / 60.0))
		burst := next.Burst
		if burst <= 0 {
			burst = 1
		}
		lim.SetBurst(burst)
	}
}

// Limit reports the effective limit for connector.
func (l *Limiters) Limit(connector string) RateLimit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LimitForConnector(l.overrides, connector)
}

func (l *Limiters) get(connector string) *rate.Limiter {
	key := normalize(connector)
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	lim = toLimiter(LimitForConnector(l.overrides, key))
	l.limiters[key] = lim
	return lim
}

// Wait blocks until connector may issue a request or ctx is done.
func (l *Limiters) Wait(ctx context.Context, connector string) error {
	return l.get(connector).Wait(ctx)
}

// Allow reports whether a request may happen now without waiting.
func (l *Limiters) Allow(connector string) bool {
	return l.get(connector).Allow()
}
