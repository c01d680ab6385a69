package circuitbreaker

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the env-tunable form of Config.
type Settings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// DatabaseSettings reads CB_DB_* overrides.
func DatabaseSettings() Settings {
	return fromEnv("CB_DB", Settings{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	})
}

// ConnectorSettings reads CB_CONNECTOR_<NAME>_* and then CB_CONNECTOR_*
// overrides for a connector key such as "exa" or "pdl_company".
func ConnectorSettings(connector string) Settings {
	base := fromEnv("CB_CONNECTOR", Settings{
		MaxRequests:      2,
		Interval:         30 * time.Second,
		Timeout:          20 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 1,
	})
	return fromEnv("CB_CONNECTOR_"+strings.ToUpper(connector), base)
}

// LLMSettings reads CB_LLM_* overrides.
func LLMSettings() Settings {
	return fromEnv("CB_LLM", Settings{
		MaxRequests:      2,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 1,
	})
}

// CacheSettings reads CB_CACHE_* overrides.
func CacheSettings() Settings {
	return fromEnv("CB_CACHE", Settings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// ToConfig converts Settings to a breaker Config.
func (s Settings) ToConfig() Config {
	return Config{
		MaxRequests:      s.MaxRequests,
		Interval:         s.Interval,
		Timeout:          s.Timeout,
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
	}
}

func fromEnv(prefix string, def Settings) Settings {
	return Settings{
		MaxRequests:      envUint32(prefix+"_MAX_REQUESTS", def.MaxRequests),
		Interval:         envDuration(prefix+"_INTERVAL", def.Interval),
		Timeout:          envDuration(prefix+"_TIMEOUT", def.Timeout),
		FailureThreshold: envUint32(prefix+"_FAILURE_THRESHOLD", def.FailureThreshold),
		SuccessThreshold: envUint32(prefix+"_SUCCESS_THRESHOLD", def.SuccessThreshold),
	}
}

func envUint32(key string, def uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}
