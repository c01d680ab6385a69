package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/ratecontrol"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/validation"
)

// EnvPrefix namespaces environment overrides, e.g. MICRORESEARCH_PLAN_MAX_STEPS.
const EnvPrefix = "MICRORESEARCH"

// DefaultFileName is the config file watched for hot reload.
const DefaultFileName = "microresearch.yaml"

type ServiceConfig struct {
	Port      int    `mapstructure:"port"`
	AdminPort int    `mapstructure:"admin_port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN renders a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type LLMConfig struct {
	// Provider is "service" (shared llm-service) or "openai".
	Provider      string        `mapstructure:"provider"`
	ServiceURL    string        `mapstructure:"service_url"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	Model         string        `mapstructure:"model"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

type ExecutionConfig struct {
	StaleTimeoutMinutes int `mapstructure:"stale_timeout_minutes"`
	MaxSnippetChars     int `mapstructure:"max_snippet_chars"`
	ErrorMessageChars   int `mapstructure:"error_message_chars"`
}

// StaleTimeout is the sweeper cutoff as a duration.
func (e ExecutionConfig) StaleTimeout() time.Duration {
	return time.Duration(e.StaleTimeoutMinutes) * time.Minute
}

type ConnectorsConfig struct {
	GatewayURL string                           `mapstructure:"gateway_url"`
	Timeout    time.Duration                    `mapstructure:"timeout"`
	Limits     map[string]ratecontrol.RateLimit `mapstructure:"limits"`
}

type ServicesConfig struct {
	ReanswerURL     string        `mapstructure:"reanswer_url"`
	ReanswerTimeout time.Duration `mapstructure:"reanswer_timeout"`
}

type RetentionConfig struct {
	Days int `mapstructure:"days"`
}

type SchedulesConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SweepCron     string `mapstructure:"sweep_cron"`
	RetentionCron string `mapstructure:"retention_cron"`
	Timezone      string `mapstructure:"timezone"`
}

// Config is the full service configuration.
type Config struct {
	Service     ServiceConfig          `mapstructure:"service"`
	Postgres    PostgresConfig         `mapstructure:"postgres"`
	Redis       RedisConfig            `mapstructure:"redis"`
	Temporal    TemporalConfig         `mapstructure:"temporal"`
	LLM         LLMConfig              `mapstructure:"llm"`
	GapPolicy   gap.Policy             `mapstructure:"gap_policy"`
	Plan        microplan.Limits       `mapstructure:"plan"`
	Execution   ExecutionConfig        `mapstructure:"execution"`
	Connectors  ConnectorsConfig       `mapstructure:"connectors"`
	Services    ServicesConfig         `mapstructure:"services"`
	Retention   RetentionConfig        `mapstructure:"retention"`
	Schedules   SchedulesConfig        `mapstructure:"schedules"`
	Tracing     tracing.Config         `mapstructure:"tracing"`
	Credentials validation.Credentials `mapstructure:"credentials"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", 8090)
	v.SetDefault("service.admin_port", 2112)
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.log_format", "json")

	v.SetDefault("postgres.host", "postgres")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "shannon")
	v.SetDefault("postgres.password", "shannon")
	v.SetDefault("postgres.database", "shannon")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 25)
	v.SetDefault("postgres.max_idle_conns", 5)

	v.SetDefault("redis.addr", "redis:6379")

	v.SetDefault("temporal.host", "temporal:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "microresearch")

	v.SetDefault("llm.provider", "service")
	v.SetDefault("llm.service_url", "http://llm-service:8000")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.cache_ttl", time.Hour)

	p := gap.DefaultPolicy()
	v.SetDefault("gap_policy.long_answer_chars", p.LongAnswerChars)
	v.SetDefault("gap_policy.long_answer_min_evidence", p.LongAnswerMinEvidence)
	v.SetDefault("gap_policy.very_long_answer_chars", p.VeryLongAnswerChars)
	v.SetDefault("gap_policy.very_long_answer_min_evidence", p.VeryLongAnswerMinEvidence)
	v.SetDefault("gap_policy.registry_override", p.RegistryOverride)

	l := microplan.DefaultLimits()
	v.SetDefault("plan.max_steps", l.MaxSteps)
	v.SetDefault("plan.max_exa_queries", l.MaxExaQueries)

	v.SetDefault("execution.stale_timeout_minutes", 30)
	v.SetDefault("execution.max_snippet_chars", 12000)
	v.SetDefault("execution.error_message_chars", 500)

	v.SetDefault("connectors.gateway_url", "http://connector-gateway:8010")
	v.SetDefault("connectors.timeout", 60*time.Second)

	v.SetDefault("services.reanswer_url", "http://research-api:8000")
	v.SetDefault("services.reanswer_timeout", 120*time.Second)

	v.SetDefault("retention.days", 90)

	v.SetDefault("schedules.enabled", true)
	v.SetDefault("schedules.sweep_cron", "*/5 * * * *")
	v.SetDefault("schedules.retention_cron", "0 3 * * *")
	v.SetDefault("schedules.timezone", "UTC")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "microresearch")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
}

// bindLegacyEnv maps the conventional unprefixed variables.
func bindLegacyEnv(v *viper.Viper) {
	pairs := map[string]string{
		"postgres.host":              "POSTGRES_HOST",
		"postgres.port":              "POSTGRES_PORT",
		"postgres.user":              "POSTGRES_USER",
		"postgres.password":          "POSTGRES_PASSWORD",
		"postgres.database":          "POSTGRES_DB",
		"postgres.sslmode":           "POSTGRES_SSLMODE",
		"redis.addr":                 "REDIS_ADDR",
		"redis.password":             "REDIS_PASSWORD",
		"temporal.host":              "TEMPORAL_HOST",
		"temporal.namespace":         "TEMPORAL_NAMESPACE",
		"llm.service_url":            "LLM_SERVICE_URL",
		"tracing.otlp_endpoint":      "OTEL_EXPORTER_OTLP_ENDPOINT",
		"credentials.exa_api_key":    "EXA_API_KEY",
		"credentials.openai_api_key": "OPENAI_API_KEY",
		"credentials.pdl_api_key":    "PDL_API_KEY",
	}
	for key, env := range pairs {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)
	return v
}

// Load reads path (optional) layered over defaults and environment. A .env
// file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()
	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// SearchDirs are checked in order for DefaultFileName when no explicit path
// is given.
var SearchDirs = []string{"./config", "/app/config"}

// FindConfigFile returns MICRORESEARCH_CONFIG_PATH when set, otherwise the
// first existing DefaultFileName under SearchDirs, or "".
func FindConfigFile() string {
	if p := os.Getenv("MICRORESEARCH_CONFIG_PATH"); p != "" {
		return p
	}
	for _, dir := range SearchDirs {
		p := filepath.Join(dir, DefaultFileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FromMap decodes an already-parsed config document over the defaults.
func FromMap(m map[string]interface{}) (*Config, error) {
	v := newViper()
	if err := v.MergeConfigMap(m); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Plan.MaxSteps <= 0:
		return errors.New("plan.max_steps must be > 0")
	case c.Plan.MaxExaQueries <= 0:
		return errors.New("plan.max_exa_queries must be > 0")
	case c.Execution.StaleTimeoutMinutes <= 0:
		return errors.New("execution.stale_timeout_minutes must be > 0")
	case c.Execution.MaxSnippetChars <= 0:
		return errors.New("execution.max_snippet_chars must be > 0")
	case c.Retention.Days <= 0:
		return errors.New("retention.days must be > 0")
	case c.GapPolicy.LongAnswerChars < 0 || c.GapPolicy.VeryLongAnswerChars < 0:
		return errors.New("gap_policy thresholds must be >= 0")
	}
	for name, l := range c.Connectors.Limits {
		if l.RPM < 0 || l.Burst < 0 {
			return fmt.Errorf("connectors.limits.%s must be >= 0", name)
		}
	}
	switch c.LLM.Provider {
	case "service", "openai", "none":
	default:
		return fmt.Errorf("llm.provider %q not supported", c.LLM.Provider)
	}
	return nil
}

// ValidateMap is registered with the Manager for the config file.
func ValidateMap(m map[string]interface{}) error {
	_, err := FromMap(m)
	return err
}
