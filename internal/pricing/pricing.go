package pricing

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	pmetrics "github.com/Kocoro-lab/Shannon/go/microresearch/internal/metrics"
)

type modelPrice struct {
	InputPer1K    float64 `yaml:"input_per_1k"`
	OutputPer1K   float64 `yaml:"output_per_1k"`
	CombinedPer1K float64 `yaml:"combined_per_1k"`
}

// config mirrors config/pricing.yaml.
type config struct {
	Pricing struct {
		Defaults struct {
			CombinedPer1K float64 `yaml:"combined_per_1k"`
		} `yaml:"defaults"`
		Models map[string]map[string]modelPrice `yaml:"models"`
	} `yaml:"pricing"`
	Connectors struct {
		Default  *float64           `yaml:"default"`
		Reanswer *float64           `yaml:"reanswer"`
		Units    map[string]float64 `yaml:"units"`
	} `yaml:"connectors"`
}

var (
	mu          sync.RWMutex
	loaded      *config
	initialized bool
	logger      = zap.NewNop()
)

var defaultPaths = []string{
	os.Getenv("MICRORESEARCH_PRICING_PATH"),
	"/app/config/pricing.yaml",
	"./config/pricing.yaml",
	"../../config/pricing.yaml",
}

// Unit costs in USD per connector call (per query for exa).
var builtInConnectorUnits = map[string]float64{
	"exa":         0.02,
	"openai_web":  0.05,
	"pdl":         0.10,
	"pdl_company": 0.05,
	"gleif":       0,
}

const (
	builtInDefaultUnit  = 0.01
	builtInReanswerCost = 0.02
)

// SetLogger routes loader messages to l.
func SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

func findUpConfig() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "pricing.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}

func readConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadLocked must be called while holding mu.Lock().
func loadLocked() {
	cfg := &config{}
	paths := append([]string(nil), defaultPaths...)
	if p, ok := findUpConfig(); ok {
		paths = append(paths, p)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		tmp, err := readConfig(p)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn("Failed to load pricing config", zap.String("path", p), zap.Error(err))
			}
			continue
		}
		cfg = tmp
		logger.Info("Loaded pricing configuration", zap.String("path", p))
		break
	}
	loaded = cfg
	initialized = true
}

func get() *config {
	mu.RLock()
	if initialized {
		defer mu.RUnlock()
		return loaded
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		loadLocked()
	}
	return loaded
}

// Reload forces a re-read of the pricing file.
func Reload() {
	mu.Lock()
	defer mu.Unlock()
	initialized = false
	loadLocked()
}

// LoadFile replaces the active pricing with the contents of path.
func LoadFile(path string) error {
	cfg, err := readConfig(path)
	if err != nil {
		return err
	}
	if err := validate(cfg); err != nil {
		return err
	}
	mu.Lock()
	loaded = cfg
	initialized = true
	mu.Unlock()
	return nil
}

// DefaultPerToken returns the default combined price per token.
func DefaultPerToken() float64 {
	cfg := get()
	if cfg.Pricing.Defaults.CombinedPer1K > 0 {
		return cfg.Pricing.Defaults.CombinedPer1K / 1000.0
	}
	return 0.000002
}

func lookupModel(cfg *config, model string) (modelPrice, bool) {
	if model == "" {
		return modelPrice{}, false
	}
	for _, models := range cfg.Pricing.Models {
		if m, ok := models[model]; ok {
			return m, true
		}
	}
	return modelPrice{}, false
}

// CostForSplit prices an input/output token split, falling back to combined
// or default pricing when the model is unknown.
func CostForSplit(model string, inputTokens, outputTokens int) float64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}

	if m, ok := lookupModel(get(), model); ok {
		if m.InputPer1K > 0 && m.OutputPer1K > 0 {
			return (float64(inputTokens)/1000.0)*m.InputPer1K + (float64(outputTokens)/1000.0)*m.OutputPer1K
		}
		if m.CombinedPer1K > 0 {
			return (float64(inputTokens+outputTokens) / 1000.0) * m.CombinedPer1K
		}
	}
	if model == "" {
		pmetrics.PricingFallbacks.WithLabelValues("missing_model").Inc()
	} else {
		pmetrics.PricingFallbacks.WithLabelValues("unknown_model").Inc()
	}
	return float64(inputTokens+outputTokens) * DefaultPerToken()
}

// ConnectorUnitCost is the USD cost of one call (exa: one query) of connector.
func ConnectorUnitCost(connector string) float64 {
	cfg := get()
	key := strings.ToLower(strings.TrimSpace(connector))
	if v, ok := cfg.Connectors.Units[key]; ok {
		return v
	}
	if v, ok := builtInConnectorUnits[key]; ok {
		return v
	}
	if cfg.Connectors.Default != nil {
		return *cfg.Connectors.Default
	}
	return builtInDefaultUnit
}

// ReanswerCost is the flat estimate for regenerating an answer.
func ReanswerCost() float64 {
	if cfg := get(); cfg.Connectors.Reanswer != nil {
		return *cfg.Connectors.Reanswer
	}
	return builtInReanswerCost
}

func validate(cfg *config) error {
	if cfg.Pricing.Defaults.CombinedPer1K < 0 {
		return errors.New("pricing.defaults.combined_per_1k must be >= 0")
	}
	for prov, models := range cfg.Pricing.Models {
		for name, m := range models {
			if m.InputPer1K < 0 || m.OutputPer1K < 0 || m.CombinedPer1K < 0 {
				return errors.New("negative price for " + prov + ":" + name)
			}
		}
	}
	for name, v := range cfg.Connectors.Units {
		if v < 0 {
			return errors.New("negative unit cost for connector " + name)
		}
	}
	return nil
}
