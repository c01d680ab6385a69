package config

import (
	"sync"

	"go.uber.org/zap"
)

// Callback receives the previous and new configuration after a reload.
type Callback func(old, new *Config)

// Runtime keeps the current typed configuration in sync with the watched
// microresearch.yaml and fans changes out to callbacks.
type Runtime struct {
	mu        sync.RWMutex
	current   *Config
	callbacks []Callback
	logger    *zap.Logger
}

// NewRuntime starts from initial.
func NewRuntime(initial *Config, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{current: initial, logger: logger}
}

// Current returns the active configuration. Callers must not mutate it.
func (r *Runtime) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnChange registers cb.
func (r *Runtime) OnChange(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Attach registers the validator and change handler on m for filename.
func (r *Runtime) Attach(m *Manager, filename string) {
	m.RegisterValidator(filename, ValidateMap)
	m.RegisterHandler(filename, r.handleChange)
}

func (r *Runtime) handleChange(event ChangeEvent) error {
	if event.Action == "delete" {
		r.logger.Warn("Configuration file removed; keeping last applied settings", zap.String("file", event.File))
		return nil
	}
	next, err := FromMap(event.Config)
	if err != nil {
		return err
	}
	r.Apply(next)
	return nil
}

// Apply swaps in next and runs callbacks.
func (r *Runtime) Apply(next *Config) {
	r.mu.Lock()
	old := r.current
	r.current = next
	callbacks := append([]Callback(nil), r.callbacks...)
	r.mu.Unlock()

	if old != nil && old.GapPolicy != next.GapPolicy {
		r.logger.Info("Gap policy changed",
			zap.Int("long_answer_chars", next.GapPolicy.LongAnswerChars),
			zap.Int("very_long_answer_chars", next.GapPolicy.VeryLongAnswerChars),
			zap.Bool("registry_override", next.GapPolicy.RegistryOverride),
		)
	}
	for _, cb := range callbacks {
		cb(old, next)
	}
}
