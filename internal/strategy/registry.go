package strategy

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/newthinker/replay/internal/core"
)

// Registry maps strategy names to factories. It is safe for concurrent use,
// so parallel runs can each build their own instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates a new strategy registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    l,
	}
}

// Register adds a factory under name, replacing any earlier one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.factories))
	for name := range r.factories {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// New builds and initializes a fresh instance of the named strategy.
func (r *Registry) New(name string, cfg Config) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown strategy %q", name))
	}

	s := f()
	if err := s.Init(cfg); err != nil {
		r.logger.Warn("strategy init failed",
			zap.String("strategy", name),
			zap.Error(err),
		)
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("strategy %s: %w", name, err))
	}
	return s, nil
}
