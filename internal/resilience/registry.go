package resilience

import (
	"context"
	"sync"

	"github.com/claimlens/backend/pkg/config"
)

// BackendState bundles the process-wide shared state guarding one
// backend: its throttle and its circuit breaker. Created once per
// backend name and never destroyed.
type BackendState struct {
	cfg     config.BackendConfig
	limiter *Limiter
	breaker *Breaker
}

func newBackendState(cfg config.BackendConfig) *BackendState {
	return &BackendState{
		cfg:     cfg,
		limiter: NewLimiter(cfg.CallsPerSecond),
		breaker: NewBreaker(cfg.Name, cfg.FailureThreshold, cfg.RecoveryTimeout()),
	}
}

// Wait blocks until the backend's rate limit admits a call.
func (s *BackendState) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// Execute runs fn through the backend's circuit breaker.
func (s *BackendState) Execute(fn func() error) error {
	return s.breaker.Execute(fn)
}

// MaxResults returns the backend's configured result cap.
func (s *BackendState) MaxResults() int {
	return s.cfg.MaxResults
}

// CircuitState returns the breaker state name, for diagnostics.
func (s *BackendState) CircuitState() string {
	return s.breaker.State()
}

// Registry holds one BackendState per backend name. Entries are built
// up front from config; lookups for unregistered backends lazily create
// an entry with default settings so a new backend never bypasses
// protection.
type Registry struct {
	mu     sync.Mutex
	states map[string]*BackendState
}

// NewRegistry builds the registry from the configured backend list.
func NewRegistry(backends []config.BackendConfig) *Registry {
	states := make(map[string]*BackendState, len(backends))
	for _, b := range backends {
		states[b.Name] = newBackendState(b)
	}
	return &Registry{states: states}
}

// Get returns the shared state for a backend, creating a default entry
// for names not present in the configuration.
func (r *Registry) Get(name string) *BackendState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.states[name]; ok {
		return state
	}

	cfg := config.BackendConfig{Name: name, CallsPerSecond: 1.0, FailureThreshold: 5, RecoveryTimeoutSeconds: 180, MaxResults: 5}
	state := newBackendState(cfg)
	r.states[name] = state
	return state
}

// Names returns the registered backend names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.states))
	for name := range r.states {
		names = append(names, name)
	}
	return names
}
