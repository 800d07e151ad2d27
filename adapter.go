package llmkit

import (
	"fmt"
	"sort"
	"sync"
)

// Adapter translates one backend's raw incremental chunks into canonical
// stream events and a finalized aggregate response.
//
// Contract:
//   - Ingest is called with exactly one raw chunk at a time; it mutates state
//     and returns zero or more canonical events. Chunks may split a JSON
//     token (e.g. a tool-call argument mid-string); partial deltas must be
//     emitted as raw fragments with no premature parsing.
//   - Finalize consumes the state once and reconstructs the response a
//     non-streaming call to the same backend would have produced, using only
//     information observed via Ingest.
//   - A backend-reported error event is surfaced as an error from Ingest;
//     the stream stops and the partially accumulated state is discarded.
//
// The raw chunk shape is provider-specific and opaque to the core; only
// StreamEvent and Response cross this boundary outward.
type Adapter interface {
	Provider() string
	Ingest(state *StreamState, chunk []byte) ([]StreamEvent, error)
	Finalize(state *StreamState) (Response, error)
}

// Registry maps provider identifiers to Adapter instances, so adding a
// provider never touches the pipeline or the accumulator.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("llmkit: nil adapter")
	}
	name := a.Provider()
	if name == "" {
		return fmt.Errorf("llmkit: adapter with empty provider name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[name]; ok {
		return fmt.Errorf("llmkit: adapter %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

func (r *Registry) Lookup(provider string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[provider]
	return a, ok
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
