package toolwire

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// registrySnapshot pairs a flattened tool listing with the name index built
// from it. The two are always published together: readers load the pointer
// once and never observe a half-updated pair.
type registrySnapshot struct {
	tools []ToolSpec
	index map[string]Provider
}

// Registry composes many Providers into one logical provider. It aggregates
// and caches tool listings and routes each execution request to the
// provider that owns the named tool.
//
// When two providers expose the same tool name, the first-registered
// provider wins, deterministically. The registry does not own provider
// lifecycles; it only holds references. It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex // guards providers, listErrs, and snapshot rebuilds
	providers []Provider
	listErrs  map[string]error

	snap atomic.Pointer[registrySnapshot]

	tracker *Tracker
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTracker records per-tool call accounting on every ExecuteTool.
func WithTracker(t *Tracker) RegistryOption {
	return func(r *Registry) { r.tracker = t }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, fn := range opts {
		fn(r)
	}
	return r
}

// Register appends a provider to the registry and invalidates the cached
// listing. Registration order determines collision precedence.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	r.providers = append(r.providers, p)
	r.mu.Unlock()
	r.snap.Store(nil)
}

// ListTools returns the union of all providers' tools. The result is served
// from the registry cache when present; otherwise every provider is queried
// in registration order. A provider that fails during aggregation is
// omitted from the result and its error recorded for ListErrors.
//
// The returned specs are copies; mutating them does not affect the cache.
func (r *Registry) ListTools(ctx context.Context) ([]ToolSpec, error) {
	snap := r.snap.Load()
	if snap == nil {
		var err error
		snap, err = r.refresh(ctx)
		if err != nil {
			return nil, err
		}
	}
	return CloneSpecs(snap.tools), nil
}

// ExecuteTool routes the named tool to the provider that declared it and
// returns the provider's result, or propagates its error unchanged. If the
// name is absent from the cached index (populating it first if needed), a
// *ToolNotFoundError naming the registry scope is returned.
func (r *Registry) ExecuteTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	snap := r.snap.Load()
	if snap == nil {
		var err error
		snap, err = r.refresh(ctx)
		if err != nil {
			return nil, err
		}
	}

	p, ok := snap.index[name]
	if !ok {
		return nil, &ToolNotFoundError{Tool: name, Provider: "registry"}
	}

	start := time.Now()
	result, err := p.ExecuteTool(ctx, name, params)
	if r.tracker != nil {
		r.tracker.Record(p.Name(), name, time.Since(start), err)
	}
	return result, err
}

// InvalidateCache clears the registry-level cache only. Provider-level
// caches are invalidated independently by their owners.
func (r *Registry) InvalidateCache() {
	r.snap.Store(nil)
}

// ListErrors returns the per-provider errors recorded during the most
// recent aggregation pass, keyed by provider name. Empty when the last
// pass was fully successful.
func (r *Registry) ListErrors() map[string]error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]error, len(r.listErrs))
	for k, v := range r.listErrs {
		out[k] = v
	}
	return out
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Provider(nil), r.providers...)
}

// refresh queries every provider and publishes a new snapshot. Rebuilds are
// serialized; concurrent readers keep using the last published snapshot
// until the new one is stored.
func (r *Registry) refresh(ctx context.Context) (*registrySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have refreshed while we waited on the lock.
	if snap := r.snap.Load(); snap != nil {
		return snap, nil
	}

	snap := &registrySnapshot{index: make(map[string]Provider)}
	errs := make(map[string]error)

	for _, p := range r.providers {
		specs, err := p.ListTools(ctx)
		if err != nil {
			errs[p.Name()] = err
			continue
		}
		for _, spec := range specs {
			if _, seen := snap.index[spec.Name]; seen {
				// First-registered provider wins on name collision.
				continue
			}
			snap.index[spec.Name] = p
			snap.tools = append(snap.tools, spec.Clone())
		}
	}

	r.listErrs = errs
	r.snap.Store(snap)
	return snap, nil
}
