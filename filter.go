package toolwire

import (
	"context"
	"encoding/json"

	"github.com/bmatcuk/doublestar/v4"
)

// FilterProvider wraps a Provider and restricts which of its tools are
// visible and executable, by name pattern. Patterns use doublestar syntax,
// so "fs/**", "mcp__search__*", and "{read,write}" all work. Deny patterns
// take precedence over allow patterns; an empty allow list means
// "everything not denied".
//
// A tool hidden by the filter behaves exactly like a tool the underlying
// provider never had: executing it returns *ToolNotFoundError.
type FilterProvider struct {
	inner Provider
	allow []string
	deny  []string
}

var _ Provider = (*FilterProvider)(nil)

// NewFilterProvider wraps inner with allow/deny name patterns.
func NewFilterProvider(inner Provider, allow, deny []string) *FilterProvider {
	return &FilterProvider{
		inner: inner,
		allow: append([]string(nil), allow...),
		deny:  append([]string(nil), deny...),
	}
}

// Name implements Provider.
func (f *FilterProvider) Name() string { return f.inner.Name() }

// ListTools implements Provider, returning only the tools the filter
// admits.
func (f *FilterProvider) ListTools(ctx context.Context) ([]ToolSpec, error) {
	specs, err := f.inner.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	kept := specs[:0]
	for _, spec := range specs {
		if f.admits(spec.Name) {
			kept = append(kept, spec)
		}
	}
	return kept, nil
}

// ExecuteTool implements Provider. Filtered names are reported as not
// found without consulting the underlying provider.
func (f *FilterProvider) ExecuteTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	if !f.admits(name) {
		return nil, &ToolNotFoundError{Tool: name, Provider: f.inner.Name()}
	}
	return f.inner.ExecuteTool(ctx, name, params)
}

// admits evaluates deny patterns first, then allow patterns.
func (f *FilterProvider) admits(name string) bool {
	for _, pattern := range f.deny {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return false
		}
	}
	if len(f.allow) == 0 {
		return true
	}
	for _, pattern := range f.allow {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
