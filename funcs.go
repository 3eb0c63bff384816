package toolwire

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/toolwire/toolwire/internal/schema"
)

// funcTool is the type-erased wrapper stored in a FuncProvider.
type funcTool struct {
	spec    ToolSpec
	execute func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

// FuncProvider is an in-process Provider backed by plain Go functions. It
// implements the same discovery/execution contract as a server-backed
// provider without touching the wire protocol at all, which makes it the
// natural home for tools that live in the caller's process. It is safe for
// concurrent use.
type FuncProvider struct {
	name string

	mu    sync.RWMutex
	tools map[string]*funcTool
	order []string // preserve registration order
}

var _ Provider = (*FuncProvider)(nil)

// NewFuncProvider creates an empty FuncProvider with the given name.
func NewFuncProvider(name string) *FuncProvider {
	return &FuncProvider{
		name:  name,
		tools: make(map[string]*funcTool),
	}
}

// Name implements Provider.
func (p *FuncProvider) Name() string { return p.name }

// RegisterFunc registers a typed Go function as a tool. The input type T is
// used to auto-generate the tool's parameter schema from its struct tags.
// Registering a name twice replaces the earlier function but keeps its
// position in the listing order.
func RegisterFunc[T any](p *FuncProvider, name, description string, fn func(ctx context.Context, input T) (any, error)) {
	spec := ToolSpec{
		Name:        name,
		Description: description,
		Parameters:  schema.Generate[T](),
	}
	entry := &funcTool{
		spec: spec,
		execute: func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
			var input T
			if len(params) > 0 {
				if err := json.Unmarshal(params, &input); err != nil {
					return nil, &ToolExecutionError{
						Tool:    name,
						ErrType: "execution_error",
						Message: fmt.Sprintf("invalid input: %s", err),
					}
				}
			}
			out, err := fn(ctx, input)
			if err != nil {
				return nil, &ToolExecutionError{
					Tool:    name,
					ErrType: "execution_error",
					Message: err.Error(),
				}
			}
			result, err := json.Marshal(out)
			if err != nil {
				return nil, &ToolExecutionError{
					Tool:    name,
					ErrType: "execution_error",
					Message: fmt.Sprintf("unencodable result: %s", err),
				}
			}
			return result, nil
		},
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.tools[name]; !exists {
		p.order = append(p.order, name)
	}
	p.tools[name] = entry
}

// RegisterSpec registers a tool with a pre-built spec and execute function,
// for dynamic tool sources that don't use the typed RegisterFunc path.
func (p *FuncProvider) RegisterSpec(spec ToolSpec, execute func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.tools[spec.Name]; !exists {
		p.order = append(p.order, spec.Name)
	}
	p.tools[spec.Name] = &funcTool{spec: spec.Clone(), execute: execute}
}

// ListTools implements Provider. Specs are returned in registration order,
// as copies.
func (p *FuncProvider) ListTools(_ context.Context) ([]ToolSpec, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(p.order))
	for _, name := range p.order {
		specs = append(specs, p.tools[name].spec.Clone())
	}
	return specs, nil
}

// ExecuteTool implements Provider.
func (p *FuncProvider) ExecuteTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	p.mu.RLock()
	entry, ok := p.tools[name]
	p.mu.RUnlock()

	if !ok {
		return nil, &ToolNotFoundError{Tool: name, Provider: p.name}
	}
	return entry.execute(ctx, params)
}
