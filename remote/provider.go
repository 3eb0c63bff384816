package remote

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/effective-security/xlog"

	"github.com/toolwire/toolwire"
)

// routeEntry maps one exposed tool name to the connection that owns it and
// the name the server knows it by (they differ when namespacing is on).
type routeEntry struct {
	conn       *Conn
	serverName string
}

// providerSnapshot pairs an aggregated listing with the routing table built
// from it; the two are always published together.
type providerSnapshot struct {
	tools  []toolwire.ToolSpec
	routes map[string]routeEntry
}

// Provider exposes the tools of any number of remote servers through the
// toolwire.Provider interface. Discovery aggregates every connection's
// listing; execution routes to the connection that owns the named tool.
//
// Discovery has partial-failure semantics: one server failing does not fail
// the aggregate call — its tools are omitted and the failure is recorded
// for ServerErrors. Calls targeting different connections proceed fully in
// parallel; the provider serializes nothing across connections.
type Provider struct {
	name       string
	conns      []*Conn // configured order; first owner wins on collision
	namespaced bool
	noCache    bool

	snap atomic.Pointer[providerSnapshot]

	mu      sync.Mutex // guards srvErrs and snapshot rebuilds
	srvErrs map[string]error
}

var _ toolwire.Provider = (*Provider)(nil)

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithNamespacedTools exposes each tool as mcp__{server}__{tool} instead of
// its raw name, making cross-server collisions impossible.
func WithNamespacedTools() ProviderOption {
	return func(p *Provider) { p.namespaced = true }
}

// WithCacheDisabled makes every ListTools re-query all servers. The routing
// table is still kept from the most recent pass.
func WithCacheDisabled() ProviderOption {
	return func(p *Provider) { p.noCache = true }
}

// NewProvider creates a Provider from server configurations, keyed by
// server id. Connections are ordered by sorted server id, which fixes
// collision precedence deterministically. Returns ErrInvalidConfig
// (wrapped) if any config is invalid.
func NewProvider(name string, servers map[string]ServerConfig, opts ...ProviderOption) (*Provider, error) {
	ids := make([]string, 0, len(servers))
	for id := range servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	conns := make([]*Conn, 0, len(ids))
	for _, id := range ids {
		cfg := servers[id]
		tr, err := NewTransport(cfg)
		if err != nil {
			return nil, err
		}
		connOpts := []ConnOption{}
		if cfg.RequestTimeout > 0 {
			connOpts = append(connOpts, WithRequestTimeout(cfg.RequestTimeout))
		}
		if cfg.StartTimeout > 0 {
			connOpts = append(connOpts, WithStartTimeout(cfg.StartTimeout))
		}
		conns = append(conns, NewConn(id, tr, connOpts...))
	}
	return NewProviderWithConns(name, conns, opts...), nil
}

// NewProviderWithConns creates a Provider from pre-built connections, in
// the given order. This is the injection point for custom transports and
// tests.
func NewProviderWithConns(name string, conns []*Conn, opts ...ProviderOption) *Provider {
	p := &Provider{
		name:    name,
		conns:   conns,
		srvErrs: make(map[string]error),
	}
	for _, fn := range opts {
		fn(p)
	}
	return p
}

// Name implements toolwire.Provider.
func (p *Provider) Name() string { return p.name }

// Connect eagerly starts every connection in parallel. Servers that fail
// keep the provider usable; their errors are joined in the return value
// and recorded for ServerErrors.
func (p *Provider) Connect(ctx context.Context) error {
	errs := make([]error, len(p.conns))
	var wg sync.WaitGroup
	for i, c := range p.conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Start(ctx)
		}()
	}
	wg.Wait()

	p.mu.Lock()
	for i, c := range p.conns {
		if errs[i] != nil {
			p.srvErrs[c.ID()] = errs[i]
		}
	}
	p.mu.Unlock()

	return errors.Join(errs...)
}

// ListTools implements toolwire.Provider. With caching on (the default) a
// previous aggregation is returned unchanged; otherwise every connection
// is queried in parallel and the results concatenated in configured order,
// each tool tagged with its owning connection for later routing.
func (p *Provider) ListTools(ctx context.Context) ([]toolwire.ToolSpec, error) {
	if !p.noCache {
		if snap := p.snap.Load(); snap != nil {
			return toolwire.CloneSpecs(snap.tools), nil
		}
	}
	snap, err := p.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return toolwire.CloneSpecs(snap.tools), nil
}

// ExecuteTool implements toolwire.Provider. Routing uses the last
// successful discovery pass, triggering one if none has run. A name this
// provider does not own raises *toolwire.ToolNotFoundError naming the
// provider — composing registries may still find it elsewhere.
func (p *Provider) ExecuteTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	snap := p.snap.Load()
	if snap == nil {
		var err error
		snap, err = p.refresh(ctx)
		if err != nil {
			return nil, err
		}
	}

	route, ok := snap.routes[name]
	if !ok {
		return nil, &toolwire.ToolNotFoundError{Tool: name, Provider: p.name}
	}
	return route.conn.CallTool(ctx, route.serverName, params)
}

// InvalidateCache drops the provider's aggregate cache and every
// connection's tool cache, forcing the next ListTools to re-query all
// servers. Use it after adding or removing servers, or when replacing a
// crashed connection.
func (p *Provider) InvalidateCache() {
	p.snap.Store(nil)
	for _, c := range p.conns {
		c.InvalidateCache()
	}
}

// ServerErrors returns the per-server failures recorded by the most recent
// discovery pass (and by Connect), keyed by server id.
func (p *Provider) ServerErrors() map[string]error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]error, len(p.srvErrs))
	for k, v := range p.srvErrs {
		out[k] = v
	}
	return out
}

// Conns returns the provider's connections in configured order.
func (p *Provider) Conns() []*Conn {
	return append([]*Conn(nil), p.conns...)
}

// Close stops every connection and releases their transports.
func (p *Provider) Close() error {
	var errs []error
	for _, c := range p.conns {
		if err := c.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// refresh queries every connection in parallel and publishes a new
// snapshot. One rebuild runs at a time.
func (p *Provider) refresh(ctx context.Context) (*providerSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	type result struct {
		tools []toolwire.ToolSpec
		err   error
	}
	results := make([]result, len(p.conns))

	var wg sync.WaitGroup
	for i, c := range p.conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tools, err := c.ListTools(ctx)
			results[i] = result{tools: tools, err: err}
		}()
	}
	wg.Wait()

	snap := &providerSnapshot{routes: make(map[string]routeEntry)}
	errs := make(map[string]error)

	for i, c := range p.conns {
		if err := results[i].err; err != nil {
			// Partial failure: this server's tools are omitted, not fatal.
			errs[c.ID()] = err
			logger.KV(xlog.WARNING, "provider", p.name, "server", c.ID(), "event", "discovery_failed", "err", err)
			continue
		}
		for _, spec := range results[i].tools {
			exposed := spec.Name
			if p.namespaced {
				exposed = NamespacedToolName(c.ID(), spec.Name)
			}
			if _, seen := snap.routes[exposed]; seen {
				// First-configured server wins on collision.
				continue
			}
			snap.routes[exposed] = routeEntry{conn: c, serverName: spec.Name}
			out := spec.Clone()
			out.Name = exposed
			snap.tools = append(snap.tools, out)
		}
	}

	p.srvErrs = errs
	p.snap.Store(snap)
	return snap, nil
}

// NamespacedToolName returns the namespaced form mcp__{server}__{tool}.
func NamespacedToolName(serverID, toolName string) string {
	return "mcp__" + serverID + "__" + toolName
}
