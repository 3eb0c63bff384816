package remote

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolwire/toolwire"
	"github.com/toolwire/toolwire/wire"
)

// namedServer answers the protocol with a fixed tool set, tagging call
// results with the server tag so routing is observable.
func namedServer(tag string, tools ...string) func(*wire.Message) *wire.Message {
	return func(msg *wire.Message) *wire.Message {
		switch msg.Type {
		case wire.TypeHandshake:
			return wire.NewHandshakeResponse(wire.Version)
		case wire.TypeListTools:
			specs := make([]wire.ToolSpec, 0, len(tools))
			for _, name := range tools {
				specs = append(specs, wire.ToolSpec{Name: name, Parameters: wire.Parameters{Type: "object"}})
			}
			return wire.NewListToolsResponse(specs)
		case wire.TypeCallTool:
			for _, name := range tools {
				if name == msg.Tool {
					result, _ := json.Marshal(tag + ":" + msg.Tool)
					return wire.NewCallToolResult(result)
				}
			}
			return wire.NewCallToolError(wire.ErrorTypeToolNotFound, "unknown tool")
		}
		return nil
	}
}

func brokenServer() func(*wire.Message) *wire.Message {
	return func(msg *wire.Message) *wire.Message {
		if msg.Type == wire.TypeHandshake {
			return wire.NewHandshakeResponse(99)
		}
		return nil
	}
}

func TestProvider_AggregatesAcrossServers(t *testing.T) {
	p := NewProviderWithConns("mcp", []*Conn{
		NewConn("fs", newFakeTransport(namedServer("fs", "read", "write"))),
		NewConn("web", newFakeTransport(namedServer("web", "fetch"))),
	})
	defer p.Close()

	tools, err := p.ListTools(context.Background())
	require.NoError(t, err)

	var names []string
	for _, spec := range tools {
		names = append(names, spec.Name)
	}
	assert.Equal(t, []string{"read", "write", "fetch"}, names)
}

func TestProvider_RoutesToOwningServer(t *testing.T) {
	p := NewProviderWithConns("mcp", []*Conn{
		NewConn("fs", newFakeTransport(namedServer("fs", "read"))),
		NewConn("web", newFakeTransport(namedServer("web", "fetch"))),
	})
	defer p.Close()

	result, err := p.ExecuteTool(context.Background(), "fetch", nil)
	require.NoError(t, err)
	assert.Equal(t, `"web:fetch"`, string(result))

	result, err = p.ExecuteTool(context.Background(), "read", nil)
	require.NoError(t, err)
	assert.Equal(t, `"fs:read"`, string(result))

	_, err = p.ExecuteTool(context.Background(), "nope", nil)
	var nf *toolwire.ToolNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "mcp", nf.Provider)
}

func TestProvider_PartialDiscoveryFailure(t *testing.T) {
	p := NewProviderWithConns("mcp", []*Conn{
		NewConn("good", newFakeTransport(namedServer("good", "read"))),
		NewConn("bad", newFakeTransport(brokenServer())),
	})
	defer p.Close()

	tools, err := p.ListTools(context.Background())
	require.NoError(t, err, "one failing server must not fail the aggregate")
	require.Len(t, tools, 1)
	assert.Equal(t, "read", tools[0].Name)

	srvErrs := p.ServerErrors()
	require.Contains(t, srvErrs, "bad")
	assert.ErrorIs(t, srvErrs["bad"], toolwire.ErrProtocol)
	assert.NotContains(t, srvErrs, "good")

	// The surviving server still executes.
	result, err := p.ExecuteTool(context.Background(), "read", nil)
	require.NoError(t, err)
	assert.Equal(t, `"good:read"`, string(result))
}

func TestProvider_Connect_PartialFailure(t *testing.T) {
	p := NewProviderWithConns("mcp", []*Conn{
		NewConn("good", newFakeTransport(namedServer("good", "read"))),
		NewConn("bad", newFakeTransport(brokenServer())),
	})
	defer p.Close()

	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, toolwire.ErrProtocol)

	srvErrs := p.ServerErrors()
	assert.Contains(t, srvErrs, "bad")
	assert.NotContains(t, srvErrs, "good")
}

func TestProvider_CollisionFirstConfiguredWins(t *testing.T) {
	p := NewProviderWithConns("mcp", []*Conn{
		NewConn("alpha", newFakeTransport(namedServer("alpha", "search"))),
		NewConn("beta", newFakeTransport(namedServer("beta", "search"))),
	})
	defer p.Close()

	for i := 0; i < 3; i++ {
		tools, err := p.ListTools(context.Background())
		require.NoError(t, err)
		assert.Len(t, tools, 1)

		result, err := p.ExecuteTool(context.Background(), "search", nil)
		require.NoError(t, err)
		assert.Equal(t, `"alpha:search"`, string(result))

		p.InvalidateCache()
	}
}

func TestProvider_NamespacedTools(t *testing.T) {
	p := NewProviderWithConns("mcp", []*Conn{
		NewConn("alpha", newFakeTransport(namedServer("alpha", "search"))),
		NewConn("beta", newFakeTransport(namedServer("beta", "search"))),
	}, WithNamespacedTools())
	defer p.Close()

	tools, err := p.ListTools(context.Background())
	require.NoError(t, err)

	var names []string
	for _, spec := range tools {
		names = append(names, spec.Name)
	}
	assert.Equal(t, []string{"mcp__alpha__search", "mcp__beta__search"}, names)

	// The exposed name routes to the right server with the server-side name.
	result, err := p.ExecuteTool(context.Background(), "mcp__beta__search", nil)
	require.NoError(t, err)
	assert.Equal(t, `"beta:search"`, string(result))

	// Raw names are not exposed when namespacing is on.
	_, err = p.ExecuteTool(context.Background(), "search", nil)
	assert.ErrorIs(t, err, toolwire.ErrToolNotFound)
}

func TestProvider_ListTools_Cached(t *testing.T) {
	tr := newFakeTransport(namedServer("fs", "read"))
	p := NewProviderWithConns("mcp", []*Conn{NewConn("fs", tr)})
	defer p.Close()

	_, err := p.ListTools(context.Background())
	require.NoError(t, err)
	_, err = p.ListTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), tr.listCalls.Load())

	p.InvalidateCache()

	_, err = p.ListTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), tr.listCalls.Load())
}

func TestProvider_CacheDisabled(t *testing.T) {
	tr := newFakeTransport(namedServer("fs", "read"))
	p := NewProviderWithConns("mcp", []*Conn{NewConn("fs", tr)}, WithCacheDisabled())
	defer p.Close()

	for i := 0; i < 3; i++ {
		_, err := p.ListTools(context.Background())
		require.NoError(t, err)
	}
	// The connection cache is bypassed too only when invalidated; the
	// provider re-aggregates every time but each conn still answers from
	// its own cache, so exactly one frame went out.
	assert.Equal(t, int32(1), tr.listCalls.Load())
}

func TestProvider_Close_StopsConnections(t *testing.T) {
	c1 := NewConn("fs", newFakeTransport(namedServer("fs", "read")))
	c2 := NewConn("web", newFakeTransport(namedServer("web", "fetch")))
	p := NewProviderWithConns("mcp", []*Conn{c1, c2})

	_, err := p.ListTools(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.Equal(t, StateStopped, c1.State())
	assert.Equal(t, StateStopped, c2.State())

	_, err = p.ExecuteTool(context.Background(), "read", nil)
	assert.ErrorIs(t, err, toolwire.ErrConnection)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider("mcp", map[string]ServerConfig{
		"bad": {}, // neither command nor URL
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
