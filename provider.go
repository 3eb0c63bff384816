package toolwire

import (
	"context"
	"encoding/json"
)

// Provider is a source of zero or more tools exposing a uniform discovery
// and execution contract. Implementations must be safe for concurrent use.
//
// ListTools must be idempotent and side-effect-free from the caller's
// perspective; repeated calls may be served from a cache.
//
// ExecuteTool passes params through to the tool opaquely — validating
// params against the tool's declared schema is the tool's (or server's)
// responsibility, not the caller's. Failures are reported through the
// package error taxonomy: *ToolNotFoundError when the name is unknown to
// this provider, *ToolExecutionError when the tool itself failed, and
// *ConnectionError / *ProtocolError for transport-level trouble.
type Provider interface {
	// Name identifies the provider in errors and logs.
	Name() string

	// ListTools returns the tools this provider currently offers.
	ListTools(ctx context.Context) ([]ToolSpec, error)

	// ExecuteTool invokes the named tool and returns its raw JSON result.
	ExecuteTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error)
}
