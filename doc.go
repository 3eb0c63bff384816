// Package toolwire is a client library for invoking external tools over a
// small, versioned message protocol. It lets an agent loop discover and call
// capabilities hosted by independent tool servers without knowing anything
// about how those servers are implemented or transported.
//
// The package is organized around three ideas:
//
//   - [Provider] is the uniform capability interface: list the tools a
//     source offers, execute one by name. Any number of provider kinds can
//     implement it; [FuncProvider] wraps in-process Go functions, and the
//     remote package's Provider speaks the wire protocol to external servers.
//   - [Registry] composes many providers into one logical provider with a
//     cached, flattened tool listing and name-based routing. When two
//     providers expose the same tool name, the first-registered provider
//     wins, deterministically.
//   - The error taxonomy ([ToolNotFoundError], [ToolExecutionError],
//     [ConnectionError], [ProtocolError]) is typed so callers can reason
//     about failures instead of parsing strings.
//
// # Quick Start
//
//	fp := toolwire.NewFuncProvider("local")
//	toolwire.RegisterFunc(fp, "add", "Add two numbers",
//	    func(_ context.Context, in AddInput) (any, error) { return in.A + in.B, nil })
//
//	reg := toolwire.NewRegistry()
//	reg.Register(fp)
//	result, err := reg.ExecuteTool(ctx, "add", json.RawMessage(`{"a":2,"b":3}`))
//
// # Sub-packages
//
//   - [github.com/toolwire/toolwire/remote] connects to external tool
//     servers over child-process stdio or HTTP event-stream transports.
//   - [github.com/toolwire/toolwire/wire] defines the protocol messages
//     and their framing.
package toolwire
