package toolwire

import "github.com/toolwire/toolwire/wire"

// The tool description shapes are owned by the wire package because their
// serialized form is part of the protocol contract. They are aliased here
// so callers composing providers and registries never need to import wire
// directly.

// ToolSpec is an immutable description of one invocable capability.
// Registry and provider caches hold and hand out copies, never shared
// references, so a server disconnecting cannot invalidate a listing a
// caller is already holding.
type ToolSpec = wire.ToolSpec

// Parameters declares a tool's input as a JSON-Schema-like object.
type Parameters = wire.Parameters

// Property describes a single tool parameter.
type Property = wire.Property

// ObjectParameters returns a Parameters with Type set to "object", the only
// valid top-level type.
func ObjectParameters(props map[string]Property, required []string) Parameters {
	return wire.ObjectParameters(props, required)
}

// CloneSpecs deep-copies a slice of ToolSpecs.
func CloneSpecs(specs []ToolSpec) []ToolSpec {
	if specs == nil {
		return nil
	}
	out := make([]ToolSpec, len(specs))
	for i, s := range specs {
		out[i] = s.Clone()
	}
	return out
}
