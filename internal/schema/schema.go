// Package schema derives wire parameter schemas from Go struct types.
package schema

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/toolwire/toolwire/wire"
)

// Generate produces a wire.Parameters from a Go struct type T. It uses
// struct tags (json, jsonschema) to derive the schema, then flattens it to
// the wire shape: top-level object properties with type, description, and
// enum only.
func Generate[T any]() wire.Parameters {
	var zero T
	s := jsonschema.Reflect(&zero)

	root := extractRoot(s)

	params := wire.Parameters{Type: "object"}
	if len(root.Required) > 0 {
		params.Required = append([]string(nil), root.Required...)
	}
	if root.Properties == nil {
		return params
	}

	params.Properties = make(map[string]wire.Property)
	for pair := root.Properties.Oldest(); pair != nil; pair = pair.Next() {
		params.Properties[pair.Key] = property(pair.Value)
	}
	return params
}

// extractRoot resolves the root schema, following $ref to $defs if needed.
// invopop/jsonschema puts the reflected type under $defs with a ref like
// "#/$defs/TypeName". The def must be looked up by that name: $defs also
// holds any nested struct types, so picking an arbitrary object entry
// would describe the wrong type.
func extractRoot(s *jsonschema.Schema) *jsonschema.Schema {
	if s.Ref == "" {
		return s
	}
	name := strings.TrimPrefix(s.Ref, "#/$defs/")
	if def, ok := s.Definitions[name]; ok {
		return def
	}
	return s
}

// property flattens one reflected property into the wire shape. Nested
// objects and arrays are reported by their top-level type only — the wire
// contract describes parameters one level deep.
func property(s *jsonschema.Schema) wire.Property {
	p := wire.Property{
		Type:        s.Type,
		Description: s.Description,
	}

	// Pointer fields reflect as anyOf [T, null]; use the non-null type.
	if p.Type == "" && len(s.AnyOf) > 0 {
		for _, sub := range s.AnyOf {
			if sub.Type != "" && sub.Type != "null" {
				p.Type = sub.Type
				break
			}
		}
	}

	for _, v := range s.Enum {
		p.Enum = append(p.Enum, fmt.Sprintf("%v", v))
	}
	return p
}
