package toolwire

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicTools renders tool specs in the format expected by the Anthropic
// Messages API, so an agent loop can hand a registry's listing straight to
// the model for function calling. The parameter shape converts losslessly:
// the wire contract was chosen to match common function-calling schemas.
func AnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: param.NewOpt(spec.Description),
				InputSchema: anthropicSchema(spec.Parameters),
			},
		})
	}
	return out
}

// anthropicSchema converts wire Parameters to the API's input schema param.
func anthropicSchema(p Parameters) anthropic.ToolInputSchemaParam {
	s := anthropic.ToolInputSchemaParam{
		Required: p.Required,
	}
	if len(p.Properties) > 0 {
		props := make(map[string]any, len(p.Properties))
		for name, prop := range p.Properties {
			m := map[string]any{"type": prop.Type}
			if prop.Description != "" {
				m["description"] = prop.Description
			}
			if len(prop.Enum) > 0 {
				m["enum"] = prop.Enum
			}
			props[name] = m
		}
		s.Properties = props
	}
	return s
}
