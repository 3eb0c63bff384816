package wire

// Property describes a single parameter of a tool: its JSON type, an
// optional human-readable description, and an optional set of allowed
// values.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Parameters is the JSON-Schema-like shape servers use to declare a tool's
// input. Type is always "object". The serialized form must stay exactly as
// declared here: it interoperates bit-for-bit with independently
// implemented servers and with LLM function-calling APIs.
type Parameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ObjectParameters returns a Parameters with Type set to "object", the only
// valid top-level type.
func ObjectParameters(props map[string]Property, required []string) Parameters {
	return Parameters{Type: "object", Properties: props, Required: required}
}

// Clone returns a deep copy of the Parameters.
func (p Parameters) Clone() Parameters {
	out := Parameters{Type: p.Type}
	if p.Properties != nil {
		out.Properties = make(map[string]Property, len(p.Properties))
		for name, prop := range p.Properties {
			cp := prop
			if prop.Enum != nil {
				cp.Enum = append([]string(nil), prop.Enum...)
			}
			out.Properties[name] = cp
		}
	}
	if p.Required != nil {
		out.Required = append([]string(nil), p.Required...)
	}
	return out
}

// ToolSpec is an immutable description of one invocable capability,
// produced at discovery time by the server that hosts it.
type ToolSpec struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Parameters  Parameters `json:"parameters"`
}

// Clone returns a deep copy of the ToolSpec.
func (t ToolSpec) Clone() ToolSpec {
	return ToolSpec{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters.Clone(),
	}
}
