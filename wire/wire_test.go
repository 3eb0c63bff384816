package wire

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolSpec_WireShape(t *testing.T) {
	spec := ToolSpec{
		Name:        "add",
		Description: "Add two numbers",
		Parameters: ObjectParameters(map[string]Property{
			"a": {Type: "number"},
			"b": {Type: "number"},
		}, []string{"a", "b"}),
	}

	data, err := json.Marshal(spec)
	require.NoError(t, err)

	// The serialized form is a protocol contract and must not drift.
	assert.JSONEq(t, `{
		"name": "add",
		"description": "Add two numbers",
		"parameters": {
			"type": "object",
			"properties": {
				"a": {"type": "number"},
				"b": {"type": "number"}
			},
			"required": ["a", "b"]
		}
	}`, string(data))
}

func TestToolSpec_OptionalFieldsOmitted(t *testing.T) {
	spec := ToolSpec{Name: "ping", Parameters: Parameters{Type: "object"}}

	data, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"ping","parameters":{"type":"object"}}`, string(data))
}

func TestToolSpec_Clone_Independent(t *testing.T) {
	orig := ToolSpec{
		Name: "pick",
		Parameters: ObjectParameters(map[string]Property{
			"color": {Type: "string", Enum: []string{"red", "blue"}},
		}, []string{"color"}),
	}

	cp := orig.Clone()
	cp.Parameters.Properties["color"] = Property{Type: "number"}
	cp.Parameters.Required[0] = "changed"

	assert.Equal(t, "string", orig.Parameters.Properties["color"].Type)
	assert.Equal(t, []string{"color"}, orig.Parameters.Required)
}

func TestMessage_HandshakeShape(t *testing.T) {
	data, err := json.Marshal(NewHandshake())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"handshake","version":1}`, string(data))

	data, err = json.Marshal(NewHandshakeResponse(1))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"handshake_response","version":1,"status":"ok"}`, string(data))
}

func TestMessage_CallToolShape(t *testing.T) {
	data, err := json.Marshal(NewCallTool("add", json.RawMessage(`{"a":2,"b":3}`)))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"call_tool","tool":"add","params":{"a":2,"b":3}}`, string(data))

	data, err = json.Marshal(NewCallToolResult(json.RawMessage(`5`)))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"call_tool_response","status":"ok","result":5}`, string(data))

	data, err = json.Marshal(NewCallToolError(ErrorTypeToolNotFound, "no such tool"))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"call_tool_response","status":"error","error_type":"tool_not_found","error":"no such tool"}`, string(data))
}

func TestResponseType(t *testing.T) {
	assert.Equal(t, TypeHandshakeResponse, ResponseType(TypeHandshake))
	assert.Equal(t, TypeListToolsResponse, ResponseType(TypeListTools))
	assert.Equal(t, TypeCallToolResponse, ResponseType(TypeCallTool))
	assert.Equal(t, "", ResponseType("bogus"))
}

func TestCodec_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(NewHandshake()))
	require.NoError(t, enc.Encode(NewListTools()))
	require.NoError(t, enc.Encode(NewCallTool("add", json.RawMessage(`{"a":1}`))))

	dec := NewDecoder(&buf)

	m, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeHandshake, m.Type)
	assert.Equal(t, Version, m.Version)

	m, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeListTools, m.Type)

	m, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeCallTool, m.Type)
	assert.Equal(t, "add", m.Tool)
	assert.Equal(t, json.RawMessage(`{"a":1}`), m.Params)

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_SkipsBlankLines(t *testing.T) {
	dec := NewDecoder(strings.NewReader("\n\n{\"type\":\"list_tools\"}\n\n"))

	m, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeListTools, m.Type)

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_MalformedFrame(t *testing.T) {
	dec := NewDecoder(strings.NewReader("{not json}\n"))

	_, err := dec.Decode()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUnmarshal(t *testing.T) {
	m, err := Unmarshal([]byte(` {"type":"handshake_response","status":"ok","version":1} `))
	require.NoError(t, err)
	assert.Equal(t, TypeHandshakeResponse, m.Type)

	_, err = Unmarshal([]byte("garbage"))
	assert.ErrorIs(t, err, ErrMalformed)
}
