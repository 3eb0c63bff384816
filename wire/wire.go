// Package wire defines the versioned message protocol spoken between
// toolwire clients and tool servers, and its newline-delimited JSON
// framing. Messages are transport-agnostic JSON objects; the same frames
// travel over a child process's standard streams or an HTTP event stream.
//
// The protocol is a single framed duplex stream with no request IDs:
// responses are matched to requests by strict FIFO order, so a client must
// never have more than one round trip in flight per stream.
package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed reports a frame that is not valid JSON. Connections treat it
// as a protocol violation, not a transport failure.
var ErrMalformed = errors.New("wire: malformed frame")

// Version is the protocol version this package implements. The handshake
// succeeds only when the server answers with the same version.
const Version = 1

// MaxFrameSize bounds a single newline-delimited frame. Tool results can be
// large (file contents, query dumps), so the limit is generous.
const MaxFrameSize = 16 << 20

// Message types, client to server and server to client.
const (
	TypeHandshake         = "handshake"
	TypeHandshakeResponse = "handshake_response"
	TypeListTools         = "list_tools"
	TypeListToolsResponse = "list_tools_response"
	TypeCallTool          = "call_tool"
	TypeCallToolResponse  = "call_tool_response"
)

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error type discriminators carried by error responses.
const (
	ErrorTypeToolNotFound = "tool_not_found"
	ErrorTypeExecution    = "execution_error"
)

// Message is the single envelope for every protocol frame. Type selects
// which of the remaining fields are meaningful; unused fields are omitted
// from the serialized form.
type Message struct {
	Type string `json:"type"`

	// Handshake fields.
	Version int `json:"version,omitempty"`

	// Response fields.
	Status string `json:"status,omitempty"`

	// list_tools_response payload.
	Tools []ToolSpec `json:"tools,omitempty"`

	// call_tool request fields.
	Tool   string          `json:"tool,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// call_tool_response payload.
	Result json.RawMessage `json:"result,omitempty"`

	// Error payload for {status:"error"} responses.
	ErrorType string `json:"error_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewHandshake builds the client's opening message.
func NewHandshake() *Message {
	return &Message{Type: TypeHandshake, Version: Version}
}

// NewHandshakeResponse builds a server handshake reply.
func NewHandshakeResponse(version int) *Message {
	return &Message{Type: TypeHandshakeResponse, Status: StatusOK, Version: version}
}

// NewListTools builds a discovery request.
func NewListTools() *Message {
	return &Message{Type: TypeListTools}
}

// NewListToolsResponse builds a discovery reply.
func NewListToolsResponse(tools []ToolSpec) *Message {
	return &Message{Type: TypeListToolsResponse, Status: StatusOK, Tools: tools}
}

// NewCallTool builds an execution request.
func NewCallTool(tool string, params json.RawMessage) *Message {
	return &Message{Type: TypeCallTool, Tool: tool, Params: params}
}

// NewCallToolResult builds a successful execution reply.
func NewCallToolResult(result json.RawMessage) *Message {
	return &Message{Type: TypeCallToolResponse, Status: StatusOK, Result: result}
}

// NewCallToolError builds a failed execution reply carrying the server's
// error payload.
func NewCallToolError(errorType, message string) *Message {
	return &Message{Type: TypeCallToolResponse, Status: StatusError, ErrorType: errorType, Error: message}
}

// ResponseType returns the message type expected in reply to a request
// type, or "" if the request type has no reply.
func ResponseType(requestType string) string {
	switch requestType {
	case TypeHandshake:
		return TypeHandshakeResponse
	case TypeListTools:
		return TypeListToolsResponse
	case TypeCallTool:
		return TypeCallToolResponse
	}
	return ""
}

// Encoder writes newline-delimited frames to a stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode serializes one message followed by a newline. A frame is written
// with a single Write call so concurrent encoders on the same stream cannot
// interleave partial frames.
func (e *Encoder) Encode(m *Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("wire: marshal %s: %w", m.Type, err)
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

// Decoder reads newline-delimited frames from a stream. Blank lines are
// skipped so the same decoder handles both raw pipe output and the body of
// an event stream after "data:" prefixes are stripped.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), MaxFrameSize)
	return &Decoder{sc: sc}
}

// Decode returns the next frame, io.EOF at end of stream, or an error for
// an unparsable frame.
func (d *Decoder) Decode() (*Message, error) {
	for d.sc.Scan() {
		line := bytes.TrimSpace(d.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &m, nil
	}
	if err := d.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Unmarshal decodes a single frame from raw bytes, used by transports that
// already carry one message per event.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(bytes.TrimSpace(data), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &m, nil
}
