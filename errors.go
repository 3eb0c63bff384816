package toolwire

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four failure classes. The struct error types
// below unwrap to these, so callers can branch with errors.Is without
// losing access to the typed payloads via errors.As.
var (
	ErrToolNotFound  = errors.New("toolwire: tool not found")
	ErrToolExecution = errors.New("toolwire: tool execution failed")
	ErrConnection    = errors.New("toolwire: connection failed")
	ErrProtocol      = errors.New("toolwire: protocol violation")
)

// ToolNotFoundError reports that a tool name is unknown to the scope that
// was queried. Provider names the scope — a single provider or a registry —
// so a caller can tell "this provider doesn't have it" apart from "nobody
// has it".
type ToolNotFoundError struct {
	Tool     string
	Provider string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("toolwire: tool %q not found in %s", e.Tool, e.Provider)
}

func (e *ToolNotFoundError) Unwrap() error { return ErrToolNotFound }

// ToolExecutionError reports that the server understood the call but the
// tool itself failed. ErrType and Message carry the server's error payload
// verbatim.
type ToolExecutionError struct {
	Tool    string
	ErrType string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("toolwire: tool %q failed: %s", e.Tool, e.Message)
}

func (e *ToolExecutionError) Unwrap() error { return ErrToolExecution }

// ConnectionError reports that a transport could not be established or died
// mid-session. Server identifies the connection; Err is the underlying
// cause, reachable via errors.As / errors.Is chains.
type ConnectionError struct {
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("toolwire: connection to %q failed: %v", e.Server, e.Err)
	}
	return fmt.Sprintf("toolwire: connection to %q failed", e.Server)
}

// Unwrap returns both the sentinel and the cause so that
// errors.Is(err, ErrConnection) and errors.Is(err, cause) hold.
func (e *ConnectionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConnection, e.Err}
	}
	return []error{ErrConnection}
}

// ProtocolError reports a malformed or version-incompatible message from a
// server. A connection that produces one is crashed, not retried.
type ProtocolError struct {
	Server string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("toolwire: protocol error from %q: %s", e.Server, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }
