// Package remote connects to external tool servers over the toolwire
// protocol. It provides the two transport kinds (child-process stdio and
// HTTP event-stream), the per-server connection state machine, and a
// Provider that composes any number of server connections behind the
// toolwire.Provider interface.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/effective-security/xlog"

	"github.com/toolwire/toolwire/wire"
)

var logger = xlog.NewPackageLogger("github.com/toolwire/toolwire", "remote")

// Sentinel errors for the remote package.
var (
	// ErrInvalidConfig is returned when a ServerConfig is missing required
	// fields for its transport type.
	ErrInvalidConfig = errors.New("remote: invalid server config")

	// ErrTransportClosed is returned when sending or receiving on a
	// transport that has shut down.
	ErrTransportClosed = errors.New("remote: transport closed")
)

// Timeout defaults, used when the corresponding ServerConfig field is zero.
const (
	// DefaultRequestTimeout bounds one request/response round trip.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultStartTimeout bounds transport startup plus the handshake.
	DefaultStartTimeout = 10 * time.Second

	// DefaultStopGrace is how long teardown waits for a child process to
	// exit after its stdin closes before killing it.
	DefaultStopGrace = 5 * time.Second
)

// TransportKind identifies the transport protocol for a server.
type TransportKind string

const (
	// TransportStdio communicates with a child process over its standard
	// input/output.
	TransportStdio TransportKind = "stdio"

	// TransportHTTP communicates with a network server: frames are written
	// with POST requests and read from a hanging event-stream GET.
	TransportHTTP TransportKind = "http"
)

// ServerConfig describes how to connect to a single tool server.
type ServerConfig struct {
	// Command is the executable to spawn (stdio transport only).
	Command string `json:"command,omitempty"`

	// Args are command-line arguments for the child process.
	Args []string `json:"args,omitempty"`

	// Env are extra environment variables for the child process, merged
	// over the parent's environment.
	Env map[string]string `json:"env,omitempty"`

	// WorkingDir is the child process's working directory.
	WorkingDir string `json:"working_dir,omitempty"`

	// URL is the server address (HTTP transport only).
	URL string `json:"url,omitempty"`

	// Headers are extra HTTP headers sent on every request and on the
	// event-stream GET.
	Headers map[string]string `json:"headers,omitempty"`

	// Transport selects the communication protocol. When empty, stdio is
	// inferred from Command and HTTP from URL.
	Transport TransportKind `json:"transport,omitempty"`

	// RequestTimeout bounds one round trip. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`

	// StartTimeout bounds startup plus handshake. Zero means DefaultStartTimeout.
	StartTimeout time.Duration `json:"start_timeout,omitempty"`

	// StopGrace bounds graceful child shutdown. Zero means DefaultStopGrace.
	StopGrace time.Duration `json:"stop_grace,omitempty"`
}

// Transport is a bidirectional, message-framed channel to one tool server.
// Both transport kinds expose the same contract; connection state and
// request sequencing live above it, in Conn.
//
// Send and Receive honor context cancellation but a Transport does not
// serialize callers — Conn guarantees at most one round trip in flight.
type Transport interface {
	// Start launches the channel: spawns the child process or opens the
	// event stream.
	Start(ctx context.Context) error

	// Send writes one frame.
	Send(ctx context.Context, msg *wire.Message) error

	// Receive blocks until the next frame arrives, the context is done, or
	// the channel closes.
	Receive(ctx context.Context) (*wire.Message, error)

	// Close tears the channel down and releases its resources. It must be
	// safe to call more than once and from any state.
	Close() error
}

// NewTransport creates a Transport for the given ServerConfig based on its
// Transport kind. Returns ErrInvalidConfig if the config is not valid.
func NewTransport(cfg ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case TransportStdio:
		return NewStdioTransport(cfg)
	case TransportHTTP:
		return NewHTTPTransport(cfg)
	default:
		// Infer stdio if a command is set, HTTP if a URL is set.
		if cfg.Command != "" {
			return NewStdioTransport(cfg)
		}
		if cfg.URL != "" {
			return NewHTTPTransport(cfg)
		}
		return nil, fmt.Errorf("%w: neither command nor url set", ErrInvalidConfig)
	}
}

// stopGrace returns the configured grace period or the default.
func (c ServerConfig) stopGrace() time.Duration {
	if c.StopGrace > 0 {
		return c.StopGrace
	}
	return DefaultStopGrace
}
