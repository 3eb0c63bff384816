package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/xlog"

	"github.com/toolwire/toolwire"
	"github.com/toolwire/toolwire/wire"
)

// ErrStopped is the cause recorded when a connection is torn down
// deliberately rather than by a failure.
var ErrStopped = errors.New("remote: connection stopped")

// State is a connection's position in its lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateHandshaking
	StateReady
	StateExecuting
	StateStopped
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// pendingCall is one queued round trip. The result channel is buffered so
// the worker can deliver (or discard into) it without blocking, even after
// the caller has abandoned the call.
type pendingCall struct {
	msg  *wire.Message
	resp chan callResult
}

type callResult struct {
	msg *wire.Message
	err error
}

// Conn owns one Transport plus the connection state: handshake status,
// protocol version agreement, and liveness. It presents ListTools and
// CallTool as blocking operations over the asynchronous transport.
//
// The wire protocol has no request IDs — responses match requests by strict
// FIFO order — so a Conn allows at most one round trip in flight. A single
// worker goroutine serializes traffic; concurrent callers queue and are
// served in arrival order. A call abandoned by its caller is still driven
// to completion (and its response discarded) before the next request is
// written, preserving request/response alignment.
//
// Crashed is terminal: a timed-out or broken connection is never
// resurrected. Construct a new Conn to retry.
type Conn struct {
	id       string // server id, stable across reconstructions
	instance string // unique per Conn instance
	tr       Transport

	requestTimeout time.Duration
	startTimeout   time.Duration

	state atomic.Int32

	startMu  sync.Mutex
	started  bool
	startErr error

	requests chan *pendingCall

	downOnce sync.Once
	down     chan struct{} // closed on crash or stop
	downErr  error         // cause; written once before down closes

	cacheMu   sync.Mutex
	toolCache []wire.ToolSpec
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithRequestTimeout bounds each request/response round trip.
func WithRequestTimeout(d time.Duration) ConnOption {
	return func(c *Conn) { c.requestTimeout = d }
}

// WithStartTimeout bounds transport startup plus the handshake.
func WithStartTimeout(d time.Duration) ConnOption {
	return func(c *Conn) { c.startTimeout = d }
}

// NewConn creates a connection for the given server over the given
// transport. The transport is started lazily on first use; call Start to
// connect eagerly.
func NewConn(serverID string, tr Transport, opts ...ConnOption) *Conn {
	c := &Conn{
		id:             serverID,
		instance:       instanceID(),
		tr:             tr,
		requestTimeout: DefaultRequestTimeout,
		startTimeout:   DefaultStartTimeout,
		requests:       make(chan *pendingCall),
		down:           make(chan struct{}),
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

// ID returns the server id this connection belongs to.
func (c *Conn) ID() string { return c.id }

// State returns the connection's current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		logger.KV(xlog.DEBUG, "server", c.id, "conn", c.instance, "from", old, "to", s)
	}
}

// setStateIfAlive transitions to s unless the connection has already
// reached a terminal state. Stopped and Crashed are final: a worker racing
// a deliberate Stop must not drag the state back to Executing or Ready.
func (c *Conn) setStateIfAlive(s State) bool {
	for {
		old := c.state.Load()
		if State(old) == StateStopped || State(old) == StateCrashed {
			return false
		}
		if c.state.CompareAndSwap(old, int32(s)) {
			if State(old) != s {
				logger.KV(xlog.DEBUG, "server", c.id, "conn", c.instance, "from", State(old), "to", s)
			}
			return true
		}
	}
}

// Start launches the transport and performs the version handshake. It is
// idempotent: once started (successfully or not) the outcome is fixed for
// this instance. All suspension points are bounded by the start timeout.
func (c *Conn) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.started {
		return c.startErr
	}
	c.started = true
	c.startErr = c.start(ctx)
	return c.startErr
}

func (c *Conn) start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.startTimeout)
	defer cancel()

	c.setState(StateStarting)
	if err := c.tr.Start(ctx); err != nil {
		cause := &toolwire.ConnectionError{Server: c.id, Err: err}
		c.crash(cause)
		return cause
	}

	c.setState(StateHandshaking)
	if err := c.tr.Send(ctx, wire.NewHandshake()); err != nil {
		cause := &toolwire.ConnectionError{Server: c.id, Err: err}
		c.crash(cause)
		return cause
	}
	resp, err := c.tr.Receive(ctx)
	if err != nil {
		var cause error
		if errors.Is(err, wire.ErrMalformed) {
			cause = &toolwire.ProtocolError{Server: c.id, Reason: err.Error()}
		} else {
			cause = &toolwire.ConnectionError{Server: c.id, Err: err}
		}
		c.crash(cause)
		return cause
	}

	if reason := checkHandshake(resp); reason != "" {
		cause := &toolwire.ProtocolError{Server: c.id, Reason: reason}
		c.crash(cause)
		return cause
	}

	c.setState(StateReady)
	logger.KV(xlog.DEBUG, "server", c.id, "conn", c.instance, "event", "handshake_ok", "version", resp.Version)

	go c.run()
	return nil
}

// checkHandshake validates a handshake response, returning a non-empty
// reason when it is unacceptable.
func checkHandshake(resp *wire.Message) string {
	switch {
	case resp.Type != wire.TypeHandshakeResponse:
		return fmt.Sprintf("expected %s, got %q", wire.TypeHandshakeResponse, resp.Type)
	case resp.Status != wire.StatusOK:
		return fmt.Sprintf("handshake rejected: status %q", resp.Status)
	case resp.Version != wire.Version:
		return fmt.Sprintf("version mismatch: client %d, server %d", wire.Version, resp.Version)
	}
	return ""
}

// run is the connection's worker loop: it serves queued calls one at a
// time until the connection goes down.
func (c *Conn) run() {
	for {
		select {
		case <-c.down:
			return
		case call := <-c.requests:
			if !c.setStateIfAlive(StateExecuting) {
				// Stop won the race for this queued call.
				<-c.down
				call.resp <- callResult{err: c.downError()}
				return
			}
			resp, err := c.roundTrip(call.msg)
			if err != nil {
				c.crash(err)
				call.resp <- callResult{err: err}
				return
			}
			c.setStateIfAlive(StateReady)
			call.resp <- callResult{msg: resp}
		}
	}
}

// roundTrip performs one request/response exchange, bounded by the request
// timeout. The timeout is the connection's own, not the caller's: even an
// abandoned call is driven to completion so the stream stays aligned.
func (c *Conn) roundTrip(msg *wire.Message) (*wire.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()

	if err := c.tr.Send(ctx, msg); err != nil {
		return nil, &toolwire.ConnectionError{Server: c.id, Err: err}
	}

	resp, err := c.tr.Receive(ctx)
	if err != nil {
		if errors.Is(err, wire.ErrMalformed) {
			return nil, &toolwire.ProtocolError{Server: c.id, Reason: err.Error()}
		}
		return nil, &toolwire.ConnectionError{Server: c.id, Err: err}
	}

	if want := wire.ResponseType(msg.Type); resp.Type != want {
		return nil, &toolwire.ProtocolError{
			Server: c.id,
			Reason: fmt.Sprintf("expected %s, got %q", want, resp.Type),
		}
	}
	return resp, nil
}

// crash marks the connection dead with the given cause, closes the
// transport, and releases every queued and future caller.
func (c *Conn) crash(cause error) {
	// A deliberate Stop stays Stopped even when it races the worker's
	// failing round trip.
	if State(c.state.Load()) != StateStopped {
		c.setState(StateCrashed)
	}
	c.downOnce.Do(func() {
		c.downErr = cause
		close(c.down)
	})
	_ = c.tr.Close()
	logger.KV(xlog.ERROR, "server", c.id, "conn", c.instance, "event", "crashed", "err", cause)
}

// downError returns the typed error callers see once the connection is
// down.
func (c *Conn) downError() error {
	err := c.downErr
	var connErr *toolwire.ConnectionError
	var protoErr *toolwire.ProtocolError
	if errors.As(err, &connErr) || errors.As(err, &protoErr) {
		return err
	}
	return &toolwire.ConnectionError{Server: c.id, Err: err}
}

// Stop tears the connection down deliberately: the transport is closed
// and, for process transports, the child is terminated (with the
// transport's grace period). Stop is safe from any state, including after
// a crash, and is idempotent.
func (c *Conn) Stop() error {
	c.startMu.Lock()
	c.started = true // a stopped conn can never start
	if c.startErr == nil {
		c.startErr = &toolwire.ConnectionError{Server: c.id, Err: ErrStopped}
	}
	c.startMu.Unlock()

	c.setState(StateStopped)
	c.downOnce.Do(func() {
		c.downErr = &toolwire.ConnectionError{Server: c.id, Err: ErrStopped}
		close(c.down)
	})
	return c.tr.Close()
}

// do queues one round trip and waits for its result. Requests enter the
// worker queue in arrival order; a caller that gives up waiting abandons
// only its wait — the round trip itself still completes.
func (c *Conn) do(ctx context.Context, msg *wire.Message) (*wire.Message, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	call := &pendingCall{msg: msg, resp: make(chan callResult, 1)}
	select {
	case c.requests <- call:
	case <-c.down:
		return nil, c.downError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-call.resp:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListTools asks the server for its tool listing. The result is cached on
// the connection until InvalidateCache; cached and returned slices are
// independent copies.
func (c *Conn) ListTools(ctx context.Context) ([]wire.ToolSpec, error) {
	c.cacheMu.Lock()
	if c.toolCache != nil {
		cached := cloneSpecs(c.toolCache)
		c.cacheMu.Unlock()
		return cached, nil
	}
	c.cacheMu.Unlock()

	resp, err := c.do(ctx, wire.NewListTools())
	if err != nil {
		return nil, err
	}
	if resp.Status != wire.StatusOK {
		return nil, &toolwire.ProtocolError{
			Server: c.id,
			Reason: fmt.Sprintf("list_tools_response status %q", resp.Status),
		}
	}

	tools := resp.Tools
	if tools == nil {
		tools = []wire.ToolSpec{}
	}

	c.cacheMu.Lock()
	c.toolCache = cloneSpecs(tools)
	c.cacheMu.Unlock()

	return cloneSpecs(tools), nil
}

// CallTool invokes the named tool on the server and returns its raw JSON
// result. Domain failures reported by the server surface as
// *toolwire.ToolNotFoundError or *toolwire.ToolExecutionError; transport
// and protocol failures surface as *toolwire.ConnectionError or
// *toolwire.ProtocolError with the original cause preserved.
func (c *Conn) CallTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	resp, err := c.do(ctx, wire.NewCallTool(name, params))
	if err != nil {
		return nil, err
	}

	if resp.Status == wire.StatusError {
		if resp.ErrorType == wire.ErrorTypeToolNotFound {
			return nil, &toolwire.ToolNotFoundError{Tool: name, Provider: c.id}
		}
		return nil, &toolwire.ToolExecutionError{Tool: name, ErrType: resp.ErrorType, Message: resp.Error}
	}
	return resp.Result, nil
}

// InvalidateCache drops the connection's tool cache, forcing the next
// ListTools to query the server again.
func (c *Conn) InvalidateCache() {
	c.cacheMu.Lock()
	c.toolCache = nil
	c.cacheMu.Unlock()
}

func cloneSpecs(specs []wire.ToolSpec) []wire.ToolSpec {
	out := make([]wire.ToolSpec, len(specs))
	for i, s := range specs {
		out[i] = s.Clone()
	}
	return out
}
