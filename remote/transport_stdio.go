package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/effective-security/xlog"

	"github.com/toolwire/toolwire/wire"
)

// StdioTransport talks to a tool server spawned as a child process,
// exchanging newline-delimited frames over the child's standard
// input/output. The child's stderr is passed through to this process's
// stderr so server diagnostics stay visible.
type StdioTransport struct {
	config ServerConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	enc     *wire.Encoder
	started bool
	closed  bool

	recv   chan *wire.Message
	quit   chan struct{} // closed by Close to release the read loop
	exited chan struct{} // closed after cmd.Wait returns

	readErr error // first decode error; guarded by mu, set before recv closes
}

var _ Transport = (*StdioTransport)(nil)

// NewStdioTransport creates a StdioTransport from the given config.
// Returns ErrInvalidConfig if Command is empty.
func NewStdioTransport(cfg ServerConfig) (*StdioTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: stdio transport requires command", ErrInvalidConfig)
	}
	return &StdioTransport{
		config: cfg,
		recv:   make(chan *wire.Message, 1),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}, nil
}

// Start spawns the child process and begins pumping its stdout frames.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return nil
	}

	cmd := exec.Command(t.config.Command, t.config.Args...)
	cmd.Dir = t.config.WorkingDir
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	for k, v := range t.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("remote: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("remote: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("remote: spawn %s: %w", t.config.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.enc = wire.NewEncoder(stdin)
	t.started = true

	logger.KV(xlog.DEBUG, "event", "spawned", "command", t.config.Command, "pid", cmd.Process.Pid)

	go t.readLoop(stdout)
	return nil
}

// readLoop decodes frames from the child's stdout until the stream ends,
// then reaps the process.
func (t *StdioTransport) readLoop(stdout io.Reader) {
	dec := wire.NewDecoder(stdout)
loop:
	for {
		msg, err := dec.Decode()
		if err != nil {
			if err != io.EOF {
				t.mu.Lock()
				t.readErr = err
				t.mu.Unlock()
			}
			break
		}
		select {
		case t.recv <- msg:
		case <-t.quit:
			break loop
		}
	}
	close(t.recv)

	err := t.cmd.Wait()
	logger.KV(xlog.DEBUG, "event", "exited", "command", t.config.Command, "err", err)
	close(t.exited)
}

// Send writes one frame to the child's stdin, bounded by the context. A
// child that stops draining stdin can wedge the pipe write indefinitely;
// when the bound fires the stream is mid-frame and unrecoverable, so the
// transport tears itself down rather than leave a corrupt half-written
// frame for a later send.
func (t *StdioTransport) Send(ctx context.Context, msg *wire.Message) error {
	t.mu.Lock()
	if !t.started || t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	enc := t.enc
	t.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- enc.Encode(msg) }()

	select {
	case err := <-done:
		return err
	case <-t.quit:
		return ErrTransportClosed
	case <-ctx.Done():
		// Teardown closes stdin, which unblocks the wedged write; it runs
		// off this goroutine so the caller's bound holds even through the
		// kill grace period.
		go func() { _ = t.Close() }()
		return ctx.Err()
	}
}

// Receive returns the next frame from the child's stdout.
func (t *StdioTransport) Receive(ctx context.Context) (*wire.Message, error) {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return nil, ErrTransportClosed
	}

	select {
	case msg, ok := <-t.recv:
		if !ok {
			t.mu.Lock()
			err := t.readErr
			t.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, ErrTransportClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the child down: stdin is closed to signal the server to
// exit, and if it has not exited within the grace period it is killed.
// Close runs the full teardown on every path and is safe to call more than
// once.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	stdin := t.stdin
	cmd := t.cmd
	t.mu.Unlock()

	if !started {
		return nil
	}

	close(t.quit)
	if stdin != nil {
		_ = stdin.Close()
	}

	select {
	case <-t.exited:
		return nil
	case <-time.After(t.config.stopGrace()):
	}

	logger.KV(xlog.WARNING, "event", "kill", "command", t.config.Command, "grace", t.config.stopGrace())
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-t.exited
	return nil
}
