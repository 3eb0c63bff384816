package remote

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/effective-security/xlog"

	"github.com/toolwire/toolwire/wire"
)

// HTTPTransport talks to a network tool server. Frames flow in two halves:
// the client POSTs each outgoing frame as a JSON body, and reads incoming
// frames from a hanging GET on the same URL served as a text/event-stream.
// The pairing (and ordering) of requests to responses is the stream's —
// HTTPTransport adds no correlation of its own.
type HTTPTransport struct {
	config ServerConfig
	client *http.Client

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	body    io.Closer

	recv    chan *wire.Message
	quit    chan struct{} // closed by Close to release the read loop
	readErr error         // guarded by mu, set before recv closes
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an HTTPTransport from the given config.
// Returns ErrInvalidConfig if URL is empty.
func NewHTTPTransport(cfg ServerConfig) (*HTTPTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: http transport requires url", ErrInvalidConfig)
	}
	return &HTTPTransport{
		config: cfg,
		client: http.DefaultClient,
		recv:   make(chan *wire.Message, 1),
		quit:   make(chan struct{}),
	}, nil
}

// WithClient replaces the HTTP client, e.g. to set TLS or proxy options.
func (t *HTTPTransport) WithClient(client *http.Client) *HTTPTransport {
	t.client = client
	return t
}

// Start opens the event stream and begins pumping its frames.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return nil
	}

	// The stream must outlive the Start call; it is bound to the
	// transport's lifetime, not the caller's context.
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.config.URL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("remote: event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("remote: open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("remote: event stream returned %s", resp.Status)
	}

	t.cancel = cancel
	t.body = resp.Body
	t.started = true

	logger.KV(xlog.DEBUG, "event", "stream_open", "url", t.config.URL)

	go t.readLoop(resp.Body)
	return nil
}

// readLoop parses "data:" lines off the event stream into frames.
func (t *HTTPTransport) readLoop(body io.Reader) {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64<<10), wire.MaxFrameSize)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == ':' {
			continue // keep-alive comment or event separator
		}
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue // ignore event:/id: fields
		}
		msg, err := wire.Unmarshal(data)
		if err != nil {
			t.setReadErr(err)
			break
		}
		select {
		case t.recv <- msg:
		case <-t.quit:
			close(t.recv)
			return
		}
	}
	if err := sc.Err(); err != nil && !t.isClosed() {
		t.setReadErr(err)
	}
	close(t.recv)
}

func (t *HTTPTransport) setReadErr(err error) {
	t.mu.Lock()
	if t.readErr == nil {
		t.readErr = err
	}
	t.mu.Unlock()
}

func (t *HTTPTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Send POSTs one frame. The server's HTTP reply carries no payload;
// protocol responses arrive on the event stream.
func (t *HTTPTransport) Send(ctx context.Context, msg *wire.Message) error {
	t.mu.Lock()
	started, closed := t.started, t.closed
	t.mu.Unlock()
	if !started || closed {
		return ErrTransportClosed
	}

	var buf bytes.Buffer
	if err := wire.NewEncoder(&buf).Encode(msg); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, &buf)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: post frame: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote: server returned %s", resp.Status)
	}
	return nil
}

// Receive returns the next frame from the event stream.
func (t *HTTPTransport) Receive(ctx context.Context) (*wire.Message, error) {
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

// Close cancels the event stream. Safe to call more than once.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel, body := t.cancel, t.body
	t.mu.Unlock()

	close(t.quit)
	if cancel != nil {
		cancel()
	}
	if body != nil {
		_ = body.Close()
	}
	return nil
}
