package toolwire

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default backoff parameters when the caller provides no policy.
const (
	defaultRetryInitialInterval = 250 * time.Millisecond
	defaultRetryMaxInterval     = 5 * time.Second
	defaultRetryMaxElapsedTime  = 30 * time.Second
)

// RetryProvider wraps a Provider and retries failed calls according to a
// backoff policy. Connections never retry internally — a crashed connection
// stays crashed — so this decorator is where a caller opts in to retry
// semantics.
//
// Only connection-class failures are retried. ToolNotFoundError,
// ToolExecutionError, and ProtocolError are permanent: retrying a call the
// server already rejected, or a connection that failed its version
// handshake, cannot succeed.
type RetryProvider struct {
	inner       Provider
	baseBackOff backoff.BackOff
	retryOpts   []backoff.RetryOption
}

var _ Provider = (*RetryProvider)(nil)

// NewRetryProvider wraps inner with the given base backoff policy. If
// baseBo is nil, an exponential policy with standard intervals is used. If
// no opts are provided, a default maximum elapsed time is applied.
func NewRetryProvider(inner Provider, baseBo backoff.BackOff, opts ...backoff.RetryOption) *RetryProvider {
	if baseBo == nil {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = defaultRetryInitialInterval
		exp.MaxInterval = defaultRetryMaxInterval
		baseBo = exp
	}
	if len(opts) == 0 {
		opts = []backoff.RetryOption{
			backoff.WithMaxElapsedTime(defaultRetryMaxElapsedTime),
		}
	}
	return &RetryProvider{
		inner:       inner,
		baseBackOff: baseBo,
		retryOpts:   opts,
	}
}

// Name implements Provider.
func (r *RetryProvider) Name() string { return r.inner.Name() }

// ListTools implements Provider, retrying connection-class failures.
func (r *RetryProvider) ListTools(ctx context.Context) ([]ToolSpec, error) {
	return retryCall(ctx, r, func() ([]ToolSpec, error) {
		return r.inner.ListTools(ctx)
	})
}

// ExecuteTool implements Provider, retrying connection-class failures.
func (r *RetryProvider) ExecuteTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	return retryCall(ctx, r, func() (json.RawMessage, error) {
		return r.inner.ExecuteTool(ctx, name, params)
	})
}

func retryCall[T any](ctx context.Context, r *RetryProvider, call func() (T, error)) (T, error) {
	operation := func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		out, err := call()
		if err != nil && !retriable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}

	r.baseBackOff.Reset()

	callOpts := make([]backoff.RetryOption, 0, 1+len(r.retryOpts))
	callOpts = append(callOpts, backoff.WithBackOff(r.baseBackOff))
	callOpts = append(callOpts, r.retryOpts...)

	out, err := backoff.Retry(ctx, operation, callOpts...)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return out, permanent.Err
		}
		return out, err
	}
	return out, nil
}

// retriable reports whether an error class can be fixed by trying again on
// a fresh connection.
func retriable(err error) bool {
	if errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrToolExecution) || errors.Is(err, ErrProtocol) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrConnection) || errors.Is(err, context.DeadlineExceeded)
}
