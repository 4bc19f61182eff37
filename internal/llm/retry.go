package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/soyeahso/promptsmith/internal/logging"
)

// RetryClient retries transient provider failures with linear backoff.
// Streams are only retried when the call fails before the first event.
type RetryClient struct {
	next       Client
	maxRetries int
	backoff    time.Duration
	log        *logging.Logger
}

// NewRetryClient wraps next. maxRetries counts attempts after the first.
func NewRetryClient(next Client, maxRetries int, backoff time.Duration, log *logging.Logger) *RetryClient {
	return &RetryClient{
		next:       next,
		maxRetries: max(maxRetries, 0),
		backoff:    backoff,
		log:        log.Sub("llm.retry"),
	}
}

func (r *RetryClient) Name() string { return r.next.Name() }

// Complete calls the wrapped client, retrying retryable errors.
func (r *RetryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var resp *CompletionResponse
	err := r.attempt(ctx, func() error {
		var err error
		resp, err = r.next.Complete(ctx, req)
		return err
	})
	return resp, err
}

// Stream opens a stream on the wrapped client, retrying retryable errors.
func (r *RetryClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	var ch <-chan StreamEvent
	err := r.attempt(ctx, func() error {
		var err error
		ch, err = r.next.Stream(ctx, req)
		return err
	})
	return ch, err
}

func (r *RetryClient) attempt(ctx context.Context, call func() error) error {
	var err error
	for i := 0; ; i++ {
		if err = call(); err == nil {
			return nil
		}
		if i >= r.maxRetries || !isRetryable(err) {
			return err
		}

		wait := r.backoff * time.Duration(i+1)
		r.log.Warn().
			Str("provider", r.next.Name()).
			Int("attempt", i+1).
			Dur("wait", wait).
			Err(err).
			Msg("retryable upstream error")

		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}

// isRetryable reports whether err looks transient.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 408, 429, 500, 502, 503, 504, 529:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}
