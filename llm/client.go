// LLMClient - wrapper around providers with transport-level retry.
//
// Transient transport failures (connection resets, rate limits, 5xx)
// are retried here with backoff before the error ever reaches the
// extraction loop. This is distinct from corrective schema retries:
// the extractor re-prompts when the content is wrong, the client
// re-sends when the wire is flaky.

package llm

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultTransportAttempts = 3
	defaultTransportDelay    = 500 * time.Millisecond
)

// Client wraps a Provider with a simple interface.
type Client struct {
	provider Provider
	attempts uint
	delay    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTransportRetries sets how many times a single request is sent
// before the transport error is surfaced. 1 disables retrying.
func WithTransportRetries(attempts uint) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
	}
}

// WithTransportDelay sets the base backoff delay between retries.
func WithTransportDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.delay = delay
	}
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider, options ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		attempts: defaultTransportAttempts,
		delay:    defaultTransportDelay,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Chat sends a chat completion request and returns the response.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return c.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request with response format.
func (c *Client) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	var response LLMResponse
	err := retry.Do(
		func() error {
			var err error
			response, err = c.provider.ChatWithFormat(ctx, messages, format)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
	if err != nil {
		return LLMResponse{}, err
	}
	return response, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// isTransient reports whether an error is worth re-sending the same
// request for. Context expiry is the caller's budget running out, not
// a wire problem.
func isTransient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
