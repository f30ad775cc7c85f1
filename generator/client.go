package generator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultMaxRetries = 3
	baseBackoff       = time.Second
	maxBackoff        = 10 * time.Second
)

// Options tune a single Generate call. Zero values, and a nil Temperature, keep the
// prompt's own settings.
type Options struct {
	MaxTokens   int
	Temperature *float64
	MaxRetries  int
}

// Client wraps an LLMClient with bounded retries, backoff and error classification.
type Client struct {
	llm     LLMClient
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	log     *slog.Logger
}

type ClientOption func(*Client)

// WithRateLimit spaces outbound calls so that at most perMinute start each minute.
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		if perMinute <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

func NewClient(llm LLMClient, opts ...ClientOption) (*Client, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	c := &Client{
		llm:   llm,
		sleep: sleepContext,
		log:   slog.Default().With("component", "generator.client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff is the wait after the given failed attempt (1-based): 1s, 2s, 4s, ... capped at 10s.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Generate sends prompt and returns the generated text. Authentication and rate-limit
// failures return at once; anything else, including an empty answer, is retried until
// MaxRetries attempts have been made.
func (c *Client) Generate(ctx context.Context, prompt Prompt, opts Options) (string, error) {
	attempts := opts.MaxRetries
	if attempts <= 0 {
		attempts = DefaultMaxRetries
	}
	if opts.MaxTokens > 0 {
		prompt.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		prompt.Temperature = *opts.Temperature
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", &Error{Kind: KindGeneric, Attempts: attempt - 1, Err: err}
			}
		}

		text, err := c.llm.Complete(ctx, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyContent
		}
		if err == nil {
			return text, nil
		}
		lastErr = err

		kind := classify(err)
		if kind == KindAuthentication || kind == KindRateLimit {
			c.log.Error("generation rejected", "kind", kind.String(), "attempt", attempt, "err", err)
			return "", &Error{Kind: kind, Attempts: attempt, Err: err}
		}
		if ctx.Err() != nil {
			return "", &Error{Kind: kind, Attempts: attempt, Err: err}
		}
		if attempt == attempts {
			break
		}

		wait := Backoff(attempt)
		c.log.Warn("generation attempt failed, retrying", "attempt", attempt, "of", attempts, "wait", wait, "err", err)
		if err := c.sleep(ctx, wait); err != nil {
			return "", &Error{Kind: kind, Attempts: attempt, Err: lastErr}
		}
	}
	return "", &Error{Kind: classify(lastErr), Attempts: attempts, Err: lastErr}
}
