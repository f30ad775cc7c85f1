package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedLLM answers with one scripted result per call and repeats the last one afterwards.
type scriptedLLM struct {
	mu      sync.Mutex
	results []scriptResult
	calls   int
}

type scriptResult struct {
	text string
	err  error
}

func (s *scriptedLLM) Complete(context.Context, Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return r.text, r.err
}

type llmFunc func(ctx context.Context, p Prompt) (string, error)

func (f llmFunc) Complete(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

func newTestClient(t *testing.T, llm LLMClient) (*Client, *[]time.Duration) {
	t.Helper()
	var slept []time.Duration
	c, err := NewClient(llm, WithSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, &slept
}

func statusErr(code int) scriptResult {
	return scriptResult{err: &StatusError{StatusCode: code, Message: "upstream said no"}}
}

func TestGenerateAuthenticationFailsWithoutRetry(t *testing.T) {
	llm := &scriptedLLM{results: []scriptResult{statusErr(401)}}
	c, slept := newTestClient(t, llm)

	_, err := c.Generate(context.Background(), Prompt{User: "x"}, Options{MaxRetries: 3})
	if err == nil {
		t.Fatal("expected error")
	}
	if llm.calls != 1 {
		t.Fatalf("calls = %d, want 1", llm.calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("slept %v, want no backoff", *slept)
	}
	var genErr *Error
	if !errors.As(err, &genErr) {
		t.Fatalf("error %T is not *Error", err)
	}
	if genErr.Kind != KindAuthentication || genErr.HTTPStatus() != 401 {
		t.Fatalf("kind=%s status=%d", genErr.Kind, genErr.HTTPStatus())
	}
}

func TestGenerateForbiddenIsAuthentication(t *testing.T) {
	llm := &scriptedLLM{results: []scriptResult{statusErr(403)}}
	c, _ := newTestClient(t, llm)
	_, err := c.Generate(context.Background(), Prompt{}, Options{})
	if ErrorKind(err) != KindAuthentication {
		t.Fatalf("kind = %s", ErrorKind(err))
	}
}

func TestGenerateRateLimitFailsWithoutRetry(t *testing.T) {
	llm := &scriptedLLM{results: []scriptResult{statusErr(429)}}
	c, slept := newTestClient(t, llm)

	_, err := c.Generate(context.Background(), Prompt{}, Options{MaxRetries: 5})
	if ErrorKind(err) != KindRateLimit {
		t.Fatalf("kind = %s, want rate_limit", ErrorKind(err))
	}
	if llm.calls != 1 || len(*slept) != 0 {
		t.Fatalf("calls=%d slept=%v", llm.calls, *slept)
	}
	var genErr *Error
	errors.As(err, &genErr)
	if genErr.HTTPStatus() != 429 {
		t.Fatalf("status = %d", genErr.HTTPStatus())
	}
}

func TestGenerateRetriesUntilSuccess(t *testing.T) {
	llm := &scriptedLLM{results: []scriptResult{
		{err: errors.New("connection reset")},
		statusErr(500),
		{text: "done"},
	}}
	c, slept := newTestClient(t, llm)

	got, err := c.Generate(context.Background(), Prompt{}, Options{MaxRetries: 3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "done" {
		t.Fatalf("text = %q", got)
	}
	if llm.calls != 3 {
		t.Fatalf("calls = %d, want 3", llm.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("slept = %v, want %v", *slept, want)
	}
}

func TestGenerateOverloadedExhaustsAttempts(t *testing.T) {
	llm := &scriptedLLM{results: []scriptResult{statusErr(529)}}
	c, slept := newTestClient(t, llm)

	_, err := c.Generate(context.Background(), Prompt{}, Options{MaxRetries: 3})
	if err == nil {
		t.Fatal("expected error")
	}
	if llm.calls != 3 {
		t.Fatalf("calls = %d, want 3", llm.calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(*slept))
	}
	if ErrorKind(err) != KindOverloaded {
		t.Fatalf("kind = %s", ErrorKind(err))
	}
	msg := err.Error()
	if !strings.Contains(msg, "after 3 attempts") || !strings.Contains(msg, "529") {
		t.Fatalf("message %q does not describe the last failure", msg)
	}
}

func TestGenerateEmptyContentIsRetried(t *testing.T) {
	llm := &scriptedLLM{results: []scriptResult{{text: ""}, {text: "  \n"}, {text: "content"}}}
	c, _ := newTestClient(t, llm)

	got, err := c.Generate(context.Background(), Prompt{}, Options{})
	if err != nil || got != "content" {
		t.Fatalf("Generate = %q, %v", got, err)
	}
	if llm.calls != DefaultMaxRetries {
		t.Fatalf("calls = %d", llm.calls)
	}
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := llmFunc(func(context.Context, Prompt) (string, error) {
		cancel()
		return "", errors.New("boom")
	})
	c, slept := newTestClient(t, llm)

	if _, err := c.Generate(ctx, Prompt{}, Options{MaxRetries: 3}); err == nil {
		t.Fatal("expected error")
	}
	if len(*slept) != 0 {
		t.Fatalf("slept after cancellation: %v", *slept)
	}
}

func TestGenerateOptionsOverridePrompt(t *testing.T) {
	var seen Prompt
	llm := llmFunc(func(_ context.Context, p Prompt) (string, error) {
		seen = p
		return "ok", nil
	})
	c, _ := newTestClient(t, llm)

	if _, err := c.Generate(context.Background(), Prompt{MaxTokens: 100, Temperature: 0.7}, Options{MaxTokens: 50}); err != nil {
		t.Fatal(err)
	}
	if seen.MaxTokens != 50 || seen.Temperature != 0.7 {
		t.Fatalf("prompt settings = %d/%v", seen.MaxTokens, seen.Temperature)
	}

	zero := 0.0
	if _, err := c.Generate(context.Background(), Prompt{Temperature: 0.7}, Options{Temperature: &zero}); err != nil {
		t.Fatal(err)
	}
	if seen.Temperature != 0 {
		t.Fatalf("temperature = %v, want explicit 0", seen.Temperature)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{12, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNewClientRequiresLLM(t *testing.T) {
	if _, err := NewClient(nil); err == nil {
		t.Fatal("expected error for nil llm")
	}
}
