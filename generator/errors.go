package generator

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go"
)

// Kind classifies a generation failure.
type Kind int

const (
	KindGeneric Kind = iota
	KindAuthentication
	KindRateLimit
	KindOverloaded
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindOverloaded:
		return "overloaded"
	default:
		return "generation"
	}
}

// Error is returned by Client.Generate. Attempts is how many upstream calls were made.
type Error struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuthentication:
		return fmt.Sprintf("authentication with the generation API failed: %v", e.Err)
	case KindRateLimit:
		return fmt.Sprintf("generation API rate limit exceeded: %v", e.Err)
	}
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the failure onto the status code reported to API callers.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// StatusError is an upstream failure carrying an HTTP status code. Clients other than the
// OpenAI SDK report status through it.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

var errEmptyContent = errors.New("generation API returned no content")

// upstreamStatus extracts the HTTP status of an upstream failure, or 0.
func upstreamStatus(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func classify(err error) Kind {
	switch upstreamStatus(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthentication
	case http.StatusTooManyRequests:
		return KindRateLimit
	case 529, http.StatusServiceUnavailable:
		return KindOverloaded
	default:
		return KindGeneric
	}
}

// ErrorKind reports the classification of err, KindGeneric when err is not a generation error.
func ErrorKind(err error) Kind {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindGeneric
}
