package ai

import (
	"errors"
	"fmt"
	"time"
)

// Typed provider errors. Each wraps the decoded *APIError so callers can
// reach the status code and request id with errors.As.

// AuthError is a 401/403: missing, wrong or revoked API key.
type AuthError struct{ *APIError }

func (e *AuthError) Error() string { return "authentication failed: " + e.APIError.Error() }
func (e *AuthError) Unwrap() error { return e.APIError }

// RateLimitError is a 429 that outlived the client's retries.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter.Round(time.Second), e.APIError.Error())
	}
	return "rate limited: " + e.APIError.Error()
}
func (e *RateLimitError) Unwrap() error { return e.APIError }

// ModelNotFoundError means the provider does not serve the configured model.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string { return "model not found: " + e.APIError.Error() }
func (e *ModelNotFoundError) Unwrap() error { return e.APIError }

// BadRequestError is a 400, typically max_tokens above the model limit or a
// prompt longer than its context window.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return "bad request: " + e.APIError.Error() }
func (e *BadRequestError) Unwrap() error { return e.APIError }

// QuotaExceededError reports exhausted credits or plan limits.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string { return "quota exceeded: " + e.APIError.Error() }
func (e *QuotaExceededError) Unwrap() error { return e.APIError }

// ServerError is a 5xx that outlived the client's retries.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return "provider error: " + e.APIError.Error() }
func (e *ServerError) Unwrap() error { return e.APIError }

// UnreachableError means no HTTP response was received, e.g. Ollama is not running.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}
func (e *UnreachableError) Unwrap() error { return e.Err }

// Hint returns a one-line remedy for a provider error, or "" when err is not
// one of the typed errors above.
func Hint(err error) string {
	var (
		auth   *AuthError
		model  *ModelNotFoundError
		rate   *RateLimitError
		quota  *QuotaExceededError
		bad    *BadRequestError
		unreac *UnreachableError
	)
	switch {
	case errors.As(err, &auth):
		return "check api_key (or STATM8_API_KEY / the provider's *_API_KEY variable)"
	case errors.As(err, &model):
		return "check default_model or pass --model; the provider does not serve this model"
	case errors.As(err, &rate):
		return "the provider is throttling requests; retry later or raise --retry-max"
	case errors.As(err, &quota):
		return "the provider account is out of credits"
	case errors.As(err, &bad):
		return "lower max_tokens or max_prompt_tokens for this model"
	case errors.As(err, &unreac):
		return "is the model runtime running? check ollama_host or base_url"
	}
	return ""
}
