package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable marks failures where another provider may succeed:
// connection errors, rate limiting and server errors.
var ErrUnavailable = errors.New("llm provider unavailable")

type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported LLM provider: %s", e.Provider)
}

// ProviderError describes a failed provider call.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Body        string
	Unavailable bool
	Err         error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 300))
	default:
		return fmt.Sprintf("%s: request failed", e.Provider)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnavailable) match retryable failures.
func (e *ProviderError) Is(target error) bool {
	return target == ErrUnavailable && e.Unavailable
}

// IsUnavailable reports whether err allows falling back to another provider.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func transportError(provider string, err error) error {
	return &ProviderError{Provider: provider, Unavailable: true, Err: err}
}

func statusError(provider string, status int, body []byte) error {
	return &ProviderError{
		Provider:    provider,
		StatusCode:  status,
		Body:        string(body),
		Unavailable: status == http.StatusTooManyRequests || status >= 500,
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
