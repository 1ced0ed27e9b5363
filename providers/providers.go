package providers

import "fmt"

// ProviderError is an error from a provider API carrying the HTTP status
// code, so callers and the retry package can decide whether to retry.
type ProviderError struct {
	statusCode int
	body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider api error (status %d): %s", e.statusCode, e.body)
}

func (e *ProviderError) StatusCode() int {
	return e.statusCode
}

// NewError returns an error for the given HTTP response status and body.
func NewError(statusCode int, body string) error {
	return &ProviderError{statusCode: statusCode, body: body}
}
