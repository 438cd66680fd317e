package oauth

import (
	"fmt"
	"strings"
)

// ExchangeError is returned when the provider rejects a code or refresh grant,
// or when the token endpoint cannot be reached at all.
type ExchangeError struct {
	Message    string
	StatusCode int
	err        error
}

func (e *ExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token grant rejected (status %d): %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("token grant failed: %s", e.Message)
}

func (e *ExchangeError) Unwrap() error {
	return e.err
}

// ApiError is a genuine fault from the provider's API: anything other than a
// pure insufficient_scope rejection.
type ApiError struct {
	Resource   string
	StatusCode int
	ErrorTypes []string
	Body       string
	err        error
}

func (e *ApiError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("api request for %s failed: %v", e.Resource, e.err)
	}

	if len(e.ErrorTypes) > 0 {
		return fmt.Sprintf("api request for %s failed (status %d): %s", e.Resource, e.StatusCode, strings.Join(e.ErrorTypes, ", "))
	}

	return fmt.Sprintf("api request for %s failed (status %d)", e.Resource, e.StatusCode)
}

func (e *ApiError) Unwrap() error {
	return e.err
}

// RevokeError is returned when the provider's revoke endpoint fails. It is
// advisory; local credential cleanup should proceed regardless.
type RevokeError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *RevokeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("revoke failed: %v", e.err)
	}

	return fmt.Sprintf("revoke rejected (status %d): %s", e.StatusCode, e.Message)
}

func (e *RevokeError) Unwrap() error {
	return e.err
}
