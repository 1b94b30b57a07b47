package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrProvider marks every failure reported by a mailbox provider.
var ErrProvider = errors.New("provider error")

// ProviderError wraps a failed provider call. Code is the HTTP status when
// the provider reported one, zero otherwise.
type ProviderError struct {
	Op   string
	Code int
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", ErrProvider, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrProvider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// RateLimited reports whether the provider throttled the call.
func (e *ProviderError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// Unauthorized reports whether the credential was rejected.
func (e *ProviderError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}
