package whatsapp

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no active provider configuration exists.
var ErrNotConfigured = errors.New("whatsapp provider is not configured")

// ErrInvalidRequest marks a send request rejected before any provider call.
var ErrInvalidRequest = errors.New("invalid send request")

// ProviderError wraps a failed call to the WAHA API.
type ProviderError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("waha %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("waha %s: status=%d body=%s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
