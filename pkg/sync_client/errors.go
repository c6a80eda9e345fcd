package sync_client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrValidation   = errors.New("validation failed")

	ErrMissingId     = fmt.Errorf("%w: event id is required", ErrValidation)
	ErrTitleRequired = fmt.Errorf("%w: title is required", ErrValidation)
	ErrInvalidRange  = fmt.Errorf("%w: event must end after it starts", ErrValidation)
)

// NetworkError is returned when the backend could not be reached or its response
// could not be read.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProviderError is a non-2xx answer from the backend.
type ProviderError struct {
	StatusCode int
	Message    string
	// Payload is the raw response body.
	Payload []byte
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err carries a 404 from the backend.
func IsNotFound(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr) && providerErr.NotFound()
}
