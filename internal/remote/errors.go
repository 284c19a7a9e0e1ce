package remote

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks a request rejected with 401 after the forced token reload.
var ErrUnauthorized = errors.New("authentication failed")

// ErrInvalidResponse marks a 200 response whose body is not a JSON object or array.
var ErrInvalidResponse = errors.New("invalid api response structure")

// RequestError is returned once a request has exhausted its attempts.
type RequestError struct {
	URL      string
	Attempts int
	Status   int // last HTTP status seen, 0 for transport failures
	Err      error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request to %s failed after %d attempts (last status %d): %v", e.URL, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("request to %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// CredentialError reports a missing or malformed credential file.
type CredentialError struct {
	Path string
	Err  error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("load credentials from %s: %v", e.Path, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }
