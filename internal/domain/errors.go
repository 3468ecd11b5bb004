package domain

import (
	"errors"
	"fmt"
)

var (
	ErrVideoNotFound = errors.New("video not found")
	// ErrUnresolvableSource means the record has no usable location.
	ErrUnresolvableSource = errors.New("video unavailable")
)

// AuthorizationError is returned when no signed URL could be obtained for an
// object key. Denied is set when the storage backend refused the request.
type AuthorizationError struct {
	Key    string
	Denied bool
	Err    error
}

func (e *AuthorizationError) Error() string {
	if e.Denied {
		return fmt.Sprintf("authorization denied for %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("authorization failed for %q: %v", e.Key, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// UpstreamFetchError is a failed fetch from the byte origin. Status is zero
// when the request never produced a response.
type UpstreamFetchError struct {
	Status int
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream responded %d", e.Status)
	}
	return fmt.Sprintf("upstream fetch failed: %v", e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }
