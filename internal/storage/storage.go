package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultPresignedURLExpiry is used when a caller passes a non-positive TTL.
const DefaultPresignedURLExpiry = time.Hour

// ErrAccessDenied marks signing failures the backend will keep refusing.
var ErrAccessDenied = errors.New("storage access denied")

// ObjectSigner issues time-limited GET URLs for private objects.
type ObjectSigner interface {
	// GeneratePresignedDownloadURL creates a temporary URL that allows GET
	// requests for objectKey until expires has elapsed.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)
}

// IsAccessDenied reports whether err is a permanent refusal from the backend.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// denialCodes are the error codes S3-compatible backends use for requests
// that will not succeed on retry.
var denialCodes = map[string]struct{}{
	"AccessDenied":          {},
	"Forbidden":             {},
	"AllAccessDisabled":     {},
	"InvalidAccessKeyId":    {},
	"SignatureDoesNotMatch": {},
	"AccountProblem":        {},
}

func isDenialCode(code string) bool {
	_, ok := denialCodes[code]
	return ok
}
