package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ramyshaaban/video-library/internal/domain"
)

// Error constants for repository layer
var (
	ErrNotFound = RepositoryError("not found")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// VideoSource produces the full catalog. It is read once at startup.
type VideoSource interface {
	LoadAll(ctx context.Context) ([]domain.VideoRecord, error)
}

// VideoRepository is the read-only, in-process catalog.
type VideoRepository interface {
	GetByID(ctx context.Context, id string) (*domain.VideoRecord, error)
	// List returns every record, newest first.
	List(ctx context.Context) ([]domain.VideoRecord, error)
	ListBySpace(ctx context.Context, space string) ([]domain.VideoRecord, error)
	Spaces(ctx context.Context) ([]domain.Space, error)
}

// TimestopRepository reads chapter markers and transcriptions.
type TimestopRepository interface {
	// SearchContentIDs returns IDs of videos whose timestops or transcription
	// match the query, best match first.
	SearchContentIDs(ctx context.Context, query string, limit int) ([]string, error)
	GetByContentIDs(ctx context.Context, ids []string) (map[string][]domain.Timestop, error)
}

// TranscriptionRepository reads stored transcriptions. GetByContentID
// returns ErrNotFound when the video has none.
type TranscriptionRepository interface {
	GetByContentID(ctx context.Context, contentID string) (*domain.Transcription, error)
}

// NormalizeID turns a decoded identifier (string or number) into the opaque
// string form used across the service.
func NormalizeID(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int64:
		return strconv.FormatInt(id, 10)
	case int:
		return strconv.Itoa(id)
	default:
		return fmt.Sprint(id)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the timestamp shapes found in catalog exports.
// Unparseable input yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
