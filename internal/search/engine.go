package search

import (
	"context"
	"errors"
	"time"

	"github.com/ramyshaaban/video-library/internal/domain"
)

// ErrIndexUnavailable means the primary engine could not answer.
var ErrIndexUnavailable = errors.New("search index unavailable")

const (
	DefaultPageSize = 24
	MaxPageSize     = 100
)

// Document is the searchable projection of a VideoRecord.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SpaceName   string    `json:"space_name"`
	FilePath    string    `json:"file_path,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	HLSURL      string    `json:"hls_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocumentFromRecord projects rec for indexing.
func DocumentFromRecord(rec domain.VideoRecord) Document {
	doc := Document{
		ID:          rec.ID,
		Title:       rec.Title,
		Description: rec.Description,
		SpaceName:   rec.SpaceName,
		Thumbnail:   rec.Thumbnail(),
		HLSURL:      rec.ManifestURL(),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	for _, f := range rec.Files {
		if f.Path != "" {
			doc.FilePath = f.Path
			break
		}
	}
	return doc
}

// DocumentsFromRecords projects a whole catalog.
func DocumentsFromRecords(recs []domain.VideoRecord) []Document {
	docs := make([]Document, len(recs))
	for i, rec := range recs {
		docs[i] = DocumentFromRecord(rec)
	}
	return docs
}

// Query is one page of a free-text search.
type Query struct {
	Text     string
	Page     int
	PageSize int
}

// Normalize clamps paging to sane values.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

func (q Query) Offset() int {
	return (q.Page - 1) * q.PageSize
}

type Hit struct {
	ID    string
	Score float64
	// TitleMatch is set by engines that know which field matched.
	TitleMatch bool
}

// Page is a ranked slice of hits plus the total match count.
type Page struct {
	Hits  []Hit
	Total int
}

// Engine answers free-text queries with ranked document IDs.
type Engine interface {
	Name() string
	Query(ctx context.Context, q Query) (Page, error)
}

// RemoteEngine is an Engine backed by a service that may be down.
type RemoteEngine interface {
	Engine
	// Ping is a single cheap reachability check.
	Ping(ctx context.Context) error
}
