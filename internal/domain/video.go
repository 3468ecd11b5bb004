package domain

import (
	"encoding/json"
	"time"
)

// VideoRecord is one catalog entry. Records are loaded once and never mutated.
type VideoRecord struct {
	ID          string           `json:"id" bson:"id"`
	Title       string           `json:"title" bson:"title"`
	Description string           `json:"description" bson:"description"`
	SpaceName   string           `json:"space_name" bson:"space_name"`
	Files       []AssociatedFile `json:"files" bson:"files"`
	CreatedAt   time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" bson:"updated_at"`
}

// AssociatedFile describes where the bytes of a video live. Path is either a
// bucket-relative object key or an absolute URL.
type AssociatedFile struct {
	Path        string `json:"file_path" bson:"file_path"`
	ManifestURL string `json:"hls_url,omitempty" bson:"hls_url,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty" bson:"thumbnail,omitempty"`
}

// Thumbnail returns the first thumbnail found on any of the record's files.
func (r *VideoRecord) Thumbnail() string {
	for _, f := range r.Files {
		if f.Thumbnail != "" {
			return f.Thumbnail
		}
	}
	return ""
}

// ManifestURL returns the first HLS manifest URL on the record, if any.
func (r *VideoRecord) ManifestURL() string {
	for _, f := range r.Files {
		if f.ManifestURL != "" {
			return f.ManifestURL
		}
	}
	return ""
}

// Timestop is a labelled position inside a video (a chapter marker).
type Timestop struct {
	ContentID     string  `json:"content_id"`
	Timestamp     float64 `json:"timestamp"`
	TimeFormatted string  `json:"time_formatted"`
	Label         string  `json:"label"`
	Summary       string  `json:"summary"`
	Type          string  `json:"type"`
}

// Transcription is the speech-to-text output for one video. Segments holds
// the transcriber's raw JSON (timed words and segments) when it was stored.
type Transcription struct {
	ContentID string          `json:"content_id"`
	Text      string          `json:"text"`
	Segments  json.RawMessage `json:"json,omitempty"`
	Duration  float64         `json:"duration,omitempty"`
	Language  string          `json:"language,omitempty"`
	WordCount int             `json:"word_count,omitempty"`
}

// Space is a named group of videos with its record count.
type Space struct {
	Name       string `json:"name"`
	VideoCount int    `json:"video_count"`
}
