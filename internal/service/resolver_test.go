package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramyshaaban/video-library/internal/domain"
)

func record(files ...domain.AssociatedFile) *domain.VideoRecord {
	return &domain.VideoRecord{ID: "42", Title: "t", Files: files}
}

func TestSourceResolver_Resolve(t *testing.T) {
	r := NewSourceResolver("")

	tests := []struct {
		name string
		rec  *domain.VideoRecord
		want domain.ResolvedSource
	}{
		{
			name: "manifest wins over raw path",
			rec: record(domain.AssociatedFile{
				Path:        "https://cdn.example.com/direct.mp4",
				ManifestURL: "https://cdn.example.com/hls/master.m3u8",
			}),
			want: domain.ResolvedSource{Strategy: domain.StrategyManifest, URL: "https://cdn.example.com/hls/master.m3u8"},
		},
		{
			name: "manifest on a later file still wins",
			rec: record(
				domain.AssociatedFile{Path: "space/a.mp4"},
				domain.AssociatedFile{ManifestURL: "https://cdn.example.com/b.m3u8"},
			),
			want: domain.ResolvedSource{Strategy: domain.StrategyManifest, URL: "https://cdn.example.com/b.m3u8"},
		},
		{
			name: "public url returned byte identical",
			rec:  record(domain.AssociatedFile{Path: "HTTPS://Cdn.Example.com/a%20b.mp4?x=1&y=2"}),
			want: domain.ResolvedSource{Strategy: domain.StrategyPublicURL, URL: "HTTPS://Cdn.Example.com/a%20b.mp4?x=1&y=2"},
		},
		{
			name: "plain http is public",
			rec:  record(domain.AssociatedFile{Path: "http://origin/v.mp4"}),
			want: domain.ResolvedSource{Strategy: domain.StrategyPublicURL, URL: "http://origin/v.mp4"},
		},
		{
			name: "object key needs signing",
			rec:  record(domain.AssociatedFile{Path: "uploads/2024/v.mp4"}),
			want: domain.ResolvedSource{Strategy: domain.StrategySignedObject, ObjectKey: "uploads/2024/v.mp4"},
		},
		{
			name: "other schemes are object keys",
			rec:  record(domain.AssociatedFile{Path: "s3://bucket/v.mp4"}),
			want: domain.ResolvedSource{Strategy: domain.StrategySignedObject, ObjectKey: "s3://bucket/v.mp4"},
		},
		{
			name: "first non-empty path is used",
			rec:  record(domain.AssociatedFile{Thumbnail: "t.jpg"}, domain.AssociatedFile{Path: "b.mp4"}),
			want: domain.ResolvedSource{Strategy: domain.StrategySignedObject, ObjectKey: "b.mp4"},
		},
		{
			name: "no files",
			rec:  record(),
			want: domain.ResolvedSource{Strategy: domain.StrategyUnresolved},
		},
		{
			name: "blank fields",
			rec:  record(domain.AssociatedFile{Path: "  ", Thumbnail: "t.jpg"}),
			want: domain.ResolvedSource{Strategy: domain.StrategyUnresolved},
		},
		{
			name: "nil record",
			rec:  nil,
			want: domain.ResolvedSource{Strategy: domain.StrategyUnresolved},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.rec)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, r.Resolve(tt.rec), "resolution must be idempotent")
		})
	}
}

func TestSourceResolver_RelativeManifestUsesCDNBase(t *testing.T) {
	r := NewSourceResolver("https://cdn.example.com/library")

	got := r.Resolve(record(domain.AssociatedFile{ManifestURL: "/hls/42/master.m3u8"}))
	assert.Equal(t, "https://cdn.example.com/library/hls/42/master.m3u8", got.URL)

	abs := r.Resolve(record(domain.AssociatedFile{ManifestURL: "https://other.example.com/m.m3u8"}))
	assert.Equal(t, "https://other.example.com/m.m3u8", abs.URL)
}
