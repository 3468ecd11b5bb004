package service

import (
	"net/url"
	"strings"

	"github.com/ramyshaaban/video-library/internal/domain"
)

// SourceResolver decides how a record's bytes are fetched. It never touches
// the network and holds no state beyond its configuration, so the same record
// always resolves the same way.
type SourceResolver struct {
	cdnBase *url.URL
}

// NewSourceResolver takes an optional CDN base that relative manifest URLs
// are joined onto. An empty or unparseable base leaves manifests untouched.
func NewSourceResolver(cdnBaseURL string) *SourceResolver {
	r := &SourceResolver{}
	if cdnBaseURL == "" {
		return r
	}
	if u, err := url.Parse(cdnBaseURL); err == nil && u.IsAbs() {
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		r.cdnBase = u
	}
	return r
}

// Resolve applies the first matching rule:
//  1. a manifest URL on any file
//  2. an absolute http(s) path, used byte-for-byte
//  3. any other path, treated as a private object key
//  4. otherwise unresolved
func (r *SourceResolver) Resolve(rec *domain.VideoRecord) domain.ResolvedSource {
	if rec == nil {
		return domain.ResolvedSource{Strategy: domain.StrategyUnresolved}
	}
	if manifest := rec.ManifestURL(); manifest != "" {
		return domain.ResolvedSource{Strategy: domain.StrategyManifest, URL: r.manifestURL(manifest)}
	}

	path := firstPath(rec.Files)
	switch {
	case path == "":
		return domain.ResolvedSource{Strategy: domain.StrategyUnresolved}
	case isAbsoluteHTTP(path):
		return domain.ResolvedSource{Strategy: domain.StrategyPublicURL, URL: path}
	default:
		return domain.ResolvedSource{Strategy: domain.StrategySignedObject, ObjectKey: path}
	}
}

func firstPath(files []domain.AssociatedFile) string {
	for _, f := range files {
		if p := strings.TrimSpace(f.Path); p != "" {
			return f.Path
		}
	}
	return ""
}

func isAbsoluteHTTP(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func (r *SourceResolver) manifestURL(manifest string) string {
	if r.cdnBase == nil || isAbsoluteHTTP(manifest) {
		return manifest
	}
	rel, err := url.Parse(strings.TrimPrefix(manifest, "/"))
	if err != nil {
		return manifest
	}
	return r.cdnBase.ResolveReference(rel).String()
}
