package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/logger"
	"github.com/ramyshaaban/video-library/internal/repository"
	"github.com/ramyshaaban/video-library/internal/search"
)

const (
	MatchMetadata = "metadata"
	MatchTimestop = "timestop"

	maxRelevantTimestops = 5
	timestopSearchLimit  = 50
)

// SearchIndex is the index builder as seen by the facade.
type SearchIndex interface {
	Ready() bool
	Build(ctx context.Context, docs []search.Document) (search.BuildReport, error)
}

type SearchConfig struct {
	Enabled         bool
	PingTimeout     time.Duration
	TimestopTimeout time.Duration
}

type SearchHit struct {
	ID        string
	Score     float64
	MatchType string
	// Timestops holds up to five chapter markers mentioning the query.
	Timestops []domain.Timestop
}

type SearchResult struct {
	Query  string
	Hits   []SearchHit
	Total  int
	Page   Pagination
	Engine string
	// TimestopMatches are videos found only through their timestops or
	// transcription. They are not part of Hits or Total.
	TimestopMatches []SearchHit
}

type SearchService interface {
	// Search never fails: when the primary engine cannot answer, the
	// fallback engine does, and the result's Engine says which one did.
	Search(ctx context.Context, text string, page, perPage int) SearchResult
	// Reindex rebuilds the primary index from the catalog.
	Reindex(ctx context.Context) (search.BuildReport, error)
}

type searchService struct {
	primary   search.RemoteEngine
	index     SearchIndex
	fallback  search.Engine
	docs      []search.Document
	timestops repository.TimestopRepository
	cfg       SearchConfig
}

// NewSearchService wires the facade. primary, index and timestops may be nil;
// the facade then serves fallback results without timestops.
func NewSearchService(
	primary search.RemoteEngine,
	index SearchIndex,
	docs []search.Document,
	timestops repository.TimestopRepository,
	cfg SearchConfig,
) SearchService {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 500 * time.Millisecond
	}
	if cfg.TimestopTimeout <= 0 {
		cfg.TimestopTimeout = 2 * time.Second
	}
	return &searchService{
		primary:   primary,
		index:     index,
		fallback:  search.NewFallbackEngine(docs),
		docs:      docs,
		timestops: timestops,
		cfg:       cfg,
	}
}

func (s *searchService) Search(ctx context.Context, text string, page, perPage int) SearchResult {
	p := NewPagination(page, perPage, 0)
	q := search.Query{Text: strings.TrimSpace(text), Page: p.Page, PageSize: p.PerPage}

	engine := s.choose(ctx)
	result := SearchResult{Query: q.Text, Page: p, Engine: engine.Name()}
	if q.Text == "" {
		return result
	}

	found, err := engine.Query(ctx, q)
	if err != nil && engine != s.fallback {
		logger.Log.Warn("primary search failed, using fallback",
			zap.String("query", q.Text), zap.Error(err))
		engine = s.fallback
		result.Engine = engine.Name()
		found, err = engine.Query(ctx, q)
	}
	if err != nil {
		logger.Log.Error("fallback search failed", zap.String("query", q.Text), zap.Error(err))
		return result
	}

	result.Total = found.Total
	result.Page = NewPagination(p.Page, p.PerPage, found.Total)
	result.Hits = make([]SearchHit, 0, len(found.Hits))
	for _, h := range found.Hits {
		result.Hits = append(result.Hits, SearchHit{ID: h.ID, Score: h.Score, MatchType: MatchMetadata})
	}

	s.attachTimestops(ctx, &result)
	return result
}

// choose picks the primary engine only when it is enabled, its index has
// been built, and it answers a ping within PingTimeout.
func (s *searchService) choose(ctx context.Context) search.Engine {
	if !s.cfg.Enabled || s.primary == nil || s.index == nil || !s.index.Ready() {
		return s.fallback
	}
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
	defer cancel()
	if err := s.primary.Ping(pingCtx); err != nil {
		logger.Log.Warn("search backend unreachable, using fallback", zap.Error(err))
		return s.fallback
	}
	return s.primary
}

// attachTimestops adds timestop-only matches and the relevant chapter
// markers of every hit. Errors are logged and otherwise ignored.
func (s *searchService) attachTimestops(ctx context.Context, result *SearchResult) {
	if s.timestops == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TimestopTimeout)
	defer cancel()

	matched, err := s.timestops.SearchContentIDs(ctx, result.Query, timestopSearchLimit)
	if err != nil {
		logger.Log.Warn("timestop search failed", zap.Error(err))
	}

	seen := make(map[string]bool, len(result.Hits))
	for _, h := range result.Hits {
		seen[h.ID] = true
	}
	for _, id := range matched {
		if seen[id] {
			continue
		}
		seen[id] = true
		result.TimestopMatches = append(result.TimestopMatches, SearchHit{ID: id, Score: 0.5, MatchType: MatchTimestop})
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}
	byID, err := s.timestops.GetByContentIDs(ctx, ids)
	if err != nil {
		logger.Log.Warn("loading timestops failed", zap.Error(err))
		return
	}
	for i := range result.Hits {
		result.Hits[i].Timestops = relevantTimestops(byID[result.Hits[i].ID], result.Query)
	}
	for i := range result.TimestopMatches {
		result.TimestopMatches[i].Timestops = relevantTimestops(byID[result.TimestopMatches[i].ID], result.Query)
	}
}

// relevantTimestops keeps markers whose label or summary contains query,
// at most maxRelevantTimestops of them.
func relevantTimestops(all []domain.Timestop, query string) []domain.Timestop {
	needle := strings.ToLower(query)
	var out []domain.Timestop
	for _, ts := range all {
		if strings.Contains(strings.ToLower(ts.Label), needle) || strings.Contains(strings.ToLower(ts.Summary), needle) {
			out = append(out, ts)
			if len(out) == maxRelevantTimestops {
				break
			}
		}
	}
	return out
}

func (s *searchService) Reindex(ctx context.Context) (search.BuildReport, error) {
	if s.index == nil {
		return search.BuildReport{Degraded: true}, search.ErrIndexUnavailable
	}
	report, err := s.index.Build(ctx, s.docs)
	if err != nil && !errors.Is(err, search.ErrBuildInProgress) {
		logger.Log.Warn("reindex finished degraded", zap.Error(err))
	}
	return report, err
}
