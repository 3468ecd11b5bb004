package service

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/logger"
	"github.com/ramyshaaban/video-library/internal/repository"
)

var ErrSpaceNotFound = errors.New("space not found")

// minSlugScore is the combined similarity a fuzzy slug match must beat.
const minSlugScore = 0.5

type LibraryService interface {
	GetVideo(ctx context.Context, id string) (*domain.VideoRecord, error)
	ListSpaces(ctx context.Context) ([]domain.Space, error)
	// ListSpaceVideos pages through one space, newest first. A non-empty
	// filter keeps records whose title or description contain it.
	ListSpaceVideos(ctx context.Context, space, filter string, page, perPage int) ([]domain.VideoRecord, Pagination, error)
	// FindBySlug maps a friendly /space/video URL back to a record, trying
	// exact, then partial, then fuzzy slug matches.
	FindBySlug(ctx context.Context, spaceSlug, videoSlug string) (*domain.VideoRecord, error)
}

type libraryService struct {
	videos repository.VideoRepository
}

func NewLibraryService(videos repository.VideoRepository) LibraryService {
	return &libraryService{videos: videos}
}

func (s *libraryService) GetVideo(ctx context.Context, id string) (*domain.VideoRecord, error) {
	rec, err := s.videos.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrVideoNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *libraryService) ListSpaces(ctx context.Context) ([]domain.Space, error) {
	return s.videos.Spaces(ctx)
}

func (s *libraryService) ListSpaceVideos(ctx context.Context, space, filter string, page, perPage int) ([]domain.VideoRecord, Pagination, error) {
	recs, err := s.videos.ListBySpace(ctx, space)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewPagination(page, perPage, 0), ErrSpaceNotFound
		}
		return nil, NewPagination(page, perPage, 0), err
	}

	if needle := strings.ToLower(strings.TrimSpace(filter)); needle != "" {
		recs = lo.Filter(recs, func(r domain.VideoRecord, _ int) bool {
			return strings.Contains(strings.ToLower(r.Title), needle) ||
				strings.Contains(strings.ToLower(r.Description), needle)
		})
	}

	p := NewPagination(page, perPage, len(recs))
	return paginate(recs, p), p, nil
}

func (s *libraryService) FindBySlug(ctx context.Context, spaceSlug, videoSlug string) (*domain.VideoRecord, error) {
	spaceSlug = strings.ToLower(strings.TrimSpace(spaceSlug))
	videoSlug = strings.ToLower(strings.TrimSpace(videoSlug))
	if videoSlug == "" {
		return nil, domain.ErrVideoNotFound
	}

	recs, err := s.videos.List(ctx)
	if err != nil {
		return nil, err
	}

	type slugged struct {
		rec          *domain.VideoRecord
		space, title string
	}
	candidates := make([]slugged, len(recs))
	for i := range recs {
		candidates[i] = slugged{&recs[i], Slugify(recs[i].SpaceName), Slugify(recs[i].Title)}
	}

	for _, c := range candidates {
		if c.space == spaceSlug && c.title == videoSlug {
			return c.rec, nil
		}
	}

	for _, c := range candidates {
		if overlaps(c.space, spaceSlug) && overlaps(c.title, videoSlug) {
			logger.Log.Debug("partial slug match", zap.String("id", c.rec.ID), zap.String("title", c.title))
			return c.rec, nil
		}
	}

	var best *domain.VideoRecord
	bestScore := minSlugScore
	for _, c := range candidates {
		score := similarity(c.space, spaceSlug)*0.4 + similarity(c.title, videoSlug)*0.6
		if score > bestScore {
			best, bestScore = c.rec, score
		}
	}
	if best == nil {
		return nil, domain.ErrVideoNotFound
	}
	logger.Log.Debug("fuzzy slug match", zap.String("id", best.ID), zap.Float64("score", bestScore))
	return best, nil
}

// Slugify lowercases text, drops punctuation and joins words with single
// hyphens: "Knee Arthroscopy: Part 2" becomes "knee-arthroscopy-part-2".
func Slugify(text string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			pendingDash = true
		}
	}
	return b.String()
}

// overlaps reports whether either slug contains the other. An empty slug
// only overlaps another empty slug.
func overlaps(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// similarity is 1 minus the normalized edit distance, in [0, 1].
func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}
