package service

import (
	"context"

	"github.com/ramyshaaban/video-library/internal/domain"
)

// PlaybackService answers "where do I play this video from".
type PlaybackService interface {
	// Source returns the record and its resolved source. An unresolved
	// source is not an error here; callers decide how to report it.
	Source(ctx context.Context, id string) (*domain.VideoRecord, domain.ResolvedSource, error)
}

type playbackService struct {
	library  LibraryService
	resolver *SourceResolver
}

func NewPlaybackService(library LibraryService, resolver *SourceResolver) PlaybackService {
	return &playbackService{library: library, resolver: resolver}
}

func (s *playbackService) Source(ctx context.Context, id string) (*domain.VideoRecord, domain.ResolvedSource, error) {
	rec, err := s.library.GetVideo(ctx, id)
	if err != nil {
		return nil, domain.ResolvedSource{Strategy: domain.StrategyUnresolved}, err
	}
	return rec, s.resolver.Resolve(rec), nil
}
