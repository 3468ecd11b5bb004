package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/search"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Name() string { return search.EngineElasticsearch }

func (m *MockEngine) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockEngine) Query(ctx context.Context, q search.Query) (search.Page, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(search.Page), args.Error(1)
}

type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Ready() bool { return m.Called().Bool(0) }

func (m *MockIndex) Build(ctx context.Context, docs []search.Document) (search.BuildReport, error) {
	args := m.Called(ctx, docs)
	return args.Get(0).(search.BuildReport), args.Error(1)
}

type MockTimestopRepo struct {
	mock.Mock
}

func (m *MockTimestopRepo) SearchContentIDs(ctx context.Context, query string, limit int) ([]string, error) {
	args := m.Called(ctx, query, limit)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockTimestopRepo) GetByContentIDs(ctx context.Context, ids []string) (map[string][]domain.Timestop, error) {
	args := m.Called(ctx, ids)
	byID, _ := args.Get(0).(map[string][]domain.Timestop)
	return byID, args.Error(1)
}

func searchDocs() []search.Document {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	return []search.Document{
		{ID: "1", Title: "Emergency Surgery", CreatedAt: day(1)},
		{ID: "2", Title: "Rounds", Description: "surgery consult", CreatedAt: day(2)},
		{ID: "3", Title: "Orientation", CreatedAt: day(3)},
	}
}

func enabled() SearchConfig {
	return SearchConfig{Enabled: true, PingTimeout: 50 * time.Millisecond}
}

func hitIDs(hits []SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func TestSearchService_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := new(MockEngine)
	index := new(MockIndex)
	index.On("Ready").Return(true)
	primary.On("Ping", mock.Anything).Return(nil)
	primary.On("Query", mock.Anything, search.Query{Text: "surgry", Page: 1, PageSize: 24}).
		Return(search.Page{Hits: []search.Hit{{ID: "1", Score: 4.2}}, Total: 1}, nil)

	svc := NewSearchService(primary, index, searchDocs(), nil, enabled())
	res := svc.Search(context.Background(), " surgry ", 0, 0)

	assert.Equal(t, search.EngineElasticsearch, res.Engine)
	assert.Equal(t, []string{"1"}, hitIDs(res.Hits))
	assert.Equal(t, MatchMetadata, res.Hits[0].MatchType)
	assert.Equal(t, Pagination{Page: 1, PerPage: 24, Total: 1, TotalPages: 1}, res.Page)
	primary.AssertExpectations(t)
}

func TestSearchService_FallsBackWhenQueryFails(t *testing.T) {
	primary := new(MockEngine)
	index := new(MockIndex)
	index.On("Ready").Return(true)
	primary.On("Ping", mock.Anything).Return(nil)
	primary.On("Query", mock.Anything, mock.Anything).Return(search.Page{}, search.ErrIndexUnavailable)

	svc := NewSearchService(primary, index, searchDocs(), nil, enabled())
	res := svc.Search(context.Background(), "surgery", 1, 24)

	assert.Equal(t, search.EngineFallback, res.Engine)
	assert.Equal(t, []string{"1", "2"}, hitIDs(res.Hits))
	assert.Equal(t, 2, res.Total)
}

func TestSearchService_FallbackWhenIneligible(t *testing.T) {
	tests := []struct {
		name  string
		cfg   SearchConfig
		ready bool
		ping  error
	}{
		{name: "disabled", cfg: SearchConfig{}, ready: true},
		{name: "index not built", cfg: enabled(), ready: false},
		{name: "ping fails", cfg: enabled(), ready: true, ping: errors.New("connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := new(MockEngine)
			index := new(MockIndex)
			index.On("Ready").Return(tt.ready)
			primary.On("Ping", mock.Anything).Return(tt.ping)

			svc := NewSearchService(primary, index, searchDocs(), nil, tt.cfg)
			res := svc.Search(context.Background(), "orientation", 1, 10)

			assert.Equal(t, search.EngineFallback, res.Engine)
			assert.Equal(t, []string{"3"}, hitIDs(res.Hits))
			primary.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
		})
	}
}

func TestSearchService_NoPrimaryConfigured(t *testing.T) {
	svc := NewSearchService(nil, nil, searchDocs(), nil, enabled())
	res := svc.Search(context.Background(), "rounds", 1, 10)
	assert.Equal(t, search.EngineFallback, res.Engine)
	assert.Equal(t, []string{"2"}, hitIDs(res.Hits))

	_, err := svc.Reindex(context.Background())
	assert.ErrorIs(t, err, search.ErrIndexUnavailable)
}

func TestSearchService_EmptyQueryKeepsEngineTag(t *testing.T) {
	primary := new(MockEngine)
	index := new(MockIndex)
	index.On("Ready").Return(true)
	primary.On("Ping", mock.Anything).Return(nil)

	svc := NewSearchService(primary, index, searchDocs(), nil, enabled())
	res := svc.Search(context.Background(), "   ", 1, 10)

	assert.Equal(t, search.EngineElasticsearch, res.Engine)
	assert.Empty(t, res.Hits)
	assert.Zero(t, res.Total)
	primary.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestSearchService_Timestops(t *testing.T) {
	repo := new(MockTimestopRepo)
	repo.On("SearchContentIDs", mock.Anything, "surgery", timestopSearchLimit).Return([]string{"2", "9"}, nil)
	repo.On("GetByContentIDs", mock.Anything, mock.MatchedBy(func(ids []string) bool {
		return assert.ElementsMatch(t, []string{"1", "2", "9"}, ids)
	})).Return(map[string][]domain.Timestop{
		"1": {
			{ContentID: "1", Label: "Intro"},
			{ContentID: "1", Label: "Surgery setup"},
		},
		"9": {{ContentID: "9", Label: "Q&A", Summary: "post-surgery care"}},
	}, nil)

	svc := NewSearchService(nil, nil, searchDocs(), repo, enabled())
	res := svc.Search(context.Background(), "surgery", 1, 10)

	require.Equal(t, []string{"1", "2"}, hitIDs(res.Hits))
	require.Len(t, res.Hits[0].Timestops, 1)
	assert.Equal(t, "Surgery setup", res.Hits[0].Timestops[0].Label)
	assert.Empty(t, res.Hits[1].Timestops)

	// "2" is already a metadata hit, so only "9" is reported separately.
	require.Len(t, res.TimestopMatches, 1)
	assert.Equal(t, "9", res.TimestopMatches[0].ID)
	assert.Equal(t, MatchTimestop, res.TimestopMatches[0].MatchType)
	assert.Len(t, res.TimestopMatches[0].Timestops, 1)
	assert.Equal(t, 2, res.Total)
}

func TestSearchService_TimestopFailureIsAbsorbed(t *testing.T) {
	repo := new(MockTimestopRepo)
	repo.On("SearchContentIDs", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	repo.On("GetByContentIDs", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	svc := NewSearchService(nil, nil, searchDocs(), repo, enabled())
	res := svc.Search(context.Background(), "orientation", 1, 10)

	assert.Equal(t, []string{"3"}, hitIDs(res.Hits))
	assert.Empty(t, res.TimestopMatches)
}

func TestRelevantTimestops_Cap(t *testing.T) {
	var all []domain.Timestop
	for i := 0; i < 8; i++ {
		all = append(all, domain.Timestop{Label: "Knee exam"})
	}
	assert.Len(t, relevantTimestops(all, "knee"), maxRelevantTimestops)
	assert.Empty(t, relevantTimestops(all, "shoulder"))
}

func TestSearchService_Reindex(t *testing.T) {
	index := new(MockIndex)
	docs := searchDocs()
	index.On("Build", mock.Anything, docs).Return(search.BuildReport{Indexed: 3}, nil).Once()

	svc := NewSearchService(new(MockEngine), index, docs, nil, enabled())
	report, err := svc.Reindex(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)
	index.AssertExpectations(t)
}
