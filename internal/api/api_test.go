package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramyshaaban/video-library/internal/cache"
	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/logger"
	"github.com/ramyshaaban/video-library/internal/repository"
	"github.com/ramyshaaban/video-library/internal/repository/memory"
	"github.com/ramyshaaban/video-library/internal/search"
	"github.com/ramyshaaban/video-library/internal/service"
	"github.com/ramyshaaban/video-library/internal/streaming"
)

const testSecret = "test-secret"

var videoBytes = strings.Repeat("0123456789", 100)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.SetNewNop()
	m.Run()
}

// countingSigner signs keys as URLs on the test origin.
type countingSigner struct {
	base  string
	calls atomic.Int32
}

func (s *countingSigner) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.calls.Add(1)
	return s.base + "/" + key + "?X-Amz-Signature=abc", nil
}

// memTranscriptions serves transcriptions from a map; IDs in failing return
// a backend error.
type memTranscriptions struct {
	byID    map[string]*domain.Transcription
	failing map[string]bool
}

func (m memTranscriptions) GetByContentID(_ context.Context, id string) (*domain.Transcription, error) {
	if m.failing[id] {
		return nil, errors.New("connection reset by peer")
	}
	if t, ok := m.byID[id]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

type testServer struct {
	router *gin.Engine
	signer *countingSigner
	hits   *atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	var hits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("X-Amz-Signature") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.ServeContent(w, r, "clip.mp4", time.Time{}, strings.NewReader(videoBytes))
	}))
	t.Cleanup(origin.Close)

	at := func(d int) time.Time { return time.Date(2024, 2, d, 0, 0, 0, 0, time.UTC) }
	catalog := memory.NewCatalog([]domain.VideoRecord{
		{ID: "1", Title: "Emergency Surgery", SpaceName: "Surgery", CreatedAt: at(1),
			Files: []domain.AssociatedFile{{Path: "videos/abc123.mp4"}}},
		{ID: "2", Title: "Cardiac Cath Lab", SpaceName: "Cardiology", CreatedAt: at(2),
			Files: []domain.AssociatedFile{{ManifestURL: "http://cdn.example.com/2/master.m3u8"}}},
		{ID: "3", Title: "Suturing Basics", SpaceName: "Surgery", CreatedAt: at(3)},
	})

	signer := &countingSigner{base: origin.URL}
	urls := service.NewSignedURLCache(signer, cache.NewMemoryStore(), service.SignedURLCacheConfig{TTL: time.Hour})
	resolver := service.NewSourceResolver("")
	proxy := streaming.NewProxy(resolver, urls, nil, streaming.Config{})

	library := service.NewLibraryService(catalog)
	recs, _ := catalog.List(context.Background())
	searchSvc := service.NewSearchService(nil, nil, search.DocumentsFromRecords(recs), nil, service.SearchConfig{})

	router := gin.New()
	router.Use(RequestIDMiddleware(), AccessLogMiddleware())
	SetupRoutes(router, testSecret, Handlers{
		Video: NewVideoHandler(library, service.NewPlaybackService(library, resolver), proxy, nil, memTranscriptions{
			byID: map[string]*domain.Transcription{
				"1": {ContentID: "1", Text: "incision and exposure", Language: "en", WordCount: 3},
			},
			failing: map[string]bool{"2": true},
		}),
		Search:  NewSearchHandler(searchSvc, library),
		Library: NewLibraryHandler(library),
		Admin:   NewAdminHandler(searchSvc),
	})
	return &testServer{router: router, signer: signer, hits: &hits}
}

func (s *testServer) do(method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestProxy_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/video/proxy/1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, videoBytes, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.EqualValues(t, 1, s.signer.calls.Load())
	assert.EqualValues(t, 1, s.hits.Load())

	w = s.do(http.MethodGet, "/api/video/proxy/1", map[string]string{"Range": "bytes=10-19"})
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "0123456789", w.Body.String())
	assert.Equal(t, "bytes 10-19/1000", w.Header().Get("Content-Range"))
	assert.EqualValues(t, 1, s.signer.calls.Load(), "second request should reuse the signed URL")
}

func TestProxy_UnknownAndUnresolvable(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/video/proxy/404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/video/proxy/3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"video unavailable"}`, w.Body.String())
	assert.Zero(t, s.hits.Load())
	assert.Zero(t, s.signer.calls.Load())
}

func TestProxy_Preflight(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodOptions, "/api/video/proxy/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Zero(t, s.hits.Load())
}

func TestStreamDescriptor(t *testing.T) {
	s := newTestServer(t)

	var hls StreamDescriptorResponse
	w := s.do(http.MethodGet, "/api/video/stream/2", map[string]string{"X-Forwarded-Proto": "https"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &hls)
	assert.Equal(t, StreamDescriptorResponse{
		VideoURL: "https://cdn.example.com/2/master.m3u8", Type: "hls", SupportsAdaptive: true, Strategy: "manifest",
	}, hls)

	var mp4 StreamDescriptorResponse
	w = s.do(http.MethodGet, "/api/video/stream/1", map[string]string{"X-Forwarded-Prefix": "/videolibrary"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &mp4)
	assert.Equal(t, "/videolibrary/api/video/proxy/1", mp4.VideoURL)
	assert.Equal(t, "mp4", mp4.Type)
	assert.Equal(t, "signed-object", mp4.Strategy)
	assert.Zero(t, s.signer.calls.Load(), "descriptor must not sign")

	w = s.do(http.MethodGet, "/api/video/stream/3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetVideo(t *testing.T) {
	s := newTestServer(t)

	var v VideoResponse
	w := s.do(http.MethodGet, "/api/video/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &v)
	assert.Equal(t, "Emergency Surgery", v.Title)
	assert.Equal(t, "videos/abc123.mp4", v.FilePath)

	w = s.do(http.MethodGet, "/api/video/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var ts TimestopsResponse
	w = s.do(http.MethodGet, "/api/video/1/timestops", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &ts)
	assert.Equal(t, "not_processed", ts.Status)
	assert.Empty(t, ts.Timestops)
}

func TestGetTranscription(t *testing.T) {
	s := newTestServer(t)

	var tr TranscriptionResponse
	w := s.do(http.MethodGet, "/api/video/1/transcription", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &tr)
	assert.Equal(t, "success", tr.Status)
	require.NotNil(t, tr.Transcription)
	assert.Equal(t, "incision and exposure", tr.Transcription.Text)
	assert.Equal(t, "en", tr.Transcription.Language)

	tr = TranscriptionResponse{}
	w = s.do(http.MethodGet, "/api/video/3/transcription", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &tr)
	assert.Equal(t, "3", tr.ContentID)
	assert.Equal(t, "not_processed", tr.Status)
	assert.Nil(t, tr.Transcription)

	w = s.do(http.MethodGet, "/api/video/2/transcription", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(http.MethodGet, "/api/video/99/transcription", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	s := newTestServer(t)

	var resp SearchResponse
	w := s.do(http.MethodGet, "/api/search?search=surgery&per_page=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)

	assert.Equal(t, search.EngineFallback, resp.SearchEngine)
	assert.Equal(t, "surgery", resp.SearchTerm)
	require.Len(t, resp.Videos, 1)
	assert.Equal(t, "1", resp.Videos[0].ID)
	assert.Equal(t, service.MatchMetadata, resp.Videos[0].MatchType)
	assert.Equal(t, service.Pagination{Page: 1, PerPage: 10, Total: 1, TotalPages: 1}, resp.Pagination)

	w = s.do(http.MethodGet, "/api/search", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Empty(t, resp.Videos)
}

func TestLibraryEndpoints(t *testing.T) {
	s := newTestServer(t)

	var spaces SpacesResponse
	w := s.do(http.MethodGet, "/api/spaces", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &spaces)
	assert.Equal(t, []domain.Space{{Name: "Surgery", VideoCount: 2}, {Name: "Cardiology", VideoCount: 1}}, spaces.Spaces)
	assert.Equal(t, 3, spaces.TotalVideos)

	var listing SpaceVideosResponse
	w = s.do(http.MethodGet, "/api/spaces/Surgery/videos?search=sutur", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &listing)
	require.Len(t, listing.Videos, 1)
	assert.Equal(t, "3", listing.Videos[0].ID)

	w = s.do(http.MethodGet, "/api/spaces/Nope/videos", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var v VideoResponse
	w = s.do(http.MethodGet, "/api/videolibrary/surgery/emergency-surgery", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &v)
	assert.Equal(t, "1", v.ID)
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestAdminReindex(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/admin/reindex", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/admin/reindex", map[string]string{"Authorization": adminToken(t, "viewer")})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// No search backend is configured, so the build reports degraded.
	var report ReindexResponse
	w = s.do(http.MethodPost, "/api/admin/reindex", map[string]string{"Authorization": adminToken(t, RoleAdmin)})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &report)
	assert.True(t, report.Degraded)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/ping", map[string]string{HeaderRequestID: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))

	w = s.do(http.MethodGet, "/ping", nil)
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	router := gin.New()
	router.POST("/x", AdminAuthMiddleware(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
