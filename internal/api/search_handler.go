package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ramyshaaban/video-library/internal/service"
)

type SearchHandler struct {
	search  service.SearchService
	library service.LibraryService
}

func NewSearchHandler(search service.SearchService, library service.LibraryService) *SearchHandler {
	return &SearchHandler{search: search, library: library}
}

type SearchResponse struct {
	Videos          []VideoResponse    `json:"videos"`
	Pagination      service.Pagination `json:"pagination"`
	SearchTerm      string             `json:"search_term"`
	SearchEngine    string             `json:"search_engine"`
	TimestopMatches int                `json:"timestop_matches"`
	TimestopVideos  []VideoResponse    `json:"timestop_videos,omitempty"`
}

// Search godoc
// @Summary Search videos across all spaces
// @Description Fuzzy, relevance-ranked search with a substring fallback. search_engine reports which engine answered.
// @Tags Search
// @Produce json
// @Param search query string false "Search text"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Page size" default(24)
// @Success 200 {object} SearchResponse
// @Router /search [get]
func (h *SearchHandler) Search(c *gin.Context) {
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", service.DefaultPerPage)

	result := h.search.Search(c.Request.Context(), c.Query("search"), page, perPage)

	resp := SearchResponse{
		Videos:          h.hydrate(c, result.Hits),
		Pagination:      result.Page,
		SearchTerm:      result.Query,
		SearchEngine:    result.Engine,
		TimestopMatches: len(result.TimestopMatches),
		TimestopVideos:  h.hydrate(c, result.TimestopMatches),
	}
	c.JSON(http.StatusOK, resp)
}

// hydrate turns hits into full video responses. Hits whose record is gone
// (a stale index) are dropped.
func (h *SearchHandler) hydrate(c *gin.Context, hits []service.SearchHit) []VideoResponse {
	out := make([]VideoResponse, 0, len(hits))
	for _, hit := range hits {
		rec, err := h.library.GetVideo(c.Request.Context(), hit.ID)
		if err != nil {
			continue
		}
		v := MapVideoToResponse(rec)
		v.Score = hit.Score
		v.MatchType = hit.MatchType
		v.RelevantTimestops = hit.Timestops
		out = append(out, v)
	}
	return out
}

// queryInt reads a positive integer query parameter, or def.
func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}
