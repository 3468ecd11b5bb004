package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/service"
)

type LibraryHandler struct {
	library service.LibraryService
}

func NewLibraryHandler(library service.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

type SpacesResponse struct {
	Spaces      []domain.Space `json:"spaces"`
	TotalVideos int            `json:"total_videos"`
	TotalSpaces int            `json:"total_spaces"`
}

type SpaceVideosResponse struct {
	Space      string             `json:"space"`
	Videos     []VideoResponse    `json:"videos"`
	Pagination service.Pagination `json:"pagination"`
}

// ListSpaces godoc
// @Summary List spaces, largest first
// @Tags Library
// @Produce json
// @Success 200 {object} SpacesResponse
// @Router /spaces [get]
func (h *LibraryHandler) ListSpaces(c *gin.Context) {
	spaces, err := h.library.ListSpaces(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to list spaces.")
		return
	}

	sorted := make([]domain.Space, len(spaces))
	copy(sorted, spaces)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].VideoCount > sorted[j].VideoCount })

	resp := SpacesResponse{Spaces: sorted, TotalSpaces: len(sorted)}
	for _, s := range sorted {
		resp.TotalVideos += s.VideoCount
	}
	c.JSON(http.StatusOK, resp)
}

// ListSpaceVideos godoc
// @Summary List the videos of one space, newest first
// @Tags Library
// @Produce json
// @Param name path string true "Space name"
// @Param search query string false "Title or description filter"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Page size" default(24)
// @Success 200 {object} SpaceVideosResponse
// @Failure 404 {object} gin.H "Space not found"
// @Router /spaces/{name}/videos [get]
func (h *LibraryHandler) ListSpaceVideos(c *gin.Context) {
	name := c.Param("name")
	recs, page, err := h.library.ListSpaceVideos(c.Request.Context(), name, c.Query("search"),
		queryInt(c, "page", 1), queryInt(c, "per_page", service.DefaultPerPage))
	if err != nil {
		if errors.Is(err, service.ErrSpaceNotFound) {
			abortWithError(c, http.StatusNotFound, "Space not found")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to list videos.")
		}
		return
	}
	c.JSON(http.StatusOK, SpaceVideosResponse{Space: name, Videos: MapVideosToResponse(recs), Pagination: page})
}

// FindBySlug godoc
// @Summary Resolve a friendly /space/video URL
// @Tags Library
// @Produce json
// @Param space path string true "Space slug"
// @Param video path string true "Video title slug"
// @Success 200 {object} VideoResponse
// @Failure 404 {object} gin.H "Video not found"
// @Router /videolibrary/{space}/{video} [get]
func (h *LibraryHandler) FindBySlug(c *gin.Context) {
	rec, err := h.library.FindBySlug(c.Request.Context(), c.Param("space"), c.Param("video"))
	if err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			abortWithError(c, http.StatusNotFound, "Video not found")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to look up video.")
		}
		return
	}
	c.JSON(http.StatusOK, MapVideoToResponse(rec))
}
