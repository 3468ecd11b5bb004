package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ramyshaaban/video-library/internal/search"
	"github.com/ramyshaaban/video-library/internal/service"
)

type AdminHandler struct {
	search service.SearchService
}

func NewAdminHandler(search service.SearchService) *AdminHandler {
	return &AdminHandler{search: search}
}

type ReindexResponse struct {
	Indexed    int   `json:"indexed"`
	Failed     int   `json:"failed"`
	Degraded   bool  `json:"degraded"`
	DurationMS int64 `json:"duration_ms"`
}

// Reindex godoc
// @Summary Rebuild the search index from the catalog
// @Description A degraded build leaves search on the fallback engine until the next successful build.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ReindexResponse
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 403 {object} gin.H "Forbidden"
// @Failure 409 {object} gin.H "A build is already running"
// @Router /admin/reindex [post]
func (h *AdminHandler) Reindex(c *gin.Context) {
	report, err := h.search.Reindex(c.Request.Context())
	if errors.Is(err, search.ErrBuildInProgress) {
		abortWithError(c, http.StatusConflict, err.Error())
		return
	}
	// A degraded build is reported, not failed.
	c.JSON(http.StatusOK, ReindexResponse{
		Indexed:    report.Indexed,
		Failed:     report.Failed,
		Degraded:   report.Degraded,
		DurationMS: report.Duration.Milliseconds(),
	})
}
