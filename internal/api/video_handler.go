package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/logger"
	"github.com/ramyshaaban/video-library/internal/repository"
	"github.com/ramyshaaban/video-library/internal/service"
	"github.com/ramyshaaban/video-library/internal/streaming"
)

const lookupTimeout = 2 * time.Second

type VideoHandler struct {
	library        service.LibraryService
	playback       service.PlaybackService
	proxy          *streaming.Proxy
	timestops      repository.TimestopRepository
	transcriptions repository.TranscriptionRepository
}

// NewVideoHandler creates a VideoHandler. timestops and transcriptions may be nil.
func NewVideoHandler(
	library service.LibraryService,
	playback service.PlaybackService,
	proxy *streaming.Proxy,
	timestops repository.TimestopRepository,
	transcriptions repository.TranscriptionRepository,
) *VideoHandler {
	return &VideoHandler{
		library:        library,
		playback:       playback,
		proxy:          proxy,
		timestops:      timestops,
		transcriptions: transcriptions,
	}
}

// --- DTOs ---

type VideoResponse struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	SpaceName         string            `json:"space_name"`
	FilePath          string            `json:"file_path,omitempty"`
	Thumbnail         string            `json:"thumbnail,omitempty"`
	HLSURL            string            `json:"hls_url,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Score             float64           `json:"score,omitempty"`
	MatchType         string            `json:"match_type,omitempty"`
	RelevantTimestops []domain.Timestop `json:"relevant_timestops,omitempty"`
}

// StreamDescriptorResponse tells a player what to load.
type StreamDescriptorResponse struct {
	VideoURL         string `json:"video_url"`
	Type             string `json:"type"` // "hls" or "mp4"
	SupportsAdaptive bool   `json:"supports_adaptive"`
	Strategy         string `json:"strategy"`
	FilePath         string `json:"file_path,omitempty"`
}

type TimestopsResponse struct {
	ContentID string            `json:"content_id"`
	Timestops []domain.Timestop `json:"timestops"`
	Status    string            `json:"status"`
}

type TranscriptionResponse struct {
	ContentID     string                `json:"content_id"`
	Transcription *domain.Transcription `json:"transcription"`
	Status        string                `json:"status"`
}

// MapVideoToResponse converts a domain.VideoRecord to a VideoResponse DTO.
func MapVideoToResponse(rec *domain.VideoRecord) VideoResponse {
	if rec == nil {
		return VideoResponse{}
	}
	resp := VideoResponse{
		ID:          rec.ID,
		Title:       rec.Title,
		Description: rec.Description,
		SpaceName:   rec.SpaceName,
		Thumbnail:   rec.Thumbnail(),
		HLSURL:      rec.ManifestURL(),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	for _, f := range rec.Files {
		if f.Path != "" {
			resp.FilePath = f.Path
			break
		}
	}
	return resp
}

func MapVideosToResponse(recs []domain.VideoRecord) []VideoResponse {
	responses := make([]VideoResponse, len(recs))
	for i := range recs {
		responses[i] = MapVideoToResponse(&recs[i])
	}
	return responses
}

// --- Handler Methods ---

// GetVideo godoc
// @Summary Get a video record
// @Tags Videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} VideoResponse
// @Failure 404 {object} gin.H "Video not found"
// @Router /video/{id} [get]
func (h *VideoHandler) GetVideo(c *gin.Context) {
	rec, err := h.library.GetVideo(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			abortWithError(c, http.StatusNotFound, "Video not found")
		} else {
			logger.Log.Error("loading video failed", zap.String("id", c.Param("id")), zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to load video.")
		}
		return
	}
	c.JSON(http.StatusOK, MapVideoToResponse(rec))
}

// GetStreamDescriptor godoc
// @Summary Describe how to play a video
// @Description HLS manifests are returned directly; everything else goes through the proxy.
// @Tags Videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} StreamDescriptorResponse
// @Failure 404 {object} gin.H "Video not found or unavailable"
// @Router /video/stream/{id} [get]
func (h *VideoHandler) GetStreamDescriptor(c *gin.Context) {
	rec, src, err := h.playback.Source(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			abortWithError(c, http.StatusNotFound, "Video not found")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to load video.")
		}
		return
	}

	switch src.Strategy {
	case domain.StrategyManifest:
		manifest := src.URL
		if isHTTPS(c) && strings.HasPrefix(manifest, "http://") {
			manifest = "https://" + strings.TrimPrefix(manifest, "http://")
		}
		c.JSON(http.StatusOK, StreamDescriptorResponse{
			VideoURL:         manifest,
			Type:             "hls",
			SupportsAdaptive: true,
			Strategy:         string(src.Strategy),
		})
	case domain.StrategyPublicURL, domain.StrategySignedObject:
		// The proxy signs lazily; nothing is authorized here.
		c.JSON(http.StatusOK, StreamDescriptorResponse{
			VideoURL: strings.TrimSuffix(c.GetHeader("X-Forwarded-Prefix"), "/") + "/api/video/proxy/" + rec.ID,
			Type:     "mp4",
			Strategy: string(src.Strategy),
			FilePath: MapVideoToResponse(rec).FilePath,
		})
	default:
		abortWithError(c, http.StatusNotFound, domain.ErrUnresolvableSource.Error())
	}
}

func isHTTPS(c *gin.Context) bool {
	return c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}

// ProxyVideo godoc
// @Summary Stream video bytes
// @Description Relays the video with byte-range support. OPTIONS answers CORS preflight.
// @Tags Videos
// @Param id path string true "Video ID"
// @Param Range header string false "Byte range, e.g. bytes=0-1023"
// @Success 200 "Full content"
// @Success 206 "Partial content"
// @Failure 404 {object} gin.H "Video not found or unavailable"
// @Failure 416 {object} gin.H "Range not satisfiable"
// @Failure 502 {object} gin.H "Origin or authorization failure"
// @Router /video/proxy/{id} [get]
func (h *VideoHandler) ProxyVideo(c *gin.Context) {
	if c.Request.Method == http.MethodOptions {
		h.proxy.Stream(c.Writer, c.Request, nil)
		return
	}

	rec, err := h.library.GetVideo(c.Request.Context(), c.Param("id"))
	if err != nil {
		streaming.SetCORSHeaders(c.Writer.Header())
		streaming.WriteError(c.Writer, err)
		return
	}
	h.proxy.Stream(c.Writer, c.Request, rec)
}

// GetTimestops godoc
// @Summary List a video's chapter markers
// @Tags Videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} TimestopsResponse
// @Failure 404 {object} gin.H "Video not found"
// @Router /video/{id}/timestops [get]
func (h *VideoHandler) GetTimestops(c *gin.Context) {
	rec, err := h.library.GetVideo(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusNotFound, "Video not found")
		return
	}

	resp := TimestopsResponse{ContentID: rec.ID, Timestops: []domain.Timestop{}, Status: "not_processed"}
	if h.timestops == nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), lookupTimeout)
	defer cancel()
	byID, err := h.timestops.GetByContentIDs(ctx, []string{rec.ID})
	if err != nil {
		logger.Log.Warn("timestop lookup failed", zap.String("id", rec.ID), zap.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, "Timestops are temporarily unavailable.")
		return
	}
	if ts := byID[rec.ID]; len(ts) > 0 {
		resp.Timestops = ts
		resp.Status = "success"
	}
	c.JSON(http.StatusOK, resp)
}

// GetTranscription godoc
// @Summary Get a video's transcription
// @Tags Videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} TranscriptionResponse
// @Failure 404 {object} gin.H "Video not found"
// @Router /video/{id}/transcription [get]
func (h *VideoHandler) GetTranscription(c *gin.Context) {
	rec, err := h.library.GetVideo(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusNotFound, "Video not found")
		return
	}

	resp := TranscriptionResponse{ContentID: rec.ID, Status: "not_processed"}
	if h.transcriptions == nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), lookupTimeout)
	defer cancel()
	t, err := h.transcriptions.GetByContentID(ctx, rec.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		logger.Log.Warn("transcription lookup failed", zap.String("id", rec.ID), zap.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, "Transcription is temporarily unavailable.")
		return
	default:
		resp.Transcription = t
		resp.Status = "success"
	}
	c.JSON(http.StatusOK, resp)
}
