package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Video   *VideoHandler
	Search  *SearchHandler
	Library *LibraryHandler
	Admin   *AdminHandler
}

func SetupRoutes(router *gin.Engine, adminSecret string, h Handlers) {
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiGroup := router.Group("/api")
	{
		videoGroup := apiGroup.Group("/video")
		{
			videoGroup.GET("/:id", h.Video.GetVideo)
			videoGroup.GET("/:id/timestops", h.Video.GetTimestops)
			videoGroup.GET("/:id/transcription", h.Video.GetTranscription)
			videoGroup.GET("/stream/:id", h.Video.GetStreamDescriptor)

			videoGroup.GET("/proxy/:id", h.Video.ProxyVideo)
			videoGroup.HEAD("/proxy/:id", h.Video.ProxyVideo)
			videoGroup.OPTIONS("/proxy/:id", h.Video.ProxyVideo)
		}

		apiGroup.GET("/search", h.Search.Search)

		apiGroup.GET("/spaces", h.Library.ListSpaces)
		apiGroup.GET("/spaces/:name/videos", h.Library.ListSpaceVideos)
		apiGroup.GET("/videolibrary/:space/:video", h.Library.FindBySlug)

		adminGroup := apiGroup.Group("/admin")
		adminGroup.Use(AdminAuthMiddleware(adminSecret))
		{
			adminGroup.POST("/reindex", h.Admin.Reindex)
		}
	}
}
