package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/api"
	"github.com/ramyshaaban/video-library/internal/cache"
	"github.com/ramyshaaban/video-library/internal/config"
	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/logger"
	"github.com/ramyshaaban/video-library/internal/repository"
	"github.com/ramyshaaban/video-library/internal/repository/memory"
	"github.com/ramyshaaban/video-library/internal/repository/mongo"
	"github.com/ramyshaaban/video-library/internal/repository/postgres"
	"github.com/ramyshaaban/video-library/internal/search"
	"github.com/ramyshaaban/video-library/internal/service"
	"github.com/ramyshaaban/video-library/internal/storage"
	"github.com/ramyshaaban/video-library/internal/streaming"
)

// @title Video Library API
// @version 1.0
// @description Playback, streaming proxy and search for the video library.
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and an admin JWT.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Initialize("video-library", cfg.Log.JSON, strings.EqualFold(cfg.Log.Level, "debug"))
	defer log.Sync()
	log.Info("Configuration loaded", zap.String("catalog", cfg.Catalog.Source), zap.String("storage", cfg.Storage.Driver))

	ctx := context.Background()

	// --- Catalog ---
	records, closeCatalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		log.Fatal("Could not load video catalog", zap.Error(err))
	}
	defer closeCatalog()
	catalog := memory.NewCatalog(records)
	log.Info("Catalog loaded", zap.Int("videos", catalog.Len()))

	// --- Authorization cache ---
	signer, err := newSigner(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize object storage signer", zap.Error(err))
	}
	store, err := newStore(ctx, cfg.Cache)
	if err != nil {
		log.Fatal("Failed to initialize signed URL store", zap.Error(err))
	}
	signedURLs := service.NewSignedURLCache(signer, store, service.SignedURLCacheConfig{
		TTL:            cfg.Storage.PresignTTL,
		SafetyMargin:   cfg.Storage.SafetyMargin,
		MaxRetries:     cfg.Signer.MaxRetries,
		RetryBaseDelay: cfg.Signer.RetryBaseDelay,
	})

	// --- Streaming proxy ---
	resolver := service.NewSourceResolver(cfg.CDN.BaseURL)
	proxy := streaming.NewProxy(resolver, signedURLs, nil, streaming.Config{
		ConnectTimeout:        cfg.Proxy.ConnectTimeout,
		ResponseHeaderTimeout: cfg.Proxy.ResponseHeaderTimeout,
		ReadStallTimeout:      cfg.Proxy.ReadStallTimeout,
		BufferSize:            cfg.Proxy.BufferSize,
	})

	// --- Search ---
	docs, err := searchDocuments(ctx, catalog)
	if err != nil {
		log.Fatal("Could not list catalog", zap.Error(err))
	}
	var (
		primary search.RemoteEngine
		index   service.SearchIndex
	)
	if cfg.Search.Enabled {
		esClient, err := search.NewElasticClient(cfg.Search.Address, cfg.Search.RequestTimeout)
		if err != nil {
			log.Error("Elasticsearch client unavailable, search will use the fallback engine", zap.Error(err))
		} else {
			primary = search.NewElasticEngine(esClient, cfg.Search.Index, cfg.Search.RequestTimeout)
			index = search.NewIndexBuilder(esClient, cfg.Search.Index)
		}
	}

	var (
		timestops      repository.TimestopRepository
		transcriptions repository.TranscriptionRepository
	)
	if cfg.Timestops.DSN != "" {
		db, err := postgres.Connect(ctx, cfg.Timestops.DSN)
		if err != nil {
			log.Warn("Timestop database unavailable, search results will not include timestops", zap.Error(err))
		} else {
			timestops = postgres.NewTimestopRepository(db)
			transcriptions = postgres.NewTranscriptionRepository(db)
		}
	}

	searchService := service.NewSearchService(primary, index, docs, timestops, service.SearchConfig{
		Enabled:         cfg.Search.Enabled,
		PingTimeout:     cfg.Search.PingTimeout,
		TimestopTimeout: cfg.Timestops.Timeout,
	})

	// Serving starts before the index exists; queries use the fallback
	// engine until the build finishes.
	go func() {
		if _, err := searchService.Reindex(context.Background()); err != nil {
			log.Warn("Initial index build did not complete", zap.Error(err))
		}
	}()

	// --- Services & handlers ---
	library := service.NewLibraryService(catalog)
	playback := service.NewPlaybackService(library, resolver)

	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestIDMiddleware(), api.AccessLogMiddleware())

	api.SetupRoutes(router, cfg.Admin.JWTSecret, api.Handlers{
		Video:   api.NewVideoHandler(library, playback, proxy, timestops, transcriptions),
		Search:  api.NewSearchHandler(searchService, library),
		Library: api.NewLibraryHandler(library),
		Admin:   api.NewAdminHandler(searchService),
	})

	// --- Start HTTP Server ---
	// No WriteTimeout: proxied videos can stream for a long time.
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exiting.")
}

// loadCatalog reads every record from the configured source. The returned
// func releases whatever connection the source needed.
func loadCatalog(ctx context.Context, cfg config.Config) ([]domain.VideoRecord, func(), error) {
	noop := func() {}
	switch cfg.Catalog.Source {
	case "", "file":
		recs, err := memory.NewJSONFileSource(cfg.Catalog.Path).LoadAll(ctx)
		return recs, noop, err
	case "mongo":
		client, err := mongo.ConnectDB(ctx, cfg.Database.URI)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			if err := mongo.DisconnectDB(client); err != nil {
				logger.Log.Error("Failed to disconnect MongoDB", zap.Error(err))
			}
		}
		src := mongo.NewMongoVideoSource(client.Database(cfg.Database.Name), cfg.Database.Collection)
		recs, err := src.LoadAll(ctx)
		return recs, closeFn, err
	default:
		return nil, noop, fmt.Errorf("unknown catalog.source %q", cfg.Catalog.Source)
	}
}

// searchDocuments projects what the catalog kept, not the raw load:
// duplicates and records without an ID were dropped there.
func searchDocuments(ctx context.Context, catalog repository.VideoRepository) ([]search.Document, error) {
	recs, err := catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	return search.DocumentsFromRecords(recs), nil
}

func newSigner(ctx context.Context, cfg config.StorageConfig) (storage.ObjectSigner, error) {
	switch cfg.Driver {
	case "", "s3":
		return storage.NewS3Storage(ctx, cfg)
	case "minio":
		return storage.NewMinioStorage(cfg)
	case "cloudfront":
		cf, err := storage.NewCloudFrontStorage(cfg.CloudFront)
		if err != nil {
			return nil, err
		}
		if cfg.BucketName == "" {
			return cf, nil
		}
		s3Signer, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewFallbackSigner(cf, s3Signer), nil
	default:
		return nil, fmt.Errorf("unknown storage.driver %q", cfg.Driver)
	}
}

func newStore(ctx context.Context, cfg config.CacheConfig) (cache.SignedURLStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisStore(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown cache.backend %q", cfg.Backend)
	}
}
