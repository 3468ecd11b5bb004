package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/config"
	"github.com/ramyshaaban/video-library/internal/logger"
)

// minioClient is the subset of *minio.Client the signer needs.
type minioClient interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

type minioStorage struct {
	client     minioClient
	bucketName string
}

// NewMinioStorage signs URLs against a MinIO (or other S3-compatible) server.
// The endpoint is host:port without a scheme; UseSSL picks https.
func NewMinioStorage(cfg config.StorageConfig) (ObjectSigner, error) {
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, errors.New("storage.endpoint and storage.bucket_name are required for the minio driver")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	logger.Log.Info("MinIO signer initialized", zap.String("endpoint", endpoint), zap.String("bucket", cfg.BucketName))
	return &minioStorage{client: client, bucketName: cfg.BucketName}, nil
}

func (s *minioStorage) GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, objectKey, expires, url.Values{})
	if err != nil {
		if isDenialCode(minio.ToErrorResponse(err).Code) {
			return "", fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
		return "", err
	}
	return u.String(), nil
}
