package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"
	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/config"
	"github.com/ramyshaaban/video-library/internal/logger"
)

// urlSigner is the part of *sign.URLSigner we use.
type urlSigner interface {
	Sign(rawURL string, expires time.Time) (string, error)
}

// cloudFrontStorage signs canned-policy URLs for a CloudFront distribution
// whose origin is the video bucket.
type cloudFrontStorage struct {
	signer  urlSigner
	baseURL string
	now     func() time.Time
}

// NewCloudFrontStorage loads the key pair and returns a signer for
// cfg.CloudFront.BaseURL.
func NewCloudFrontStorage(cfg config.CloudFrontConfig) (ObjectSigner, error) {
	if cfg.BaseURL == "" || cfg.KeyPairID == "" || cfg.PrivateKey == "" {
		return nil, errors.New("storage.cloudfront.base_url, key_pair_id and private_key are required for the cloudfront driver")
	}
	pemBytes, err := decodePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	key, err := sign.LoadPEMPrivKey(bytes.NewReader(pemBytes))
	if err != nil {
		return nil, fmt.Errorf("load cloudfront private key: %w", err)
	}

	logger.Log.Info("CloudFront signer initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("key_pair_id", cfg.KeyPairID))

	return &cloudFrontStorage{
		signer:  sign.NewURLSigner(cfg.KeyPairID, key),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		now:     time.Now,
	}, nil
}

// decodePrivateKey accepts the PEM text itself or the whole PEM base64
// encoded, which is how it usually travels through environment variables.
func decodePrivateKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "-----BEGIN") {
		return []byte(raw), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("cloudfront private key is neither PEM nor base64: %w", err)
	}
	return decoded, nil
}

// GeneratePresignedDownloadURL signs baseURL/objectKey. Signing happens
// locally, so a failure is a configuration problem and is reported as a
// denial.
func (s *cloudFrontStorage) GeneratePresignedDownloadURL(_ context.Context, objectKey string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}
	rawURL := s.baseURL + "/" + escapeKey(objectKey)
	signed, err := s.signer.Sign(rawURL, s.now().Add(expires))
	if err != nil {
		return "", fmt.Errorf("%w: cloudfront sign: %v", ErrAccessDenied, err)
	}
	return signed, nil
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// fallbackSigner tries primary first and falls back to secondary on any
// error, the same order the CDN-fronted deployments use.
type fallbackSigner struct {
	primary   ObjectSigner
	secondary ObjectSigner
}

// NewFallbackSigner chains two signers.
func NewFallbackSigner(primary, secondary ObjectSigner) ObjectSigner {
	return &fallbackSigner{primary: primary, secondary: secondary}
}

func (f *fallbackSigner) GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	u, err := f.primary.GeneratePresignedDownloadURL(ctx, objectKey, expires)
	if err == nil {
		return u, nil
	}
	logger.Log.Warn("primary signer failed, using fallback", zap.String("key", objectKey), zap.Error(err))
	return f.secondary.GeneratePresignedDownloadURL(ctx, objectKey, expires)
}
