package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ramyshaaban/video-library/internal/cache"
	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/logger"
	"github.com/ramyshaaban/video-library/internal/storage"
)

// signTimeout bounds one signing flight. The flight runs detached from the
// caller that started it because other callers may be waiting on it.
const signTimeout = 15 * time.Second

// SignedURLCacheConfig tunes the authorization cache.
type SignedURLCacheConfig struct {
	// TTL is the lifetime requested from the signer.
	TTL time.Duration
	// SafetyMargin is subtracted from TTL so a URL is never handed out
	// moments before the backend starts rejecting it.
	SafetyMargin   time.Duration
	MaxRetries     uint64
	RetryBaseDelay time.Duration
}

// SignedURLCache hands out signed URLs per object key, signing at most once
// per key at a time. Different keys never wait on each other.
type SignedURLCache struct {
	signer storage.ObjectSigner
	store  cache.SignedURLStore
	group  singleflight.Group
	cfg    SignedURLCacheConfig
	now    func() time.Time
}

func NewSignedURLCache(signer storage.ObjectSigner, store cache.SignedURLStore, cfg SignedURLCacheConfig) *SignedURLCache {
	if cfg.TTL <= 0 {
		cfg.TTL = storage.DefaultPresignedURLExpiry
	}
	if cfg.SafetyMargin < 0 || cfg.SafetyMargin >= cfg.TTL {
		cfg.SafetyMargin = cfg.TTL / 10
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	return &SignedURLCache{signer: signer, store: store, cfg: cfg, now: time.Now}
}

// GetSignedURL returns a usable URL for objectKey. Failures are
// *domain.AuthorizationError.
func (c *SignedURLCache) GetSignedURL(ctx context.Context, objectKey string) (string, error) {
	if access, ok := c.lookup(ctx, objectKey); ok {
		return access.URL, nil
	}

	v, err, shared := c.group.Do(objectKey, func() (interface{}, error) {
		// A flight that finished between our lookup and Do already stored a URL.
		if access, ok := c.lookup(ctx, objectKey); ok {
			return access, nil
		}
		signCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), signTimeout)
		defer cancel()
		return c.sign(signCtx, objectKey)
	})
	if err != nil {
		return "", err
	}
	if shared {
		logger.Log.Debug("joined in-flight signing", zap.String("key", objectKey))
	}
	return v.(domain.SignedAccess).URL, nil
}

// Invalidate drops the stored URL for objectKey so the next request signs
// again. A flight already in progress is left alone and still shared.
func (c *SignedURLCache) Invalidate(ctx context.Context, objectKey string) {
	if err := c.store.Delete(ctx, objectKey); err != nil {
		logger.Log.Warn("failed to invalidate signed url", zap.String("key", objectKey), zap.Error(err))
	}
}

// lookup treats store failures as misses; signing again is always safe.
func (c *SignedURLCache) lookup(ctx context.Context, objectKey string) (domain.SignedAccess, bool) {
	access, ok, err := c.store.Get(ctx, objectKey)
	if err != nil {
		logger.Log.Warn("signed url store read failed", zap.String("key", objectKey), zap.Error(err))
		return domain.SignedAccess{}, false
	}
	if !ok || !access.Valid(c.now()) {
		return domain.SignedAccess{}, false
	}
	return access, true
}

func (c *SignedURLCache) sign(ctx context.Context, objectKey string) (domain.SignedAccess, error) {
	var signed string
	attempt := 0
	op := func() error {
		attempt++
		u, err := c.signer.GeneratePresignedDownloadURL(ctx, objectKey, c.cfg.TTL)
		if err != nil {
			if storage.IsAccessDenied(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			logger.Log.Warn("signing failed, will retry",
				zap.String("key", objectKey), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		signed = u
		return nil
	}

	issuedAt := c.now()
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.cfg.MaxRetries), ctx)); err != nil {
		authErr := &domain.AuthorizationError{Key: objectKey, Denied: storage.IsAccessDenied(err), Err: err}
		logger.Log.Error("could not sign object key", zap.String("key", objectKey), zap.Bool("denied", authErr.Denied), zap.Error(err))
		return domain.SignedAccess{}, authErr
	}

	access := domain.SignedAccess{
		URL:       signed,
		ExpiresAt: issuedAt.Add(c.cfg.TTL - c.cfg.SafetyMargin),
	}
	if err := c.store.Set(ctx, objectKey, access); err != nil {
		logger.Log.Warn("signed url store write failed", zap.String("key", objectKey), zap.Error(err))
	}
	return access, nil
}

func (c *SignedURLCache) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBaseDelay
	b.MaxInterval = 8 * c.cfg.RetryBaseDelay
	return b
}
