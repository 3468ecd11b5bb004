package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, time.Hour, cfg.Storage.PresignTTL)
	assert.Equal(t, 5*time.Minute, cfg.Storage.SafetyMargin)
	assert.Equal(t, 30*time.Second, cfg.Proxy.ReadStallTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Search.PingTimeout)
	assert.Equal(t, "video_library", cfg.Search.Index)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, uint64(2), cfg.Signer.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Timestops.Timeout)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("storage:\n  bucket_name: from-file\n  presign_ttl: 30m\nsearch:\n  enabled: false\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	t.Setenv("STORAGE_REGION", "eu-west-1")
	t.Setenv("PROXY_BUFFER_SIZE", "4096")
	t.Setenv("STORAGE_CLOUDFRONT_KEY_PAIR_ID", "K2JCJMDEHXQW5F")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Storage.BucketName)
	assert.Equal(t, 30*time.Minute, cfg.Storage.PresignTTL)
	assert.False(t, cfg.Search.Enabled)
	assert.Equal(t, "eu-west-1", cfg.Storage.Region)
	assert.Equal(t, 4096, cfg.Proxy.BufferSize)
	assert.Equal(t, "K2JCJMDEHXQW5F", cfg.Storage.CloudFront.KeyPairID)
}
