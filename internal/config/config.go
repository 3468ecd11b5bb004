package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Signer    SignerConfig    `mapstructure:"signer"`
	Cache     CacheConfig     `mapstructure:"cache"`
	CDN       CDNConfig       `mapstructure:"cdn"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Search    SearchConfig    `mapstructure:"search"`
	Timestops TimestopsConfig `mapstructure:"timestops"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// CatalogConfig selects where video metadata is loaded from at startup.
type CatalogConfig struct {
	Source string `mapstructure:"source"` // "file" or "mongo"
	Path   string `mapstructure:"path"`
}

// DatabaseConfig is the MongoDB catalog location, used when catalog.source is "mongo".
type DatabaseConfig struct {
	URI        string `mapstructure:"uri"`
	Name       string `mapstructure:"name"`
	Collection string `mapstructure:"collection"`
}

type StorageConfig struct {
	Driver          string        `mapstructure:"driver"` // "s3", "minio" or "cloudfront"
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	BucketName      string        `mapstructure:"bucket_name"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"`
	SafetyMargin    time.Duration `mapstructure:"safety_margin"`

	CloudFront CloudFrontConfig `mapstructure:"cloudfront"`
}

// CloudFrontConfig signs URLs for a distribution in front of the bucket.
// PrivateKey is a PEM key, optionally base64 encoded as a whole.
type CloudFrontConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	KeyPairID  string `mapstructure:"key_pair_id"`
	PrivateKey string `mapstructure:"private_key"`
}

type SignerConfig struct {
	MaxRetries     uint64        `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

type CacheConfig struct {
	Backend       string `mapstructure:"backend"` // "memory" or "redis"
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

type CDNConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type ProxyConfig struct {
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
	ReadStallTimeout      time.Duration `mapstructure:"read_stall_timeout"`
	BufferSize            int           `mapstructure:"buffer_size"`
}

type SearchConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Address        string        `mapstructure:"address"`
	Index          string        `mapstructure:"index"`
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TimestopsConfig points at the Postgres database holding timestops and
// transcriptions. An empty DSN disables timestop search.
type TimestopsConfig struct {
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AdminConfig protects the maintenance endpoints.
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LoadConfig reads configuration from path/config.yaml, a .env file in path,
// and environment variables. Neither file is required.
func LoadConfig(path string) (config Config, err error) {
	if err = godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, err
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	return config, nil
}

// Every key needs a default, otherwise AutomaticEnv cannot see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("catalog.source", "file")
	v.SetDefault("catalog.path", "all_video_metadata_from_database.json")

	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "video_library")
	v.SetDefault("database.collection", "videos")

	v.SetDefault("storage.driver", "s3")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.bucket_name", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.presign_ttl", "1h")
	v.SetDefault("storage.safety_margin", "5m")
	v.SetDefault("storage.cloudfront.base_url", "")
	v.SetDefault("storage.cloudfront.key_pair_id", "")
	v.SetDefault("storage.cloudfront.private_key", "")

	v.SetDefault("signer.max_retries", 2)
	v.SetDefault("signer.retry_base_delay", "200ms")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "signed-url:")

	v.SetDefault("cdn.base_url", "")

	v.SetDefault("proxy.connect_timeout", "10s")
	v.SetDefault("proxy.response_header_timeout", "30s")
	v.SetDefault("proxy.read_stall_timeout", "30s")
	v.SetDefault("proxy.buffer_size", 32*1024)

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.address", "http://localhost:9200")
	v.SetDefault("search.index", "video_library")
	v.SetDefault("search.ping_timeout", "500ms")
	v.SetDefault("search.request_timeout", "5s")

	v.SetDefault("timestops.dsn", "")
	v.SetDefault("timestops.timeout", "2s")

	v.SetDefault("admin.jwt_secret", "")
}
