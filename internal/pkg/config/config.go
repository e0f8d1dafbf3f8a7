package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string        `env:"PORT,      default=8080"`
	Env       string        `env:"ENV,       default=development"`
	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL,   default=24h"`
	LogLevel  string        `env:"LOG_LEVEL, default=info"`
	// MaxUploadSize bounds request bodies, photos included (echo BodyLimit syntax).
	MaxUploadSize string `env:"MAX_UPLOAD_SIZE, default=5M"`

	Mongo     MongoConfig
	Redis     RedisConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Cleanup   CleanupConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=contacts"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// StorageConfig selects and configures the photo blob sink. Remote switches
// from the local upload directory to S3.
type StorageConfig struct {
	Remote        bool   `env:"STORAGE_REMOTE_ENABLED, default=false"`
	UploadDir     string `env:"UPLOAD_DIR,             default=./uploads"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL,        default=http://localhost:8080"`

	S3 S3Config
}

type S3Config struct {
	Bucket        string `env:"S3_BUCKET"`
	Region        string `env:"S3_REGION,          default=us-east-1"`
	Prefix        string `env:"S3_PREFIX,          default=photos"`
	Endpoint      string `env:"S3_ENDPOINT"`
	PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`
}

type RateLimitConfig struct {
	Enabled        bool          `env:"RATE_LIMIT_ENABLED,         default=true"`
	Capacity       int           `env:"RATE_LIMIT_CAPACITY,        default=60"`
	RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS,   default=1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL, default=1s"`
	Prefix         string        `env:"RATE_LIMIT_PREFIX,          default=rl"`
}

type CleanupConfig struct {
	Workers int `env:"PHOTO_CLEANUP_WORKERS, default=4"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadContext(context.Background())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadContext is Load without the panic.
func LoadContext(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Storage.Remote && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when STORAGE_REMOTE_ENABLED is set")
	}
	if c.RateLimit.Capacity < 1 {
		c.RateLimit.Capacity = 1
	}
	if c.RateLimit.RefillTokens < 1 {
		c.RateLimit.RefillTokens = 1
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	return nil
}
