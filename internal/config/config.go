package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

type IdentityConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type BlobConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	SigningKey string        `mapstructure:"signing_key"`
	URLTTL     time.Duration `mapstructure:"url_ttl"`
	CacheSize  int           `mapstructure:"cache_size"`
	Dir        string        `mapstructure:"dir"`
}

type RateLimitConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode         string          `mapstructure:"mode"`
	Port         int             `mapstructure:"port"`
	StaticPath   string          `mapstructure:"static_path"`
	ReadLimit    int64           `mapstructure:"read_limit"`
	PingPeriod   time.Duration   `mapstructure:"ping_period"`
	Secret       string          `mapstructure:"secret"`
	LogLevel     string          `mapstructure:"log_level"`
	Backpressure string          `mapstructure:"backpressure"`
	Store        StoreConfig     `mapstructure:"store"`
	Identity     IdentityConfig  `mapstructure:"identity"`
	Blob         BlobConfig      `mapstructure:"blob"`
	RateLimit    RateLimitConfig `mapstructure:"ratelimit"`
}

const devSecret = "dev-secret-change-me"

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("backpressure", "kick")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite_path", "./data/poker.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "poker")

	v.SetDefault("identity.jwt_secret", "")
	v.SetDefault("identity.token_ttl", "24h")

	v.SetDefault("blob.base_url", "/blobs")
	v.SetDefault("blob.signing_key", "")
	v.SetDefault("blob.url_ttl", "1h")
	v.SetDefault("blob.cache_size", 1024)
	v.SetDefault("blob.dir", "./data/blobs")

	v.SetDefault("ratelimit.limit", 20)
	v.SetDefault("ratelimit.interval", "1s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev when unset). POKER_*
// variables override file values, e.g. POKER_STORE_DRIVER=redis.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("POKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("static", cfg.StaticPath).Str("store", cfg.Store.Driver).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Secret == "" {
		if c.Mode == "release" {
			return errors.New("secret must be set in release mode")
		}
		c.Secret = devSecret
	}
	if c.Blob.SigningKey == "" {
		c.Blob.SigningKey = c.Secret
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Interval <= 0 {
		return errors.New("ratelimit.limit and ratelimit.interval must be positive")
	}
	return nil
}
