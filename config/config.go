// Package config loads the messenger configuration from the environment.
//
// A .env file is loaded first (development convenience), then every value is
// resolved through viper: an optional YAML file named by CONFIG_FILE, then
// environment variables, then the defaults below.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries every configuration section of the service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Log       LogConfig
	Cache     CacheConfig
	Kafka     KafkaConfig
	Retention RetentionConfig
	RateLimit RateLimitConfig
	Crypto    CryptoConfig
	CORS      CORSConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string // e.g. ./data/messenger.db
}

// JWTConfig holds the shared secret used by the back-office to sign access tokens.
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration // only used when the messenger issues tokens itself
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Development bool
	Level       string
}

// CacheConfig selects where unread summaries are cached.
type CacheConfig struct {
	Driver        string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// KafkaConfig configures the outbound event stream. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RetentionConfig configures purging of soft-deleted messages.
type RetentionConfig struct {
	Enabled bool
	Cron    string
	Days    int
}

// RateLimitConfig bounds how fast a single user can send messages.
type RateLimitConfig struct {
	MessagesPerSecond float64
	Burst             int
}

// ContentKeyEnv names the variable holding the at-rest content key.
const ContentKeyEnv = "CONTENT_ENCRYPTION_KEY"

// CryptoConfig holds the optional at-rest content key (32 bytes, hex encoded).
type CryptoConfig struct {
	ContentKey []byte
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string
}

// Load builds a Config from .env, CONFIG_FILE and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read CONFIG_FILE %s: %w", file, err)
		}
	}

	port := v.GetInt("SERVER_PORT")
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid SERVER_PORT: %q", v.GetString("SERVER_PORT"))
	}

	jwtSecret := v.GetString("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	accessExpiry, err := parseDuration(v, "JWT_ACCESS_EXPIRY")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseDuration(v, "CACHE_TTL")
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(v.GetString("CACHE_DRIVER"))
	if driver != "memory" && driver != "redis" {
		return nil, fmt.Errorf("invalid CACHE_DRIVER: %q (want memory or redis)", driver)
	}

	cronExpr := v.GetString("RETENTION_CRON")
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid RETENTION_CRON: %q", cronExpr)
	}

	retentionDays := v.GetInt("RETENTION_DAYS")
	if retentionDays <= 0 {
		return nil, fmt.Errorf("invalid RETENTION_DAYS: %q", v.GetString("RETENTION_DAYS"))
	}

	perSecond := v.GetFloat64("RATE_LIMIT_PER_SECOND")
	burst := v.GetInt("RATE_LIMIT_BURST")
	if perSecond <= 0 || burst <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}

	var contentKey []byte
	if hexKey := v.GetString(ContentKeyEnv); hexKey != "" {
		contentKey, err = hex.DecodeString(hexKey)
		if err != nil || len(contentKey) != 32 {
			return nil, fmt.Errorf("invalid %s: must be 64 hex characters", ContentKeyEnv)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: port,
		},
		Database: DatabaseConfig{
			Path: v.GetString("DATABASE_PATH"),
		},
		JWT: JWTConfig{
			Secret:            jwtSecret,
			AccessTokenExpiry: accessExpiry,
		},
		Log: LogConfig{
			Development: v.GetBool("LOG_DEVELOPMENT"),
			Level:       v.GetString("LOG_LEVEL"),
		},
		Cache: CacheConfig{
			Driver:        driver,
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			TTL:           cacheTTL,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Retention: RetentionConfig{
			Enabled: v.GetBool("RETENTION_ENABLED"),
			Cron:    cronExpr,
			Days:    retentionDays,
		},
		RateLimit: RateLimitConfig{
			MessagesPerSecond: perSecond,
			Burst:             burst,
		},
		Crypto: CryptoConfig{
			ContentKey: contentKey,
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}

	return cfg, nil
}

// Addr returns the listen address, e.g. "0.0.0.0:9090".
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 9090)
	v.SetDefault("DATABASE_PATH", "./data/messenger.db")
	v.SetDefault("JWT_ACCESS_EXPIRY", "15m")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CACHE_DRIVER", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "30s")
	v.SetDefault("KAFKA_TOPIC", "messenger.events")
	v.SetDefault("RETENTION_ENABLED", true)
	v.SetDefault("RETENTION_CRON", "0 3 * * *")
	v.SetDefault("RETENTION_DAYS", 30)
	v.SetDefault("RATE_LIMIT_PER_SECOND", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v.GetString(key))
	}
	return d, nil
}

// splitList parses comma separated values; viper only splits on whitespace.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
