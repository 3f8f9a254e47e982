package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "./data/messenger.db", cfg.Database.Path)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "0 3 * * *", cfg.Retention.Cron)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Nil(t, cfg.Crypto.ContentKey)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVER_PORT", "8081")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("CACHE_DRIVER", "redis")
	t.Setenv(ContentKeyEnv, "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Len(t, cfg.Crypto.ContentKey, 32)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":  {"JWT_SECRET": ""},
		"bad port":        {"SERVER_PORT": "abc"},
		"bad cron":        {"RETENTION_CRON": "every day"},
		"bad cache":       {"CACHE_DRIVER": "memcached"},
		"short key":       {ContentKeyEnv: "abcd"},
		"bad ttl":         {"CACHE_TTL": "soon"},
		"zero rate limit": {"RATE_LIMIT_BURST": "0"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("JWT_SECRET", "secret")
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ContentKeyErrorNamesVariable(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CONTENT_ENCRYPTION_KEY", "zz")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONTENT_ENCRYPTION_KEY")
	assert.Equal(t, "CONTENT_ENCRYPTION_KEY", ContentKeyEnv)
}
