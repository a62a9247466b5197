package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "nautichandler.com", cfg.Source.Host)
	assert.Equal(t, "https://nautichandler.com/en/100390-painting", cfg.Source.DefaultCategoryURL)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.CategoryTTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ProductTTL)
	assert.Equal(t, 24, cfg.Extract.PageSize)
	assert.Equal(t, 40, cfg.Extract.MaxProducts)
	assert.Equal(t, 4, cfg.Extract.ScrollRounds)
	assert.False(t, cfg.Database.Enabled)
	assert.Zero(t, cfg.RateLimit.MinInterval)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SOURCE_DEFAULT_CATEGORY_URL", "https://www.shop.example/en/10-rope")
	t.Setenv("CACHE_BACKEND", "Redis")
	t.Setenv("CACHE_CATEGORY_TTL", "90s")
	t.Setenv("EXTRACT_PAGE_SIZE", "12")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://app.example, https://admin.example")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("RATE_LIMIT_MIN_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "shop.example", cfg.Source.Host)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 90*time.Second, cfg.Cache.CategoryTTL)
	assert.Equal(t, 12, cfg.Extract.PageSize)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Database.Enabled)
	assert.Zero(t, cfg.RateLimit.MinInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown cache backend", map[string]string{"CACHE_BACKEND": "memcached"}, "CACHE_BACKEND"},
		{"zero page size", map[string]string{"EXTRACT_PAGE_SIZE": "0"}, "EXTRACT_PAGE_SIZE"},
		{"negative scroll rounds", map[string]string{"EXTRACT_SCROLL_ROUNDS": "-1"}, "EXTRACT_SCROLL_ROUNDS"},
		{"relative default category", map[string]string{"SOURCE_DEFAULT_CATEGORY_URL": "/en/100390-painting", "SOURCE_HOST": "shop.example"}, "SOURCE_DEFAULT_CATEGORY_URL"},
		{"inverted rate limit", map[string]string{"RATE_LIMIT_MIN_INTERVAL": "5s", "RATE_LIMIT_MAX_INTERVAL": "1s"}, "RATE_LIMIT_MIN_INTERVAL"},
		{"negative ttl", map[string]string{"CACHE_PRODUCT_TTL": "-1m"}, "TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
