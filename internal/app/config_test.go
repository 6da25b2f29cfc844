package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("POS_STORE_DRIVER", "memory")
	t.Setenv("POS_API_KEY_PEPPER", "pepper")
	t.Setenv("POS_RATE_LIMIT_MAX", "50")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig(nil, true)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "pepper", cfg.APIKeyPepper)
	assert.Equal(t, 50, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_PlatformDatabaseURL(t *testing.T) {
	t.Setenv("POS_API_KEY_PEPPER", "pepper")
	t.Setenv("POS_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "postgres://pos@db:5432/pos")
	t.Setenv("PORT", "")

	cfg, err := loadConfig(nil, true)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://pos@db:5432/pos", cfg.DatabaseURL)
	assert.Equal(t, defaultAddr, cfg.Addr)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL:  "postgres://localhost/pos",
			APIKeyPepper: "pepper",
			Store:        StoreConfig{Driver: DriverPostgres},
			RateLimit:    RateLimitConfig{Max: 10, Window: time.Minute},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "memory needs no database", mutate: func(c *Config) { c.Store.Driver = DriverMemory; c.DatabaseURL = "" }},
		{name: "postgres needs database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL is required"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: `unknown store driver "sqlite"`},
		{name: "missing pepper", mutate: func(c *Config) { c.APIKeyPepper = "" }, wantErr: "pepper is required"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit.Max = 0 }, wantErr: "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
