package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, StoreMemory, cfg.RoomStore)
	assert.Equal(t, StoreMemory, cfg.SessionStore)
	assert.Equal(t, "rps:", cfg.KeyPrefix)
	assert.Equal(t, time.Hour, cfg.RoomTTL)
	assert.Equal(t, 24*time.Hour, cfg.AbandonedRoomTTL)
	assert.Equal(t, 5*time.Minute, cfg.PresenceFreshWindow)
	assert.Equal(t, 30*time.Minute, cfg.PresenceStaleAfter)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ROOM_STORE", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("ROOM_TTL", "90m")
	t.Setenv("LOG_LEVEL", "loud")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, StoreRedis, cfg.RoomStore)
	assert.Equal(t, 90*time.Minute, cfg.RoomTTL)
	assert.Equal(t, "info", cfg.LogLevel, "invalid level falls back to info")
}

func TestLoadConfig_BadDuration(t *testing.T) {
	t.Setenv("ROOM_TTL", "soon")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			LogLevel:            "info",
			RoomStore:           StoreMemory,
			SessionStore:        StoreMemory,
			RoomTTL:             time.Hour,
			PresenceFreshWindow: 5 * time.Minute,
			PresenceStaleAfter:  30 * time.Minute,
			RateLimitMax:        10,
			RateLimitWindow:     time.Second,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown room store", func(c *Config) { c.RoomStore = "etcd" }, "ROOM_STORE"},
		{"redis sessions unsupported", func(c *Config) { c.SessionStore = StoreRedis }, "SESSION_STORE"},
		{"redis store without addr", func(c *Config) { c.RoomStore = StoreRedis }, "REDIS_ADDR"},
		{"mysql without user", func(c *Config) { c.SessionStore = StoreMySQL }, "DB_USER"},
		{"zero room ttl", func(c *Config) { c.RoomTTL = 0 }, "ROOM_TTL"},
		{"stale shorter than fresh", func(c *Config) { c.PresenceStaleAfter = time.Minute }, "PRESENCE_STALE_AFTER"},
		{"zero rate limit", func(c *Config) { c.RateLimitMax = 0 }, "RATE_LIMIT_MAX"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, time.Minute, cfg.SweepInterval)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
