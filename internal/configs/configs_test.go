package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadConfig reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "PORT", "ALLOWED_ORIGINS", "JWT_SECRET", "TOKEN_TTL", "STORE_DRIVER",
		"DATABASE_URL", "SQLITE_PATH", "REDIS_URL", "HISTORY_LIMIT", "MAX_CONTENT_BYTES",
		"MAX_ROOMS_PER_CONNECTION", "REQUIRE_ROOM_FOR_SEND", "MESSAGE_RATE", "MESSAGE_BURST",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 5000, cfg.MaxContentBytes)
	assert.Equal(t, 0, cfg.MaxRoomsPerConnection)
	assert.False(t, cfg.RequireRoomForSend)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/chat.db")
	t.Setenv("REQUIRE_ROOM_FOR_SEND", "true")
	t.Setenv("MAX_ROOMS_PER_CONNECTION", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/chat.db", cfg.SQLitePath)
	assert.True(t, cfg.RequireRoomForSend)
	assert.Equal(t, 3, cfg.MaxRoomsPerConnection)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"privileged port", map[string]string{"PORT": "80"}},
		{"bad port", map[string]string{"PORT": "eighty"}},
		{"missing secret in production", map[string]string{"ENVIRONMENT": "production", "DATABASE_URL": "postgres://x"}},
		{"missing dsn in production", map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "s"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mysql"}},
		{"zero history", map[string]string{"HISTORY_LIMIT": "0"}},
		{"bad bool", map[string]string{"REQUIRE_ROOM_FOR_SEND": "maybe"}},
		{"bad duration", map[string]string{"TOKEN_TTL": "forever"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
