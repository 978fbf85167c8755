package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, int32(5), cfg.DBMaxConns)
	require.Equal(t, 2*time.Second, cfg.DBAcquireTimeout)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins())
	require.False(t, cfg.NATSEnabled())
	require.False(t, cfg.RedisEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GAMELEDGER_HTTP_PORT", "9090")
	t.Setenv("GAMELEDGER_DB_MAX_CONNS", "8")
	t.Setenv("GAMELEDGER_DB_ACQUIRE_TIMEOUT", "500ms")
	t.Setenv("GAMELEDGER_NATS_URLS", "nats://localhost:4222")
	t.Setenv("GAMELEDGER_REDIS_ADDR", "localhost:6379")
	t.Setenv("GAMELEDGER_LEADERBOARD_TTL", "1m")
	t.Setenv("GAMELEDGER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.HTTPPort)
	require.Equal(t, int32(8), cfg.DBMaxConns)
	require.Equal(t, 500*time.Millisecond, cfg.DBAcquireTimeout)
	require.Equal(t, time.Minute, cfg.LeaderboardTTL)
	require.True(t, cfg.NATSEnabled())
	require.True(t, cfg.RedisEnabled())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}

func TestLoad_RejectsEmptyPool(t *testing.T) {
	t.Setenv("GAMELEDGER_DB_MAX_CONNS", "0")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DBMaxConns")
}

func TestLoad_CloudSQL(t *testing.T) {
	t.Setenv("GAMELEDGER_CLOUDSQL_INSTANCE", "proj:region:inst")
	t.Setenv("GAMELEDGER_DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t,
		"postgres://gameledger:secret@/gameledger?host=/cloudsql/proj:region:inst",
		cfg.DatabaseURL)
}

func TestBuildCloudSQLURL_NoPassword(t *testing.T) {
	cfg := &Config{CloudSQLInstance: "p:r:i", DBUser: "u", DBName: "db"}
	require.Equal(t, "postgres://u@/db?host=/cloudsql/p:r:i", cfg.buildCloudSQLURL())
}
