package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Spot-Canvas/gameledger/internal/domain"
)

func TestNilLeaderboardIsNoop(t *testing.T) {
	var l *Leaderboard
	ctx := context.Background()

	require.NoError(t, l.Ping(ctx))
	gen, err := l.Generation(ctx)
	require.NoError(t, err)
	require.Zero(t, gen)
	stored, err := l.Set(ctx, gen, []domain.UserScore{{UserID: "u1", TotalScore: 1}})
	require.NoError(t, err)
	require.False(t, stored)
	require.NoError(t, l.Invalidate(ctx))

	board, ok, err := l.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, board)
	require.NoError(t, l.Close())
}

func TestNewLeaderboard_RequiresAddr(t *testing.T) {
	_, err := NewLeaderboard(Config{})
	require.EqualError(t, err, "redis address is required")
}

func TestNewLeaderboard_AppliesDefaults(t *testing.T) {
	l, err := NewLeaderboard(Config{Addr: "localhost:6379"})
	require.NoError(t, err)
	defer l.Close()

	require.Equal(t, ConfigDefaults().TTL, l.ttl)
	require.Equal(t, "gameledger:leaderboard:top", l.key)
	require.Equal(t, "gameledger:leaderboard:gen", l.genKey)
}
