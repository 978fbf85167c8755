//go:build integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Spot-Canvas/gameledger/internal/api"
	"github.com/Spot-Canvas/gameledger/internal/cache"
	"github.com/Spot-Canvas/gameledger/internal/domain"
	"github.com/Spot-Canvas/gameledger/internal/store"
	"github.com/Spot-Canvas/gameledger/internal/testutil"
)

// Integration test requires Docker: PostgreSQL and Redis are started with
// testcontainers.
//
// Run with: go test -tags=integration ./internal/api/ -v

func TestAPIIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Set up database
	repo, err := store.NewRepository(ctx, store.DefaultDBConfig(testutil.StartPostgres(t)))
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, store.RunMigrations(ctx, repo.Pool()))

	// Set up leaderboard cache
	cacheCfg := cache.ConfigDefaults()
	cacheCfg.Addr = testutil.StartRedis(t)
	board, err := cache.NewLeaderboard(cacheCfg)
	require.NoError(t, err)
	defer board.Close()

	srv := api.NewServer(repo, nil, api.WithLeaderboardCache(board))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		resp := call(t, ts, "GET", "/health", "")
		require.Equal(t, http.StatusOK, resp.status)
	})

	t.Run("add user then scores and top users", func(t *testing.T) {
		resp := call(t, ts, "POST", "/add_user", `{"userid":"u1","wallet":100,"powerups":[1,1,1,1,1,1]}`)
		require.Equal(t, http.StatusOK, resp.status, resp.body)
		require.JSONEq(t, `{"user_id":"u1"}`, resp.body)

		// Warm the cache so the next read must observe the invalidation.
		call(t, ts, "GET", "/top_users", "")

		resp = call(t, ts, "GET", "/add_score?userid=u1&score=50", "")
		require.Equal(t, http.StatusOK, resp.status, resp.body)

		resp = call(t, ts, "GET", "/scores/u1", "")
		require.JSONEq(t, `[{"userid":"u1","score":50}]`, resp.body)

		resp = call(t, ts, "GET", "/top_users", "")
		var top []domain.UserScore
		require.NoError(t, json.Unmarshal([]byte(resp.body), &top))
		require.Contains(t, top, domain.UserScore{UserID: "u1", TotalScore: 50})
	})

	t.Run("add user twice accumulates powerups", func(t *testing.T) {
		call(t, ts, "POST", "/add_user", `{"userid":"u2","wallet":10,"powerups":[1,2,3,4,5,6]}`)
		call(t, ts, "POST", "/add_user", `{"userid":"u2","wallet":25,"powerups":[1,1,1,1,1,1]}`)

		resp := call(t, ts, "GET", "/users/u2", "")
		var user domain.User
		require.NoError(t, json.Unmarshal([]byte(resp.body), &user))
		require.Equal(t, int64(25), user.Wallet)
		require.Equal(t, domain.Powerups{2, 3, 4, 5, 6, 7}, user.Powerups)

		resp = call(t, ts, "GET", "/get_powerups/u2", "")
		require.JSONEq(t, `{"powerup1":2,"powerup2":3,"powerup3":4}`, resp.body)
	})

	t.Run("insufficient reduce leaves total unchanged", func(t *testing.T) {
		resp := call(t, ts, "POST", "/reduce_score", `{"userid":"u1","score":1000}`)
		require.Equal(t, http.StatusBadRequest, resp.status)
		require.JSONEq(t, `{"error":"Not enough score to reduce"}`, resp.body)

		total, err := repo.TotalScore(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, int64(50), total)
	})

	t.Run("concurrent reduce of halves", func(t *testing.T) {
		call(t, ts, "GET", "/add_score?userid=racer&score=51", "")

		var wg sync.WaitGroup
		statuses := make([]int, 2)
		for i := range statuses {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				statuses[i] = call(t, ts, "POST", "/reduce_score", `{"userid":"racer","score":30}`).status
			}(i)
		}
		wg.Wait()

		require.ElementsMatch(t, []int{http.StatusOK, http.StatusBadRequest}, statuses)
		total, err := repo.TotalScore(ctx, "racer")
		require.NoError(t, err)
		require.Equal(t, int64(21), total)
	})

	t.Run("transactions", func(t *testing.T) {
		txn := fmt.Sprintf("tx-%d", time.Now().UnixNano())

		resp := call(t, ts, "POST", "/add_transaction", fmt.Sprintf(`{"txn":%q,"amount":10}`, txn))
		require.Equal(t, http.StatusOK, resp.status, resp.body)

		resp = call(t, ts, "POST", "/add_transaction", fmt.Sprintf(`{"txn":%q,"amount":10}`, txn))
		require.Equal(t, http.StatusConflict, resp.status)

		require.Equal(t, "Y", call(t, ts, "GET", "/check_transaction/"+txn, "").body)
		require.Equal(t, "N", call(t, ts, "GET", "/check_transaction/unknown", "").body)

		resp = call(t, ts, "POST", "/clear_transactions", "")
		require.Equal(t, http.StatusOK, resp.status)
		require.Equal(t, "N", call(t, ts, "GET", "/check_transaction/"+txn, "").body)
	})
}

type response struct {
	status int
	body   string
}

func call(t *testing.T, ts *httptest.Server, method, path, body string) response {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, body: string(data)}
}
