// Package cache keeps the top-N leaderboard in Redis so that repeated
// leaderboard reads skip the aggregate query.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Spot-Canvas/gameledger/internal/domain"
)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL bounds how stale a cached leaderboard may get
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns default Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		TTL:       30 * time.Second,
		KeyPrefix: "gameledger",
	}
}

// Leaderboard caches the full top-N list under a single key. A generation
// counter, bumped on every invalidation, keeps a fill computed before a score
// mutation from landing after it. All methods are safe to call on a nil
// *Leaderboard, which behaves as an always-empty cache.
type Leaderboard struct {
	client *redis.Client
	ttl    time.Duration
	key    string
	genKey string
	logger zerolog.Logger
}

var errStaleGeneration = errors.New("leaderboard invalidated since generation was read")

// NewLeaderboard creates a Redis-backed leaderboard cache.
func NewLeaderboard(cfg Config) (*Leaderboard, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = ConfigDefaults().TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = ConfigDefaults().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Leaderboard{
		client: client,
		ttl:    cfg.TTL,
		key:    leaderboardKey(cfg.KeyPrefix),
		genKey: generationKey(cfg.KeyPrefix),
		logger: log.With().Str("component", "leaderboard-cache").Logger(),
	}, nil
}

func leaderboardKey(prefix string) string {
	return prefix + ":leaderboard:top"
}

func generationKey(prefix string) string {
	return prefix + ":leaderboard:gen"
}

// Ping checks the Redis connection.
func (l *Leaderboard) Ping(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *Leaderboard) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}

// Get returns the cached leaderboard. The boolean is false on a cache miss.
func (l *Leaderboard) Get(ctx context.Context) ([]domain.UserScore, bool, error) {
	if l == nil {
		return nil, false, nil
	}

	data, err := l.client.Get(ctx, l.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get leaderboard: %w", err)
	}

	var board []domain.UserScore
	if err := json.Unmarshal(data, &board); err != nil {
		// Corrupt entry; drop it and treat as a miss.
		l.logger.Warn().Err(err).Msg("discarding undecodable leaderboard")
		_ = l.client.Del(ctx, l.key).Err()
		return nil, false, nil
	}
	return board, true, nil
}

// Generation returns the current invalidation generation. Read it before
// loading the board from the database and hand it to Set.
func (l *Leaderboard) Generation(ctx context.Context) (int64, error) {
	if l == nil {
		return 0, nil
	}

	gen, err := l.client.Get(ctx, l.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get leaderboard generation: %w", err)
	}
	return gen, nil
}

// Set stores the leaderboard for the configured TTL, unless it was
// invalidated after gen was read. Reports whether the board was stored.
func (l *Leaderboard) Set(ctx context.Context, gen int64, board []domain.UserScore) (bool, error) {
	if l == nil {
		return false, nil
	}

	data, err := json.Marshal(board)
	if err != nil {
		return false, fmt.Errorf("encode leaderboard: %w", err)
	}

	err = l.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, l.genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, l.key, data, l.ttl)
			return nil
		})
		return err
	}, l.genKey)
	if errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr) {
		l.logger.Debug().Int64("generation", gen).Msg("skipping stale leaderboard fill")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache leaderboard: %w", err)
	}
	return true, nil
}

// Invalidate drops the cached leaderboard after a score mutation and bumps
// the generation so in-flight fills are discarded.
func (l *Leaderboard) Invalidate(ctx context.Context) error {
	if l == nil {
		return nil
	}
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, l.genKey)
		pipe.Del(ctx, l.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate leaderboard: %w", err)
	}
	return nil
}
