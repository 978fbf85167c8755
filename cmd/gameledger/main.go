package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Spot-Canvas/gameledger/internal/api"
	"github.com/Spot-Canvas/gameledger/internal/cache"
	"github.com/Spot-Canvas/gameledger/internal/config"
	"github.com/Spot-Canvas/gameledger/internal/events"
	"github.com/Spot-Canvas/gameledger/internal/ingest"
	"github.com/Spot-Canvas/gameledger/internal/store"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Environment != "development" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Msg("starting gameledger service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize database
	dbCfg := store.DefaultDBConfig(cfg.DatabaseURL)
	dbCfg.MaxConns = cfg.DBMaxConns
	dbCfg.AcquireTimeout = cfg.DBAcquireTimeout
	repo, err := store.NewRepository(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Int32("max_conns", dbCfg.MaxConns).Msg("connected to PostgreSQL")

	// Run migrations
	if err := store.RunMigrations(ctx, repo.Pool()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("migrations complete")

	// Leaderboard cache (optional)
	var board *cache.Leaderboard
	if cfg.RedisEnabled() {
		cacheCfg := cache.ConfigDefaults()
		cacheCfg.Addr = cfg.RedisAddr
		cacheCfg.Password = cfg.RedisPassword
		cacheCfg.DB = cfg.RedisDB
		cacheCfg.TTL = cfg.LeaderboardTTL
		board, err = cache.NewLeaderboard(cacheCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create leaderboard cache")
		}
		defer board.Close()

		if err := board.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, leaderboard served from database until it recovers")
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
		}
	}

	// NATS (optional): transaction ingestion and economy events
	var nc *nats.Conn
	var publisher *events.Publisher
	if cfg.NATSEnabled() {
		nc, err = ingest.ConnectNATS(ctx, cfg.NATSURLs, cfg.NATSCredsFile, cfg.NATSCreds)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer nc.Close()

		publisher, err = events.NewPublisher(ctx, nc)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}

		consumer := ingest.NewConsumer(nc, repo, board)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("NATS consumer error")
			}
		}()
	} else {
		log.Info().Msg("NATS disabled, skipping transaction ingestion and events")
	}

	// Start HTTP server
	srv := api.NewServer(repo, nc,
		api.WithLeaderboardCache(board),
		api.WithPublisher(publisher),
		api.WithCORSOrigins(cfg.CORSOrigins()),
	)
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Drain in-flight requests before the pool and connections close.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	cancel()

	log.Info().Msg("shutdown complete")
}
