package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/Spot-Canvas/gameledger/internal/cache"
	"github.com/Spot-Canvas/gameledger/internal/domain"
	"github.com/Spot-Canvas/gameledger/internal/events"
	"github.com/Spot-Canvas/gameledger/internal/store"
)

// Store is the ledger storage used by the HTTP handlers.
type Store interface {
	Ping(ctx context.Context) error

	UpsertUserAndGrant(ctx context.Context, userID string, wallet int64, deltas domain.Powerups) (*domain.User, error)
	ConsumePowerups(ctx context.Context, userID string, amounts domain.Powerups) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetPowerupsPrefix(ctx context.Context, userID string) (*domain.PowerupPrefix, error)

	RecordScore(ctx context.Context, userID string, delta int64) error
	ReduceScoreIfSufficient(ctx context.Context, userID string, amount int64) error
	FetchScores(ctx context.Context, userID string) ([]domain.ScoreEntry, error)
	TopUsers(ctx context.Context, limit int) ([]domain.UserScore, error)

	TransactionExists(ctx context.Context, txn string) (bool, error)
	RecordTransaction(ctx context.Context, txn string, amount float64) error
	ClearTransactions(ctx context.Context) (int64, error)
	ListTransactions(ctx context.Context, filter store.TransactionFilter) (*store.TransactionPage, error)
}

var _ Store = (*store.Repository)(nil)

// Server holds the HTTP server dependencies.
type Server struct {
	repo        Store
	nc          *nats.Conn
	board       *cache.Leaderboard
	events      *events.Publisher
	corsOrigins []string
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithLeaderboardCache serves /top_users from the given cache when possible.
func WithLeaderboardCache(board *cache.Leaderboard) Option {
	return func(s *Server) { s.board = board }
}

// WithPublisher publishes an economy event after every successful mutation.
func WithPublisher(p *events.Publisher) Option {
	return func(s *Server) { s.events = p }
}

// WithCORSOrigins restricts the allowed CORS origins (default "*").
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// NewServer creates a new API server. nc may be nil when NATS is disabled.
func NewServer(repo Store, nc *nats.Conn, opts ...Option) *Server {
	s := &Server{repo: repo, nc: nc, corsOrigins: []string{"*"}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	// Health check
	r.Get("/health", s.handleHealth)

	// Scores and leaderboard
	r.Get("/scores", s.handleListScores)
	r.Get("/scores/{userid}", s.handleUserScores)
	r.Get("/add_score", s.handleAddScore)
	r.Post("/reduce_score", s.handleReduceScore)
	r.Get("/top_users", s.handleTopUsers)

	// Wallets and powerups
	r.Post("/add_user", s.handleAddUser)
	r.Get("/users/{userid}", s.handleGetUser)
	r.Post("/reduce_powerups/{userid}", s.handleReducePowerups)
	r.Get("/get_powerups/{userid}", s.handleGetPowerups)

	// Transactions
	r.Post("/add_transaction", s.handleAddTransaction)
	r.Get("/check_transaction/{txn}", s.handleCheckTransaction)
	r.Post("/clear_transactions", s.handleClearTransactions)
	r.Get("/transactions", s.handleListTransactions)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not Found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
