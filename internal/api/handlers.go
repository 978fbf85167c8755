package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Spot-Canvas/gameledger/internal/domain"
	"github.com/Spot-Canvas/gameledger/internal/events"
	"github.com/Spot-Canvas/gameledger/internal/store"
	"github.com/Spot-Canvas/gameledger/internal/validation"
)

const maxTransactionListLimit = 200

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Check database
	if err := s.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "database unreachable",
		})
		return
	}

	// Check NATS
	if s.nc != nil && !s.nc.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "NATS disconnected",
		})
		return
	}

	// Check Redis
	if err := s.board.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "cache unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.repo.FetchScores(r.Context(), "")
	if err != nil {
		s.storeError(w, r, err, "failed to fetch scores")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handleUserScores(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathParam(w, r, "userid")
	if !ok {
		return
	}
	scores, err := s.repo.FetchScores(r.Context(), userID)
	if err != nil {
		s.storeError(w, r, err, "failed to fetch scores")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handleAddScore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userid")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing required field: userid")
		return
	}
	score, err := strconv.ParseInt(q.Get("score"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid score: must be an integer")
		return
	}

	if err := s.repo.RecordScore(r.Context(), userID, score); err != nil {
		s.storeError(w, r, err, "failed to add score")
		return
	}

	s.invalidateLeaderboard(r.Context())
	s.publish(r.Context(), events.KindScoreRecorded, map[string]any{"userid": userID, "score": score})
	writeMessage(w, "Score added successfully")
}

func (s *Server) handleReduceScore(w http.ResponseWriter, r *http.Request) {
	var req ReduceScoreRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := s.repo.ReduceScoreIfSufficient(r.Context(), req.UserID, req.Score)
	if errors.Is(err, domain.ErrInsufficientBalance) {
		writeError(w, http.StatusBadRequest, "Not enough score to reduce")
		return
	}
	if err != nil {
		s.storeError(w, r, err, "failed to reduce score")
		return
	}

	s.invalidateLeaderboard(r.Context())
	s.publish(r.Context(), events.KindScoreReduced, map[string]any{"userid": req.UserID, "score": req.Score})
	writeMessage(w, "Score reduced successfully")
}

func (s *Server) handleTopUsers(w http.ResponseWriter, r *http.Request) {
	limit := domain.MaxLeaderboardSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > domain.MaxLeaderboardSize {
			writeError(w, http.StatusBadRequest, "invalid limit: must be between 1 and 10")
			return
		}
		limit = n
	}

	board, err := s.leaderboard(r.Context())
	if err != nil {
		s.storeError(w, r, err, "failed to fetch top users")
		return
	}
	if len(board) > limit {
		board = board[:limit]
	}
	writeJSON(w, http.StatusOK, board)
}

// leaderboard returns the full top-N board, from cache when it is warm.
func (s *Server) leaderboard(ctx context.Context) ([]domain.UserScore, error) {
	board, ok, err := s.board.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("leaderboard cache read failed")
	}
	if ok {
		if board == nil {
			board = []domain.UserScore{}
		}
		return board, nil
	}

	// The generation must be read before the query so a mutation committed
	// in between discards this fill.
	gen, genErr := s.board.Generation(ctx)
	if genErr != nil {
		log.Warn().Err(genErr).Msg("leaderboard cache generation read failed")
	}

	board, err = s.repo.TopUsers(ctx, domain.MaxLeaderboardSize)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		if _, err := s.board.Set(ctx, gen, board); err != nil {
			log.Warn().Err(err).Msg("leaderboard cache write failed")
		}
	}
	return board, nil
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	powerups, err := domain.PowerupsFromSlice(req.Powerups)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.repo.UpsertUserAndGrant(r.Context(), req.UserID, *req.Wallet, powerups)
	if err != nil {
		s.storeError(w, r, err, "failed to add user")
		return
	}

	s.publish(r.Context(), events.KindUserGranted, user)
	writeJSON(w, http.StatusOK, map[string]string{"user_id": user.UserID})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathParam(w, r, "userid")
	if !ok {
		return
	}
	user, err := s.repo.GetUser(r.Context(), userID)
	if err != nil {
		s.storeError(w, r, err, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleReducePowerups(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathParam(w, r, "userid")
	if !ok {
		return
	}

	var req ReducePowerupsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	amounts, err := domain.PowerupsFromSlice(req.Powerups)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.repo.ConsumePowerups(r.Context(), userID, amounts); err != nil {
		s.storeError(w, r, err, "failed to reduce powerups")
		return
	}

	s.publish(r.Context(), events.KindPowerupsConsumed, map[string]any{"userid": userID, "powerups": amounts})
	writeMessage(w, "Powerups reduced successfully")
}

func (s *Server) handleGetPowerups(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathParam(w, r, "userid")
	if !ok {
		return
	}
	prefix, err := s.repo.GetPowerupsPrefix(r.Context(), userID)
	if err != nil {
		s.storeError(w, r, err, "failed to get powerups")
		return
	}
	writeJSON(w, http.StatusOK, prefix)
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req AddTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing transaction data")
		return
	}

	err := s.repo.RecordTransaction(r.Context(), req.Txn, req.Amount)
	if errors.Is(err, domain.ErrTransactionExists) {
		writeError(w, http.StatusConflict, "Transaction already exists")
		return
	}
	if err != nil {
		s.storeError(w, r, err, "failed to add transaction")
		return
	}

	s.publish(r.Context(), events.KindTransactionRecorded, req)
	writeMessage(w, "Transaction added successfully")
}

func (s *Server) handleCheckTransaction(w http.ResponseWriter, r *http.Request) {
	txn, ok := pathParam(w, r, "txn")
	if !ok {
		return
	}
	exists, err := s.repo.TransactionExists(r.Context(), txn)
	if err != nil {
		s.storeError(w, r, err, "failed to check transaction")
		return
	}

	answer := "N"
	if exists {
		answer = "Y"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(answer))
}

func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request) {
	removed, err := s.repo.ClearTransactions(r.Context())
	if err != nil {
		s.storeError(w, r, err, "failed to clear transactions")
		return
	}

	log.Info().Int64("removed", removed).Msg("cleared transactions")
	s.publish(r.Context(), events.KindTransactionsCleared, map[string]int64{"removed": removed})
	writeMessage(w, "All transactions cleared successfully")
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TransactionFilter{Cursor: q.Get("cursor")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTransactionListLimit {
			writeError(w, http.StatusBadRequest, "invalid limit: must be between 1 and 200")
			return
		}
		filter.Limit = n
	}

	page, err := s.repo.ListTransactions(r.Context(), filter)
	if errors.Is(err, domain.ErrInvalidCursor) {
		writeError(w, http.StatusBadRequest, "invalid cursor")
		return
	}
	if err != nil {
		s.storeError(w, r, err, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// storeError maps a repository error to a response. Unexpected errors are
// logged and reported with the generic msg.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, domain.ErrUnavailable):
		writeError(w, http.StatusInternalServerError, "Database connection failed")
	default:
		writeError(w, http.StatusInternalServerError, msg)
	}

	log.Error().Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg(msg)
}

// invalidateLeaderboard runs after the mutation has committed, so it must not
// be skipped when the client has already gone away.
func (s *Server) invalidateLeaderboard(ctx context.Context) {
	if err := s.board.Invalidate(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate leaderboard cache")
	}
}

// publish emits an economy event. The mutation is already committed, so a
// failed publish is logged and otherwise ignored.
func (s *Server) publish(ctx context.Context, kind events.Kind, data any) {
	if err := s.events.Publish(ctx, kind, data); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to publish event")
	}
}
