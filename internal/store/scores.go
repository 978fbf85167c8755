package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spot-Canvas/gameledger/internal/domain"
)

// scoreLockNamespace is the first key of the advisory lock pair that
// serializes score mutations per user.
const scoreLockNamespace int32 = 7301

// querier is satisfied by both pooled connections and transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// lockUserScores blocks until the calling transaction holds the score lock
// for userID. The lock is released at commit or rollback.
func lockUserScores(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx,
		"SELECT pg_advisory_xact_lock($1, hashtext($2))", scoreLockNamespace, userID,
	); err != nil {
		return fmt.Errorf("lock user scores: %w", err)
	}
	return nil
}

func insertScore(ctx context.Context, tx pgx.Tx, userID string, delta int64) error {
	if _, err := tx.Exec(ctx,
		"INSERT INTO ledger_scores (userid, score) VALUES ($1, $2)", userID, delta,
	); err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

func totalScore(ctx context.Context, q querier, userID string) (int64, error) {
	var total int64
	err := q.QueryRow(ctx,
		"SELECT COALESCE(SUM(score), 0)::BIGINT FROM ledger_scores WHERE userid = $1", userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum scores: %w", err)
	}
	return total, nil
}

// RecordScore appends a score entry. A negative delta is a deduction.
func (r *Repository) RecordScore(ctx context.Context, userID string, delta int64) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockUserScores(ctx, tx, userID); err != nil {
			return err
		}
		return insertScore(ctx, tx, userID, delta)
	})
}

// ReduceScoreIfSufficient deducts amount from the user's total score when the
// total covers it, otherwise returns domain.ErrInsufficientBalance. The check
// and the deduction run under the user's score lock, so concurrent reductions
// cannot jointly overdraw.
func (r *Repository) ReduceScoreIfSufficient(ctx context.Context, userID string, amount int64) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockUserScores(ctx, tx, userID); err != nil {
			return err
		}

		total, err := totalScore(ctx, tx, userID)
		if err != nil {
			return err
		}
		if total < amount {
			return domain.ErrInsufficientBalance
		}

		return insertScore(ctx, tx, userID, -amount)
	})
}

// TotalScore returns the sum of all score entries for a user (0 if none).
func (r *Repository) TotalScore(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		var err error
		total, err = totalScore(ctx, conn, userID)
		return err
	})
	return total, err
}

// FetchScores returns score entries in insertion order. An empty userID
// returns the entries of every user.
func (r *Repository) FetchScores(ctx context.Context, userID string) ([]domain.ScoreEntry, error) {
	query := "SELECT userid, score FROM ledger_scores ORDER BY id"
	var args []any
	if userID != "" {
		query = "SELECT userid, score FROM ledger_scores WHERE userid = $1 ORDER BY id"
		args = append(args, userID)
	}

	scores := []domain.ScoreEntry{}
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("fetch scores: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var s domain.ScoreEntry
			if err := rows.Scan(&s.UserID, &s.Score); err != nil {
				return fmt.Errorf("scan score: %w", err)
			}
			scores = append(scores, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// ClampLeaderboardLimit bounds limit to [1, domain.MaxLeaderboardSize];
// non-positive values select the maximum.
func ClampLeaderboardLimit(limit int) int {
	if limit <= 0 || limit > domain.MaxLeaderboardSize {
		return domain.MaxLeaderboardSize
	}
	return limit
}

// TopUsers ranks users by aggregate score, highest first, with ties broken
// by ascending userid.
func (r *Repository) TopUsers(ctx context.Context, limit int) ([]domain.UserScore, error) {
	limit = ClampLeaderboardLimit(limit)

	board := make([]domain.UserScore, 0, limit)
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT userid, SUM(score)::BIGINT AS total_score
			FROM ledger_scores
			GROUP BY userid
			ORDER BY total_score DESC, userid ASC
			LIMIT $1
		`, limit)
		if err != nil {
			return fmt.Errorf("top users: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var us domain.UserScore
			if err := rows.Scan(&us.UserID, &us.TotalScore); err != nil {
				return fmt.Errorf("scan top user: %w", err)
			}
			board = append(board, us)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}
