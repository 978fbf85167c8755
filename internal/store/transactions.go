package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spot-Canvas/gameledger/internal/domain"
)

// ScoreCredit is a score grant applied together with a transaction.
type ScoreCredit struct {
	UserID string
	Score  int64
}

// TransactionExists reports whether txn has been recorded.
func (r *Repository) TransactionExists(ctx context.Context, txn string) (bool, error) {
	var exists bool
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM ledger_transactions WHERE txn = $1)", txn,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check transaction: %w", err)
		}
		return nil
	})
	return exists, err
}

// RecordTransaction records txn once. A second call with the same txn returns
// domain.ErrTransactionExists and leaves the ledger unchanged.
func (r *Repository) RecordTransaction(ctx context.Context, txn string, amount float64) error {
	applied, err := r.ApplyTransaction(ctx, txn, amount, nil)
	if err != nil {
		return err
	}
	if !applied {
		return domain.ErrTransactionExists
	}
	return nil
}

// ApplyTransaction inserts txn with ON CONFLICT DO NOTHING and, only when the
// row is new, appends the optional score credit in the same database
// transaction. Returns true if the transaction was applied.
func (r *Repository) ApplyTransaction(ctx context.Context, txn string, amount float64, credit *ScoreCredit) (bool, error) {
	var applied bool
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO ledger_transactions (txn, amount) VALUES ($1, $2)
			ON CONFLICT (txn) DO NOTHING
		`, txn, amount)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		applied = tag.RowsAffected() > 0
		if !applied || credit == nil {
			return nil
		}

		if err := lockUserScores(ctx, tx, credit.UserID); err != nil {
			return err
		}
		return insertScore(ctx, tx, credit.UserID, credit.Score)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ClearTransactions deletes every recorded transaction and returns the count.
// Intended for test and reset workflows only.
func (r *Repository) ClearTransactions(ctx context.Context) (int64, error) {
	var removed int64
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, "DELETE FROM ledger_transactions")
		if err != nil {
			return fmt.Errorf("clear transactions: %w", err)
		}
		removed = tag.RowsAffected()
		return nil
	})
	return removed, err
}

// TransactionFilter holds pagination parameters for listing transactions.
type TransactionFilter struct {
	Cursor string
	Limit  int
}

// TransactionPage contains paginated transaction results.
type TransactionPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

// ListTransactions returns recorded transactions, newest first, with
// cursor-based pagination.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) (*TransactionPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	var conditions []string
	var args []interface{}
	argIdx := 1

	// Cursor is base64-encoded "created_at|txn" of the last row served
	if filter.Cursor != "" {
		cursorTS, cursorTxn, err := decodeCursor(filter.Cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCursor, err)
		}
		conditions = append(conditions, fmt.Sprintf(
			"(created_at, txn) < ($%d, $%d)", argIdx, argIdx+1,
		))
		args = append(args, cursorTS, cursorTxn)
		argIdx += 2
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT txn, amount, created_at FROM ledger_transactions
		%s
		ORDER BY created_at DESC, txn DESC
		LIMIT $%d
	`, where, argIdx)
	args = append(args, filter.Limit+1) // fetch one extra to check if there's a next page

	var txns []domain.Transaction
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t domain.Transaction
			if err := rows.Scan(&t.Txn, &t.Amount, &t.CreatedAt); err != nil {
				return fmt.Errorf("scan transaction: %w", err)
			}
			txns = append(txns, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	page := &TransactionPage{}
	if len(txns) > filter.Limit {
		txns = txns[:filter.Limit]
		last := txns[len(txns)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.Txn)
	}
	page.Transactions = txns
	if page.Transactions == nil {
		page.Transactions = []domain.Transaction{}
	}

	return page, nil
}

func encodeCursor(ts time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", ts.Format(time.RFC3339Nano), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode base64: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse timestamp: %w", err)
	}
	return ts, parts[1], nil
}
