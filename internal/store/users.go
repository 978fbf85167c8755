package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spot-Canvas/gameledger/internal/domain"
)

const userColumns = `userid, wallet, powerup1, powerup2, powerup3, powerup4, powerup5, powerup6,
	created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	p := &u.Powerups
	err := row.Scan(&u.UserID, &u.Wallet, &p[0], &p[1], &p[2], &p[3], &p[4], &p[5],
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUserAndGrant creates the user if missing. An existing user has the
// wallet overwritten with wallet and the powerup deltas added element-wise.
func (r *Repository) UpsertUserAndGrant(ctx context.Context, userID string, wallet int64, deltas domain.Powerups) (*domain.User, error) {
	var user *domain.User
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO ledger_users (userid, wallet, powerup1, powerup2, powerup3, powerup4, powerup5, powerup6)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (userid) DO UPDATE SET
				wallet = EXCLUDED.wallet,
				powerup1 = ledger_users.powerup1 + EXCLUDED.powerup1,
				powerup2 = ledger_users.powerup2 + EXCLUDED.powerup2,
				powerup3 = ledger_users.powerup3 + EXCLUDED.powerup3,
				powerup4 = ledger_users.powerup4 + EXCLUDED.powerup4,
				powerup5 = ledger_users.powerup5 + EXCLUDED.powerup5,
				powerup6 = ledger_users.powerup6 + EXCLUDED.powerup6,
				updated_at = NOW()
			RETURNING `+userColumns,
			userID, wallet, deltas[0], deltas[1], deltas[2], deltas[3], deltas[4], deltas[5],
		)

		var err error
		user, err = scanUser(row)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return nil
	})
	return user, err
}

// ConsumePowerups subtracts amounts element-wise from the user's powerups.
// Counters are clamped at zero. Returns domain.ErrNotFound for an unknown user.
func (r *Repository) ConsumePowerups(ctx context.Context, userID string, amounts domain.Powerups) error {
	return r.withConn(ctx, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE ledger_users SET
				powerup1 = GREATEST(powerup1 - $1, 0),
				powerup2 = GREATEST(powerup2 - $2, 0),
				powerup3 = GREATEST(powerup3 - $3, 0),
				powerup4 = GREATEST(powerup4 - $4, 0),
				powerup5 = GREATEST(powerup5 - $5, 0),
				powerup6 = GREATEST(powerup6 - $6, 0),
				updated_at = NOW()
			WHERE userid = $7
		`, amounts[0], amounts[1], amounts[2], amounts[3], amounts[4], amounts[5], userID)
		if err != nil {
			return fmt.Errorf("consume powerups: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// GetUser returns the user with the given id, or domain.ErrNotFound.
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user *domain.User
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		var err error
		user, err = scanUser(conn.QueryRow(ctx,
			"SELECT "+userColumns+" FROM ledger_users WHERE userid = $1", userID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		return nil
	})
	return user, err
}

// GetPowerupsPrefix returns the first three powerup counters of a user.
func (r *Repository) GetPowerupsPrefix(ctx context.Context, userID string) (*domain.PowerupPrefix, error) {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefix := user.Powerups.Prefix()
	return &prefix, nil
}
