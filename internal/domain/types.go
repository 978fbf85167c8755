package domain

import (
	"fmt"
	"time"
)

// PowerupSlots is the number of powerup counters every user carries.
const PowerupSlots = 6

// MaxLeaderboardSize caps the number of entries returned by a leaderboard query.
const MaxLeaderboardSize = 10

// Powerups is the fixed-size vector of consumable powerup counters.
type Powerups [PowerupSlots]int64

// PowerupsFromSlice converts a decoded JSON array into a Powerups vector.
// The slice must contain exactly PowerupSlots elements.
func PowerupsFromSlice(values []int64) (Powerups, error) {
	var p Powerups
	if len(values) != PowerupSlots {
		return p, fmt.Errorf("expected %d powerups, got %d", PowerupSlots, len(values))
	}
	copy(p[:], values)
	return p, nil
}

// Prefix returns the first three powerup counters.
func (p Powerups) Prefix() PowerupPrefix {
	return PowerupPrefix{Powerup1: p[0], Powerup2: p[1], Powerup3: p[2]}
}

// User is a player's wallet and powerup inventory.
type User struct {
	UserID    string    `json:"userid"`
	Wallet    int64     `json:"wallet"`
	Powerups  Powerups  `json:"powerups"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PowerupPrefix is the public view of the first three powerups.
type PowerupPrefix struct {
	Powerup1 int64 `json:"powerup1"`
	Powerup2 int64 `json:"powerup2"`
	Powerup3 int64 `json:"powerup3"`
}

// ScoreEntry is a single score grant (positive) or deduction (negative).
type ScoreEntry struct {
	UserID string `json:"userid"`
	Score  int64  `json:"score"`
}

// UserScore is a leaderboard row: a user's aggregate score.
type UserScore struct {
	UserID     string `json:"userid"`
	TotalScore int64  `json:"total_score"`
}

// Transaction is an external payment or event reference applied at most once.
type Transaction struct {
	Txn       string    `json:"txn"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
