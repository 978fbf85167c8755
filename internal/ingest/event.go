package ingest

import (
	"github.com/Spot-Canvas/gameledger/internal/store"
	"github.com/Spot-Canvas/gameledger/internal/validation"
)

// TransactionEvent is the JSON structure for payment/transaction events
// received via NATS. A score credit is applied only when UserID is set.
type TransactionEvent struct {
	Txn    string  `json:"txn" validate:"required,max=255"`
	Amount float64 `json:"amount" validate:"required"`

	// Optional score credit (applied once together with the transaction)
	UserID string `json:"userid,omitempty" validate:"required_with=Score,max=255"`
	Score  int64  `json:"score,omitempty" validate:"required_with=UserID,gte=0"`
}

// Validate checks that the event has all required fields and valid values.
func (e *TransactionEvent) Validate() error {
	return validation.Struct(e)
}

// Credit returns the score credit carried by the event, or nil.
func (e *TransactionEvent) Credit() *store.ScoreCredit {
	if e.UserID == "" {
		return nil
	}
	return &store.ScoreCredit{UserID: e.UserID, Score: e.Score}
}
