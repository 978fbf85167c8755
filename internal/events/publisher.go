package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// StreamName is the JetStream stream holding economy events.
	StreamName = "GAMELEDGER_EVENTS"
	// SubjectPrefix is the NATS subject prefix for economy events.
	SubjectPrefix = "gameledger.events."
	// SubjectWildcard matches every economy event subject.
	SubjectWildcard = "gameledger.events.>"
)

// Kind identifies what changed in the ledger.
type Kind string

const (
	KindUserGranted         Kind = "user.granted"
	KindPowerupsConsumed    Kind = "powerups.consumed"
	KindScoreRecorded       Kind = "score.recorded"
	KindScoreReduced        Kind = "score.reduced"
	KindTransactionRecorded Kind = "transaction.recorded"
	KindTransactionsCleared Kind = "transactions.cleared"
)

// Subject returns the NATS subject for events of this kind.
func (k Kind) Subject() string {
	return SubjectPrefix + string(k)
}

// Event is the envelope published for every ledger mutation.
type Event struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEvent wraps data in an envelope with a fresh id.
func NewEvent(kind Kind, data any) (*Event, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	return &Event{
		ID:         id.String(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// Publisher publishes economy events to JetStream. A nil *Publisher drops
// every event, which is how the service runs without NATS.
type Publisher struct {
	js     jetstream.JetStream
	logger zerolog.Logger
}

// NewPublisher creates the events stream if needed and returns a publisher.
func NewPublisher(ctx context.Context, nc *nats.Conn) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectWildcard},
		Storage:    jetstream.FileStorage,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}

	return &Publisher{
		js:     js,
		logger: log.With().Str("component", "events").Logger(),
	}, nil
}

// Publish sends an event of the given kind. The event id doubles as the
// JetStream message id so retried publishes are de-duplicated.
func (p *Publisher) Publish(ctx context.Context, kind Kind, data any) error {
	if p == nil {
		return nil
	}

	event, err := NewEvent(kind, data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if _, err := p.js.Publish(ctx, kind.Subject(), payload, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}

	p.logger.Debug().Str("kind", string(kind)).Str("event_id", event.ID).Msg("published event")
	return nil
}
