package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Spot-Canvas/gameledger/internal/store"
)

const (
	// StreamName is the JetStream stream name for inbound transactions.
	StreamName = "GAMELEDGER_TRANSACTIONS"
	// SubjectPrefix is the NATS subject prefix for transaction events.
	SubjectPrefix = "gameledger.transactions."
	// SubjectWildcard subscribes to all transaction subjects.
	SubjectWildcard = "gameledger.transactions.>"
	// ConsumerName is the durable consumer name.
	ConsumerName = "gameledger-transaction-consumer"
)

// Applier records a transaction and its optional credit at most once.
type Applier interface {
	ApplyTransaction(ctx context.Context, txn string, amount float64, credit *store.ScoreCredit) (bool, error)
}

// Invalidator is notified when an applied credit changes the leaderboard.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Consumer subscribes to transaction events via NATS JetStream.
type Consumer struct {
	nc     *nats.Conn
	ledger Applier
	board  Invalidator
	logger zerolog.Logger
}

// NewConsumer creates a new NATS transaction consumer. board may be nil.
func NewConsumer(nc *nats.Conn, ledger Applier, board Invalidator) *Consumer {
	return &Consumer{
		nc:     nc,
		ledger: ledger,
		board:  board,
		logger: log.With().Str("component", "ingest").Logger(),
	}
}

// Start begins consuming transaction events. Blocks until context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	js, err := jetstream.New(c.nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectWildcard},
		Storage:  jetstream.FileStorage,
		MaxBytes: 100 * 1024 * 1024, // 100MB
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	c.logger.Info().Msg("started consuming transaction events from NATS JetStream")

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if err := c.handle(ctx, msg.Subject(), msg.Data()); err != nil {
			if isPermanent(err) {
				c.logger.Warn().Err(err).Str("subject", msg.Subject()).
					Msg("rejecting transaction event")
				msg.Term()
				return
			}
			c.logger.Error().Err(err).Str("subject", msg.Subject()).
				Msg("failed to handle transaction event")
			// NAK for redelivery on DB errors
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	c.logger.Info().Msg("stopped consuming transaction events")
	return nil
}

// permanentError marks a message that redelivery cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

func (c *Consumer) handle(ctx context.Context, subject string, data []byte) error {
	var event TransactionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return permanentError{fmt.Errorf("unmarshal transaction event: %w", err)}
	}
	if err := event.Validate(); err != nil {
		return permanentError{fmt.Errorf("invalid transaction event %q: %w", event.Txn, err)}
	}

	credit := event.Credit()
	applied, err := c.ledger.ApplyTransaction(ctx, event.Txn, event.Amount, credit)
	if err != nil {
		return fmt.Errorf("apply transaction: %w", err)
	}

	if !applied {
		c.logger.Debug().Str("txn", event.Txn).Msg("duplicate transaction, skipped")
		return nil
	}

	logEvt := c.logger.Info().
		Str("txn", event.Txn).
		Str("subject", subject).
		Float64("amount", event.Amount)
	if credit != nil {
		logEvt = logEvt.Str("userid", credit.UserID).Int64("score", credit.Score)
		if c.board != nil {
			if err := c.board.Invalidate(context.WithoutCancel(ctx)); err != nil {
				c.logger.Warn().Err(err).Msg("failed to invalidate leaderboard cache")
			}
		}
	}
	logEvt.Msg("applied transaction")

	return nil
}

// ConnectNATS connects to NATS, retrying with backoff until ctx is cancelled.
func ConnectNATS(ctx context.Context, urls string, credsFile, creds string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("gameledger"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	// Add credentials if configured
	if creds != "" {
		opt, err := credsOption(creds)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	} else if credsFile != "" {
		opts = append(opts, nats.UserCredentials(credsFile))
	}

	backoff := 100 * time.Millisecond
	maxBackoff := 30 * time.Second

	for attempt := 1; ; attempt++ {
		nc, err := nats.Connect(urls, opts...)
		if err == nil {
			log.Info().Str("url", nc.ConnectedUrl()).Int("attempt", attempt).Msg("connected to NATS")
			return nc, nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
			Msg("failed to connect to NATS, retrying...")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to NATS: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// credsOption authenticates with the JWT and seed of an inline creds file,
// so nothing touches disk and reconnects reuse the same material.
func credsOption(creds string) (nats.Option, error) {
	jwt, err := nkeys.ParseDecoratedJWT([]byte(creds))
	if err != nil {
		return nil, fmt.Errorf("parse credentials JWT: %w", err)
	}
	kp, err := nkeys.ParseDecoratedUserNKey([]byte(creds))
	if err != nil {
		return nil, fmt.Errorf("parse credentials seed: %w", err)
	}
	seed, err := kp.Seed()
	if err != nil {
		return nil, fmt.Errorf("read credentials seed: %w", err)
	}
	return nats.UserJWTAndSeed(jwt, string(seed)), nil
}
