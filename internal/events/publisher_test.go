package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
)

func TestKindSubject(t *testing.T) {
	require.Equal(t, "gameledger.events.score.reduced", KindScoreReduced.Subject())
	require.Equal(t, "gameledger.events.transactions.cleared", KindTransactionsCleared.Subject())
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent(KindScoreRecorded, map[string]any{"userid": "u1", "score": 50})
	require.NoError(t, err)

	_, err = uuid.FromString(event.ID)
	require.NoError(t, err)
	require.Equal(t, KindScoreRecorded, event.Kind)
	require.False(t, event.OccurredAt.IsZero())
	require.JSONEq(t, `{"userid":"u1","score":50}`, string(event.Data))

	other, err := NewEvent(KindScoreRecorded, nil)
	require.NoError(t, err)
	require.NotEqual(t, event.ID, other.ID)
}

func TestEventEnvelopeJSON(t *testing.T) {
	event, err := NewEvent(KindTransactionRecorded, map[string]any{"txn": "tx1"})
	require.NoError(t, err)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "transaction.recorded", decoded["kind"])
	require.Equal(t, map[string]any{"txn": "tx1"}, decoded["data"])
}

func TestNilPublisherDropsEvents(t *testing.T) {
	var p *Publisher
	require.NoError(t, p.Publish(context.Background(), KindUserGranted, struct{}{}))
}
