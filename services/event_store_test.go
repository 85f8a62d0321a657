package services

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/flashbots/noisyagg/protocol"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventStore(t *testing.T) {
	store := NewInMemoryEventStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	store.Emit(protocol.Event{Kind: protocol.EventBatchOpened, Time: now, BatchID: 1})
	store.Emit(protocol.Event{Kind: protocol.EventBatchOpened, Time: now, BatchID: 2})
	store.Emit(protocol.Event{Kind: protocol.EventDecryptionRequested, Time: now, BatchID: 1, RequestID: 1})
	store.Emit(protocol.Event{Kind: protocol.EventPaused, Time: now})

	all, err := store.Events(context.Background(), EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, e := range all {
		require.Equal(t, uint64(i+1), e.Seq)
	}
	require.NotEqual(t, all[0].ID, all[1].ID)

	batch1, err := store.Events(context.Background(), EventFilter{BatchID: 1})
	require.NoError(t, err)
	require.Len(t, batch1, 2)

	byRequest, err := store.Events(context.Background(), EventFilter{RequestID: 1})
	require.NoError(t, err)
	require.Len(t, byRequest, 1)
	require.Equal(t, protocol.EventDecryptionRequested, byRequest[0].Kind)

	opened, err := store.Events(context.Background(), EventFilter{Kind: protocol.EventBatchOpened, Limit: 1})
	require.NoError(t, err)
	require.Len(t, opened, 1)
	require.Equal(t, protocol.BatchID(1), opened[0].BatchID)

	// Returned events are copies.
	opened[0].BatchID = 99
	again, err := store.Events(context.Background(), EventFilter{Kind: protocol.EventBatchOpened, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, protocol.BatchID(1), again[0].BatchID)
}

func TestStoredEventJSON(t *testing.T) {
	result := uint64(22)
	stored := &StoredEvent{Seq: 3, Event: protocol.Event{
		Kind:      protocol.EventDecryptionCompleted,
		BatchID:   1,
		RequestID: 2,
		Result:    &result,
	}}

	data, err := json.Marshal(stored)
	require.NoError(t, err)
	require.Contains(t, string(data), `"kind":"decryption_completed"`)
	require.Contains(t, string(data), `"result":22`)
	require.NotContains(t, string(data), `"magnitude"`)
}

func TestEventsQueryTypesIDParameters(t *testing.T) {
	query, args := eventsQuery(EventFilter{BatchID: math.MaxInt32 + 1, RequestID: 7})
	require.Contains(t, query, "$1::BIGINT = 0 OR batch_id = $1::BIGINT")
	require.Contains(t, query, "$2::BIGINT = 0 OR request_id = $2::BIGINT")
	require.NotContains(t, query, "$1 = 0")
	require.NotContains(t, query, "$2 = 0")
	require.NotContains(t, query, "LIMIT")
	require.Equal(t, []any{int64(math.MaxInt32 + 1), int64(7), ""}, args)

	query, args = eventsQuery(EventFilter{Kind: protocol.EventPaused, Limit: 3})
	require.True(t, strings.HasSuffix(query, "LIMIT $4"))
	require.Equal(t, []any{int64(0), int64(0), string(protocol.EventPaused), 3}, args)
}

func TestPostgresConfigConnectionString(t *testing.T) {
	cfg := &PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "ledger"}
	require.Equal(t, "host=db port=5432 user=u password=p dbname=ledger sslmode=disable", cfg.ConnectionString())
}
