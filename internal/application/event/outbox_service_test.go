package event

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeOutboxStore struct {
	entries map[uuid.UUID]*shared.OutboxEntry
	err     error
}

func newFakeOutboxStore(entries ...*shared.OutboxEntry) *fakeOutboxStore {
	s := &fakeOutboxStore{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s
}

func (s *fakeOutboxStore) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	if e, ok := s.entries[id]; ok {
		return e, nil
	}
	return nil, shared.NewNotFoundError("outbox entry %s not found", id)
}

func (s *fakeOutboxStore) RequeueDead(ctx context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	var n int64
	for _, e := range s.entries {
		if e.ResetForRetry() == nil {
			n++
		}
	}
	return n, nil
}

func (s *fakeOutboxStore) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range s.entries {
		counts[e.Status]++
	}
	return counts, nil
}

type countingDispatcher struct{ triggers int }

func (d *countingDispatcher) Trigger() { d.triggers++ }

func entryWithStatus(status shared.OutboxStatus) *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     "ProductUpdated",
		AggregateID:   7,
		AggregateType: "Product",
		Status:        status,
		MaxRetries:    shared.DefaultMaxRetries,
		RetryCount:    shared.DefaultMaxRetries,
		LastError:     "search index is unavailable",
	}
}

func TestOutboxService_GetStats(t *testing.T) {
	store := newFakeOutboxStore(
		entryWithStatus(shared.OutboxStatusPending),
		entryWithStatus(shared.OutboxStatusSent),
		entryWithStatus(shared.OutboxStatusSent),
		entryWithStatus(shared.OutboxStatusDead),
	)
	svc := NewOutboxService(store, nil, zaptest.NewLogger(t))

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutboxStatsDTO{Pending: 1, Sent: 2, Dead: 1, Total: 4}, *stats)

	store.err = errors.New("connection reset")
	_, err = svc.GetStats(context.Background())
	assert.Error(t, err)
}

func TestOutboxService_GetEntry(t *testing.T) {
	dead := entryWithStatus(shared.OutboxStatusDead)
	svc := NewOutboxService(newFakeOutboxStore(dead), nil, nil)

	dto, err := svc.GetEntry(context.Background(), dead.ID)
	require.NoError(t, err)
	assert.Equal(t, "DEAD", dto.Status)
	assert.Equal(t, int64(7), dto.AggregateID)
	assert.Equal(t, "search index is unavailable", dto.LastError)

	_, err = svc.GetEntry(context.Background(), uuid.New())
	assert.True(t, shared.IsNotFound(err))
}

func TestOutboxService_RetryDeadEntries(t *testing.T) {
	dead := entryWithStatus(shared.OutboxStatusDead)
	sent := entryWithStatus(shared.OutboxStatusSent)
	store := newFakeOutboxStore(dead, sent)
	dispatcher := &countingDispatcher{}
	svc := NewOutboxService(store, dispatcher, zaptest.NewLogger(t))

	res, err := svc.RetryDeadEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Requeued)
	assert.Equal(t, 1, dispatcher.triggers)
	assert.Equal(t, shared.OutboxStatusPending, dead.Status)
	assert.Zero(t, dead.RetryCount)
	assert.Equal(t, shared.OutboxStatusSent, sent.Status)

	res, err = svc.RetryDeadEntries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Requeued)
	assert.Equal(t, 1, dispatcher.triggers, "nothing requeued, nothing to wake")

	store.err = errors.New("connection reset")
	_, err = svc.RetryDeadEntries(context.Background())
	assert.Error(t, err)
}
