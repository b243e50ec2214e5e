package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until ctx ends
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) getCommitted() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64{}, r.committed...)
}

type fakeRateHandler struct {
	mu       sync.Mutex
	applied  []catalogapp.RateChange
	failures []error
}

func (h *fakeRateHandler) HandleRateChange(_ context.Context, change catalogapp.RateChange) (*catalogapp.RateChangeResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.failures) > 0 {
		err := h.failures[0]
		h.failures = h.failures[1:]
		return nil, err
	}
	h.applied = append(h.applied, change)
	return &catalogapp.RateChangeResult{Currency: change.Currency, Rate: change.Rate}, nil
}

func (h *fakeRateHandler) getApplied() []catalogapp.RateChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]catalogapp.RateChange{}, h.applied...)
}

func rateMessage(t *testing.T, offset int64, currency, rate string) kafka.Message {
	t.Helper()
	data, err := json.Marshal(catalogapp.RateChange{Currency: currency, Rate: decimal.RequireFromString(rate)})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(currency), Value: data}
}

func runConsumer(t *testing.T, reader *fakeReader, handler *fakeRateHandler) (context.CancelFunc, *RateConsumer) {
	t.Helper()
	consumer := NewRateConsumer(reader, handler, RateConsumerConfig{RetryDelay: time.Millisecond, MaxRetryDelay: 5 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.NoError(t, consumer.Run(ctx))
	}()
	return cancel, consumer
}

func TestRateConsumer_AppliesAndCommits(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		rateMessage(t, 1, "USD", "0.92"),
		rateMessage(t, 2, "GBP", "1.17"),
	}}
	handler := &fakeRateHandler{}

	cancel, consumer := runConsumer(t, reader, handler)
	require.Eventually(t, func() bool { return len(reader.getCommitted()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-consumer.Done()

	applied := handler.getApplied()
	require.Len(t, applied, 2)
	assert.Equal(t, "USD", applied[0].Currency)
	assert.True(t, applied[1].Rate.Equal(decimal.RequireFromString("1.17")))
	assert.Equal(t, []int64{1, 2}, reader.getCommitted())
}

func TestRateConsumer_SkipsMalformedAndInvalid(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Value: []byte("not json")},
		rateMessage(t, 2, "USD", "-1"),
		rateMessage(t, 3, "GBP", "1.17"),
	}}
	handler := &fakeRateHandler{failures: []error{shared.NewValidationError("rate must be positive")}}

	cancel, consumer := runConsumer(t, reader, handler)
	require.Eventually(t, func() bool { return len(reader.getCommitted()) == 3 }, time.Second, time.Millisecond)
	cancel()
	<-consumer.Done()

	applied := handler.getApplied()
	require.Len(t, applied, 1)
	assert.Equal(t, "GBP", applied[0].Currency)
}

func TestRateConsumer_RetriesTransientFailures(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{rateMessage(t, 1, "USD", "0.92")}}
	handler := &fakeRateHandler{failures: []error{errors.New("database is down"), errors.New("database is down")}}

	cancel, consumer := runConsumer(t, reader, handler)
	require.Eventually(t, func() bool { return len(reader.getCommitted()) == 1 }, time.Second, time.Millisecond)
	cancel()
	<-consumer.Done()

	assert.Len(t, handler.getApplied(), 1)
}

func TestRateConsumer_CancelDuringRetryDoesNotCommit(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{rateMessage(t, 1, "USD", "0.92")}}
	failures := make([]error, 1000)
	for i := range failures {
		failures[i] = errors.New("database is down")
	}
	handler := &fakeRateHandler{failures: failures}

	cancel, consumer := runConsumer(t, reader, handler)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-consumer.Done()

	assert.Empty(t, reader.getCommitted())
	require.NoError(t, consumer.Close())
	assert.True(t, reader.closed)
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestRatePublisher_Publish(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewRatePublisher(writer)

	change := catalogapp.RateChange{Currency: "USD", Rate: decimal.RequireFromString("0.92")}
	require.NoError(t, publisher.Publish(context.Background(), change))

	require.Len(t, writer.messages, 1)
	assert.Equal(t, "USD", string(writer.messages[0].Key))
	assert.JSONEq(t, `{"currency":"USD","rate":"0.92"}`, string(writer.messages[0].Value))

	writer.err = errors.New("broker unavailable")
	assert.ErrorContains(t, publisher.Publish(context.Background(), change), "broker unavailable")
}
