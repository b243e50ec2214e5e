package event

import (
	"context"
	"time"

	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxStore is the part of the outbox repository the admin operations use
type OutboxStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error)
	RequeueDead(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// Dispatcher wakes the outbox processor
type Dispatcher interface {
	Trigger()
}

// OutboxService exposes delivery state of change notifications to operators
type OutboxService struct {
	store      OutboxStore
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(store OutboxStore, dispatcher Dispatcher, logger *zap.Logger) *OutboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxService{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// OutboxEntryDTO represents an outbox entry in responses
type OutboxEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   int64      `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OutboxStatsDTO counts entries per delivery state
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// RetryResult reports how many dead entries were requeued
type RetryResult struct {
	Requeued int64 `json:"requeued"`
}

// GetEntry retrieves a single outbox entry by ID
func (s *OutboxService) GetEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryDeadEntries gives every dead letter entry a fresh set of retries and
// wakes the processor
func (s *OutboxService) RetryDeadEntries(ctx context.Context) (*RetryResult, error) {
	n, err := s.store.RequeueDead(ctx)
	if err != nil {
		s.logger.Error("Failed to requeue dead letter entries", zap.Error(err))
		return nil, err
	}
	if n > 0 && s.dispatcher != nil {
		s.dispatcher.Trigger()
	}
	s.logger.Info("Requeued dead letter entries", zap.Int64("count", n))
	return &RetryResult{Requeued: n}, nil
}

// GetStats returns outbox statistics
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get outbox stats", zap.Error(err))
		return nil, err
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	return &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

func toOutboxEntryDTO(entry *shared.OutboxEntry) OutboxEntryDTO {
	return OutboxEntryDTO{
		ID:            entry.ID,
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		AggregateID:   entry.AggregateID,
		AggregateType: entry.AggregateType,
		Status:        string(entry.Status),
		RetryCount:    entry.RetryCount,
		MaxRetries:    entry.MaxRetries,
		LastError:     entry.LastError,
		NextRetryAt:   entry.NextRetryAt,
		ProcessedAt:   entry.ProcessedAt,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
	}
}
