package event

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOutboxPublisher_PublishWithTx(t *testing.T) {
	db := setupOutboxDB(t)
	publisher := NewOutboxPublisher(NewCatalogSerializer())
	ctx := context.Background()

	events := []shared.DomainEvent{
		catalog.NewSortOrderChangedEvent(3, []int64{1, 2}),
		catalog.NewSortOrderChangedEvent(4, []int64{5}),
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(ctx, tx, events...)
	})
	require.NoError(t, err)

	var stored []shared.OutboxEntry
	require.NoError(t, db.Order("aggregate_id ASC").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.Equal(t, events[0].EventID(), stored[0].EventID)
	assert.Equal(t, catalog.EventTypeSortOrderChanged, stored[0].EventType)
	assert.Equal(t, int64(3), stored[0].AggregateID)
	assert.Equal(t, catalog.AggregateTypeCategory, stored[0].AggregateType)
	assert.Equal(t, shared.OutboxStatusPending, stored[0].Status)
	assert.Contains(t, string(stored[0].Payload), `"product_ids":[1,2]`)
}

func TestOutboxPublisher_PublishWithTx_Rollback(t *testing.T) {
	db := setupOutboxDB(t)
	publisher := NewOutboxPublisher(NewCatalogSerializer())
	ctx := context.Background()

	testErr := errors.New("simulated error")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := publisher.PublishWithTx(ctx, tx, catalog.NewSortOrderChangedEvent(3, []int64{1})); err != nil {
			return err
		}
		return testErr
	})
	require.ErrorIs(t, err, testErr)

	var count int64
	require.NoError(t, db.Model(&shared.OutboxEntry{}).Count(&count).Error)
	assert.Zero(t, count, "no entry survives a rolled back write")
}

func TestOutboxPublisher_PublishWithTx_RejectsUnregistered(t *testing.T) {
	db, mock := setupMockDB(t)
	publisher := NewOutboxPublisher(NewEventSerializer())

	err := publisher.PublishWithTx(context.Background(), db, newTestEvent("TestEvent", 1))

	assert.ErrorContains(t, err, "not registered")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPublisher_PublishWithTx_EmptyEvents(t *testing.T) {
	db, mock := setupMockDB(t)
	publisher := NewOutboxPublisher(NewEventSerializer())

	require.NoError(t, publisher.PublishWithTx(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPublisher_PublishWithTx_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	publisher := NewOutboxPublisher(NewCatalogSerializer())

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "outbox_entries"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := publisher.PublishWithTx(context.Background(), db, catalog.NewSortOrderChangedEvent(3, []int64{1}))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
