package event

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

// setupOutboxDB opens an in-memory sqlite database holding only the outbox
func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&shared.OutboxEntry{}))
	return db
}

func newTestEntry(t *testing.T, aggregateID int64) *shared.OutboxEntry {
	t.Helper()
	event := newTestEvent("TestEvent", aggregateID)
	payload, err := NewEventSerializer().Serialize(event)
	require.NoError(t, err)
	return shared.NewOutboxEntry(event, payload)
}

func TestGormOutboxRepository_Save_Empty(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGormOutboxRepository(db)

	require.NoError(t, repo.Save(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_ClaimDue(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()
	now := time.Now()

	pending := newTestEntry(t, 1)
	pending.CreatedAt = now.Add(-time.Minute)
	due := newTestEntry(t, 2)
	due.MarkFailed("sink down")
	past := now.Add(-time.Second)
	due.NextRetryAt = &past
	notYet := newTestEntry(t, 3)
	notYet.MarkFailed("sink down")
	sent := newTestEntry(t, 4)
	sent.MarkSent()
	require.NoError(t, repo.Save(ctx, pending, due, notYet, sent))

	claimed, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, pending.ID, claimed[0].ID, "oldest first")
	assert.Equal(t, due.ID, claimed[1].ID)
	for _, e := range claimed {
		assert.Equal(t, shared.OutboxStatusProcessing, e.Status)
	}

	again, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed entries are not handed out twice")

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[shared.OutboxStatusProcessing])
	assert.Equal(t, int64(1), counts[shared.OutboxStatusFailed])
	assert.Equal(t, int64(1), counts[shared.OutboxStatusSent])
}

func TestGormOutboxRepository_ClaimDue_Limit(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, repo.Save(ctx, newTestEntry(t, i)))
	}

	claimed, err := repo.ClaimDue(ctx, time.Now(), 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestGormOutboxRepository_ClaimDue_SkipLockedOnPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGormOutboxRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "outbox_entries" WHERE status = $1 OR (status = $2 AND next_retry_at <= $3) ORDER BY created_at ASC LIMIT $4 FOR UPDATE SKIP LOCKED`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	claimed, err := repo.ClaimDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_Requeue(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()

	stale := newTestEntry(t, 1)
	dead := newTestEntry(t, 2)
	for dead.Status != shared.OutboxStatusDead {
		dead.MarkFailed("index missing")
	}
	require.NoError(t, repo.Save(ctx, stale, dead))

	claimed, err := repo.ClaimDue(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := repo.RequeueStale(ctx, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "recently claimed entries stay with their processor")

	n, err = repo.RequeueStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.RequeueDead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	revived, err := repo.FindByID(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusPending, revived.Status)
	assert.Zero(t, revived.RetryCount)
	assert.Empty(t, revived.LastError)
	assert.Nil(t, revived.NextRetryAt)
}

func TestGormOutboxRepository_UpdateAndCleanup(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()

	entry := newTestEntry(t, 1)
	require.NoError(t, repo.Save(ctx, entry))

	entry.MarkSent()
	old := time.Now().Add(-8 * 24 * time.Hour)
	entry.ProcessedAt = &old
	require.NoError(t, repo.Update(ctx, entry))

	kept := newTestEntry(t, 2)
	kept.MarkSent()
	require.NoError(t, repo.Save(ctx, kept))

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.FindByID(ctx, entry.ID)
	assert.True(t, shared.IsNotFound(err))
}
