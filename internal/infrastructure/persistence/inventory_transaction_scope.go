package persistence

import (
	"context"

	appinv "github.com/erp/catalog-engine/internal/application/inventory"
	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"gorm.io/gorm"
)

// TxEventRecorder writes domain events to the outbox through a given transaction
type TxEventRecorder interface {
	PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error
}

// txEvents binds a TxEventRecorder to one transaction
type txEvents struct {
	recorder TxEventRecorder
	tx       *gorm.DB
}

// SaveEvents implements shared.OutboxEventSaver
func (e txEvents) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	if e.recorder == nil || len(events) == 0 {
		return nil
	}
	return e.recorder.PublishWithTx(ctx, e.tx, events...)
}

// GormInventoryTransactionScope implements the inventory TransactionScope
// using GORM transactions.
type GormInventoryTransactionScope struct {
	db       *gorm.DB
	recorder TxEventRecorder
}

// NewGormInventoryTransactionScope creates a new GormInventoryTransactionScope.
func NewGormInventoryTransactionScope(db *gorm.DB, recorder TxEventRecorder) *GormInventoryTransactionScope {
	return &GormInventoryTransactionScope{db: db, recorder: recorder}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormInventoryTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormInventoryRepositories{tx: tx, recorder: s.recorder})
	})
}

// gormInventoryRepositories provides access to the ledger within a transaction.
type gormInventoryRepositories struct {
	tx       *gorm.DB
	recorder TxEventRecorder
}

// Ledger returns the inventory ledger scoped to the current transaction.
func (r *gormInventoryRepositories) Ledger() inventory.Ledger {
	return NewGormLedger(r.tx)
}

// Events returns the outbox writer scoped to the current transaction.
func (r *gormInventoryRepositories) Events() shared.OutboxEventSaver {
	return txEvents{recorder: r.recorder, tx: r.tx}
}

var (
	_ appinv.TransactionScope          = (*GormInventoryTransactionScope)(nil)
	_ appinv.TransactionalRepositories = (*gormInventoryRepositories)(nil)
)
