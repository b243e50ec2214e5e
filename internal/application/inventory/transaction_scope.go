package inventory

import (
	"context"

	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/shared"
)

// TransactionScope provides transactional access to the inventory ledger.
// A ledger mutation and the outbox entry announcing it commit together.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the ledger and outbox within a transaction
type TransactionalRepositories interface {
	// Ledger returns the inventory ledger scoped to the current transaction
	Ledger() inventory.Ledger
	// Events returns the outbox writer scoped to the current transaction
	Events() shared.OutboxEventSaver
}

// NoOpTransactionScope runs without a real transaction. Events are dropped
// unless an event saver is given. Useful for tests.
type NoOpTransactionScope struct {
	ledger inventory.Ledger
	events shared.OutboxEventSaver
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given ledger.
func NewNoOpTransactionScope(ledger inventory.Ledger, events shared.OutboxEventSaver) *NoOpTransactionScope {
	if events == nil {
		events = discardEvents{}
	}
	return &NoOpTransactionScope{ledger: ledger, events: events}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Ledger returns the inventory ledger.
func (s *NoOpTransactionScope) Ledger() inventory.Ledger {
	return s.ledger
}

// Events returns the event saver.
func (s *NoOpTransactionScope) Events() shared.OutboxEventSaver {
	return s.events
}

type discardEvents struct{}

func (discardEvents) SaveEvents(context.Context, ...shared.DomainEvent) error { return nil }

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
