package catalog

import (
	"context"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/review"
	"github.com/erp/catalog-engine/internal/domain/routing"
	"github.com/erp/catalog-engine/internal/domain/shared"
)

// TransactionScope provides transactional access to the catalog repositories.
// Everything done through the repositories handed to fn commits or rolls
// back as one unit.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to every store a catalog write
// touches. All of them share the same underlying transaction.
type TransactionalRepositories interface {
	Products() catalog.ProductRepository
	Currencies() catalog.CurrencyRepository
	Counters() shared.CounterAllocator
	Ledger() inventory.Ledger
	Routes() routing.Registry
	Reviews() review.Repository
	// Events records domain events in the outbox of the current transaction
	Events() shared.OutboxEventSaver
}

// EventDispatcher is nudged after a commit so outbox entries written by the
// transaction are delivered without waiting for the next poll
type EventDispatcher interface {
	Trigger()
}

// MediaStorage moves uploaded media into place and removes it
type MediaStorage interface {
	// Promote copies an uploaded tmp/ object under the product's prefix and
	// returns the new key. Keys outside tmp/ are returned unchanged.
	Promote(ctx context.Context, productID int64, key string) (string, error)

	// Delete removes objects; missing objects are ignored
	Delete(ctx context.Context, keys ...string) error
}

// IsTmpMedia reports whether key still points at an unpromoted upload
func IsTmpMedia(key string) bool {
	return len(key) > 4 && key[:4] == "tmp/"
}
