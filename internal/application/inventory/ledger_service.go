package inventory

import (
	"context"
	"errors"

	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Dispatcher is nudged after a commit so outbox entries are delivered promptly
type Dispatcher interface {
	Trigger()
}

// LedgerService exposes the inventory ledger to order processing. Every
// mutation records an InventoryChanged event in the same transaction so
// the search projection picks up the new availability.
type LedgerService struct {
	scope      TransactionScope
	reader     inventory.Ledger
	dispatcher Dispatcher
	logger     *zap.Logger
	outcomes   metric.Int64Counter
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(scope TransactionScope, reader inventory.Ledger, dispatcher Dispatcher, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	outcomes, _ := otel.Meter("catalog-engine/inventory").Int64Counter(
		"inventory.ledger.operations",
		metric.WithDescription("Ledger mutations by operation and outcome"),
	)
	return &LedgerService{
		scope:      scope,
		reader:     reader,
		dispatcher: dispatcher,
		logger:     logger,
		outcomes:   outcomes,
	}
}

// Reserve holds stock for an order; concurrent reservations never oversell
func (s *LedgerService) Reserve(ctx context.Context, input ReserveInput) (*InventoryResponse, error) {
	if input.Quantity <= 0 {
		return nil, shared.NewValidationError("quantity must be positive")
	}
	if input.OrderID == "" {
		return nil, shared.NewValidationError("order id is required")
	}
	return s.mutate(ctx, input.SKU, inventory.OperationReserve, input.Quantity, input.OrderID,
		func(l inventory.Ledger) error {
			return l.Reserve(ctx, input.SKU, input.Quantity, input.OrderID)
		})
}

// Release drops the reservations of an order
func (s *LedgerService) Release(ctx context.Context, input ReleaseInput) (*InventoryResponse, error) {
	if input.OrderID == "" {
		return nil, shared.NewValidationError("order id is required")
	}
	return s.mutate(ctx, input.SKU, inventory.OperationRelease, 0, input.OrderID,
		func(l inventory.Ledger) error {
			return l.Release(ctx, input.SKU, input.OrderID)
		})
}

// ReleaseAndDeduct settles a shipped order: its reservation is dropped and
// the shipped quantity leaves stock
func (s *LedgerService) ReleaseAndDeduct(ctx context.Context, input ReserveInput) (*InventoryResponse, error) {
	if input.Quantity <= 0 {
		return nil, shared.NewValidationError("quantity must be positive")
	}
	if input.OrderID == "" {
		return nil, shared.NewValidationError("order id is required")
	}
	return s.mutate(ctx, input.SKU, inventory.OperationReleaseAndDeduct, input.Quantity, input.OrderID,
		func(l inventory.Ledger) error {
			return l.ReleaseAndDeduct(ctx, input.SKU, input.Quantity, input.OrderID)
		})
}

// SetQuantity overwrites the stock of a SKU
func (s *LedgerService) SetQuantity(ctx context.Context, input SetQuantityInput) (*InventoryResponse, error) {
	if input.Quantity < 0 {
		return nil, shared.NewValidationError("quantity cannot be negative")
	}
	return s.mutate(ctx, input.SKU, inventory.OperationSetQuantity, input.Quantity, "",
		func(l inventory.Ledger) error {
			return l.SetQuantity(ctx, input.SKU, input.Quantity)
		})
}

// Get returns the record of a SKU with its reservations
func (s *LedgerService) Get(ctx context.Context, sku int64) (*InventoryResponse, error) {
	record, err := s.reader.Get(ctx, sku)
	if err != nil {
		return nil, err
	}
	return ToInventoryResponse(record), nil
}

func (s *LedgerService) mutate(
	ctx context.Context,
	sku int64,
	op string,
	qty int64,
	orderID string,
	fn func(l inventory.Ledger) error,
) (*InventoryResponse, error) {
	var record *inventory.Inventory
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := fn(repos.Ledger()); err != nil {
			return err
		}
		var err error
		record, err = repos.Ledger().Get(ctx, sku)
		if err != nil {
			return err
		}
		return repos.Events().SaveEvents(ctx,
			inventory.NewInventoryChangedEvent(sku, record.ProductID, op, qty, orderID))
	})
	s.record(ctx, op, err)
	if err != nil {
		s.logger.Debug("ledger operation rejected",
			zap.String("operation", op),
			zap.Int64("sku", sku),
			zap.Int64("quantity", qty),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return nil, err
	}

	if s.dispatcher != nil {
		s.dispatcher.Trigger()
	}
	s.logger.Info("ledger operation applied",
		zap.String("operation", op),
		zap.Int64("sku", sku),
		zap.Int64("quantity", record.Quantity),
		zap.Int64("reserved", record.Reserved),
	)
	return ToInventoryResponse(record), nil
}

func (s *LedgerService) record(ctx context.Context, op string, err error) {
	if s.outcomes == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrInsufficientStock):
		outcome = "insufficient_stock"
	case errors.Is(err, shared.ErrReservedExceedsRequestedStock):
		outcome = "reserved_exceeds_stock"
	case errors.Is(err, shared.ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	s.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}
