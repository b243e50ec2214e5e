package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CreateInventory(ctx context.Context, sku, productID, initialQty int64) error {
	return m.Called(ctx, sku, productID, initialQty).Error(0)
}

func (m *MockLedger) Reserve(ctx context.Context, sku, qty int64, orderID string) error {
	return m.Called(ctx, sku, qty, orderID).Error(0)
}

func (m *MockLedger) Release(ctx context.Context, sku int64, orderID string) error {
	return m.Called(ctx, sku, orderID).Error(0)
}

func (m *MockLedger) ReleaseAndDeduct(ctx context.Context, sku, qty int64, orderID string) error {
	return m.Called(ctx, sku, qty, orderID).Error(0)
}

func (m *MockLedger) SetQuantity(ctx context.Context, sku, newQty int64) error {
	return m.Called(ctx, sku, newQty).Error(0)
}

func (m *MockLedger) Delete(ctx context.Context, sku int64) error {
	return m.Called(ctx, sku).Error(0)
}

func (m *MockLedger) Get(ctx context.Context, sku int64) (*inventory.Inventory, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Inventory), args.Error(1)
}

func (m *MockLedger) FindBySKUs(ctx context.Context, skus []int64) ([]inventory.Inventory, error) {
	args := m.Called(ctx, skus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]inventory.Inventory), args.Error(1)
}

type recordingEvents struct {
	events []shared.DomainEvent
}

func (r *recordingEvents) SaveEvents(_ context.Context, events ...shared.DomainEvent) error {
	r.events = append(r.events, events...)
	return nil
}

type countingDispatcher struct {
	triggers int
}

func (d *countingDispatcher) Trigger() { d.triggers++ }

func newTestLedgerService(ledger *MockLedger) (*LedgerService, *recordingEvents, *countingDispatcher) {
	events := &recordingEvents{}
	dispatcher := &countingDispatcher{}
	svc := NewLedgerService(NewNoOpTransactionScope(ledger, events), ledger, dispatcher, nil)
	return svc, events, dispatcher
}

func TestLedgerService_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("records an inventory change", func(t *testing.T) {
		ledger := new(MockLedger)
		svc, events, dispatcher := newTestLedgerService(ledger)

		ledger.On("Reserve", ctx, int64(1001), int64(2), "order-1").Return(nil)
		ledger.On("Get", ctx, int64(1001)).Return(&inventory.Inventory{
			SKU: 1001, ProductID: 7, Quantity: 10, Reserved: 2,
			Reservations: []inventory.Reservation{{OrderID: "order-1", Quantity: 2}},
		}, nil)

		resp, err := svc.Reserve(ctx, ReserveInput{SKU: 1001, Quantity: 2, OrderID: "order-1"})
		require.NoError(t, err)
		assert.Equal(t, int64(8), resp.Available)
		require.Len(t, resp.Reservations, 1)

		require.Len(t, events.events, 1)
		changed := events.events[0].(*inventory.InventoryChangedEvent)
		assert.Equal(t, int64(7), changed.ProductID)
		assert.Equal(t, inventory.OperationReserve, changed.Operation)
		assert.Equal(t, 1, dispatcher.triggers)
		ledger.AssertExpectations(t)
	})

	t.Run("insufficient stock is returned untouched", func(t *testing.T) {
		ledger := new(MockLedger)
		svc, events, dispatcher := newTestLedgerService(ledger)

		ledger.On("Reserve", ctx, int64(1001), int64(5), "order-2").
			Return(shared.NewDomainError(shared.CodeInsufficientStock, "only 3 left"))

		_, err := svc.Reserve(ctx, ReserveInput{SKU: 1001, Quantity: 5, OrderID: "order-2"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
		assert.Empty(t, events.events)
		assert.Zero(t, dispatcher.triggers)
	})

	t.Run("rejects bad input before touching the ledger", func(t *testing.T) {
		ledger := new(MockLedger)
		svc, _, _ := newTestLedgerService(ledger)

		_, err := svc.Reserve(ctx, ReserveInput{SKU: 1001, Quantity: 0, OrderID: "order-3"})
		assert.True(t, errors.Is(err, shared.ErrValidation))
		_, err = svc.Reserve(ctx, ReserveInput{SKU: 1001, Quantity: 1})
		assert.True(t, errors.Is(err, shared.ErrValidation))
		ledger.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestLedgerService_SetQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("reserved above new stock", func(t *testing.T) {
		ledger := new(MockLedger)
		svc, events, _ := newTestLedgerService(ledger)

		ledger.On("SetQuantity", ctx, int64(1001), int64(1)).
			Return(shared.NewDomainError(shared.CodeReservedExceedsRequestedStock, "2 reserved"))

		_, err := svc.SetQuantity(ctx, SetQuantityInput{SKU: 1001, Quantity: 1})
		assert.True(t, errors.Is(err, shared.ErrReservedExceedsRequestedStock))
		assert.Empty(t, events.events)
	})

	t.Run("negative quantity", func(t *testing.T) {
		svc, _, _ := newTestLedgerService(new(MockLedger))
		_, err := svc.SetQuantity(ctx, SetQuantityInput{SKU: 1001, Quantity: -1})
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})
}

func TestLedgerService_ReleaseAndDeduct(t *testing.T) {
	ctx := context.Background()
	ledger := new(MockLedger)
	svc, events, _ := newTestLedgerService(ledger)

	ledger.On("ReleaseAndDeduct", ctx, int64(1001), int64(2), "order-1").Return(nil)
	ledger.On("Get", ctx, int64(1001)).Return(&inventory.Inventory{SKU: 1001, ProductID: 7, Quantity: 8}, nil)

	resp, err := svc.ReleaseAndDeduct(ctx, ReserveInput{SKU: 1001, Quantity: 2, OrderID: "order-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), resp.Quantity)
	assert.Equal(t, int64(0), resp.Reserved)
	require.Len(t, events.events, 1)
	assert.Equal(t, inventory.OperationReleaseAndDeduct, events.events[0].(*inventory.InventoryChangedEvent).Operation)
}
