package handler

import (
	"context"
	"net/http"
	"testing"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockSortOrderManager implements SortOrderManager for testing
type MockSortOrderManager struct {
	mock.Mock
}

func (m *MockSortOrderManager) LockProductSortOrder(ctx context.Context, input catalogapp.LockSortOrderInput) (*catalogapp.SortOrderResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.SortOrderResult), args.Error(1)
}

func (m *MockSortOrderManager) UnlockProductSortOrder(ctx context.Context, input catalogapp.UnlockSortOrderInput) (*catalogapp.SortOrderResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.SortOrderResult), args.Error(1)
}

func (m *MockSortOrderManager) RecomputeCategoryOrder(ctx context.Context, categoryID int64) (*catalogapp.SortOrderResult, error) {
	args := m.Called(ctx, categoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.SortOrderResult), args.Error(1)
}

func setupSortOrderRouter(sortOrder *MockSortOrderManager) *gin.Engine {
	h := NewSortOrderHandler(sortOrder)
	r := setupTestRouter()
	r.POST("/admin/products/action/fix-sort-order", h.FixSortOrder)
	r.POST("/admin/products/action/unfix-sort-order", h.UnfixSortOrder)
	r.POST("/admin/categories/:id/action/recompute-sort-order", h.RecomputeCategory)
	return r
}

func TestSortOrderHandler_FixSortOrder(t *testing.T) {
	sortOrder := new(MockSortOrderManager)
	input := catalogapp.LockSortOrderInput{ProductID: 1, CategoryID: 4, TargetProductID: 3, Position: "end"}
	sortOrder.On("LockProductSortOrder", mock.Anything, input).
		Return(&catalogapp.SortOrderResult{CategoryID: 4, ChangedProductIDs: []int64{1, 3}}, nil)

	w := doRequest(setupSortOrderRouter(sortOrder), http.MethodPost, "/admin/products/action/fix-sort-order", map[string]any{
		"product_id": 1, "category_id": 4, "target_product_id": 3, "position": "end",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[1,3]`, extractField(t, w, "changed_product_ids"))
	sortOrder.AssertExpectations(t)
}

func TestSortOrderHandler_FixSortOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"product outside category", shared.ErrNotInCategory, http.StatusUnprocessableEntity, dto.ErrCodeNotInCategory},
		{"unknown target", shared.NewNotFoundError("product %d", 3), http.StatusNotFound, dto.ErrCodeNotFound},
		{"pin relative to itself", shared.NewValidationError("a product cannot be pinned relative to itself"), http.StatusBadRequest, dto.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sortOrder := new(MockSortOrderManager)
			sortOrder.On("LockProductSortOrder", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := doRequest(setupSortOrderRouter(sortOrder), http.MethodPost, "/admin/products/action/fix-sort-order", map[string]any{
				"product_id": 1, "category_id": 4, "target_product_id": 3,
			})

			assertErrorCode(t, w, tt.status, tt.code)
		})
	}
}

func TestSortOrderHandler_FixSortOrder_BadPosition(t *testing.T) {
	sortOrder := new(MockSortOrderManager)

	w := doRequest(setupSortOrderRouter(sortOrder), http.MethodPost, "/admin/products/action/fix-sort-order", map[string]any{
		"product_id": 1, "category_id": 4, "target_product_id": 3, "position": "middle",
	})

	assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
	sortOrder.AssertNotCalled(t, "LockProductSortOrder", mock.Anything, mock.Anything)
}

func TestSortOrderHandler_UnfixSortOrder(t *testing.T) {
	sortOrder := new(MockSortOrderManager)
	sortOrder.On("UnlockProductSortOrder", mock.Anything, catalogapp.UnlockSortOrderInput{ProductID: 1, CategoryID: 4}).
		Return(&catalogapp.SortOrderResult{CategoryID: 4}, nil)

	w := doRequest(setupSortOrderRouter(sortOrder), http.MethodPost, "/admin/products/action/unfix-sort-order", map[string]any{
		"product_id": 1, "category_id": 4,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	sortOrder.AssertExpectations(t)
}

func TestSortOrderHandler_RecomputeCategory(t *testing.T) {
	sortOrder := new(MockSortOrderManager)
	sortOrder.On("RecomputeCategoryOrder", mock.Anything, int64(4)).
		Return(&catalogapp.SortOrderResult{CategoryID: 4, ChangedProductIDs: []int64{}}, nil)
	sortOrder.On("RecomputeCategoryOrder", mock.Anything, int64(5)).Return(nil, shared.ErrNotFound)
	r := setupSortOrderRouter(sortOrder)

	w := doRequest(r, http.MethodPost, "/admin/categories/4/action/recompute-sort-order", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodPost, "/admin/categories/5/action/recompute-sort-order", nil)
	assertErrorCode(t, w, http.StatusNotFound, dto.ErrCodeNotFound)
	sortOrder.AssertExpectations(t)
}
