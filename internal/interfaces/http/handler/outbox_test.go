package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	eventapp "github.com/erp/catalog-engine/internal/application/event"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOutboxAdmin struct {
	mock.Mock
}

func (m *MockOutboxAdmin) GetStats(ctx context.Context) (*eventapp.OutboxStatsDTO, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventapp.OutboxStatsDTO), args.Error(1)
}

func (m *MockOutboxAdmin) GetEntry(ctx context.Context, id uuid.UUID) (*eventapp.OutboxEntryDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventapp.OutboxEntryDTO), args.Error(1)
}

func (m *MockOutboxAdmin) RetryDeadEntries(ctx context.Context) (*eventapp.RetryResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventapp.RetryResult), args.Error(1)
}

func setupOutboxRouter(outbox OutboxAdmin) http.Handler {
	r := setupTestRouter()
	h := NewOutboxHandler(outbox)
	r.GET("/admin/outbox/stats", h.Stats)
	r.GET("/admin/outbox/:id", h.GetEntry)
	r.POST("/admin/outbox/action/retry-dead", h.RetryDead)
	return r
}

func TestOutboxHandler_Stats(t *testing.T) {
	outbox := new(MockOutboxAdmin)
	outbox.On("GetStats", mock.Anything).Return(&eventapp.OutboxStatsDTO{Pending: 2, Dead: 1, Total: 3}, nil)

	w := doRequest(setupOutboxRouter(outbox), http.MethodGet, "/admin/outbox/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", extractField(t, w, "dead"))
	assert.Equal(t, "3", extractField(t, w, "total"))
}

func TestOutboxHandler_GetEntry(t *testing.T) {
	id := uuid.New()
	outbox := new(MockOutboxAdmin)
	outbox.On("GetEntry", mock.Anything, id).Return(&eventapp.OutboxEntryDTO{ID: id, Status: "DEAD"}, nil)
	outbox.On("GetEntry", mock.Anything, mock.Anything).Return(nil, shared.NewNotFoundError("outbox entry not found"))
	r := setupOutboxRouter(outbox)

	w := doRequest(r, http.MethodGet, "/admin/outbox/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"DEAD"`, extractField(t, w, "status"))

	w = doRequest(r, http.MethodGet, "/admin/outbox/"+uuid.NewString(), nil)
	assertErrorCode(t, w, http.StatusNotFound, dto.ErrCodeNotFound)

	w = doRequest(r, http.MethodGet, "/admin/outbox/42", nil)
	assertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeBadRequest)
}

func TestOutboxHandler_RetryDead(t *testing.T) {
	outbox := new(MockOutboxAdmin)
	outbox.On("RetryDeadEntries", mock.Anything).Return(&eventapp.RetryResult{Requeued: 4}, nil).Once()
	outbox.On("RetryDeadEntries", mock.Anything).Return(nil, errors.New("connection reset")).Once()
	r := setupOutboxRouter(outbox)

	w := doRequest(r, http.MethodPost, "/admin/outbox/action/retry-dead", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4", extractField(t, w, "requeued"))

	w = doRequest(r, http.MethodPost, "/admin/outbox/action/retry-dead", nil)
	assertErrorCode(t, w, http.StatusInternalServerError, dto.ErrCodeInternal)
	outbox.AssertExpectations(t)
}
