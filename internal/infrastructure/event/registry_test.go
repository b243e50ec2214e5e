package event

import (
	"context"
	"testing"

	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

// mockHandler implements EventHandler for testing
type mockHandler struct {
	name       string
	eventTypes []string
}

func newMockHandler(name string, eventTypes ...string) *mockHandler {
	return &mockHandler{name: name, eventTypes: eventTypes}
}

func (h *mockHandler) Handle(context.Context, shared.DomainEvent) error { return nil }

func (h *mockHandler) EventTypes() []string {
	return h.eventTypes
}

func names(handlers []shared.EventHandler) []string {
	out := make([]string, len(handlers))
	for i, h := range handlers {
		out[i] = h.(*mockHandler).name
	}
	return out
}

func TestHandlerRegistry_Register(t *testing.T) {
	tests := []struct {
		name      string
		register  func(r *HandlerRegistry)
		eventType string
		want      []string
	}{
		{
			name: "specific types",
			register: func(r *HandlerRegistry) {
				r.Register(newMockHandler("projection"), "ProductCreated", "ProductUpdated")
			},
			eventType: "ProductUpdated",
			want:      []string{"projection"},
		},
		{
			name: "unsubscribed type",
			register: func(r *HandlerRegistry) {
				r.Register(newMockHandler("projection"), "ProductCreated")
			},
			eventType: "ProductDeleted",
			want:      []string{},
		},
		{
			name: "wildcard",
			register: func(r *HandlerRegistry) {
				r.Register(newMockHandler("cache"))
			},
			eventType: "AnyEventType",
			want:      []string{"cache"},
		},
		{
			name: "subscription order is kept across wildcard and typed handlers",
			register: func(r *HandlerRegistry) {
				r.Register(newMockHandler("audit"))
				r.Register(newMockHandler("projection"), "SortOrderChanged")
				r.Register(newMockHandler("cache"))
			},
			eventType: "SortOrderChanged",
			want:      []string{"audit", "projection", "cache"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewHandlerRegistry()
			tt.register(registry)
			assert.Equal(t, tt.want, names(registry.GetHandlers(tt.eventType)))
		})
	}
}

func TestHandlerRegistry_RegisterTwiceWidens(t *testing.T) {
	registry := NewHandlerRegistry()
	projection := newMockHandler("projection")
	cache := newMockHandler("cache")

	registry.Register(projection, "ProductCreated")
	registry.Register(cache, "ProductCreated")
	registry.Register(projection, "ProductDeleted")

	assert.Equal(t, []string{"projection", "cache"}, names(registry.GetHandlers("ProductCreated")))
	assert.Equal(t, []string{"projection"}, names(registry.GetHandlers("ProductDeleted")))
	assert.Len(t, registry.GetAllHandlers(), 2, "no duplicate subscription")

	registry.Register(cache)
	assert.Equal(t, []string{"cache"}, names(registry.GetHandlers("InventoryChanged")))

	// a wildcard subscription is not narrowed by a later typed one
	registry.Register(cache, "ProductCreated")
	assert.Equal(t, []string{"cache"}, names(registry.GetHandlers("PricesReprojected")))
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	registry := NewHandlerRegistry()
	first := newMockHandler("first")
	second := newMockHandler("second")
	wildcard := newMockHandler("wildcard")

	registry.Register(first, "ProductCreated")
	registry.Register(second, "ProductCreated")
	registry.Register(wildcard)

	registry.Unregister(first)
	assert.Equal(t, []string{"second", "wildcard"}, names(registry.GetHandlers("ProductCreated")))

	registry.Unregister(wildcard)
	assert.Equal(t, []string{"second"}, names(registry.GetHandlers("ProductCreated")))
	assert.Empty(t, registry.GetHandlers("AnyEvent"))

	registry.Unregister(first)
	assert.Len(t, registry.GetAllHandlers(), 1, "unregistering twice is harmless")
}
