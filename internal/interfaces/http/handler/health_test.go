package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Check(t *testing.T) {
	tests := []struct {
		name     string
		ping     error
		status   int
		database string
	}{
		{"healthy", nil, http.StatusOK, "ok"},
		{"database down", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(pingerFunc(func(ctx context.Context) error {
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline)
				return tt.ping
			}))
			r := gin.New()
			r.GET("/health", h.Check)

			w := doRequest(r, http.MethodGet, "/health", nil)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `"database":"`+tt.database+`"`)
		})
	}
}
