package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/catalog-engine/internal/infrastructure/auth"
	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/erp/catalog-engine/internal/infrastructure/logger"
	"github.com/erp/catalog-engine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret-key-at-least-32-bytes-long"

func signToken(t *testing.T, subject string, ttl time.Duration, roles ...string) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "catalog-admin",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newAdminRouter(t *testing.T) *gin.Engine {
	verifier := auth.NewVerifier(config.JWTConfig{Secret: testSecret, Issuer: "catalog-admin"})
	router := gin.New()
	router.Use(RequestID(), AdminAuth(verifier, zaptest.NewLogger(t)))
	router.GET("/admin", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"actor":     GetActor(c),
			"ctx_actor": logger.GetActor(c.Request.Context()),
			"claims":    GetJWTClaims(c) != nil,
		})
	})
	return router
}

func TestAdminAuth(t *testing.T) {
	router := newAdminRouter(t)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, dto.ErrCodeTokenInvalid},
		{"expired", "Bearer " + signToken(t, "ops", -time.Minute, auth.RoleCatalogAdmin), http.StatusUnauthorized, dto.ErrCodeTokenExpired},
		{"no admin role", "Bearer " + signToken(t, "ops", time.Hour, "auditor"), http.StatusForbidden, dto.ErrCodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}

	t.Run("admin token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set(AuthHeaderKey, "Bearer "+signToken(t, "merchandiser@shop", time.Hour, auth.RoleCatalogAdmin))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "merchandiser@shop", body["actor"])
		assert.Equal(t, "merchandiser@shop", body["ctx_actor"], "the request logger carries the actor")
		assert.Equal(t, true, body["claims"])
	})
}
