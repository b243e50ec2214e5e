package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/catalog-engine/internal/infrastructure/auth"
	"github.com/erp/catalog-engine/internal/infrastructure/logger"
	"github.com/erp/catalog-engine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey  = "jwt_claims"
	JWTActorKey   = "jwt_actor"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenVerifier validates a bearer token
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// Verifier is required for token validation
	Verifier TokenVerifier
	// RequiredRole must be present in the token; empty accepts any valid token
	RequiredRole string
	Logger       *zap.Logger
}

// AdminAuth guards the admin API: a valid token carrying the catalog admin
// role is required
func AdminAuth(verifier TokenVerifier, log *zap.Logger) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{
		Verifier:     verifier,
		RequiredRole: auth.RoleCatalogAdmin,
		Logger:       log,
	})
}

// JWTAuthMiddlewareWithConfig creates JWT authentication middleware with custom config
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			abortAuth(c, cfg, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Missing authorization header", nil)
			return
		}
		tokenString, ok := strings.CutPrefix(authHeader, BearerPrefix)
		if !ok || tokenString == "" {
			abortAuth(c, cfg, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Invalid authorization header format", nil)
			return
		}

		claims, err := cfg.Verifier.Verify(tokenString)
		if err != nil {
			code, message := dto.ErrCodeTokenInvalid, "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				code, message = dto.ErrCodeTokenExpired, "Token has expired"
			}
			abortAuth(c, cfg, http.StatusUnauthorized, code, message, err)
			return
		}
		if cfg.RequiredRole != "" && !claims.HasRole(cfg.RequiredRole) {
			abortAuth(c, cfg, http.StatusForbidden, dto.ErrCodeForbidden, "Insufficient role", nil)
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTActorKey, claims.Subject)
		c.Request = c.Request.WithContext(logger.WithActor(c.Request.Context(), claims.Subject))

		c.Next()
	}
}

func abortAuth(c *gin.Context, cfg JWTMiddlewareConfig, status int, code, message string, err error) {
	cfg.Logger.Warn("JWT authentication failed",
		zap.Error(err),
		zap.String("code", code),
		zap.String("path", c.Request.URL.Path),
	)
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, c.GetString(RequestIDKey)))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetActor returns the authenticated subject, or "" for anonymous requests
func GetActor(c *gin.Context) string {
	return c.GetString(JWTActorKey)
}
