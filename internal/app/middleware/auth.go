package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/internal/domain/tenant"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserContext holds the authenticated user resolved from the bearer token
type UserContext struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Email    string    `json:"email"`
}

// Actor is the engine's view of the user.
func (u *UserContext) Actor() services.Actor {
	return services.Actor{UserID: u.UserID, Email: u.Email}
}

const userContextKey = "user"

// AuthConfig wires the middleware to its collaborators.
type AuthConfig struct {
	Validator services.TokenValidator
	Tenants   repositories.TenantRepository
	Users     repositories.UserRepository
	// TenantHeader names the header carrying the tenant subdomain for tokens
	// that do not name a tenant.
	TenantHeader string
	Logger       *logger.Logger
}

// AuthMiddleware validates the bearer token, resolves the tenant and the user,
// and puts the tenant scope on the request context.
func AuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "missing_authorization", "Authorization header is required")
			return
		}

		// Check Bearer token format
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "invalid_authorization_format", "Authorization header must be in format: Bearer <token>")
			return
		}

		ctx := c.Request.Context()
		claims, err := cfg.Validator.ValidateToken(ctx, tokenParts[1])
		if err != nil {
			cfg.Logger.Debug("token rejected", slog.String("error", err.Error()))
			abort(c, http.StatusUnauthorized, "invalid_token", "Token validation failed")
			return
		}

		var t *models.Tenant
		if claims.TenantID != uuid.Nil {
			t, err = cfg.Tenants.GetByID(ctx, claims.TenantID)
		} else {
			subdomain := strings.ToLower(strings.TrimSpace(c.GetHeader(cfg.TenantHeader)))
			if subdomain == "" {
				abort(c, http.StatusBadRequest, "missing_tenant", "Tenant could not be determined from token or "+cfg.TenantHeader+" header")
				return
			}
			t, err = cfg.Tenants.GetBySubdomain(ctx, subdomain)
		}
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				abort(c, http.StatusNotFound, "tenant_not_found", "Tenant not found")
				return
			}
			cfg.Logger.Error("tenant lookup failed", slog.String("error", err.Error()))
			abort(c, http.StatusInternalServerError, "internal_error", "Tenant lookup failed")
			return
		}
		if !t.IsActive {
			abort(c, http.StatusForbidden, "tenant_inactive", "Tenant is inactive")
			return
		}
		tenantID := t.ID

		ctx = tenant.WithScope(ctx, tenantID)
		user, err := cfg.Users.GetByEmail(ctx, claims.Email)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				abort(c, http.StatusUnauthorized, "user_not_found", "User not found in tenant")
				return
			}
			cfg.Logger.Error("user lookup failed", slog.String("error", err.Error()))
			abort(c, http.StatusInternalServerError, "internal_error", "User lookup failed")
			return
		}

		// Check if user is active
		if !user.IsActive {
			abort(c, http.StatusUnauthorized, "user_inactive", "User account is inactive")
			return
		}

		c.Request = c.Request.WithContext(ctx)
		c.Set(userContextKey, &UserContext{
			UserID:   user.ID,
			TenantID: tenantID,
			Email:    user.Email,
		})

		c.Next()
	}
}

// GetUserContext retrieves user context from gin context
// This is a helper function used by handlers to get current user info
func GetUserContext(c *gin.Context) *UserContext {
	if userCtx, exists := c.Get(userContextKey); exists {
		if user, ok := userCtx.(*UserContext); ok {
			return user
		}
	}
	return nil
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}
