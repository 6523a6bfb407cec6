package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/storefront/internal/apperr"
	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserIDKey is the context key for storing the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// RoleKey is the context key for the role carried by the token.
	RoleKey contextKey = "role"
)

// AdminChecker reports whether a user currently holds the Admin role.
type AdminChecker interface {
	IsUserAdmin(ctx context.Context, userID string) (bool, error)
}

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetRole extracts the token role from the context.
func GetRole(ctx context.Context) models.Role {
	role, _ := ctx.Value(RoleKey).(models.Role)
	return role
}

// WithUser returns a copy of ctx carrying the user's identity.
func WithUser(ctx context.Context, userID string, role models.Role) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, RoleKey, role)
}

// RequireAuth returns a middleware that validates bearer tokens and requires authentication.
// It extracts the token from the Authorization header, validates it, and adds
// the user ID and role to the request context.
func RequireAuth(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, apperr.Unauthorized(auth.ErrMissingToken.Error()))
			return
		}

		// Parse Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			abort(c, apperr.Unauthorized(auth.ErrInvalidToken.Error()))
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			abort(c, apperr.Unauthorized(auth.ErrInvalidToken.Error()))
			return
		}

		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), claims.UserID, claims.Role))
		c.Next()
	}
}

// RequireAdmin rejects callers that are not currently admins. It must run
// after RequireAuth.
func RequireAdmin(checker AdminChecker, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c.Request.Context())
		if userID == "" {
			abort(c, apperr.Unauthorized(auth.ErrMissingToken.Error()))
			return
		}

		ok, err := checker.IsUserAdmin(c.Request.Context(), userID)
		if err != nil {
			logger.Error("Admin check failed", "user_id", userID, "error", err)
			abort(c, apperr.Internal("admin check", err))
			return
		}
		if !ok {
			abort(c, apperr.Forbidden("admin role required"))
			return
		}
		c.Next()
	}
}

// abort writes the standard error body and stops the chain.
func abort(c *gin.Context, e *apperr.Error) {
	message := e.Message
	if e.Kind == apperr.KindInternal {
		message = "internal server error"
	}
	c.AbortWithStatusJSON(e.Kind.HTTPStatus(), gin.H{
		"success": false,
		"message": message,
		"code":    e.Code,
	})
}
