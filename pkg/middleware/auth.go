package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Sumit-1011/CampusXchange/pkg/log"
	"github.com/Sumit-1011/CampusXchange/pkg/response"
)

const (
	UserIDKey     = "user_id"
	EmailKey      = "email"
	UsernameKey   = "username"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// Identity is the authenticated caller resolved from a bearer token.
type Identity struct {
	UserID   string
	Email    string
	Username string
}

// TokenValidator resolves a raw bearer token into an identity.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
}

// AuthMiddleware validates bearer tokens on protected routes.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth returns a Gin middleware that rejects requests without a
// valid bearer token and stores the caller identity on the context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader(AuthHeaderKey))
		if token == "" {
			response.Unauthorized(c, "access denied")
			return
		}

		ctx := c.Request.Context()
		identity, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			l := log.Ctx(ctx)
			l.Debug().Err(err).Msg("bearer token rejected")
			response.Unauthorized(c, "invalid token")
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(EmailKey, identity.Email)
		c.Set(UsernameKey, identity.Username)

		c.Next()
	}
}

// BearerToken strips the "Bearer " prefix. It returns "" when the header is
// empty or uses another scheme.
func BearerToken(header string) string {
	if !strings.HasPrefix(header, BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}
