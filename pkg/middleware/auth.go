package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

const (
	MemberIDKey    = log.FieldMemberID
	AuthHeaderKey  = "Authorization"
	MemberIDHeader = "X-Member-Id"
)

// Authenticator resolves request credentials into a member id.
type Authenticator interface {
	Authenticate(ctx context.Context, memberHeader, authorization string) (int64, error)
}

// ErrorRenderer writes an aborting error response for err.
type ErrorRenderer func(c *gin.Context, err error)

// AuthMiddleware validates the caller identity for protected routes.
type AuthMiddleware struct {
	auth   Authenticator
	render ErrorRenderer
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(auth Authenticator, render ErrorRenderer) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, render: render}
}

// RequireAuth returns a Gin middleware that rejects unauthenticated requests
// and stores the member id in the context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		memberID, err := m.auth.Authenticate(
			c.Request.Context(),
			c.GetHeader(MemberIDHeader),
			c.GetHeader(AuthHeaderKey),
		)
		if err != nil {
			m.render(c, err)
			return
		}

		c.Set(MemberIDKey, memberID)
		ctx := log.With(c.Request.Context(), func(lc zerolog.Context) zerolog.Context {
			return lc.Int64(log.FieldMemberID, memberID)
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetMemberID extracts the authenticated member id from Gin context.
func GetMemberID(c *gin.Context) int64 {
	if id, exists := c.Get(MemberIDKey); exists {
		if v, ok := id.(int64); ok {
			return v
		}
	}
	return 0
}
