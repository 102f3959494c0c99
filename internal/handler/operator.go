package handler

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

// OperatorKeyHeader carries the shared secret of the system operator that
// registers members and mints their tokens.
const OperatorKeyHeader = "X-Operator-Key"

// RequireOperator guards routes that act on behalf of arbitrary members.
// With no key configured the routes are closed to everyone.
func RequireOperator(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			RenderError(c, domain.ErrForbidden)
			return
		}

		presented := c.GetHeader(OperatorKeyHeader)
		if presented == "" {
			RenderError(c, domain.ErrMissingCredential)
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			l := log.Ctx(c.Request.Context())
			l.Warn().Str("client_ip", c.ClientIP()).Msg("operator key mismatch")
			RenderError(c, domain.ErrInvalidCredential)
			return
		}
		c.Next()
	}
}
