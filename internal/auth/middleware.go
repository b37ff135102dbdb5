package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/ledger"
)

// Identity headers set by the authenticating reverse proxy in front of the
// catalogue. The service trusts them; transport-level authentication is the
// proxy's concern.
const (
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"
)

// Middleware extracts the acting user from request headers into the request
// context. Requests without identity headers proceed with no actor attached;
// individual operations decide whether that is acceptable.
func Middleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx = ContextWithRequestID(ctx, requestID)
		c.Header(HeaderRequestID, requestID)

		if email := c.GetHeader(HeaderUserEmail); email != "" {
			actor := ledger.Actor{
				Email:    email,
				FullName: c.GetHeader(HeaderUserName),
				Role:     c.GetHeader(HeaderUserRole),
			}
			ctx = ContextWithActor(ctx, actor)

			logger.Debug("request actor resolved",
				zap.String("request_id", requestID),
				zap.String("email", email),
				zap.String("role", actor.Role))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
