package middleware

import (
	"strings"

	"vpnpanel/internal/httpx"

	"github.com/gin-gonic/gin"
)

// AgentAuth gates agent-originated endpoints behind the process-wide
// shared agent key. Node identity comes from the request body, not the
// credential: this is a single shared-secret trust boundary, distinct
// from the admin session layer. A mismatch rejects the request before
// any side effect; the expected key is never echoed.
func AgentAuth(agentKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing agent credential"))
			c.Abort()
			return
		}
		if agentKey == "" || parts[1] != agentKey {
			httpx.FailErr(c, httpx.ErrInvalidToken("invalid agent key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
