package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shortlink/internal/session"
)

// RequireSession guards routes behind a live session: the bearer token
// must match the manager's current, non-expired session. Expiry is
// re-checked on every request through the manager's lazy read.
func RequireSession(manager *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing bearer token",
			})
			c.Abort()
			return
		}

		sess := manager.Session()
		if sess == nil || sess.AccessToken != token {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Session expired or invalid",
			})
			c.Abort()
			return
		}

		c.Set("user_email", sess.User.Email)
		c.Next()
	}
}
