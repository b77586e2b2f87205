package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/karteai/billing/pkg/auth"
)

// SessionEmailKey is the gin context key the authenticated email is stored
// under.
const SessionEmailKey = "sessionEmail"

// SessionAuthMiddleware validates the Bearer session token issued after
// checkout and stores the bound email on the context. Requests without a
// valid token are rejected with 401.
func SessionAuthMiddleware(maker *auth.Maker) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		email, err := maker.ParseSession(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}
		c.Set(SessionEmailKey, email)
		c.Next()
	}
}

// SessionEmail returns the authenticated email set by SessionAuthMiddleware.
func SessionEmail(c *gin.Context) string {
	return c.GetString(SessionEmailKey)
}
