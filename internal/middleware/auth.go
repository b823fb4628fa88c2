package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fleetwatch/pkg/utils"
)

const UsernameKey = "username"

// AuthMiddleware verifies bearer tokens issued by the external auth service.
// An empty secret disables verification.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(token, secret)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(UsernameKey, claims.Username)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for WebSocket upgrades, which cannot set headers.
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return c.Query("token")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
