package middleware

import (
	"net/http"
	"strings"

	"vidcall/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// bearerToken extracts the JWT from the Authorization header, falling back
// to the "token" query parameter since browser WebSocket clients cannot set
// custom headers on the upgrade request.
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

func AuthMiddleware(authService ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		// Store peer identity in context
		c.Set("peer_id", claims.PeerID)
		c.Next()
	}
}

func OptionalAuthMiddleware(authService ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		if claims, err := authService.ValidateToken(token); err == nil {
			c.Set("peer_id", claims.PeerID)
		}
		c.Next()
	}
}
