package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ytgate/internal/quota"
)

// APIKeyContextKey is the gin context key under which the authorized key
// record is stored for downstream handlers.
const APIKeyContextKey = "api_key"

// extractKey pulls the bearer key from the request: the apikey query
// parameter first (the documented form), then an Authorization bearer header.
func extractKey(c *gin.Context) string {
	if key := c.Query("apikey"); key != "" {
		return key
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return ""
}

// GateMiddleware authorizes each request through the quota gate, consuming
// one unit of daily quota on admission. Gate rejections map to distinct
// client-facing statuses and are never collapsed into a generic failure.
func GateMiddleware(gate *quota.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.ToUpper(strings.TrimSpace(extractKey(c)))
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key is required"})
			return
		}

		apiKey, err := gate.Authorize(key, time.Now().UTC())
		if err != nil {
			switch {
			case errors.Is(err, quota.ErrInvalidKey):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid API key"})
			case errors.Is(err, quota.ErrInactive):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "API key is not active"})
			case errors.Is(err, quota.ErrExpired):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "API key has expired"})
			case errors.Is(err, quota.ErrLimitExceeded):
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Daily usage limit exceeded"})
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Key store unavailable"})
			}
			return
		}

		c.Set(APIKeyContextKey, apiKey)
		c.Next()
	}
}

// AdminAuthMiddleware protects the admin API with HTTP basic auth.
func AdminAuthMiddleware(adminPassword string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, password, hasAuth := c.Request.BasicAuth()
		if !hasAuth || user != "admin" || password != adminPassword {
			c.Header("WWW-Authenticate", `Basic realm="Restricted"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
