package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"genui-relay/internal/metrics"
	"genui-relay/internal/service"
)

// ChatRateLimitMiddleware corta turnos de chat por encima de la cuota
// del usuario autenticado. Sin limiter configurado deja pasar todo.
func ChatRateLimitMiddleware(limiter service.ChatRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := c.ClientIP()
		if claims, ok := GetAuthClaims(c); ok && claims.UserID != "" {
			key = claims.UserID
		}
		if !limiter.Allow(key) {
			metrics.RateLimitedTotal.Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
