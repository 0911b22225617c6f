package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"genui-relay/internal/service"
)

// RouterConfig agrupa lo que el router necesita además de los handlers.
type RouterConfig struct {
	AllowedOrigins []string
	JWTService     *service.JWTService
	ChatLimiter    service.ChatRateLimiter
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	cfg RouterConfig,
	authH *AuthHandler,
	chatH *ChatHandler,
	threadH *ThreadHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y CORS para browsers.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/auth")
	auth.POST("/register", authH.Register)
	auth.POST("/login", authH.Login)
	auth.POST("/refresh", authH.Refresh)

	authed := r.Group("/", JWTAuthMiddleware(cfg.JWTService))

	// Los turnos de chat (y las acciones de widgets, que también
	// disparan un turno) pasan por el rate limiter.
	turns := authed.Group("/", ChatRateLimitMiddleware(cfg.ChatLimiter))
	turns.POST("/chat", chatH.Chat)
	turns.POST("/threads/:id/actions", chatH.Action)

	authed.GET("/responses/:responseId", chatH.GetResponse)

	threads := authed.Group("/threads")
	threads.POST("", threadH.Create)
	threads.GET("", threadH.List)
	threads.GET("/search", threadH.Search)
	threads.GET("/:id", threadH.Get)
	threads.PUT("/:id", threadH.Rename)
	threads.DELETE("/:id", threadH.Delete)
	threads.GET("/:id/messages", threadH.ListMessages)
	threads.PUT("/:id/messages/:messageId", threadH.UpdateMessage)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
