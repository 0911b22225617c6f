package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"genui-relay/internal/c1"
	"genui-relay/internal/config"
	"genui-relay/internal/db"
	apihttp "genui-relay/internal/http"
	"genui-relay/internal/repository"
	"genui-relay/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var (
		threadRepo    repository.ThreadRepository
		messageRepo   repository.MessageRepository
		userRepo      repository.UserRepository
		embeddingRepo repository.EmbeddingRepository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPebble:
		store, err := repository.OpenPebble(cfg.PebblePath)
		if err != nil {
			logger.Fatal("pebble open", zap.Error(err))
		}
		defer store.Close()
		threadRepo = repository.NewPebbleThreadRepository(store)
		messageRepo = repository.NewPebbleMessageRepository(store)
		userRepo = repository.NewPebbleUserRepository(store)
		logger.Info("store driver", zap.String("driver", config.StoreDriverPebble), zap.String("path", cfg.PebblePath))
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		threadRepo = repository.NewPgThreadRepository(pool)
		messageRepo = repository.NewPgMessageRepository(pool)
		userRepo = repository.NewPgUserRepository(pool)
		// Sin modelo de embeddings la búsqueda queda deshabilitada
		// aunque el driver pueda persistir vectores.
		if cfg.EmbeddingsModel != "" {
			embeddingRepo = repository.NewPgEmbeddingRepository(pool)
		}
		logger.Info("store driver", zap.String("driver", config.StoreDriverPostgres))
	}

	c1Client := c1.NewHTTPClient(c1.Config{
		BaseURL:          cfg.C1BaseURL,
		APIKey:           cfg.C1APIKey,
		Model:            cfg.C1Model,
		EmbeddingsModel:  cfg.EmbeddingsModel,
		FirstByteTimeout: time.Duration(cfg.UpstreamFirstByteTimeoutSeconds) * time.Second,
		IdleTimeout:      time.Duration(cfg.UpstreamIdleTimeoutSeconds) * time.Second,
	}, logger)

	var (
		tokenStore  service.RefreshTokenStore
		chatLimiter service.ChatRateLimiter
		respCache   service.ResponseCache
		redisClient *redis.Client
	)
	rateWindow := time.Duration(cfg.ChatRateWindowSeconds) * time.Second
	cacheTTL := time.Duration(cfg.ResponseCacheTTLMinutes) * time.Minute
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
			chatLimiter = service.NewRedisChatRateLimiter(redisClient, rateWindow, cfg.ChatRateMax)
			respCache = service.NewRedisResponseCache(redisClient, cacheTTL)
		}
		cancel()
	}
	if chatLimiter == nil {
		chatLimiter = service.NewMemoryChatRateLimiter(rateWindow, cfg.ChatRateMax)
	}
	if respCache == nil {
		respCache = service.NewMemoryResponseCache(cacheTTL)
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	userSvc := service.NewUserService(userRepo)
	threadSvc := service.NewThreadService(threadRepo, c1Client)
	messageSvc := service.NewMessageService(messageRepo, threadSvc)
	searchSvc := service.NewSearchService(c1Client, embeddingRepo, logger)
	if !searchSvc.Enabled() {
		logger.Info("semantic search disabled")
	}
	relaySvc := service.NewRelayService(threadSvc, messageRepo, c1Client, respCache, searchSvc, logger)
	actionSvc := service.NewActionService(relaySvc)

	authHandler := apihttp.NewAuthHandler(logger, userSvc, jwtSvc)
	chatHandler := apihttp.NewChatHandler(logger, relaySvc, actionSvc, threadSvc, respCache)
	threadHandler := apihttp.NewThreadHandler(logger, threadSvc, messageSvc, searchSvc)
	router := apihttp.NewRouter(logger, apihttp.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		JWTService:     jwtSvc,
		ChatLimiter:    chatLimiter,
	}, authHandler, chatHandler, threadHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Shutdown con drenado: los streams en vuelo terminan solos dentro
	// de la ventana antes de cortar.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-sigCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
