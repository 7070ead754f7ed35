// Package main runs the reference live-event hub with WebSocket and graceful
// shutdown. It is the development/test counterpart of the platform backend's
// live channel, not the platform backend itself.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/adamdasovich/goldventure-live/config"
	"github.com/adamdasovich/goldventure-live/internal/auth"
	"github.com/adamdasovich/goldventure-live/internal/events"
	"github.com/adamdasovich/goldventure-live/internal/hub"
	"github.com/adamdasovich/goldventure-live/internal/middleware"
	redisx "github.com/adamdasovich/goldventure-live/pkg/redis"
	"github.com/adamdasovich/goldventure-live/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Redis is optional: without it the hub broadcasts locally only.
	var pub hub.Publisher
	var sub hub.Subscriber
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			bridge := hub.NewRedisPubSub(rdb.Client, logger)
			pub, sub = bridge, bridge
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	registry := events.NewRegistry()
	h := hub.New(registry, logger, pub, sub)

	authHandler := auth.NewHandler(jwtService, logger)
	eventHandler := events.NewHandler(registry)
	moderationHandler := hub.NewHandler(h)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Dev tokens (public; the platform backend issues real sessions)
	router.POST("/auth/token", authHandler.Token)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/events", eventHandler.List)
		api.POST("/events", middleware.RequireRole("admin"), eventHandler.Create)
		api.GET("/events/:id", eventHandler.GetByID)

		// Question moderation
		api.GET("/events/:id/questions", middleware.RequireRole("admin", "speaker"), moderationHandler.ListQuestions)
		api.PATCH("/events/:id/questions/:questionId/approve", middleware.RequireRole("admin", "speaker"), moderationHandler.Approve)
		api.PATCH("/events/:id/questions/:questionId/answer", middleware.RequireRole("admin", "speaker"), moderationHandler.Answer)
		api.PUT("/events/:id/questions/:questionId/feature", middleware.RequireRole("admin", "speaker"), moderationHandler.Feature)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", h.ServeWS(jwtService.Validate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
