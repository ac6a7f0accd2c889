// Package main runs the BROCKER.TV HTTP server with stream polling, WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brocker-tv/backend/config"
	"github.com/brocker-tv/backend/internal/accounts"
	"github.com/brocker-tv/backend/internal/auth"
	"github.com/brocker-tv/backend/internal/middleware"
	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/internal/oauth"
	"github.com/brocker-tv/backend/internal/realtime"
	"github.com/brocker-tv/backend/internal/streams"
	"github.com/brocker-tv/backend/internal/telemetry"
	"github.com/brocker-tv/backend/internal/tokens"
	"github.com/brocker-tv/backend/internal/userstate"
	"github.com/brocker-tv/backend/internal/viewers"
	"github.com/brocker-tv/backend/internal/worker"
	"github.com/brocker-tv/backend/pkg/database"
	"github.com/brocker-tv/backend/pkg/queue"
	"github.com/brocker-tv/backend/pkg/redis"
	"github.com/brocker-tv/backend/pkg/response"
	"github.com/brocker-tv/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var exportLinks streams.ExportLinker
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			exportLinks = worker.NewExportLinks(s3Client)
		}
	}

	metrics := telemetry.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		logger.Fatal("register metrics", zap.Error(err))
	}

	upstream := &http.Client{Timeout: cfg.Polling.UpstreamTimeout()}

	// Local users
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	userRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(userRepo, jwtService, cfg.JWT.CookieName, logger)

	// Linked accounts and OAuth flows
	accountRepo := accounts.NewRepository(pool)
	accountHandler := accounts.NewHandler(accountRepo, logger)
	oauthHandler := oauth.NewHandler(accountRepo, userRepo, jwtService, cfg.JWT.CookieName, upstream, logger)
	oauthHandler.AddProvider("twitch", oauth.NewTwitchProvider(oauth.ProviderConfig{
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
		RedirectURL:  cfg.Server.BaseURL + "/auth/twitch/callback",
	}))
	for _, name := range []string{"youtube", "google"} {
		oauthHandler.AddProvider(name, oauth.NewGoogleProvider(oauth.ProviderConfig{
			ClientID:     cfg.YouTube.ClientID,
			ClientSecret: cfg.YouTube.ClientSecret,
			RedirectURL:  cfg.Server.BaseURL + "/auth/" + name + "/callback",
		}))
	}
	oauthHandler.SetSteam(oauth.NewSteam(cfg.Server.BaseURL, ""))

	// Token refresh and viewer adapters
	tokenStore := tokens.NewStore(accountRepo, map[models.Platform]tokens.Refresher{
		models.PlatformTwitch:  tokens.NewTwitchRefresher(cfg.Twitch.ClientID, cfg.Twitch.ClientSecret, upstream),
		models.PlatformYouTube: tokens.NewYouTubeRefresher(cfg.YouTube.ClientID, cfg.YouTube.ClientSecret, upstream),
	}, cfg.Polling.RefreshSkew(), logger)
	adapters := viewers.NewRegistry(
		viewers.NewTwitch(viewers.TwitchConfig{ClientID: cfg.Twitch.ClientID, RatePerMin: cfg.Twitch.RatePerMin}, upstream),
		viewers.NewYouTube(viewers.YouTubeConfig{RatePerMin: cfg.YouTube.RatePerMin}, upstream),
	)

	// Realtime fan-out of samples
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Stream sessions
	streamRepo := streams.NewRepository(pool)
	manager := streams.NewManager(streamRepo, accountRepo, tokenStore, adapters, streams.ManagerConfig{
		Interval:    cfg.Polling.Interval(),
		TickTimeout: cfg.Polling.UpstreamTimeout(),
	}, logger)
	manager.SetSampleListener(hub)
	manager.SetExporter(queue.NewQueue(rdb.Client, logger))
	manager.SetMetrics(metrics)
	streamHandler := streams.NewHandler(manager, streamRepo, exportLinks, logger)

	stateHandler := userstate.NewHandler(userstate.NewRepository(pool), logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"ok": true, "now": time.Now().Unix()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// OAuth / OpenID
	oauthHandler.RegisterRoutes(router)

	api := router.Group("/api")
	{
		// Users
		api.POST("/users", authHandler.Register)
		api.POST("/users/login", authHandler.Login)
		api.GET("/users/:id", authHandler.GetUser)
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/me", authHandler.Me)

		// Stream sessions
		api.POST("/stream/start", streamHandler.Start)
		api.POST("/stream/stop", streamHandler.Stop)
		api.GET("/stream/:id", streamHandler.Get)
		api.GET("/stream/:id/export", streamHandler.ExportURL)

		// Per-user data
		api.GET("/user/:localUser/accounts", accountHandler.List)
		api.GET("/user/:localUser/state", stateHandler.Get)
		api.POST("/user/:localUser/state", stateHandler.Put)
	}

	// Owner only (JWT required)
	owner := api.Group("/user/:localUser")
	owner.Use(middleware.JWT(jwtService, cfg.JWT.CookieName), middleware.RequireLocalUser())
	{
		owner.DELETE("/accounts/:platform", accountHandler.Delete)
		owner.GET("/sessions", streamHandler.ListByUser)
	}

	router.GET("/ws/stream/:id", realtime.ServeWs(hub, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("base_url", cfg.Server.BaseURL))
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
	manager.Shutdown()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
