package main

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"driftwood/internal/archiver"
	"driftwood/internal/auth"
	"driftwood/internal/content"
	"driftwood/internal/handlers"
	"driftwood/internal/resolver"
	"driftwood/internal/session"
	"driftwood/pkg/clients/telegram"
	"driftwood/pkg/clients/youtube"
	"driftwood/pkg/config"
	"driftwood/pkg/database"
	dbsql "driftwood/pkg/database/sql"
	"driftwood/pkg/logging"
	"driftwood/pkg/middleware"
	"driftwood/pkg/monitoring"
	"driftwood/pkg/server"
	"driftwood/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("driftwood")
	config.LoadEnv(logger)

	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.RequireEnv("DATABASE_URL")
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if err := dbsql.EnsureSchema(context.Background(), db); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}

	adminToken := config.RequireEnv("ADMIN_TOKEN")

	upstream := youtube.NewClient(youtube.Config{
		Timeout: config.GetEnvDuration("RESOLVE_TIMEOUT", 20*time.Second),
		Logger:  logger,
	})

	var blobs *telegram.Client
	botToken := config.GetEnv("TELEGRAM_BOT_TOKEN", "")
	channelID := config.GetEnv("TELEGRAM_CHANNEL_ID", "")
	if botToken != "" && channelID != "" {
		blobs = telegram.NewClient(telegram.Config{
			BotToken:      botToken,
			ChannelID:     channelID,
			UploadTimeout: config.GetEnvDuration("UPLOAD_TIMEOUT", 5*time.Minute),
			Logger:        logger,
		})
	} else {
		logger.Warn("Telegram credentials not set, durable archiving disabled")
	}

	keystore := auth.NewKeystore(db, auth.Config{
		AdminDailyLimit:   int64(config.GetEnvInt("ADMIN_DAILY_LIMIT", 10000000)),
		RegularDailyLimit: int64(config.GetEnvInt("REGULAR_DAILY_LIMIT", 1000)),
	}, logger)

	contentStore := content.NewStore(db, logger)

	broker := session.NewBroker(config.GetEnvDuration("SESSION_EXPIRY", session.DefaultExpiry), logger)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	broker.StartSweeper(sweepCtx, time.Hour)

	healthChecker := monitoring.NewHealthChecker("driftwood", version.Version)
	healthChecker.AddCheck("storage", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("resolver", monitoring.PingHealthCheck("resolution upstream", upstream))
	if blobs != nil {
		healthChecker.AddCheck("archiver", monitoring.PingHealthCheck("blob store", blobs))
	} else {
		healthChecker.AddCheck("archiver", monitoring.PingHealthCheck("blob store", nil))
	}

	metricsCollector := monitoring.NewMetricsCollector("driftwood", version.Version, version.GitCommit)

	sessionsGauge := metricsCollector.NewGauge(
		"active_sessions",
		"Live stream sessions held by the broker",
		[]string{},
	).WithLabelValues()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			sessionsGauge.Set(float64(broker.Len()))
		}
	}()

	handlerConfig := handlers.Config{
		Keystore:     keystore,
		ContentStore: contentStore,
		Resolver:     resolver.New(upstream, logger),
		Broker:       broker,
		Logger:       logger,
		Metrics:      metricsCollector,
	}
	if blobs != nil {
		handlerConfig.Archiver = archiver.New(blobs, contentStore, archiver.Config{
			DownloadTimeout: config.GetEnvDuration("DOWNLOAD_TIMEOUT", 5*time.Minute),
		}, logger)
		handlerConfig.DurableURLs = blobs
	}
	handlers.Init(handlerConfig)

	router := server.SetupServiceRouter(logger, "driftwood", healthChecker, metricsCollector)

	var limitStore middleware.RateLimitStore
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		opts, err := goredis.ParseURL(redisURL)
		if err != nil {
			logger.WithError(err).Fatal("Invalid REDIS_URL")
		}
		limitStore = middleware.NewRedisRateLimitStore(goredis.NewClient(opts))
		logger.Info("Rate limiting backed by Redis")
	} else {
		limitStore = middleware.NewMemoryRateLimitStore()
	}
	router.Use(middleware.RateLimitMiddleware(
		limitStore,
		config.GetEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		time.Minute,
		logger,
	))

	router.GET("/info", handlers.GetInfo)
	router.GET("/content", auth.RequireAPIKey(keystore, logger), handlers.GetContent)
	router.GET("/stream/:session_id", handlers.GetStream)

	admin := router.Group("/admin", auth.RequireAdminToken(adminToken, logger))
	admin.POST("/keys", handlers.CreateKey)
	admin.GET("/keys", handlers.ListKeys)
	admin.DELETE("/keys/:key_id", handlers.DeleteKey)
	admin.GET("/stats", handlers.GetStats)

	serverConfig := server.DefaultConfig("driftwood", "18090")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server exited with error")
	}
}
