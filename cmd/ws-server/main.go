package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wedding-site-backend/internal/api"
	"wedding-site-backend/internal/api/router"
	"wedding-site-backend/internal/cache"
	"wedding-site-backend/internal/config"
	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/logger"
	"wedding-site-backend/internal/queue"
	"wedding-site-backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	envPath := flag.String("env", "", "directory holding .env files")
	flag.Parse()

	cfg, err := config.LoadWSServerConfig(*configFile, *envPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"service": "ws-server"},
	}); err != nil {
		logger.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer logger.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(ctx, cfg.DynamoDB, cfg.Store, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	redisClient := cache.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	hub := websocket.NewHub(prometheus.DefaultRegisterer)
	go hub.Run(ctx)

	handler := websocket.NewHandler(hub, redisClient, cfg.Server.AllowedOrigins)
	go func() {
		if err := handler.Subscribe(ctx); err != nil {
			logger.Error(err, zap.String("component", "registry subscriber"))
			stop()
		}
	}()

	backend := api.NewBackend(db, api.BackendOptions{
		SlugCache: cache.NewRedisSlugCache(redisClient, cfg.Redis.SlugCacheTTL),
		JWTSecret: cfg.Auth.JWTSecret,
	})

	prefix := cfg.Server.PathPrefix + "/v1"
	server := api.NewAPIServer(
		cfg.Server.ListenAddr,
		queue.NewRequestQueueManager(cfg.Worker.QueueSize, cfg.Worker.PoolSize),
		backend,
		handler,
		router.UtilsRoutes(prefix),
		router.LiveRoutes(prefix),
	).WithServerConfig(cfg.Server)

	if err := server.Run(ctx); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
