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

	cfg, err := config.LoadPublicServerConfig(*configFile, *envPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"service": "public-server"},
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

	// Guests never present tokens here, so no signing secret is configured.
	backend := api.NewBackend(db, api.BackendOptions{
		SlugCache:  cache.NewRedisSlugCache(redisClient, cfg.Redis.SlugCacheTTL),
		Ledger:     cfg.Ledger,
		Notifier:   websocket.NewRedisPublisher(redisClient),
		Registerer: prometheus.DefaultRegisterer,
	})

	prefix := cfg.Server.PathPrefix + "/v1"
	server := api.NewAPIServer(
		cfg.Server.ListenAddr,
		queue.NewRequestQueueManager(cfg.Worker.QueueSize, cfg.Worker.PoolSize),
		backend,
		nil,
		router.UtilsRoutes(prefix),
		router.ContentPublicRoutes(prefix),
		router.RegistryPublicRoutes(prefix),
	).WithServerConfig(cfg.Server)

	if err := server.Run(ctx); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
