package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/rryowa/quantive/internal/api"
	"github.com/rryowa/quantive/internal/controller"
	"github.com/rryowa/quantive/internal/migrations"
	"github.com/rryowa/quantive/internal/service"
	"github.com/rryowa/quantive/internal/storage"
	"github.com/rryowa/quantive/internal/storage/memory"
	"github.com/rryowa/quantive/internal/storage/postgres"
	"github.com/rryowa/quantive/internal/storage/redis"
	"github.com/rryowa/quantive/internal/util"
)

func main() {
	ctx := context.Background()

	cfg, err := util.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := util.NewZapLogger(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	var (
		store        storage.Storage
		cleanupFuncs []func()
	)
	switch cfg.DB.StorageDriver {
	case util.StorageDriverMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		store = memory.NewStorage(logger)
	default:
		db, dbCleanup, err := util.NewDBConnection(ctx, logger, &cfg.DB)
		if err != nil {
			logger.Fatal(zap.Error(err))
		}
		cleanupFuncs = append(cleanupFuncs, dbCleanup)

		if err := migrations.RunMigrations(db, logger); err != nil {
			logger.Fatal(zap.Error(err))
		}
		store = postgres.NewStorage(db)
	}

	redisClient, redisCleanup, err := util.NewRedisClient(ctx, logger, &cfg.Redis)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	cleanupFuncs = append(cleanupFuncs, redisCleanup)
	defer func() {
		for _, cleanup := range cleanupFuncs {
			cleanup()
		}
	}()

	tokenService := service.NewTokenService(&cfg.Token)
	webhookService := service.NewWebhookService(logger, cfg.Webhook.SecurityURL)

	opts := []service.AuthOption{service.WithSecurityNotifier(webhookService)}
	if redisClient != nil {
		opts = append(opts, service.WithUserCache(redis.NewUserCache(redisClient, cfg.Redis.CacheTTL)))
	}

	authService, err := service.NewAuthService(logger, store, tokenService, &cfg.Token, &cfg.Auth, opts...)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}

	ctrl := controller.NewController(logger, authService)
	bearer := api.BearerAuthMiddleware(tokenService, &cfg.Token, logger)

	apiServer := api.NewAPI(ctrl, logger, &cfg.Server, bearer)
	apiServer.Run(ctx)
}
