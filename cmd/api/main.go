package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fiado/internal/cache"
	"fiado/internal/config"
	"fiado/internal/credit"
	"fiado/internal/db"
	"fiado/internal/ledger"
	"fiado/internal/repository"
	"fiado/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup logger
	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("starting fiado",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
	)

	// Connect to PostgreSQL
	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()
	logger.Info("connected to PostgreSQL")

	// Run migrations
	if err := repository.Migrate(ctx, database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations applied")

	serviceCfg := credit.Config{
		Store:  repository.NewCreditStore(database, cfg.Credit.LockWait),
		Logger: logger,
	}

	// Connect to TigerBeetle (optional double-entry mirror)
	var ledgerClient *ledger.Client
	if cfg.MirrorEnabled() {
		ledgerClient, err = ledger.NewClient(cfg.TigerBeetle)
		if err != nil {
			return fmt.Errorf("connect to tigerbeetle: %w", err)
		}
		defer ledgerClient.Close()
		serviceCfg.Mirror = ledgerClient
		logger.Info("connected to TigerBeetle", zap.Strings("addresses", cfg.TigerBeetle.Addresses))
	}

	// Connect to Redis (optional availability cache)
	var cacheClient *cache.Client
	if cfg.CacheEnabled() {
		cacheClient, err = cache.NewClient(ctx, cfg.Redis.URL, cfg.Redis.TTL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer cacheClient.Close()
		serviceCfg.Cache = cacheClient
		logger.Info("connected to Redis")
	}

	service := credit.NewService(serviceCfg)

	// Start HTTP server
	srv := server.New(server.Config{
		Port:         cfg.Server.Port,
		DB:           database,
		Service:      service,
		CacheClient:  cacheClient,
		LedgerClient: ledgerClient,
		Credit:       cfg.Credit,
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
