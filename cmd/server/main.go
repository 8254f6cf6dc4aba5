package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Newton-b/shipsmart-sub002/internal/api"
	"github.com/Newton-b/shipsmart-sub002/internal/carrier/registry"
	"github.com/Newton-b/shipsmart-sub002/internal/core/service"
	"github.com/Newton-b/shipsmart-sub002/internal/infrastructure/config"
	mongodb "github.com/Newton-b/shipsmart-sub002/internal/infrastructure/db/mongo"
	redisdb "github.com/Newton-b/shipsmart-sub002/internal/infrastructure/db/redis"
	"github.com/Newton-b/shipsmart-sub002/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- MongoDB ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb connection failed")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("mongodb disconnect failed")
		}
	}()
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")

	// --- Redis ---
	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close failed")
		}
	}()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

	// --- Repositories ---
	eventRepo := mongodb.NewTrackingEventRepository(db)
	configRepo := mongodb.NewCarrierConfigRepository(db)
	dedup := redisdb.NewEventDedup(rdb)

	if err := eventRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("tracking event index creation failed")
	}
	if err := configRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("carrier config index creation failed")
	}

	// --- Carrier registry and service ---
	reg, err := registry.NewRegistry(ctx, configRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("carrier registry initialisation failed")
	}

	trackingService := service.NewTrackingService(reg, eventRepo, dedup, cfg.BatchConcurrency, log)

	// --- HTTP server ---
	e := api.NewRouter(trackingService, db, rdb, log)

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting http server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	log.Info().Msg("server stopped")
}
