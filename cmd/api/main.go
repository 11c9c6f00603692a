package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"giftsplit-backend/bootstrap"
	"giftsplit-backend/internal/config"
	"giftsplit-backend/internal/interfaces/router"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	bootstrap.ConfigureLogging(cfg)

	app, db, rdb, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create failed")
	}

	// Verify connections before listening
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Postgres: get DB failed")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("Postgres connection failed")
	}
	log.Info().Msg("Postgres connected")
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		log.Info().Msg("Redis connected")
	}
	cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Server running")
	log.Info().Msgf("Health check: http://localhost:%s/health/json", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("listen failed")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	_ = sqlDB.Close()
}
