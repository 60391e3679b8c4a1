package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"franchisor-portal/internal/config"
	"franchisor-portal/internal/interfaces/router"
	"franchisor-portal/internal/pkg/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	logger.Setup(cfg.Env, cfg.LogLevel)

	app, deps, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}

	// Verify connections before serving
	if deps.DB != nil {
		sqlDB, err := deps.DB.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("Supabase (Postgres): get DB")
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatal().Err(err).Msg("Supabase (Postgres) connection failed")
		}
		log.Info().Msg("Supabase (Postgres) connected")
	}
	if deps.Rdb != nil {
		if err := deps.Rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		log.Info().Msg("Redis connected")
	}
	log.Info().
		Str("port", cfg.Port).
		Str("client_id", cfg.ClientID.String()).
		Bool("realtime", cfg.RealtimeURL() != "").
		Msg("Server running")

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("Shutting down")
	deps.StopStreams()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	if err := deps.Close(); err != nil {
		log.Error().Err(err).Msg("close resources")
	}
}
