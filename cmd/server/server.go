package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/domain/title"
	"jan-server/services/chat-api/internal/infrastructure/crontab"
	"jan-server/services/chat-api/internal/infrastructure/logger"
	"jan-server/services/chat-api/internal/infrastructure/observability"
	"jan-server/services/chat-api/internal/interfaces/httpserver"
)

type Application struct {
	Config        *config.Config
	Logger        zerolog.Logger
	HTTPServer    *httpserver.HTTPServer
	MetricsServer *httpserver.MetricsServer
	Crontab       *crontab.Crontab
	Titles        *title.Scheduler
}

// Start runs every component until ctx is cancelled or one of them fails.
func (application *Application) Start(ctx context.Context) error {
	application.Titles.Start(ctx)
	defer application.Titles.Stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return application.Crontab.Run(ctx)
	})
	eg.Go(func() error {
		return application.MetricsServer.Run(ctx)
	})
	eg.Go(func() error {
		return application.HTTPServer.Run(ctx)
	})
	return eg.Wait()
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := CreateApplication()
	if err != nil {
		bootLog := logger.GetLogger()
		bootLog.Error().Err(err).Msg("create application")
		return err
	}
	log := application.Logger

	otelShutdown, err := observability.Setup(ctx, application.Config, log)
	if err != nil {
		log.Error().Err(err).Msg("initialize observability")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown telemetry")
			}
		}()
	}

	log.Info().
		Str("version", config.Version).
		Int("http_port", application.Config.HTTPPort).
		Int("metrics_port", application.Config.MetricsPort).
		Msg("starting chat-api")

	if err := application.Start(ctx); err != nil {
		log.Error().Err(err).Msg("chat-api stopped with error")
		return err
	}
	log.Info().Msg("chat-api stopped")
	return nil
}
