package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajayykmr/persona-dispatch/internal/api"
	"github.com/ajayykmr/persona-dispatch/internal/bootstrap"
	"github.com/ajayykmr/persona-dispatch/internal/config"
	"github.com/ajayykmr/persona-dispatch/internal/logger"
)

const serviceName = "dispatch-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(logger.Options{Service: serviceName, Env: cfg.App.Env, Level: cfg.App.LogLevel})
	if err != nil {
		fail("logger init", err)
	}
	log := *baseLogger

	dispatcher, err := bootstrap.Dispatcher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatcher")
	}

	opts := []api.HandlerOption{
		api.WithFormat(bootstrap.Format(cfg)),
		api.WithBackend(bootstrap.Backend(cfg)),
		api.WithMaxBodyBytes(cfg.HTTP.RequestMaxBytes),
	}

	events, closeEvents, err := bootstrap.Events(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise batch events")
	}
	defer func() {
		if err := closeEvents(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()
	if events != nil {
		opts = append(opts, api.WithPublisher(events))
	}

	handler, err := api.NewHandler(dispatcher, log, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise api handler")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.HTTP.AllowedOrigins}, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Int("port", cfg.App.Port).Str("backend", bootstrap.Backend(cfg)).Msg("dispatch api started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server terminated with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}

func fail(stage string, err error) {
	l := logger.Fallback(serviceName)
	l.Fatal().Err(err).Str("stage", stage).Msg("dispatch api init failed")
}
