package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/proxyops/proxy-pool/internal/api"
	"github.com/proxyops/proxy-pool/internal/application"
	"github.com/proxyops/proxy-pool/internal/config"
	"github.com/proxyops/proxy-pool/internal/events"
	"github.com/proxyops/proxy-pool/internal/health"
	"github.com/proxyops/proxy-pool/internal/repository"
	"github.com/proxyops/proxy-pool/internal/selection"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.WithField("address", cfg.Server.Address()).Info("Starting proxy pool daemon")

	repo := repository.NewInMemoryProxyRepository()
	publisher := events.NewLogPublisher(log)
	selector := selection.NewSelector(log)
	prober := health.NewHTTPProber(cfg.HealthCheck.ClientIP, log)
	healthService := health.NewService(prober, log)

	pool := application.NewPoolService(
		repo, selector, healthService, publisher, cfg.ApplicationPoolConfig(), log)
	facade := application.NewFacade(pool, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := application.NewScheduler(
		pool, cfg.HealthCheck.Interval.Std(), cfg.HealthCheck.RecoveryInterval.Std(), log)
	scheduler.Start(ctx)

	server := api.NewServer(pool, facade, api.ServerOptions{
		Address:      cfg.Server.Address(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
	}

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown was not clean")
	}

	log.Info("Proxy pool daemon stopped")
}
