// Command storygraph serves per-event character graphs for the reader UI.
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

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/storygraph/internal/api"
	"github.com/persistorai/storygraph/internal/app"
	"github.com/persistorai/storygraph/internal/cache"
	"github.com/persistorai/storygraph/internal/config"
	"github.com/persistorai/storygraph/internal/discovery"
	"github.com/persistorai/storygraph/internal/kv"
	"github.com/persistorai/storygraph/internal/service"
)

const (
	warmQueueSize   = 64
	shutdownTimeout = 15 * time.Second
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("storygraph exited")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, appOptions(cfg), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("closing cache store")
		}
	}()

	if err := a.StartMaintenance(ctx); err != nil {
		return err
	}

	warmer := service.NewWarmWorker(a.Graph, log, warmQueueSize, cfg.WarmWorkers)

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(ctx, &api.RouterDeps{
			Log:         log,
			Graph:       a.Graph,
			Warmer:      warmer,
			Store:       a.Store,
			CORSOrigins: cfg.CORSOrigins,
			Version:     config.Version,
			Backend:     cfg.KVBackend,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		warmer.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"backend": cfg.KVBackend,
			"version": config.Version,
		}).Info("storygraph listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("shutting down")

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func appOptions(cfg *config.Config) app.Options {
	return app.Options{
		Store: kv.OpenConfig{
			Backend:       cfg.KVBackend,
			BadgerPath:    cfg.BadgerPath,
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword.Value(),
			DatabaseURL:   cfg.DatabaseURL.Value(),
			Workers:       cfg.WarmWorkers,
		},
		UpstreamURL: cfg.UpstreamURL,
		Token:       cfg.UpstreamToken.Value(),
		Cache: cache.Options{
			ChapterTTL:  cfg.ChapterTTL,
			ManifestTTL: cfg.ManifestTTL,
		},
		Discovery: discovery.Options{
			FetchDelay:       cfg.FetchDelay,
			MaxScanEvents:    cfg.MaxScanEvents,
			EmptyStreakLimit: cfg.EmptyStreakLimit,
		},
	}
}
