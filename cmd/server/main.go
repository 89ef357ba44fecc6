package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rossigee/slot-rank-tracker/internal/api"
	"github.com/rossigee/slot-rank-tracker/internal/auth"
	"github.com/rossigee/slot-rank-tracker/internal/config"
	"github.com/rossigee/slot-rank-tracker/internal/notify"
	"github.com/rossigee/slot-rank-tracker/internal/registry"
	"github.com/rossigee/slot-rank-tracker/internal/scheduler"
	"github.com/rossigee/slot-rank-tracker/internal/slots"
	"github.com/rossigee/slot-rank-tracker/internal/storage"
)

func main() {
	if err := config.SetupLogging(); err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	cfg, err := config.LoadServer()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
	logrus.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Server) error {
	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close store")
		}
	}()

	var notifier slots.Notifier
	if cfg.RedisURL != "" {
		rdb, err := notify.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			_ = rdb.Close() // Close errors are not critical
		}()
		notifier = notify.NewPublisher(rdb, "")
		logrus.Info("Publishing keyword announcements to Redis")
	}

	validator, err := auth.NewValidator(cfg.APITokensFile, cfg.ClientCAFile)
	if err != nil {
		return err
	}

	writer := registry.NewWriter(store, cfg.RetryAfter, cfg.MaxAttempts)
	handler := api.NewHandler(store, writer, slots.NewService(store, notifier), notifier)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	var guard gin.HandlerFunc
	if validator.Enabled() {
		guard = validator.Middleware()
	}
	api.SetupRoutes(router, handler, guard)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		TLSConfig:         validator.TLSConfig(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.RecheckSchedule != "" {
		sched, err := scheduler.New(store, notifier, cfg.RecheckSchedule)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	g.Go(func() error {
		logrus.WithFields(logrus.Fields{
			"addr":   srv.Addr,
			"tls":    cfg.TLSEnabled(),
			"driver": store.Driver(),
		}).Info("Starting rank registry server")

		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logrus.Info("Shutting down server...")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
