package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rossigee/slot-rank-tracker/internal/jobs"
	"github.com/rossigee/slot-rank-tracker/internal/metrics"
	"github.com/rossigee/slot-rank-tracker/internal/notify"
	"github.com/rossigee/slot-rank-tracker/internal/registry"
	"github.com/rossigee/slot-rank-tracker/internal/storage"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Claims keyword jobs from the registry database continuously until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context())
		},
	}
}

func (a *app) watch(ctx context.Context) error {
	store, err := storage.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close store")
		}
	}()

	worker, err := a.newWorker()
	if err != nil {
		return err
	}

	if a.cfg.RedisURL != "" {
		rdb, err := notify.Connect(ctx, a.cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			_ = rdb.Close() // Close errors are not critical
		}()

		sub, err := notify.Subscribe(ctx, rdb, "")
		if err != nil {
			return err
		}
		defer func() {
			_ = sub.Close() // Close errors are not critical
		}()
		worker.SetWake(sub.Wake())
	}

	writer := registry.NewWriter(store, a.cfg.RetryAfter, a.cfg.MaxAttempts)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(ctx, store, writer)
	})

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           statusRouter(worker),
			ReadHeaderTimeout: 15 * time.Second,
		}
		g.Go(func() error {
			logrus.WithField("addr", srv.Addr).Info("Serving resolver metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// statusRouter exposes Prometheus metrics and the worker's current run
func statusRouter(worker *jobs.Worker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", metrics.Handler())
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, worker.Status())
	})
	return router
}
