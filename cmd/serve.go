package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvell/issuelens/internal/server"
	"github.com/nvell/issuelens/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve the issue index over HTTP: sync control, keyword and vector
search, dashboard stats and issue listing. If sync.daily_hour_utc is
configured, a sync run is triggered automatically at that UTC time
each day.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c, err := initComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Store.Close()

	runner, err := newRunner(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Log sync lifecycle events as they happen.
	go func() {
		for evt := range c.Broker.Subscribe(ctx) {
			logger.Info("sync event", "type", string(evt.Type), "message", evt.Message,
				"processed", evt.Processed, "total", evt.Total, "errors", evt.Errors)
		}
	}()

	if cfg.Sync.DailyHourUTC != nil {
		go dailySyncLoop(ctx, runner, *cfg.Sync.DailyHourUTC, cfg.Sync.DailyMinuteUTC, c)
	}

	handler := server.NewHandler(server.AppDeps{
		Store:     c.Store,
		Embedder:  c.Embedder,
		Runner:    runner,
		Threshold: cfg.Search.SimilarityThreshold,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// syncTriggerer matches the runner's background trigger method.
type syncTriggerer interface {
	Trigger(ctx context.Context) (string, error)
}

// dailySyncLoop triggers a sync at hour:minute UTC every day until the
// context is cancelled. A run already in flight at the tick is skipped.
func dailySyncLoop(ctx context.Context, runner syncTriggerer, hour, minute int, c *components) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		syncID, err := runner.Trigger(ctx)
		switch {
		case errors.Is(err, store.ErrSyncRunning):
			c.Logger.Warn("scheduled sync skipped, a run is already live")
		case err != nil:
			c.Logger.Error("scheduled sync failed to start", "error", err)
		default:
			c.Logger.Info("scheduled sync started", "sync_id", syncID)
		}
	}
}
