package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Voork1144/just-memory/internal/api"
	"github.com/Voork1144/just-memory/internal/buildconfig"
	"github.com/Voork1144/just-memory/internal/config"
	"github.com/Voork1144/just-memory/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var (
		port    int
		noSweep bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = config.ServerPort()
			}
			return runServe(port, !noSweep)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (default SERVER_PORT)")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "disable the background idle sweep")
	return cmd
}

func runServe(port int, sweep bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	logger := e.logger

	collector := metrics.NewCollector()
	e.svcs.SetRecorder(collector)

	app := api.NewApp(e.backend, e.svcs, collector, api.OptionsFromConfig(), logger)
	defer app.Close()

	if sweep {
		e.svcs.Sweep.Start()
		defer e.svcs.Sweep.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("store", e.backend.Driver),
			zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
