package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"roostersync/internal/logging"
	"roostersync/internal/server"
)

func newServeCmd() *cobra.Command {
	var listen string
	var withSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the calendar files",
		Long: `Exposes registration, custom-event operations and the emitted .ics
files over HTTP, plus /health and /metrics. With --sync the background
refresh loops run in the same process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if listen != "" {
				a.cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if withSync {
				go func() {
					if err := a.engine.Start(ctx); err != nil {
						slog.Error("background sync stopped", logging.Err(err))
					}
				}()
			}

			srv := &http.Server{
				Addr:    a.cfg.Listen,
				Handler: server.NewServer(a.users, a.engine, a.cfg.OutputDir).Handler(),
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("starting HTTP server", slog.String("listen", "http://"+a.cfg.Listen))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&withSync, "sync", true, "Also run the background refresh loops")
	return cmd
}
