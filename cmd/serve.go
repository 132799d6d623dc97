package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/mangaroo/internal/config"
	"github.com/lehigh-university-libraries/mangaroo/internal/handlers"
	"github.com/lehigh-university-libraries/mangaroo/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reader API server",
		Long: `Starts the Mangaroo reader API on the specified port.

Upload a PDF, page through its text and generate a manga panel for
each page. Settings are read from the environment (or a .env file).`,
		Example: `  # Start server on the port from PORT (default 8888)
  mangaroo serve

  # Start server on custom port
  mangaroo serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			store := storage.New()
			defer store.CloseAll()

			orchestrator, err := newOrchestrator(cmd.Context(), cfg, store)
			if err != nil {
				return err
			}

			handler := handlers.New(orchestrator, handlers.Config{
				UploadDir:      cfg.UploadDir,
				MaxUploadBytes: cfg.MaxUploadBytes(),
				PageCacheTTL:   cfg.PageCacheTTL,
			})
			mux := http.NewServeMux()
			handler.Routes(mux)

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				slog.Info("Mangaroo reader available", "addr", addr, "url", "http://localhost"+addr, "style", cfg.ImageStyle)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				// Wait for Ctrl+C or a server error
				<-ctx.Done()
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")

	return cmd
}
