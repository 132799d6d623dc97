package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/mangaroo/internal/config"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mangaroo",
		Short: "Turn novels into manga panels page by page",
		Long: `Mangaroo reads a novel one page at a time and illustrates each page as a manga panel.

A per-session Story Bible tracks characters, setting and mood so that
every panel stays visually consistent with the pages before it.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level, err := config.ParseLevel(os.Getenv("LOG_LEVEL"))
			if err != nil {
				slog.Warn("Falling back to info logging", "err", err)
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRenderCmd())

	return cmd
}
