package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/mangaroo/internal/config"
	"github.com/lehigh-university-libraries/mangaroo/internal/storage"
	"github.com/lehigh-university-libraries/mangaroo/internal/textsource"
	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	var (
		pages  string
		outDir string
		style  string
	)

	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render panels for a range of pages without the server",
		Long: `Reads a PDF or text file and generates a panel for each requested page,
in order, writing the images and the final Story Bible to the output directory.`,
		Example: `  # Render the first four pages
  mangaroo render novel.pdf --pages 0-3 --out panels/

  # Render a single page in the webtoon style
  mangaroo render novel.pdf --pages 12 --style webtoon`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if style != "" {
				cfg.ImageStyle = style
			}

			src, err := textsource.Open(args[0])
			if err != nil {
				return err
			}

			first, last, err := parsePageRange(pages, src.TotalPages())
			if err != nil {
				_ = src.Close()
				return err
			}

			store := storage.New()
			defer store.CloseAll()

			orchestrator, err := newOrchestrator(cmd.Context(), cfg, store)
			if err != nil {
				_ = src.Close()
				return err
			}
			session := orchestrator.OpenSession(filepath.Base(args[0]), args[0], src)

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			var failed int
			for page := first; page <= last; page++ {
				res, err := orchestrator.GeneratePanel(cmd.Context(), session.ID, page)
				if err != nil {
					if cmd.Context().Err() != nil {
						return err
					}
					failed++
					continue
				}
				path := filepath.Join(outDir, fmt.Sprintf("page_%04d%s", page, imageExt(res.Image.MIMEType)))
				if err := os.WriteFile(path, res.Image.Data, 0644); err != nil {
					return fmt.Errorf("failed to write panel: %w", err)
				}
				slog.Info("Wrote panel", "page", page, "path", path, "degraded", res.Degraded)
			}

			state := session.Bible.Current()
			data, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode story bible: %w", err)
			}
			if err := os.WriteFile(filepath.Join(outDir, "story_bible.json"), data, 0644); err != nil {
				return fmt.Errorf("failed to write story bible: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d of %d pages to %s (%d characters tracked)\n",
				last-first+1-failed, last-first+1, outDir, len(state.Characters))
			if failed > 0 {
				return fmt.Errorf("%d pages failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pages, "pages", "0", "Zero-based page or range to render (e.g. 5 or 0-3)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "panels", "Directory to write panels to")
	cmd.Flags().StringVar(&style, "style", "", "Style preset (overrides IMAGE_STYLE)")

	return cmd
}

// parsePageRange parses "N" or "A-B" against a document of total pages.
func parsePageRange(s string, total int) (int, int, error) {
	s = strings.TrimSpace(s)
	from, to, isRange := strings.Cut(s, "-")
	first, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	last := first
	if isRange {
		if last, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
			return 0, 0, fmt.Errorf("invalid page range %q", s)
		}
	}
	if first < 0 || last < first || last >= total {
		return 0, 0, fmt.Errorf("page range %q outside document (0-%d)", s, total-1)
	}
	return first, last, nil
}

func imageExt(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
