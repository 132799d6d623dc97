package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/mangaroo/internal/analysis"
	"github.com/lehigh-university-libraries/mangaroo/internal/bible"
	"github.com/lehigh-university-libraries/mangaroo/internal/config"
	"github.com/lehigh-university-libraries/mangaroo/internal/gemini"
	"github.com/lehigh-university-libraries/mangaroo/internal/generation"
	"github.com/lehigh-university-libraries/mangaroo/internal/imagen"
	"github.com/lehigh-university-libraries/mangaroo/internal/ollama"
	"github.com/lehigh-university-libraries/mangaroo/internal/openai"
	"github.com/lehigh-university-libraries/mangaroo/internal/prompt"
	"github.com/lehigh-university-libraries/mangaroo/internal/providers"
	"github.com/lehigh-university-libraries/mangaroo/internal/storage"
)

// newOrchestrator wires the analyzer, synthesizer and style from cfg.
func newOrchestrator(ctx context.Context, cfg *config.Config, store *storage.SessionStore) (*generation.Orchestrator, error) {
	styles, err := prompt.LoadStyles(cfg.StylesFile)
	if err != nil {
		return nil, err
	}
	style, err := styles.Lookup(cfg.ImageStyle)
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_STYLE: %w", err)
	}

	synth, err := imagen.New(ctx, imagen.Config{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.ImageModel,
		AspectRatio:       cfg.ImageAspectRatio,
		RequestsPerMinute: cfg.ImageRequestsPerMinute,
	})
	if err != nil {
		return nil, err
	}

	genCfg := generation.Config{
		Style:           style,
		PromptLimits:    cfg.PromptLimits(),
		NarrativeLimits: cfg.NarrativeLimits(),
		AnalysisPolicy:  cfg.RetryPolicy(cfg.AnalysisTimeout),
		ImagePolicy:     cfg.RetryPolicy(cfg.ImageTimeout),
		TextTimeout:     cfg.TextTimeout,
	}
	return generation.New(store, newAnalyzer(cfg), synth, genCfg, slog.Default()), nil
}

// newAnalyzer picks the scene analysis provider. Without a usable provider
// the bible is fed page previews only.
func newAnalyzer(cfg *config.Config) bible.Analyzer {
	var provider providers.Provider
	switch cfg.AnalysisProvider {
	case "gemini":
		if cfg.GeminiAPIKey != "" {
			provider = gemini.New(cfg.GeminiAPIKey)
		}
	case "openai":
		if cfg.OpenAIAPIKey != "" {
			provider = openai.New(cfg.OpenAIAPIKey)
		}
	case "ollama":
		provider = ollama.New(cfg.OllamaURL)
	}

	if provider == nil {
		slog.Warn("No analysis provider configured, using page previews", "provider", cfg.AnalysisProvider)
		return analysis.Placeholder{}
	}
	slog.Info("Using analysis provider", "provider", provider.Name(), "model", cfg.AnalysisModel)
	return analysis.NewSceneAnalyzer(provider, cfg.AnalysisModel)
}
