package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/mangaroo/internal/imagen"
	"github.com/lehigh-university-libraries/mangaroo/internal/narrative"
	"github.com/lehigh-university-libraries/mangaroo/internal/prompt"
	"github.com/lehigh-university-libraries/mangaroo/internal/retry"
	"github.com/lehigh-university-libraries/mangaroo/internal/textsource"
)

// Config holds every setting read from the environment.
type Config struct {
	Port          string
	UploadDir     string
	MaxFileSizeMB int64

	SummaryBudget int
	MaxCharacters int
	ExcerptBudget int
	PromptBudget  int
	RecentPages   int

	ImageStyle string
	StylesFile string

	AnalysisProvider string
	AnalysisModel    string
	GeminiAPIKey     string
	OpenAIAPIKey     string
	OllamaURL        string

	ImageModel             string
	ImageAspectRatio       string
	ImageRequestsPerMinute int

	AnalysisTimeout time.Duration
	ImageTimeout    time.Duration
	TextTimeout     time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	PageCacheTTL time.Duration
	LogLevel     slog.Level
}

var providers = map[string]bool{"gemini": true, "openai": true, "ollama": true, "none": true}

// Load reads the configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	var errs []error
	c := &Config{
		Port:             envString("PORT", "8888"),
		UploadDir:        envString("UPLOAD_DIR", "uploads"),
		ImageStyle:       envString("IMAGE_STYLE", prompt.DefaultStyle),
		StylesFile:       os.Getenv("STYLES_FILE"),
		AnalysisProvider: strings.ToLower(envString("ANALYSIS_PROVIDER", "gemini")),
		AnalysisModel:    os.Getenv("ANALYSIS_MODEL"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OllamaURL:        os.Getenv("OLLAMA_URL"),
		ImageModel:       envString("IMAGE_MODEL", imagen.DefaultModel),
		ImageAspectRatio: envString("IMAGE_ASPECT_RATIO", imagen.DefaultAspectRatio),
	}

	c.MaxFileSizeMB = int64(envInt("MAX_FILE_SIZE_MB", 50, &errs))
	c.SummaryBudget = envInt("MAX_CONTEXT_LENGTH", narrative.DefaultSummaryBudget, &errs)
	c.MaxCharacters = envInt("MAX_CHARACTERS", narrative.DefaultMaxCharacters, &errs)
	c.ExcerptBudget = envInt("EXCERPT_BUDGET", prompt.DefaultExcerptBudget, &errs)
	c.PromptBudget = envInt("PROMPT_BUDGET", prompt.DefaultPromptBudget, &errs)
	c.RecentPages = envInt("RECENT_PAGES", prompt.DefaultRecentPages, &errs)
	c.ImageRequestsPerMinute = envInt("IMAGE_REQUESTS_PER_MINUTE", 10, &errs)
	c.RetryAttempts = envInt("RETRY_ATTEMPTS", 3, &errs)

	c.AnalysisTimeout = envDuration("ANALYSIS_TIMEOUT", 60*time.Second, &errs)
	c.ImageTimeout = envDuration("IMAGE_TIMEOUT", 120*time.Second, &errs)
	c.TextTimeout = envDuration("TEXT_TIMEOUT", 10*time.Second, &errs)
	c.RetryBaseDelay = envDuration("RETRY_BASE_DELAY", time.Second, &errs)
	c.RetryMaxDelay = envDuration("RETRY_MAX_DELAY", 10*time.Second, &errs)
	c.PageCacheTTL = envDuration("PAGE_CACHE_TTL", textsource.DefaultCacheTTL, &errs)

	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		errs = append(errs, err)
	}
	c.LogLevel = level

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := []struct {
		name  string
		value int64
	}{
		{"MAX_FILE_SIZE_MB", c.MaxFileSizeMB},
		{"MAX_CONTEXT_LENGTH", int64(c.SummaryBudget)},
		{"MAX_CHARACTERS", int64(c.MaxCharacters)},
		{"EXCERPT_BUDGET", int64(c.ExcerptBudget)},
		{"PROMPT_BUDGET", int64(c.PromptBudget)},
		{"RETRY_ATTEMPTS", int64(c.RetryAttempts)},
		{"ANALYSIS_TIMEOUT", int64(c.AnalysisTimeout)},
		{"IMAGE_TIMEOUT", int64(c.ImageTimeout)},
		{"TEXT_TIMEOUT", int64(c.TextTimeout)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", p.name))
		}
	}
	if c.RecentPages < 0 {
		errs = append(errs, fmt.Errorf("RECENT_PAGES must not be negative"))
	}
	if c.ImageRequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("IMAGE_REQUESTS_PER_MINUTE must not be negative"))
	}
	if !providers[c.AnalysisProvider] {
		errs = append(errs, fmt.Errorf("unsupported ANALYSIS_PROVIDER: %s", c.AnalysisProvider))
	}
	return errors.Join(errs...)
}

func (c *Config) NarrativeLimits() narrative.Limits {
	return narrative.Limits{SummaryBudget: c.SummaryBudget, MaxCharacters: c.MaxCharacters}
}

func (c *Config) PromptLimits() prompt.Limits {
	return prompt.Limits{ExcerptBudget: c.ExcerptBudget, PromptBudget: c.PromptBudget, RecentPages: c.RecentPages}
}

// RetryPolicy returns the shared backoff settings with a per-attempt timeout.
func (c *Config) RetryPolicy(attemptTimeout time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts:    c.RetryAttempts,
		BaseDelay:      c.RetryBaseDelay,
		MaxDelay:       c.RetryMaxDelay,
		AttemptTimeout: attemptTimeout,
	}
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxFileSizeMB << 20
}

// ParseLevel maps a LOG_LEVEL value onto a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL: %s", s)
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return n
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return d
}
