package providers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config represents the configuration for a single completion call
type Config struct {
	Model       string
	Temperature float64
	Prompt      string

	// JSON asks the provider to constrain output to a JSON object.
	JSON bool
}

// Provider defines the interface for an LLM text completion provider
type Provider interface {
	Name() string
	Complete(ctx context.Context, config Config) (string, error)
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "gemini":
		return "gemini-1.5-pro"
	case "openai":
		return "gpt-4o"
	case "ollama":
		return "mistral-small3.2:24b"
	default:
		return ""
	}
}

// ParseRetryAfter reads a Retry-After header in either seconds or HTTP-date form.
func ParseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
