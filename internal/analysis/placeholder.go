package analysis

import (
	"context"
	"strings"

	"github.com/lehigh-university-libraries/mangaroo/internal/narrative"
)

const previewWords = 50

// Placeholder derives a minimal delta from the page text alone. It is used
// when no analysis provider is configured.
type Placeholder struct{}

// Analyze implements bible.Analyzer.
func (Placeholder) Analyze(_ context.Context, pageText string, _ narrative.State) (narrative.Delta, error) {
	preview := Preview(pageText)
	if preview == "" {
		return narrative.Delta{}, nil
	}
	return narrative.Delta{
		Scene:  "Scene based on: " + preview,
		Digest: preview,
	}, nil
}

// Preview returns the first fifty words of text.
func Preview(text string) string {
	words := strings.Fields(text)
	if len(words) > previewWords {
		return strings.Join(words[:previewWords], " ") + "..."
	}
	return strings.Join(words, " ")
}
