package narrative

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxFieldRunes caps any single observed field. Longer values indicate the
// analysis model ignored the requested shape.
const maxFieldRunes = 2000

// ErrMalformedDelta is returned by Validate for deltas that must not be merged.
var ErrMalformedDelta = errors.New("malformed delta")

// Observation is what the scene analysis saw of one character on one page.
type Observation struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Clothing    string `json:"clothing,omitempty"`
	Expression  string `json:"expression,omitempty"`
}

// Delta is the structured output of scene analysis for a single page.
// Empty strings mean the page was inconclusive for that field.
type Delta struct {
	Characters []Observation `json:"characters,omitempty"`
	Setting    string        `json:"setting,omitempty"`
	Mood       string        `json:"mood,omitempty"`
	Scene      string        `json:"scene,omitempty"`
	Digest     string        `json:"digest,omitempty"`
}

// IsEmpty reports whether the delta carries no usable observation.
func (d Delta) IsEmpty() bool {
	if strings.TrimSpace(d.Setting) != "" || strings.TrimSpace(d.Mood) != "" ||
		strings.TrimSpace(d.Scene) != "" || strings.TrimSpace(d.Digest) != "" {
		return false
	}
	for _, c := range d.Characters {
		if Key(c.Name) != "" {
			return false
		}
	}
	return true
}

// Validate rejects deltas whose shape cannot be merged safely.
func (d Delta) Validate() error {
	for i, c := range d.Characters {
		if Key(c.Name) == "" {
			return fmt.Errorf("%w: character %d has no name", ErrMalformedDelta, i)
		}
		if field, ok := oversized("name", c.Name, "description", c.Description, "clothing", c.Clothing, "expression", c.Expression); ok {
			return fmt.Errorf("%w: character %q %s exceeds %d runes", ErrMalformedDelta, c.Name, field, maxFieldRunes)
		}
	}
	if field, ok := oversized("setting", d.Setting, "mood", d.Mood, "scene", d.Scene, "digest", d.Digest); ok {
		return fmt.Errorf("%w: %s exceeds %d runes", ErrMalformedDelta, field, maxFieldRunes)
	}
	return nil
}

// oversized takes name/value pairs and returns the first field over the cap.
func oversized(pairs ...string) (string, bool) {
	for i := 0; i+1 < len(pairs); i += 2 {
		if utf8.RuneCountInString(pairs[i+1]) > maxFieldRunes {
			return pairs[i], true
		}
	}
	return "", false
}
