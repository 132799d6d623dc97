package prompt

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultStyle is used when no preset is configured.
const DefaultStyle = "manga"

// ErrUnknownStyle is returned when a preset name is not registered.
var ErrUnknownStyle = errors.New("unknown style preset")

// Style is a fixed set of art directives. It never comes from page content.
type Style struct {
	Name        string `yaml:"-" json:"name"`
	Art         string `yaml:"art" json:"art"`
	Palette     string `yaml:"palette" json:"palette"`
	Framing     string `yaml:"framing" json:"framing"`
	Negative    string `yaml:"negative" json:"negative,omitempty"`
	AspectRatio string `yaml:"aspect_ratio" json:"aspect_ratio,omitempty"`
}

// Styles is the registry of presets keyed by lower-case name.
type Styles map[string]Style

// DefaultStyles returns the built-in presets.
func DefaultStyles() Styles {
	return Styles{
		"manga": {
			Name:     "manga",
			Art:      "Professional manga illustration, Japanese manga art style, detailed linework, clean lines, expressive characters",
			Palette:  "black and white with screentones",
			Framing:  "single dramatic panel, dynamic composition",
			Negative: "color, photorealistic, text, speech bubbles, watermark",
		},
		"shoujo": {
			Name:     "shoujo",
			Art:      "Shoujo manga illustration, delicate linework, large expressive eyes, decorative sparkles and florals",
			Palette:  "soft black and white with light screentones",
			Framing:  "medium close-up panel with soft focus background",
			Negative: "gore, photorealistic, text, speech bubbles, watermark",
		},
		"seinen": {
			Name:     "seinen",
			Art:      "Seinen manga illustration, gritty detailed inking, realistic proportions, heavy hatching",
			Palette:  "high contrast black and white with deep shadows",
			Framing:  "cinematic wide panel",
			Negative: "chibi, photorealistic, text, speech bubbles, watermark",
		},
		"webtoon": {
			Name:        "webtoon",
			Art:         "Webtoon style digital comic illustration, clean cel shading",
			Palette:     "full color, vibrant palette",
			Framing:     "tall vertical scroll panel",
			Negative:    "photorealistic, text, speech bubbles, watermark",
			AspectRatio: "9:16",
		},
	}
}

// LoadStyles reads presets from a YAML file and layers them over the
// built-in ones. An empty path returns the defaults.
//
//	noir:
//	  art: "hard-boiled manga, heavy ink"
//	  palette: "monochrome"
//	  framing: "low angle panel"
func LoadStyles(path string) (Styles, error) {
	styles := DefaultStyles()
	if path == "" {
		return styles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read styles file: %w", err)
	}

	var overrides map[string]Style
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse styles file %s: %w", path, err)
	}

	for name, s := range overrides {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if strings.TrimSpace(s.Art) == "" {
			return nil, fmt.Errorf("style %q in %s has no art directive", name, path)
		}
		s.Name = key
		styles[key] = s
	}
	return styles, nil
}

// Lookup returns the named preset.
func (s Styles) Lookup(name string) (Style, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultStyle
	}
	style, ok := s[key]
	if !ok {
		return Style{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownStyle, name, strings.Join(s.Names(), ", "))
	}
	return style, nil
}

// Names lists the registered presets in sorted order.
func (s Styles) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
