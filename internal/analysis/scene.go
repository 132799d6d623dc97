package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
	"github.com/lehigh-university-libraries/mangaroo/internal/narrative"
	"github.com/lehigh-university-libraries/mangaroo/internal/prompt"
	"github.com/lehigh-university-libraries/mangaroo/internal/providers"
)

const (
	defaultTemperature = 0.7
	// pageTextBudget bounds the page text sent for analysis.
	pageTextBudget = 6000
)

// SceneAnalyzer asks a text completion provider to extract a page's
// characters, setting, mood and key moment.
type SceneAnalyzer struct {
	provider    providers.Provider
	model       string
	temperature float64
}

// NewSceneAnalyzer returns an analyzer backed by provider. An empty model
// selects the provider's default.
func NewSceneAnalyzer(provider providers.Provider, model string) *SceneAnalyzer {
	if model == "" {
		model = providers.DefaultModel(provider.Name())
	}
	return &SceneAnalyzer{
		provider:    provider,
		model:       model,
		temperature: defaultTemperature,
	}
}

// sceneResponse is the JSON shape requested from the model.
type sceneResponse struct {
	Characters []struct {
		Name       string `json:"name"`
		Appearance string `json:"appearance"`
		Clothing   string `json:"clothing"`
		Expression string `json:"expression"`
	} `json:"characters"`
	CurrentScene    string `json:"current_scene"`
	LocationDetails string `json:"location_details"`
	TimeOfDay       string `json:"time_of_day"`
	Mood            string `json:"mood"`
	PageSummary     string `json:"page_summary"`
}

// Analyze implements bible.Analyzer.
func (a *SceneAnalyzer) Analyze(ctx context.Context, pageText string, prior narrative.State) (narrative.Delta, error) {
	text, err := a.provider.Complete(ctx, providers.Config{
		Model:       a.model,
		Temperature: a.temperature,
		Prompt:      buildAnalysisPrompt(pageText, prior),
		JSON:        true,
	})
	if err != nil {
		return narrative.Delta{}, err
	}

	var resp sceneResponse
	if err := DecodeJSON(text, &resp); err != nil {
		return narrative.Delta{}, failure.Wrap(failure.KindUpstream, "scene analysis", fmt.Errorf("failed to parse %s response: %w", a.provider.Name(), err))
	}

	delta := toDelta(resp)
	slog.Debug("Scene analysis complete",
		"provider", a.provider.Name(),
		"model", a.model,
		"characters", len(delta.Characters),
		"response_length", len(text),
	)
	return delta, nil
}

func toDelta(resp sceneResponse) narrative.Delta {
	delta := narrative.Delta{
		Scene:  clean(resp.CurrentScene),
		Mood:   clean(resp.Mood),
		Digest: clean(resp.PageSummary),
	}

	location, when := clean(resp.LocationDetails), clean(resp.TimeOfDay)
	switch {
	case location != "" && when != "":
		delta.Setting = location + ", " + when
	case location != "":
		delta.Setting = location
	default:
		delta.Setting = when
	}

	for _, c := range resp.Characters {
		// Unnamed entries cannot be tracked; keep the rest of the page.
		name := clean(c.Name)
		if name == "" {
			continue
		}
		delta.Characters = append(delta.Characters, narrative.Observation{
			Name:        name,
			Description: clean(c.Appearance),
			Clothing:    clean(c.Clothing),
			Expression:  clean(c.Expression),
		})
	}
	return delta
}

// clean drops the filler values models emit for unknown fields.
func clean(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "unknown", "unspecified", "n/a", "none", "not specified", "null":
		return ""
	}
	return s
}

// priorContext is the compact view of the prior state the model sees.
type priorContext struct {
	Characters []narrative.Character `json:"characters"`
	Setting    string                `json:"setting,omitempty"`
	Mood       string                `json:"mood,omitempty"`
	Scene      string                `json:"previous_scene,omitempty"`
	Summary    string                `json:"story_summary,omitempty"`
}

func buildAnalysisPrompt(pageText string, prior narrative.State) string {
	keys := make([]string, 0, len(prior.Characters))
	for k := range prior.Characters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pc := priorContext{
		Characters: make([]narrative.Character, 0, len(keys)),
		Setting:    prior.Setting,
		Mood:       prior.Mood,
		Scene:      prior.Scene,
		Summary:    prior.Summary(),
	}
	for _, k := range keys {
		pc.Characters = append(pc.Characters, prior.Characters[k])
	}
	priorJSON, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		priorJSON = []byte("{}")
	}

	return fmt.Sprintf(`You are a manga storyboard assistant. Your job is to analyze novel text and extract visual information for creating manga panels.

Here is the previous context from earlier pages:
%s

Here is the new text from the current page:
---
%s
---

IMPORTANT: Maintain visual continuity with previous descriptions. If a character was described as wearing a red jacket before, leave "clothing" empty unless the text says it changed. Use empty strings for anything this page does not establish.

Return a JSON object with these exact keys:

1. "current_scene": A vivid, visual description of the most dramatic or important moment on this page. Be specific about poses, expressions and spatial relationships. (2-3 sentences)

2. "characters": An array of the characters present on this page. Each has:
   - "name": Character name, spelled as in the text
   - "appearance": Physical description (hair, build, distinguishing features)
   - "clothing": Current outfit description
   - "expression": Current emotional state or facial expression

3. "location_details": Specific details about the setting or background

4. "time_of_day": When this scene takes place

5. "mood": The emotional tone of the scene (e.g. "tense", "romantic", "melancholic")

6. "page_summary": One or two sentences summarizing what happens on this page only

Respond ONLY with the JSON object, no additional text.`, priorJSON, prompt.Excerpt(pageText, pageTextBudget))
}
