package analysis

import (
	"context"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
	"github.com/lehigh-university-libraries/mangaroo/internal/narrative"
	"github.com/lehigh-university-libraries/mangaroo/internal/providers"
)

type fakeProvider struct {
	response string
	err      error
	got      providers.Config
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, config providers.Config) (string, error) {
	f.got = config
	return f.response, f.err
}

func TestSceneAnalyzer(t *testing.T) {
	p := &fakeProvider{response: "```json\n" + `{
  "current_scene": "Aiko waves from the platform",
  "characters": [{"name": " Aiko ", "appearance": "short black hair", "clothing": "red scarf", "expression": "unknown"}],
  "location_details": "train station",
  "time_of_day": "dusk",
  "mood": "wistful",
  "page_summary": "Aiko says goodbye."
}` + "\n```"}

	prior := narrative.Merge(narrative.Empty(), 0, narrative.Delta{
		Characters: []narrative.Observation{{Name: "Ren", Clothing: "grey coat"}},
		Digest:     "Ren arrives.",
	}, narrative.DefaultLimits())

	delta, err := NewSceneAnalyzer(p, "test-model").Analyze(context.Background(), "Aiko waved.", prior)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !p.got.JSON || p.got.Model != "test-model" {
		t.Errorf("provider config = %+v", p.got)
	}
	for _, want := range []string{"Aiko waved.", "grey coat", "Ren arrives."} {
		if !strings.Contains(p.got.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if delta.Setting != "train station, dusk" {
		t.Errorf("setting = %q", delta.Setting)
	}
	if delta.Digest != "Aiko says goodbye." || delta.Mood != "wistful" {
		t.Errorf("delta = %+v", delta)
	}
	if len(delta.Characters) != 1 {
		t.Fatalf("characters = %+v", delta.Characters)
	}
	c := delta.Characters[0]
	if c.Name != "Aiko" || c.Clothing != "red scarf" || c.Expression != "" {
		t.Errorf("character = %+v", c)
	}
}

func TestSceneAnalyzerDropsUnnamedCharacters(t *testing.T) {
	p := &fakeProvider{response: `{
  "characters": [
    {"name": "", "appearance": "hooded figure"},
    {"name": "unknown", "clothing": "black cloak"},
    {"name": "Kenji", "clothing": "torn haori"}
  ],
  "location_details": "bamboo forest",
  "mood": "ominous",
  "page_summary": "A stranger watches Kenji."
}`}

	delta, err := NewSceneAnalyzer(p, "").Analyze(context.Background(), "text", narrative.Empty())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if err := delta.Validate(); err != nil {
		t.Fatalf("delta rejected: %v", err)
	}
	if len(delta.Characters) != 1 || delta.Characters[0].Name != "Kenji" {
		t.Errorf("characters = %+v", delta.Characters)
	}
	if delta.Setting != "bamboo forest" || delta.Mood != "ominous" || delta.Digest == "" {
		t.Errorf("page context lost: %+v", delta)
	}
}

func TestSceneAnalyzerFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		wantKind failure.Kind
	}{
		{
			name:     "unparseable output is a retryable upstream error",
			provider: &fakeProvider{response: "I cannot help with that."},
			wantKind: failure.KindUpstream,
		},
		{
			name:     "empty output",
			provider: &fakeProvider{response: "   "},
			wantKind: failure.KindUpstream,
		},
		{
			name:     "provider error passes through",
			provider: &fakeProvider{err: failure.New(failure.KindContentRejected, "fake", "blocked")},
			wantKind: failure.KindContentRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSceneAnalyzer(tt.provider, "").Analyze(context.Background(), "text", narrative.Empty())
			if got := failure.KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %s, want %s (%v)", got, tt.wantKind, err)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: `{"mood":"calm"}`, want: "calm"},
		{name: "fenced", input: "```json\n{\"mood\":\"tense\"}\n```", want: "tense"},
		{name: "prose around object", input: `Sure! {"mood":"eerie"} Hope that helps.`, want: "eerie"},
		{name: "empty", input: "", wantErr: true},
		{name: "no object", input: "nothing here", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Mood string `json:"mood"`
			}
			err := DecodeJSON(tt.input, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if out.Mood != tt.want {
				t.Errorf("mood = %q, want %q", out.Mood, tt.want)
			}
		})
	}
}

func TestPlaceholder(t *testing.T) {
	long := strings.Repeat("word ", 80)
	delta, err := Placeholder{}.Analyze(context.Background(), long, narrative.Empty())
	if err != nil {
		t.Fatal(err)
	}
	if n := len(strings.Fields(strings.TrimSuffix(delta.Digest, "..."))); n != 50 {
		t.Errorf("preview has %d words, want 50", n)
	}
	if !strings.HasPrefix(delta.Scene, "Scene based on: ") {
		t.Errorf("scene = %q", delta.Scene)
	}
	if err := delta.Validate(); err != nil {
		t.Errorf("placeholder delta invalid: %v", err)
	}

	empty, _ := Placeholder{}.Analyze(context.Background(), "  ", narrative.Empty())
	if !empty.IsEmpty() {
		t.Errorf("expected empty delta for blank page, got %+v", empty)
	}
}
