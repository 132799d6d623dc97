package prompt

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lehigh-university-libraries/mangaroo/internal/narrative"
)

func testState() narrative.State {
	s := narrative.Merge(narrative.Empty(), 0, narrative.Delta{
		Characters: []narrative.Observation{
			{Name: "Aiko", Description: "short black hair", Clothing: "red scarf"},
			{Name: "Ren Takeda", Description: "tall", Clothing: "grey coat"},
		},
		Setting: "train station at dusk",
		Mood:    "wistful",
		Scene:   "Aiko waves as the train departs",
	}, narrative.DefaultLimits())
	s = narrative.Merge(s, 6, narrative.Delta{
		Characters: []narrative.Observation{{Name: "Mei", Expression: "worried"}},
	}, narrative.DefaultLimits())
	return s
}

func manga(t *testing.T) Style {
	t.Helper()
	s, err := DefaultStyles().Lookup("manga")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBuildIsDeterministic(t *testing.T) {
	style := manga(t)
	state := testState()
	first := Build(state, "Aiko ran.", style, DefaultLimits())

	for i := 0; i < 50; i++ {
		// Rebuild the map so iteration order differs between runs.
		clone := state.Clone()
		rebuilt := make(map[string]narrative.Character, len(clone.Characters))
		for k, v := range clone.Characters {
			rebuilt[k] = v
		}
		clone.Characters = rebuilt

		got := Build(clone, "Aiko ran.", style, DefaultLimits())
		if !reflect.DeepEqual(first, got) {
			t.Fatalf("build %d differs:\n%q\n%q", i, first.Prompt, got.Prompt)
		}
	}
}

func TestBuildAnchors(t *testing.T) {
	tests := []struct {
		name     string
		pageText string
		want     []string
	}{
		{
			name:     "recently seen only",
			pageText: "The rain kept falling.",
			want:     []string{"Mei"},
		},
		{
			name:     "mentioned by full name",
			pageText: "Aiko looked back at the platform.",
			want:     []string{"Aiko", "Mei"},
		},
		{
			name:     "mentioned by surname token",
			pageText: "TAKEDA said nothing.",
			want:     []string{"Mei", "Ren Takeda"},
		},
		{
			name:     "possessive",
			pageText: "Aiko's scarf snapped in the wind.",
			want:     []string{"Aiko", "Mei"},
		},
		{
			name:     "possessive with curly apostrophe",
			pageText: "Takeda’s coat was soaked.",
			want:     []string{"Mei", "Ren Takeda"},
		},
		{
			name:     "substring is not a mention",
			pageText: "Aikonic posters lined the wall.",
			want:     []string{"Mei"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Build(testState(), tt.pageText, manga(t), DefaultLimits())
			if !reflect.DeepEqual(req.Anchors, tt.want) {
				t.Errorf("anchors = %v, want %v", req.Anchors, tt.want)
			}
		})
	}
}

func TestBuildInjectsEstablishedLook(t *testing.T) {
	req := Build(testState(), "Aiko smiled.", manga(t), DefaultLimits())

	for _, want := range []string{
		"Aiko (short black hair) wearing red scarf",
		"Setting: train station at dusk",
		"Mood: wistful",
		"Scene: Aiko waves as the train departs",
		"Palette: black and white with screentones",
		"Page excerpt: Aiko smiled.",
	} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, req.Prompt)
		}
	}
	if req.Style != "manga" {
		t.Errorf("style = %q", req.Style)
	}
	if req.NegativePrompt == "" {
		t.Error("expected a negative prompt from the preset")
	}
}

func TestBuildBoundsPageText(t *testing.T) {
	page := strings.Repeat("word ", 5000)

	tests := []struct {
		name   string
		limits Limits
	}{
		{name: "defaults", limits: DefaultLimits()},
		{name: "tight prompt", limits: Limits{ExcerptBudget: 1000, PromptBudget: 300, RecentPages: 3}},
		{name: "tiny prompt", limits: Limits{ExcerptBudget: 1000, PromptBudget: 20, RecentPages: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Build(testState(), page, manga(t), tt.limits)
			if n := utf8.RuneCountInString(req.Prompt); n > tt.limits.PromptBudget {
				t.Errorf("prompt length %d exceeds %d", n, tt.limits.PromptBudget)
			}
			if strings.Count(req.Prompt, "word") > tt.limits.ExcerptBudget/5+1 {
				t.Errorf("excerpt exceeded its budget")
			}
		})
	}
}

func TestBuildKeepsEveryAnchorWhenLooksOverflow(t *testing.T) {
	var obs []narrative.Observation
	for _, name := range []string{"CharA", "CharB", "CharC", "CharD", "CharE", "CharF", "CharG", "CharH"} {
		obs = append(obs, narrative.Observation{
			Name:        name,
			Description: strings.Repeat("long silver hair ", 35),
			Clothing:    "layered travelling cloak",
		})
	}
	state := narrative.Merge(narrative.Empty(), 0, narrative.Delta{
		Characters: obs,
		Scene:      "Everyone gathers at the gate",
	}, narrative.DefaultLimits())

	limits := DefaultLimits()
	req := Build(state, strings.Repeat("word ", 500), manga(t), limits)

	if n := utf8.RuneCountInString(req.Prompt); n > limits.PromptBudget {
		t.Errorf("prompt length %d exceeds %d", n, limits.PromptBudget)
	}
	if len(req.Anchors) != 8 {
		t.Fatalf("anchors = %v", req.Anchors)
	}
	for _, name := range req.Anchors {
		if !strings.Contains(req.Prompt, name) {
			t.Errorf("anchor %q missing from prompt", name)
		}
	}
	if !strings.HasSuffix(req.Prompt, qualityTail) {
		t.Errorf("prompt lost its quality tail: %q", req.Prompt[len(req.Prompt)-80:])
	}
	if !strings.Contains(req.Prompt, "Scene: Everyone gathers at the gate") {
		t.Errorf("scene dropped from prompt")
	}
}

func TestBuildTightBudgetKeepsNamesAndTail(t *testing.T) {
	limits := Limits{ExcerptBudget: 1000, PromptBudget: 120, RecentPages: 10}
	req := Build(testState(), "Aiko and Takeda argue.", manga(t), limits)

	if n := utf8.RuneCountInString(req.Prompt); n > limits.PromptBudget {
		t.Fatalf("prompt length %d exceeds %d", n, limits.PromptBudget)
	}
	for _, name := range req.Anchors {
		if !strings.Contains(req.Prompt, name) {
			t.Errorf("anchor %q missing from %q", name, req.Prompt)
		}
	}
	if !strings.HasSuffix(req.Prompt, qualityTail) {
		t.Errorf("prompt lost its quality tail: %q", req.Prompt)
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		text   string
		budget int
		want   string
	}{
		{text: "  Aiko\n\n ran  home ", budget: 100, want: "Aiko ran home"},
		{text: "Aiko ran home quickly", budget: 12, want: "Aiko ran..."},
		{text: "Aiko", budget: 0, want: ""},
		{text: "Aikoaikoaiko", budget: 2, want: "Ai"},
	}
	for _, tt := range tests {
		if got := Excerpt(tt.text, tt.budget); got != tt.want {
			t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.text, tt.budget, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	styles := DefaultStyles()
	for _, name := range []string{"manga", "SHOUJO", " seinen ", "webtoon", ""} {
		if _, err := styles.Lookup(name); err != nil {
			t.Errorf("Lookup(%q): %v", name, err)
		}
	}
	if _, err := styles.Lookup("watercolor"); err == nil {
		t.Error("expected unknown preset error")
	}
}

func TestLoadStyles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "styles.yaml")
	content := `
noir:
  art: "hard-boiled manga, heavy ink"
  palette: "monochrome"
  framing: "low angle panel"
Manga:
  art: "custom manga"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	styles, err := LoadStyles(path)
	if err != nil {
		t.Fatalf("LoadStyles: %v", err)
	}
	noir, err := styles.Lookup("noir")
	if err != nil {
		t.Fatal(err)
	}
	if noir.Name != "noir" || noir.Palette != "monochrome" {
		t.Errorf("noir = %+v", noir)
	}
	if m, _ := styles.Lookup("manga"); m.Art != "custom manga" {
		t.Errorf("manga override not applied: %+v", m)
	}
	if _, err := styles.Lookup("webtoon"); err != nil {
		t.Errorf("built-in preset lost: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("empty:\n  palette: grey\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStyles(bad); err == nil {
		t.Error("expected error for preset without art directive")
	}
}
