package narrative

import (
	"encoding/json"
	"strings"
)

const (
	DefaultSummaryBudget = 8000
	DefaultMaxCharacters = 32
)

// Limits bounds how much narrative state a session may accumulate.
type Limits struct {
	SummaryBudget int // runes
	MaxCharacters int
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		SummaryBudget: DefaultSummaryBudget,
		MaxCharacters: DefaultMaxCharacters,
	}
}

func (l Limits) normalized() Limits {
	if l.SummaryBudget <= 0 {
		l.SummaryBudget = DefaultSummaryBudget
	}
	if l.MaxCharacters <= 0 {
		l.MaxCharacters = DefaultMaxCharacters
	}
	return l
}

// Character is the latest known look of a recurring character.
type Character struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Clothing     string `json:"clothing,omitempty"`
	Expression   string `json:"expression,omitempty"`
	LastSeenPage int    `json:"last_seen_page"`
}

// Digest is one page's contribution to the running summary.
type Digest struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// State is a snapshot of a session's narrative continuity.
type State struct {
	Characters      map[string]Character `json:"characters"`
	Setting         string               `json:"setting"`
	Mood            string               `json:"mood"`
	Scene           string               `json:"scene"`
	Digests         []Digest             `json:"digests"`
	LastUpdatedPage int                  `json:"last_updated_page"`
	LastMergedPage  int                  `json:"last_merged_page"`
}

// Empty returns the state of a freshly created Story Bible.
func Empty() State {
	return State{
		Characters:      map[string]Character{},
		Digests:         []Digest{},
		LastUpdatedPage: -1,
		LastMergedPage:  -1,
	}
}

// Summary renders the running synopsis.
func (s State) Summary() string {
	parts := make([]string, 0, len(s.Digests))
	for _, d := range s.Digests {
		if d.Text != "" {
			parts = append(parts, d.Text)
		}
	}
	return strings.Join(parts, summarySeparator)
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s State) Clone() State {
	out := s
	out.Characters = make(map[string]Character, len(s.Characters))
	for k, v := range s.Characters {
		out.Characters[k] = v
	}
	out.Digests = make([]Digest, len(s.Digests))
	copy(out.Digests, s.Digests)
	return out
}

// Character looks up a character by any spelling of its name.
func (s State) Character(name string) (Character, bool) {
	c, ok := s.Characters[Key(name)]
	return c, ok
}

// MarshalJSON adds the rendered summary to the wire form.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	return json.Marshal(struct {
		plain
		Summary string `json:"summary"`
	}{plain: plain(s), Summary: s.Summary()})
}

// Key normalizes a character name for map lookups so "Aiko", " aiko " and
// "AIKO" land on the same entry.
func Key(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
