package prompt

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lehigh-university-libraries/mangaroo/internal/narrative"
)

const (
	DefaultExcerptBudget = 1000
	DefaultPromptBudget  = 4000
	DefaultRecentPages   = 3

	partSeparator = ". "
	qualityTail   = "High quality, detailed, professional manga panel"
)

// Limits bounds the size of a generated prompt.
type Limits struct {
	ExcerptBudget int // runes of page text carried into the prompt
	PromptBudget  int // runes of the whole prompt
	RecentPages   int // characters seen this many pages back stay anchored
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		ExcerptBudget: DefaultExcerptBudget,
		PromptBudget:  DefaultPromptBudget,
		RecentPages:   DefaultRecentPages,
	}
}

func (l Limits) normalized() Limits {
	if l.ExcerptBudget <= 0 {
		l.ExcerptBudget = DefaultExcerptBudget
	}
	if l.PromptBudget <= 0 {
		l.PromptBudget = DefaultPromptBudget
	}
	if l.RecentPages < 0 {
		l.RecentPages = DefaultRecentPages
	}
	return l
}

// Request is what the image synthesizer receives.
type Request struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	Style          string   `json:"style"`
	Anchors        []string `json:"anchors"`
}

// Build renders an image request from a narrative snapshot and the page text.
// Output is a pure function of its inputs.
//
// When the prompt budget is tight the page excerpt shrinks first, then each
// character's look is capped to a share of what remains. Every anchor's name
// and the quality tail are always emitted.
func Build(state narrative.State, pageText string, style Style, limits Limits) Request {
	limits = limits.normalized()
	anchors := selectAnchors(state, pageText, limits.RecentPages)

	head := []string{style.Art}
	if style.Palette != "" {
		head = append(head, "Palette: "+style.Palette)
	}
	if style.Framing != "" {
		head = append(head, "Framing: "+style.Framing)
	}
	if state.Scene != "" {
		head = append(head, "Scene: "+state.Scene)
	}
	if state.Setting != "" {
		head = append(head, "Setting: "+state.Setting)
	}
	if state.Mood != "" {
		head = append(head, "Mood: "+state.Mood)
	}

	names := make([]string, len(anchors))
	looks := make([]string, len(anchors))
	for i, c := range anchors {
		names[i] = c.Name
		looks[i] = look(c)
	}

	req := Request{
		NegativePrompt: style.Negative,
		AspectRatio:    style.AspectRatio,
		Style:          style.Name,
		Anchors:        names,
	}

	namesOnly := characterLine(names, nil)
	spare := limits.PromptBudget - runeLen(compose(head, namesOnly, ""))
	if spare < 0 {
		req.Prompt = shrinkHead(head, namesOnly, limits.PromptBudget)
		return req
	}
	looks = fitLooks(looks, spare)

	chars := characterLine(names, looks)
	prompt := compose(head, chars, "")

	// The excerpt gets whatever room the other parts leave.
	room := limits.PromptBudget - runeLen(prompt) - runeLen(partSeparator+excerptPrefix)
	if room > limits.ExcerptBudget {
		room = limits.ExcerptBudget
	}
	if excerpt := Excerpt(pageText, room); excerpt != "" {
		prompt = compose(head, chars, excerpt)
	}

	req.Prompt = truncateRunes(prompt, limits.PromptBudget)
	return req
}

const excerptPrefix = "Page excerpt: "

func compose(head []string, chars, excerpt string) string {
	parts := make([]string, 0, len(head)+3)
	for _, h := range head {
		if h != "" {
			parts = append(parts, h)
		}
	}
	if chars != "" {
		parts = append(parts, chars)
	}
	if excerpt != "" {
		parts = append(parts, excerptPrefix+excerpt)
	}
	parts = append(parts, qualityTail)
	return strings.Join(parts, partSeparator)
}

func characterLine(names, looks []string) string {
	if len(names) == 0 {
		return ""
	}
	descs := make([]string, len(names))
	for i, name := range names {
		descs[i] = name
		if i < len(looks) {
			descs[i] += looks[i]
		}
	}
	return "Characters: " + strings.Join(descs, "; ")
}

// shrinkHead cuts the style and scene parts so the names and the tail fit.
// Budgets too small even for those get a plain cut.
func shrinkHead(head []string, chars string, budget int) string {
	minimal := compose(nil, chars, "")
	room := budget - runeLen(minimal) - runeLen(partSeparator)
	if room <= 0 {
		return truncateRunes(minimal, budget)
	}
	cut := strings.TrimRight(truncateRunes(strings.Join(head, partSeparator), room), " .,;")
	return compose([]string{cut}, chars, "")
}

// fitLooks caps the character looks to room runes in total. Short looks are
// kept whole and long ones share what is left evenly.
func fitLooks(looks []string, room int) []string {
	total := 0
	for _, l := range looks {
		total += runeLen(l)
	}
	if total <= room {
		return looks
	}

	order := make([]int, len(looks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return runeLen(looks[order[a]]) < runeLen(looks[order[b]])
	})

	out := make([]string, len(looks))
	remaining := room
	for k, i := range order {
		share := remaining / (len(order) - k)
		l := looks[i]
		if runeLen(l) > share {
			l = strings.TrimRight(truncateRunes(l, share), " ,;(")
		}
		out[i] = l
		remaining -= runeLen(l)
	}
	return out
}

// selectAnchors returns the characters plausibly present on the page, sorted
// by key: everyone the text mentions plus everyone seen recently.
func selectAnchors(state narrative.State, pageText string, recent int) []narrative.Character {
	words := wordSet(pageText)
	keys := make([]string, 0, len(state.Characters))
	for k := range state.Characters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []narrative.Character
	for _, k := range keys {
		c := state.Characters[k]
		if mentioned(k, words) || (state.LastUpdatedPage >= 0 && state.LastUpdatedPage-c.LastSeenPage <= recent) {
			out = append(out, c)
		}
	}
	return out
}

// mentioned reports whether the text names the character, either in full or
// by any name token of three runes or more.
func mentioned(key string, words map[string]struct{}) bool {
	tokens := splitWords(key)
	if len(tokens) == 0 {
		return false
	}
	all := true
	for _, tok := range tokens {
		_, ok := words[tok]
		if ok && utf8.RuneCountInString(tok) >= 3 {
			return true
		}
		all = all && ok
	}
	return all
}

func wordSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range splitWords(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// look renders everything known about a character after the name.
func look(c narrative.Character) string {
	var b strings.Builder
	if c.Description != "" {
		fmt.Fprintf(&b, " (%s)", c.Description)
	}
	if c.Clothing != "" {
		fmt.Fprintf(&b, " wearing %s", c.Clothing)
	}
	if c.Expression != "" {
		fmt.Fprintf(&b, ", %s expression", c.Expression)
	}
	return b.String()
}

// Excerpt collapses whitespace in text and cuts it to at most budget runes,
// preferring a word boundary.
func Excerpt(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= budget {
		return text
	}
	const ellipsis = "..."
	if budget <= len(ellipsis) {
		return truncateRunes(text, budget)
	}
	cut := truncateRunes(text, budget-len(ellipsis))
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + ellipsis
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
