package narrative

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const summarySeparator = " "

// Merge folds one page's observations into cur and returns the new state.
// cur is never modified. Later observations win: non-empty observed fields
// replace stored ones and empty fields keep what was already known.
func Merge(cur State, page int, delta Delta, limits Limits) State {
	limits = limits.normalized()
	next := cur.Clone()

	observed := make(map[string]struct{}, len(delta.Characters))
	for _, obs := range delta.Characters {
		key := Key(obs.Name)
		if key == "" {
			continue
		}
		c := next.Characters[key]
		c.Name = collapse(obs.Name)
		c.Description = prefer(obs.Description, c.Description)
		c.Clothing = prefer(obs.Clothing, c.Clothing)
		c.Expression = prefer(obs.Expression, c.Expression)
		c.LastSeenPage = page
		next.Characters[key] = c
		observed[key] = struct{}{}
	}
	evictCharacters(next.Characters, observed, limits.MaxCharacters)

	next.Setting = prefer(delta.Setting, next.Setting)
	next.Mood = prefer(delta.Mood, next.Mood)
	next.Scene = prefer(delta.Scene, next.Scene)

	// A page keeps at most one digest, placed in received order.
	if digest := collapse(delta.Digest); digest != "" {
		kept := next.Digests[:0]
		for _, d := range next.Digests {
			if d.Page != page {
				kept = append(kept, d)
			}
		}
		next.Digests = append(kept, Digest{Page: page, Text: digest})
	}
	next.Digests = fitBudget(next.Digests, limits.SummaryBudget)

	if page > next.LastUpdatedPage {
		next.LastUpdatedPage = page
	}
	next.LastMergedPage = page
	return next
}

// fitBudget drops or front-trims the oldest digests until the rendered
// summary fits. The newest digest is only ever truncated, never dropped.
func fitBudget(digests []Digest, budget int) []Digest {
	total := summaryLen(digests)
	for total > budget && len(digests) > 1 {
		overflow := total - budget
		oldest := utf8.RuneCountInString(digests[0].Text)
		cost := oldest + utf8.RuneCountInString(summarySeparator)
		if cost <= overflow || oldest <= overflow {
			digests = digests[1:]
			total -= cost
			continue
		}
		digests[0].Text = trimFront(digests[0].Text, overflow)
		if digests[0].Text == "" {
			digests = digests[1:]
		}
		total = summaryLen(digests)
	}
	if total > budget && len(digests) == 1 {
		digests[0].Text = string([]rune(digests[0].Text)[:budget])
	}
	out := make([]Digest, len(digests))
	copy(out, digests)
	return out
}

func summaryLen(digests []Digest) int {
	n := 0
	for i, d := range digests {
		if i > 0 {
			n += utf8.RuneCountInString(summarySeparator)
		}
		n += utf8.RuneCountInString(d.Text)
	}
	return n
}

// trimFront removes n runes from the start of s and then the rest of any
// word the cut landed inside.
func trimFront(s string, n int) string {
	runes := []rune(s)
	if n >= len(runes) {
		return ""
	}
	rest := string(runes[n:])
	if runes[n-1] != ' ' {
		if idx := strings.IndexByte(rest, ' '); idx >= 0 {
			rest = rest[idx+1:]
		} else {
			rest = ""
		}
	}
	return strings.TrimSpace(rest)
}

// evictCharacters removes the least recently seen entries beyond limit.
// Characters observed by the current delta are kept.
func evictCharacters(chars map[string]Character, keep map[string]struct{}, limit int) {
	if len(chars) <= limit {
		return
	}
	candidates := make([]string, 0, len(chars))
	for k := range chars {
		if _, ok := keep[k]; !ok {
			candidates = append(candidates, k)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := chars[candidates[i]], chars[candidates[j]]
		if a.LastSeenPage != b.LastSeenPage {
			return a.LastSeenPage < b.LastSeenPage
		}
		return candidates[i] < candidates[j]
	})
	for _, k := range candidates {
		if len(chars) <= limit {
			return
		}
		delete(chars, k)
	}
}

func prefer(observed, current string) string {
	if v := collapse(observed); v != "" {
		return v
	}
	return current
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
