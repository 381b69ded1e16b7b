package match

import (
	"strings"
	"unicode"
)

// fillerTokens are whole words stripped when generating the filler-free
// variant of a name. Users rarely say them consistently ("bedroom lamp" vs
// "the bedroom light"), so recall improves when both sides drop them.
var fillerTokens = map[string]struct{}{
	"light": {},
	"lamp":  {},
	"bulb":  {},
	"the":   {},
	"my":    {},
	"smart": {},
	"ikea":  {},
}

// Normalize canonicalizes a name for comparison: lowercase, strip every
// character that is not a word character or whitespace, collapse whitespace
// runs to a single space, and trim. Total and idempotent.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Variants expands a raw name into its alternate surface forms, always
// including the normalized form itself. Duplicates and empty strings are
// discarded; order is deterministic (base form first, then in generation
// order) so matching is reproducible across calls.
func Variants(name string) []string {
	base := Normalize(name)
	if base == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{}, 8)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(base)

	// Filler-free form, re-collapsed on whitespace.
	words := strings.Fields(base)
	kept := words[:0:0]
	for _, w := range words {
		if _, filler := fillerTokens[w]; !filler {
			kept = append(kept, w)
		}
	}
	if stripped := strings.Join(kept, " "); stripped != base {
		add(stripped)
	}

	// Word-boundary forms: hub names often use underscores where speech
	// transcripts use spaces, and vice versa.
	add(strings.ReplaceAll(base, " ", "_"))
	add(strings.ReplaceAll(base, "_", " "))

	if len(words) >= 2 {
		add(words[0])
		add(words[len(words)-1])

		// First-letter abbreviation ("living room lamp" → "lrl").
		var abbr strings.Builder
		for _, w := range words {
			for _, r := range w {
				abbr.WriteRune(r)
				break
			}
		}
		if abbr.Len() > 1 {
			add(abbr.String())
		}
	}

	return out
}
