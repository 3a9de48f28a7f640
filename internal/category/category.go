// Package category defines the closed vocabulary of tab categories, the
// display color bound to each, and the name normalization rules used to
// match model output and browser group titles against that vocabulary.
package category

import (
	"strings"
	"unicode"
)

// Other is the catch-all category for tabs that match nothing else.
const Other = "Other"

// ColorGrey is the display color of the catch-all group.
const ColorGrey = "grey"

// MaxNameLen bounds sanitized category names that are not vocabulary matches.
const MaxNameLen = 15

type entry struct {
	name  string
	color string
}

// The vocabulary is ordered; Names() preserves this order. Colors are the
// browser tab-group palette: blue, red, yellow, green, pink, purple, cyan,
// orange, grey.
var vocabulary = []entry{
	{"Dev", "blue"},
	{"Social", "pink"},
	{"Entertainment", "red"},
	{"Work", "purple"},
	{"Shopping", "yellow"},
	{"News", "orange"},
	{"Cloud", "cyan"},
	{"Docs", "green"},
	{"Finance", "green"},
	{"AI", "purple"},
	{"Education", "yellow"},
	{"Email", "blue"},
	{"Gaming", "red"},
	{"Music", "pink"},
	{"Health", "green"},
	{"Travel", "cyan"},
	{"Food", "orange"},
	{"Sports", "orange"},
	{"Science", "cyan"},
	{"Design", "pink"},
	{"Security", "red"},
	{"Reference", "grey"},
	{Other, ColorGrey},
}

var byLower = func() map[string]entry {
	m := make(map[string]entry, len(vocabulary))
	for _, e := range vocabulary {
		m[strings.ToLower(e.name)] = e
	}
	return m
}()

// Names returns all canonical category names in declaration order.
func Names() []string {
	out := make([]string, len(vocabulary))
	for i, e := range vocabulary {
		out[i] = e.name
	}
	return out
}

// Canonical resolves a label to its canonical vocabulary name by exact
// case-insensitive match.
func Canonical(label string) (string, bool) {
	e, ok := byLower[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return "", false
	}
	return e.name, true
}

// Color returns the display color for a canonical category name. Unknown
// names get the catch-all grey.
func Color(name string) string {
	if e, ok := byLower[strings.ToLower(name)]; ok {
		return e.color
	}
	return ColorGrey
}

// Catch-all aliases: group titles carrying these names are treated as the
// Other group during reconciliation.
var otherAliases = map[string]bool{
	"":              true,
	"general":       true,
	"misc":          true,
	"miscellaneous": true,
}

// Normalize reduces a category or group name to its comparison key:
// lowercased, trimmed, all whitespace and punctuation removed. Catch-all
// aliases collapse to "other", so "Misc", "general" and an empty title all
// resolve to the same key.
func Normalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if otherAliases[lower] {
		return "other"
	}
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, lower)
	if otherAliases[stripped] {
		return "other"
	}
	return stripped
}

// Variants returns the lookup keys a group title is registered under:
// lowercased+trimmed, whitespace-stripped, and punctuation-stripped, so
// "Tab Dev", "tabdev" and "tab-dev" all resolve to one group.
func Variants(name string) []string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if otherAliases[lower] {
		return []string{"other"}
	}
	noSpace := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, lower)
	keys := []string{lower}
	if noSpace != lower {
		keys = append(keys, noSpace)
	}
	if full := Normalize(name); full != lower && full != noSpace {
		keys = append(keys, full)
	}
	return keys
}

// Labels a model emits that describe the task instead of naming a category.
var nonCategoryPrefixes = []string{"categorize", "categoriz", "uncategor"}
var nonCategoryNames = map[string]bool{
	"misc":    true,
	"general": true,
	"various": true,
	"mixed":   true,
	"unknown": true,
}

// Sanitize turns a bare model-emitted category string into a usable group
// name. Vocabulary matches resolve to their canonical form. Non-category
// labels and garbled output (no vowels, or a run of 5+ consonants) map to
// Other. Anything else is title-cased and truncated to MaxNameLen.
func Sanitize(label string) string {
	s := strings.TrimSpace(label)
	if s == "" {
		return Other
	}
	if canon, ok := Canonical(s); ok {
		return canon
	}

	lower := strings.ToLower(s)
	for _, p := range nonCategoryPrefixes {
		if strings.HasPrefix(lower, p) {
			return Other
		}
	}
	if nonCategoryNames[lower] {
		return Other
	}
	if garbled(lower) {
		return Other
	}
	if canon, ok := closest(lower); ok {
		return canon
	}

	s = titleCase(s)
	if r := []rune(s); len(r) > MaxNameLen {
		s = strings.TrimSpace(string(r[:MaxNameLen]))
	}
	return s
}

// closest finds the first vocabulary name contained in the label (or
// containing it), so "DevTools" resolves to Dev. Very short names are
// skipped — two-letter containment matches almost anything.
func closest(lower string) (string, bool) {
	for _, e := range vocabulary {
		cat := strings.ToLower(e.name)
		if len(cat) >= 3 && strings.Contains(lower, cat) {
			return e.name, true
		}
		if len(lower) >= 3 && strings.Contains(cat, lower) {
			return e.name, true
		}
	}
	return "", false
}

// garbled reports whether a label looks like degenerate model output:
// letters with no vowel at all, or 5+ consecutive consonants.
func garbled(lower string) bool {
	hasLetter := false
	hasVowel := false
	run := 0
	for _, r := range lower {
		if !unicode.IsLetter(r) {
			run = 0
			continue
		}
		hasLetter = true
		if strings.ContainsRune("aeiouy", r) {
			hasVowel = true
			run = 0
			continue
		}
		run++
		if run >= 5 {
			return true
		}
	}
	return hasLetter && !hasVowel
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
