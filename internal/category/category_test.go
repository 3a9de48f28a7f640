package category

import (
	"testing"
	"unicode/utf8"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"Dev", "Dev", true},
		{"dev", "Dev", true},
		{"DEV", "Dev", true},
		{"  news \n", "News", true},
		{"entertainment", "Entertainment", true},
		{"DevTools", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Canonical(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Canonical(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestColor(t *testing.T) {
	if c := Color("Dev"); c != "blue" {
		t.Errorf("Color(Dev) = %q, want blue", c)
	}
	if c := Color(Other); c != ColorGrey {
		t.Errorf("Color(Other) = %q, want grey", c)
	}
	if c := Color("nonexistent"); c != ColorGrey {
		t.Errorf("Color(unknown) = %q, want grey", c)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		// Vocabulary matches resolve to canonical form.
		{"dev", "Dev"},
		{"DEV", "Dev"},
		{"  DevTools  ", "Dev"}, // substring match against vocabulary
		{"news", "News"},
		// Non-category labels.
		{"categorized tabs", Other},
		{"uncategorized", Other},
		{"misc", Other},
		{"General", Other},
		{"various", Other},
		{"mixed", Other},
		{"unknown", Other},
		{"", Other},
		{"   ", Other},
		// Garbled output.
		{"xkcdqz", Other},     // no vowels
		{"bcdfghjklm", Other}, // consonant run
		// Plain labels: title-cased, bounded length.
		{"recipes and baking", "Recipes And Bak"},
		{"hobby", "Hobby"},
		// Truncation must not split a multibyte rune.
		{"reiseplanung für 2025", "Reiseplanung Fü"},
	}
	for _, tt := range tests {
		got := Sanitize(tt.input)
		if got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Sanitize(%q) produced invalid UTF-8 %q", tt.input, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	// All spellings of the same name share one key.
	keys := map[string]bool{}
	for _, s := range []string{"Tab Dev", "tabdev", "tab-dev", "  TAB DEV  "} {
		keys[Normalize(s)] = true
	}
	if len(keys) != 1 {
		t.Errorf("expected one normalized key, got %v", keys)
	}

	// Catch-all aliases collapse to "other".
	for _, s := range []string{"", "general", "Misc", "miscellaneous"} {
		if got := Normalize(s); got != "other" {
			t.Errorf("Normalize(%q) = %q, want other", s, got)
		}
	}
}

func TestVariants(t *testing.T) {
	vs := Variants("Tab Dev")
	want := map[string]bool{"tab dev": true, "tabdev": true}
	for _, v := range vs {
		delete(want, v)
	}
	if len(want) != 0 {
		t.Errorf("Variants(Tab Dev) = %v, missing %v", vs, want)
	}

	if vs := Variants("general"); len(vs) != 1 || vs[0] != "other" {
		t.Errorf("Variants(general) = %v, want [other]", vs)
	}
}

func TestNamesIncludesOther(t *testing.T) {
	names := Names()
	if len(names) < 20 {
		t.Errorf("expected at least 20 categories, got %d", len(names))
	}
	found := false
	for _, n := range names {
		if n == Other {
			found = true
		}
	}
	if !found {
		t.Error("vocabulary must include Other")
	}
}
