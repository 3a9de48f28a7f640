package lenientjson

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestExtractPlainObject(t *testing.T) {
	got, err := Extract(`{"1": "Dev"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"1": "Dev"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractFromProse(t *testing.T) {
	text := `Sure! Here is the categorization you asked for:

{"1": "Dev", "2": "News"}

Let me know if you need anything else.`
	got, err := Extract(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(got), &m); err != nil {
		t.Fatalf("extracted text is not valid JSON: %v", err)
	}
	if m["2"] != "News" {
		t.Errorf("got %v", m)
	}
}

func TestExtractStripsCodeFences(t *testing.T) {
	text := "```json\n{\"1\": \"Dev\"}\n```"
	got, err := Extract(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"1": "Dev"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractArray(t *testing.T) {
	text := `The groups are: [{"name":"Dev","tabIds":[1,2]}] as requested`
	got, err := Extract(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != '[' || got[len(got)-1] != ']' {
		t.Errorf("expected array, got %q", got)
	}
}

func TestExtractBracesInsideStrings(t *testing.T) {
	text := `{"1": "a } tricky { value", "2": "News"}`
	got, err := Extract(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(got), &m); err != nil {
		t.Fatalf("extracted text is not valid JSON: %v", err)
	}
	if m["1"] != "a } tricky { value" {
		t.Errorf("got %v", m)
	}
}

func TestExtractEscapedQuotes(t *testing.T) {
	text := `{"1": "say \"hi\" {", "2": "Dev"}`
	got, err := Extract(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(got), &m); err != nil {
		t.Fatalf("extracted text is not valid JSON: %v", err)
	}
}

func TestExtractNoJSON(t *testing.T) {
	_, err := Extract("I could not categorize anything, sorry.")
	if !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
}

func TestExtractTruncated(t *testing.T) {
	_, err := Extract(`{"1": "Dev", "2": "Ne`)
	if !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON for truncated input, got %v", err)
	}
}

func TestMergeGroupArraysSingleKeyUnchanged(t *testing.T) {
	doc := `{"groups":[{"name":"Dev","tabIds":[1]}]}`
	if got := MergeGroupArrays(doc); got != doc {
		t.Errorf("single groups key must pass through, got %q", got)
	}
}

func TestMergeGroupArraysDuplicateKeys(t *testing.T) {
	doc := `{"groups":[{"name":"Dev","tabIds":[1]}],"groups":[{"name":"News","tabIds":[2]}]}`
	got := MergeGroupArrays(doc)

	var parsed struct {
		Groups []struct {
			Name   string `json:"name"`
			TabIDs []int  `json:"tabIds"`
		} `json:"groups"`
	}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("merged doc is not valid JSON: %v\n%s", err, got)
	}
	if len(parsed.Groups) != 2 {
		t.Fatalf("expected 2 groups after merge, got %d", len(parsed.Groups))
	}
	if parsed.Groups[0].Name != "Dev" || parsed.Groups[1].Name != "News" {
		t.Errorf("got %+v", parsed.Groups)
	}
}

func FuzzExtract(f *testing.F) {
	f.Add(`{"1": "Dev"}`)
	f.Add("```json\n[1,2]\n```")
	f.Add(`prose {"a": "b } c"} prose`)
	f.Add(`{"groups":[{"name":"Dev"}],"groups":[]}`)
	f.Fuzz(func(t *testing.T, text string) {
		got, err := Extract(text)
		if err != nil {
			return
		}
		// Whatever comes back must be bracket-delimited and non-empty.
		if len(got) < 2 {
			t.Fatalf("extracted %q from %q", got, text)
		}
		open, closer := got[0], got[len(got)-1]
		if !(open == '{' && closer == '}') && !(open == '[' && closer == ']') {
			t.Fatalf("unbalanced extraction %q from %q", got, text)
		}
	})
}

func TestMergeGroupArraysThreeFragments(t *testing.T) {
	doc := `{"groups":[{"name":"A","tabIds":[1]}],"groups":[{"name":"B","tabIds":[2]}],"groups":[{"name":"C","tabIds":[3]}]}`
	got := MergeGroupArrays(doc)

	var parsed struct {
		Groups []json.RawMessage `json:"groups"`
	}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("merged doc is not valid JSON: %v", err)
	}
	if len(parsed.Groups) != 3 {
		t.Errorf("expected 3 groups, got %d", len(parsed.Groups))
	}
}
