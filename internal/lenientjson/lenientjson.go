// Package lenientjson extracts a usable JSON document from free-form model
// output. Models wrap JSON in prose and markdown fences, truncate it, or
// emit duplicate keys; the repair rules here are deliberately small and
// mechanical so the package can be fuzzed on its own.
package lenientjson

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no JSON object or array can be located.
var ErrNoJSON = errors.New("lenientjson: no JSON value found")

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// stripFences removes markdown code fences, keeping their contents. Text
// outside fences is preserved too, since models sometimes fence only part
// of the payload.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.ReplaceAll(s, "```", "")
}

// Extract locates the first JSON object or array in text and returns the
// substring from its opening bracket to the matching closer. Bracket
// matching is string- and escape-aware, so braces inside string values do
// not confuse it. If the document is truncated, the longest balanced
// prefix close to completion is not guessed at — ErrNoJSON is returned.
func Extract(text string) (string, error) {
	s := stripFences(text)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}

	open := s[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}

var groupsKeyRe = regexp.MustCompile(`"groups"\s*:\s*\[`)

// MergeGroupArrays repairs the duplicate-key artifact where a degenerate
// model emits several top-level "groups" keys in one object. Each groups
// array fragment is extracted independently and their elements are
// concatenated into a single array. The input is returned unchanged when
// fewer than two "groups" keys are present.
func MergeGroupArrays(doc string) string {
	locs := groupsKeyRe.FindAllStringIndex(doc, -1)
	if len(locs) < 2 {
		return doc
	}

	var elems []string
	for _, loc := range locs {
		// loc[1]-1 points at the '[' that opens this fragment.
		frag, err := Extract(doc[loc[1]-1:])
		if err != nil {
			continue
		}
		inner := strings.TrimSpace(frag[1 : len(frag)-1])
		if inner != "" {
			elems = append(elems, inner)
		}
	}
	if len(elems) == 0 {
		return doc
	}
	return `{"groups":[` + strings.Join(elems, ",") + `]}`
}
