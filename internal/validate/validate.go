// Package validate normalizes raw model output against the closed category
// vocabulary and enforces the coverage invariant: every input tab ends up
// in exactly one group, or the response is rejected as unreliable.
package validate

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/category"
	"github.com/lotas/tabgruppen/internal/types"
)

// DefaultMissingThreshold is the fraction of input tabs a model response
// may leave unaccounted for before the whole response is discarded.
const DefaultMissingThreshold = 0.5

// ErrUnreliable signals that the response covered too few of the input
// tabs to trust; the caller must reclassify heuristically instead of
// retrying, since the cause is usually systemic (context truncation).
var ErrUnreliable = errors.New("validate: unreliable model response")

// RawGroup is one entry of the groups-array response format.
type RawGroup struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	TabIDs []int  `json:"tabIds"`
}

// Mapping validates the tabId→category response format. Entries with
// hallucinated or already-consumed tab IDs are dropped and logged. Labels
// are normalized to the vocabulary, defaulting to Other. Tabs the model
// skipped are appended to Other unless their share exceeds threshold, in
// which case ErrUnreliable is returned.
func Mapping(raw map[string]string, tabs []*types.Tab, threshold float64) (*types.Result, error) {
	known := tabIDSet(tabs)
	consumed := make(map[int]bool, len(tabs))

	byName := make(map[string]*types.Assignment)
	var order []string
	assign := func(name string, id int) {
		a, ok := byName[name]
		if !ok {
			a = &types.Assignment{Name: name, Color: category.Color(name)}
			byName[name] = a
			order = append(order, name)
		}
		a.TabIDs = append(a.TabIDs, id)
	}

	for _, key := range sortedKeys(raw) {
		label := raw[key]
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			applog.Info("validate.badid", "key", key)
			continue
		}
		if !known[id] {
			applog.Info("validate.hallucinated", "id", id)
			continue
		}
		if consumed[id] {
			applog.Info("validate.duplicate", "id", id)
			continue
		}
		consumed[id] = true

		name, ok := category.Canonical(label)
		if !ok {
			name = category.Other
		}
		assign(name, id)
	}

	missing := missingTabs(tabs, consumed)
	if unreliable(len(missing), len(tabs), threshold) {
		applog.Info("validate.unreliable", "missing", len(missing), "total", len(tabs))
		return nil, ErrUnreliable
	}
	for _, id := range missing {
		assign(category.Other, id)
	}

	return collect(byName, order), nil
}

// Groups validates the groups-array response format: each group name is
// sanitized, groups whose normalized names coincide are merged, and tab
// IDs are subject to the same hallucination/duplication filtering and
// missing-ratio check as the mapping format.
func Groups(raw []RawGroup, tabs []*types.Tab, threshold float64) (*types.Result, error) {
	known := tabIDSet(tabs)
	consumed := make(map[int]bool, len(tabs))

	byKey := make(map[string]*types.Assignment)
	var order []string

	for _, g := range raw {
		name := category.Sanitize(g.Name)
		key := category.Normalize(name)

		a, ok := byKey[key]
		if !ok {
			color := g.Color
			if _, canonical := category.Canonical(name); canonical || color == "" {
				color = category.Color(name)
			}
			a = &types.Assignment{Name: name, Color: color}
			byKey[key] = a
			order = append(order, key)
		}

		for _, id := range g.TabIDs {
			if !known[id] {
				applog.Info("validate.hallucinated", "id", id, "group", name)
				continue
			}
			if consumed[id] {
				applog.Info("validate.duplicate", "id", id, "group", name)
				continue
			}
			consumed[id] = true
			a.TabIDs = append(a.TabIDs, id)
		}
	}

	missing := missingTabs(tabs, consumed)
	if unreliable(len(missing), len(tabs), threshold) {
		applog.Info("validate.unreliable", "missing", len(missing), "total", len(tabs))
		return nil, ErrUnreliable
	}
	if len(missing) > 0 {
		key := category.Normalize(category.Other)
		a, ok := byKey[key]
		if !ok {
			a = &types.Assignment{Name: category.Other, Color: category.ColorGrey}
			byKey[key] = a
			order = append(order, key)
		}
		a.TabIDs = append(a.TabIDs, missing...)
	}

	return collect(byKey, order), nil
}

// sortedKeys orders response keys numerically so group order and
// duplicate-key resolution do not depend on map iteration order.
// Non-numeric keys sort last, ties and non-numeric keys by raw string.
func sortedKeys(raw map[string]string) []string {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(strings.TrimSpace(keys[i]))
		b, berr := strconv.Atoi(strings.TrimSpace(keys[j]))
		switch {
		case aerr == nil && berr == nil:
			if a != b {
				return a < b
			}
			return keys[i] < keys[j]
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

func tabIDSet(tabs []*types.Tab) map[int]bool {
	s := make(map[int]bool, len(tabs))
	for _, t := range tabs {
		s[t.ID] = true
	}
	return s
}

// missingTabs returns input tab IDs absent from consumed, in input order.
func missingTabs(tabs []*types.Tab, consumed map[int]bool) []int {
	var missing []int
	for _, t := range tabs {
		if !consumed[t.ID] {
			missing = append(missing, t.ID)
		}
	}
	return missing
}

func unreliable(missing, total int, threshold float64) bool {
	if total == 0 {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultMissingThreshold
	}
	return float64(missing) > threshold*float64(total)
}

// collect drops empty assignments and freezes the map into a slice in
// first-seen order.
func collect(m map[string]*types.Assignment, order []string) *types.Result {
	groups := make([]types.Assignment, 0, len(order))
	for _, k := range order {
		if a := m[k]; len(a.TabIDs) > 0 {
			groups = append(groups, *a)
		}
	}
	return &types.Result{Groups: groups}
}
