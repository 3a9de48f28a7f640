// Package reconcile merges computed category assignments into the live set
// of named tab groups in one browser window. Matching is by normalized
// group title, so reruns merge into existing groups instead of duplicating
// them; the whole pass is idempotent and safe to re-run.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/category"
	"github.com/lotas/tabgruppen/internal/types"
)

// ErrGroupNotFound is reported by a Host when a group ID no longer exists,
// typically because the browser removed it between query and mutation.
var ErrGroupNotFound = errors.New("reconcile: group not found")

// Host is the browser-side collaborator. All mutations are requests; the
// browser owns the group store and may change it at any time, so every
// ID-targeted call can fail with ErrGroupNotFound.
type Host interface {
	QueryGroups(ctx context.Context, windowID int) ([]*types.TabGroup, error)
	QueryTabs(ctx context.Context, windowID int) ([]*types.Tab, error)
	// CreateGroup groups the given tabs into a fresh group and returns its ID.
	CreateGroup(ctx context.Context, tabIDs []int) (int, error)
	UpdateGroup(ctx context.Context, groupID int, title, color string, collapsed bool) error
	AddTabsToGroup(ctx context.Context, tabIDs []int, groupID int) error
	UngroupTabs(ctx context.Context, tabIDs []int) error
}

// Strategy selects how duplicate-named groups are collapsed.
type Strategy int

const (
	// Incremental moves tabs from duplicate groups into the largest one
	// and lets the browser garbage-collect the emptied groups.
	Incremental Strategy = iota
	// Nuclear ungroups every tab of all duplicate-named groups and
	// recreates one fresh group per name. For group state the browser
	// refuses to merge in place (e.g. synced groups).
	Nuclear
)

// ParseStrategy maps a flag value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "incremental":
		return Incremental, nil
	case "nuclear":
		return Nuclear, nil
	default:
		return Incremental, fmt.Errorf("unknown strategy %q (want incremental or nuclear)", s)
	}
}

// Reconciler applies assignments against one window through a Host.
type Reconciler struct {
	Host     Host
	Strategy Strategy
	// Collapse is the collapsed-state applied to newly created groups.
	Collapse bool
}

// Reconcile merges assignments into windowID's existing groups. Tab IDs
// that are unknown or belong to another window are filtered out and
// counted, not treated as errors. A failure on one category is logged and
// skipped; the remaining categories still run.
func (r *Reconciler) Reconcile(ctx context.Context, assignments []types.Assignment, tabsByID map[int]*types.Tab, windowID int) (*types.ReconcileResult, error) {
	res := &types.ReconcileResult{}

	// Dedupe first so the snapshot used for matching has one group per
	// normalized name.
	cleaned, err := r.CleanupDuplicates(ctx, windowID)
	if err != nil {
		applog.Error("reconcile.cleanup", err, "window", windowID)
	}
	res.Cleaned = cleaned

	existing, err := r.Host.QueryGroups(ctx, windowID)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	lookup := buildLookup(existing)

	processed := make(map[string]bool)
	for _, a := range assignments {
		key := category.Normalize(a.Name)
		if processed[key] {
			continue
		}
		processed[key] = true

		ids, dropped := r.validTabs(a.TabIDs, tabsByID, windowID)
		res.Dropped += dropped
		if len(ids) == 0 {
			continue
		}

		outcome, err := r.applyCategory(ctx, a, ids, lookup)
		if err != nil {
			applog.Error("reconcile.category", err, "name", a.Name)
			res.Failed++
			continue
		}
		res.Groups = append(res.Groups, outcome)
	}

	return res, nil
}

// applyCategory merges one category's tabs into a matching existing group
// or creates a new one. Newly created groups are registered in the lookup
// so later categories in the same pass can match them.
func (r *Reconciler) applyCategory(ctx context.Context, a types.Assignment, ids []int, lookup map[string]*types.TabGroup) (types.GroupOutcome, error) {
	if g := match(a.Name, lookup); g != nil {
		err := r.Host.AddTabsToGroup(ctx, ids, g.ID)
		if err == nil {
			applog.Info("reconcile.merged", "group", g.ID, "name", a.Name, "tabs", len(ids))
			return types.GroupOutcome{ID: g.ID, Name: g.Title, Color: g.Color, TabCount: len(ids), Merged: true}, nil
		}
		if !errors.Is(err, ErrGroupNotFound) {
			return types.GroupOutcome{}, fmt.Errorf("add tabs to group %d: %w", g.ID, err)
		}
		// The group vanished between query and mutation; fall through to
		// creation and forget the stale entry.
		applog.Info("reconcile.stale", "group", g.ID, "name", a.Name)
		unregister(g, lookup)
	}

	color := a.Color
	if color == "" {
		color = category.Color(a.Name)
	}
	id, err := r.Host.CreateGroup(ctx, ids)
	if err != nil {
		return types.GroupOutcome{}, fmt.Errorf("create group: %w", err)
	}
	if err := r.Host.UpdateGroup(ctx, id, a.Name, color, r.Collapse); err != nil {
		// The group exists and holds the tabs; a failed title update is
		// worth a log line, not a failed category.
		applog.Error("reconcile.update", err, "group", id, "name", a.Name)
	}
	applog.Info("reconcile.created", "group", id, "name", a.Name, "tabs", len(ids))

	created := &types.TabGroup{ID: id, Title: a.Name, Color: color}
	register(created, lookup)
	return types.GroupOutcome{ID: id, Name: a.Name, Color: color, TabCount: len(ids)}, nil
}

// validTabs keeps IDs that exist and belong to the target window.
func (r *Reconciler) validTabs(ids []int, tabsByID map[int]*types.Tab, windowID int) ([]int, int) {
	var valid []int
	dropped := 0
	for _, id := range ids {
		t, ok := tabsByID[id]
		if !ok || t.WindowID != windowID {
			applog.Info("reconcile.dropped", "id", id, "window", windowID)
			dropped++
			continue
		}
		valid = append(valid, id)
	}
	return valid, dropped
}

// CleanupDuplicates collapses same-named groups in one window down to one
// group per normalized name. It is idempotent and callable on its own.
// Returns the number of groups removed.
func (r *Reconciler) CleanupDuplicates(ctx context.Context, windowID int) (int, error) {
	groups, err := r.Host.QueryGroups(ctx, windowID)
	if err != nil {
		return 0, fmt.Errorf("query groups: %w", err)
	}

	buckets := make(map[string][]*types.TabGroup)
	var keys []string
	for _, g := range groups {
		key := category.Normalize(g.Title)
		if len(buckets[key]) == 0 {
			keys = append(keys, key)
		}
		buckets[key] = append(buckets[key], g)
	}

	tabs, err := r.Host.QueryTabs(ctx, windowID)
	if err != nil {
		return 0, fmt.Errorf("query tabs: %w", err)
	}
	members := make(map[int][]int) // group ID -> tab IDs
	for _, t := range tabs {
		if t.GroupID != types.UngroupedID {
			members[t.GroupID] = append(members[t.GroupID], t.ID)
		}
	}

	removed := 0
	for _, key := range keys {
		dupes := buckets[key]
		if len(dupes) < 2 {
			continue
		}
		n, err := r.collapse(ctx, dupes, members)
		if err != nil {
			// Reported, not retried.
			applog.Error("reconcile.collapse", err, "name", key)
			continue
		}
		removed += n
	}
	return removed, nil
}

// collapse merges one bucket of same-named groups per the strategy.
func (r *Reconciler) collapse(ctx context.Context, dupes []*types.TabGroup, members map[int][]int) (int, error) {
	// Survivor: most tabs, stable on ties.
	sort.SliceStable(dupes, func(i, j int) bool {
		return len(members[dupes[i].ID]) > len(members[dupes[j].ID])
	})
	survivor, rest := dupes[0], dupes[1:]

	if r.Strategy == Nuclear {
		var all []int
		for _, g := range dupes {
			all = append(all, members[g.ID]...)
		}
		if len(all) == 0 {
			return 0, nil
		}
		if err := r.Host.UngroupTabs(ctx, all); err != nil {
			return 0, fmt.Errorf("ungroup %q: %w", survivor.Title, err)
		}
		id, err := r.Host.CreateGroup(ctx, all)
		if err != nil {
			return 0, fmt.Errorf("recreate %q: %w", survivor.Title, err)
		}
		if err := r.Host.UpdateGroup(ctx, id, survivor.Title, survivor.Color, survivor.Collapsed); err != nil {
			applog.Error("reconcile.update", err, "group", id, "name", survivor.Title)
		}
		applog.Info("reconcile.recreated", "group", id, "name", survivor.Title, "tabs", len(all))
		return len(rest), nil
	}

	removed := 0
	for _, g := range rest {
		ids := members[g.ID]
		if len(ids) > 0 {
			if err := r.Host.AddTabsToGroup(ctx, ids, survivor.ID); err != nil {
				applog.Error("reconcile.merge", err, "from", g.ID, "into", survivor.ID)
				continue
			}
		}
		// The browser garbage-collects the now-empty group.
		removed++
	}
	return removed, nil
}

// buildLookup indexes existing groups under every normalization variant of
// their titles, so "Tab Dev", "tabdev" and "tab-dev" resolve to one group.
func buildLookup(groups []*types.TabGroup) map[string]*types.TabGroup {
	lookup := make(map[string]*types.TabGroup)
	for _, g := range groups {
		register(g, lookup)
	}
	return lookup
}

func register(g *types.TabGroup, lookup map[string]*types.TabGroup) {
	for _, key := range category.Variants(g.Title) {
		if _, taken := lookup[key]; !taken {
			lookup[key] = g
		}
	}
}

func unregister(g *types.TabGroup, lookup map[string]*types.TabGroup) {
	for key, existing := range lookup {
		if existing == g {
			delete(lookup, key)
		}
	}
}

// match probes the lookup with every variant of the assignment name.
func match(name string, lookup map[string]*types.TabGroup) *types.TabGroup {
	for _, key := range category.Variants(name) {
		if g, ok := lookup[key]; ok {
			return g
		}
	}
	return nil
}
