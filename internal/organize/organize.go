// Package organize wires the pipeline together: inventory → classify →
// reconcile → record. A Session carries everything one run needs; there is
// no package-level state.
package organize

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/heuristic"
	"github.com/lotas/tabgruppen/internal/reconcile"
	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/types"
)

// Classifier produces a categorization for a set of tabs. Implementations
// never fail; degraded output is flagged on the Result.
type Classifier interface {
	Classify(ctx context.Context, tabs []*types.Tab, maxGroups int) *types.Result
}

// Heuristic is the pattern-matching Classifier.
type Heuristic struct{}

// Classify implements Classifier.
func (Heuristic) Classify(_ context.Context, tabs []*types.Tab, maxGroups int) *types.Result {
	return heuristic.Classify(tabs, maxGroups)
}

// DefaultMaxGroups caps the number of groups per run unless overridden.
const DefaultMaxGroups = 8

// Session holds the collaborators and settings for organize runs. Build
// one per process and pass it around; it has no hidden globals.
type Session struct {
	Classifier Classifier
	Host       reconcile.Host // nil for dry runs
	Strategy   reconcile.Strategy
	MaxGroups  int

	DB      *sql.DB // optional run history
	Profile string  // offline profile name, if any
	Model   string  // model name for the history record
	DryRun  bool
}

// Report is the caller-visible outcome of one run.
type Report struct {
	Result    *types.Result
	Reconcile *types.ReconcileResult // nil on dry runs
	TabCount  int
}

// Status renders the degraded-or-not outcome as a one-line status. Fallback
// is a mode, never an error.
func (r *Report) Status() string {
	mode := "model"
	if r.Result.Fallback {
		mode = "pattern matching (model unavailable)"
	}
	groups := len(r.Result.Groups)
	if r.Reconcile != nil {
		groups = len(r.Reconcile.Groups)
	}
	s := fmt.Sprintf("Organized %d tabs into %d groups via %s", r.TabCount, groups, mode)
	if r.Reconcile != nil && r.Reconcile.Failed > 0 {
		s += fmt.Sprintf(" (%d categories failed)", r.Reconcile.Failed)
	}
	return s
}

// Run classifies the given tabs and, unless DryRun, reconciles the result
// into the browser window by window. Windows are processed sequentially:
// the group namespace is live and mutates under us, so no parallelism.
func (s *Session) Run(ctx context.Context, tabs []*types.Tab) (*Report, error) {
	maxGroups := s.MaxGroups
	if maxGroups <= 0 {
		maxGroups = DefaultMaxGroups
	}

	cls := s.Classifier
	if cls == nil {
		cls = Heuristic{}
	}
	result := cls.Classify(ctx, tabs, maxGroups)
	applog.Info("organize.classified", "tabs", len(tabs), "groups", len(result.Groups), "fallback", result.Fallback)

	report := &Report{Result: result, TabCount: len(tabs)}

	if !s.DryRun && s.Host != nil {
		rec, err := s.reconcileAll(ctx, result, tabs)
		if err != nil {
			return nil, err
		}
		report.Reconcile = rec
	}

	if s.DB != nil {
		if err := s.record(report); err != nil {
			applog.Error("organize.record", err)
		}
	}

	return report, nil
}

// reconcileAll splits assignments per window and reconciles each window in
// turn, aggregating the outcomes.
func (s *Session) reconcileAll(ctx context.Context, result *types.Result, tabs []*types.Tab) (*types.ReconcileResult, error) {
	tabsByID := make(map[int]*types.Tab, len(tabs))
	windowSet := make(map[int]bool)
	for _, t := range tabs {
		tabsByID[t.ID] = t
		windowSet[t.WindowID] = true
	}
	windows := make([]int, 0, len(windowSet))
	for w := range windowSet {
		windows = append(windows, w)
	}
	sort.Ints(windows)

	r := &reconcile.Reconciler{Host: s.Host, Strategy: s.Strategy}

	agg := &types.ReconcileResult{}
	for _, windowID := range windows {
		assignments := forWindow(result.Groups, tabsByID, windowID)
		if len(assignments) == 0 {
			continue
		}
		res, err := r.Reconcile(ctx, assignments, tabsByID, windowID)
		if err != nil {
			// One window failing should not abandon the others.
			applog.Error("organize.window", err, "window", windowID)
			agg.Failed += len(assignments)
			continue
		}
		agg.Groups = append(agg.Groups, res.Groups...)
		agg.Failed += res.Failed
		agg.Dropped += res.Dropped
		agg.Cleaned += res.Cleaned
	}
	return agg, nil
}

// forWindow restricts assignments to the tab IDs living in one window.
func forWindow(groups []types.Assignment, tabsByID map[int]*types.Tab, windowID int) []types.Assignment {
	var out []types.Assignment
	for _, g := range groups {
		var ids []int
		for _, id := range g.TabIDs {
			if t, ok := tabsByID[id]; ok && t.WindowID == windowID {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			out = append(out, types.Assignment{Name: g.Name, Color: g.Color, TabIDs: ids})
		}
	}
	return out
}

func (s *Session) record(report *Report) error {
	mode := "model"
	if s.Model == "" || report.Result.Fallback {
		mode = "heuristic"
	}
	run := &storage.Run{
		Profile:  s.Profile,
		Mode:     mode,
		Model:    s.Model,
		Fallback: report.Result.Fallback,
		DryRun:   s.DryRun,
		TabCount: report.TabCount,
	}
	if report.Reconcile != nil {
		for _, g := range report.Reconcile.Groups {
			run.Groups = append(run.Groups, storage.RunGroup{
				Name: g.Name, Color: g.Color, TabCount: g.TabCount, Merged: g.Merged,
			})
		}
	} else {
		for _, g := range report.Result.Groups {
			run.Groups = append(run.Groups, storage.RunGroup{
				Name: g.Name, Color: g.Color, TabCount: len(g.TabIDs),
			})
		}
	}
	_, err := storage.SaveRun(s.DB, run)
	return err
}

// FormatDryRun renders the proposed grouping without applying it.
func FormatDryRun(result *types.Result, tabsByID map[int]*types.Tab) string {
	var b strings.Builder
	for _, g := range result.Groups {
		fmt.Fprintf(&b, "\n%s [%s] (%d):\n", g.Name, g.Color, len(g.TabIDs))
		for _, id := range g.TabIDs {
			if t, ok := tabsByID[id]; ok {
				fmt.Fprintf(&b, "  - %s (%s)\n", t.Title, t.Domain)
			} else {
				fmt.Fprintf(&b, "  - tab %d\n", id)
			}
		}
	}
	return b.String()
}
