package types

import (
	"net/url"
	"strings"
	"time"
)

// UngroupedID is the group ID browsers report for tabs outside any group.
const UngroupedID = -1

// Tab represents a single browser tab as reported by the extension
// (live mode) or reconstructed from a session file (offline mode).
type Tab struct {
	ID           int // browser-assigned tab ID; synthetic in offline mode
	URL          string
	Title        string
	Domain       string // host portion of URL, lowercased, no "www."
	WindowID     int
	GroupID      int // UngroupedID if ungrouped
	LastAccessed time.Time

	// Page metadata, best-effort. May be entirely empty.
	Meta PageMetadata
}

// PageMetadata holds per-tab page metadata harvested by the metadata
// collaborator. All fields are optional.
type PageMetadata struct {
	Description string
	Keywords    string
	OGType      string
	SchemaType  string
	MainHeading string
	BodyPreview string
}

// Empty reports whether no metadata was extracted at all.
func (m PageMetadata) Empty() bool {
	return m == PageMetadata{}
}

// TabGroup represents a named tab group that already exists in the browser.
type TabGroup struct {
	ID        int
	Title     string
	Color     string
	WindowID  int
	Collapsed bool
}

// Assignment maps one category to the tabs placed in it for one run.
type Assignment struct {
	Name   string
	Color  string
	TabIDs []int
}

// Result is a full categorization outcome: one Assignment per distinct
// category, covering every input tab exactly once after validation.
type Result struct {
	Groups []Assignment

	// Fallback is true when the heuristic path produced the result
	// because the model path failed or was unreliable.
	Fallback bool
}

// TabCount returns the total number of tab IDs across all assignments.
func (r *Result) TabCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.TabIDs)
	}
	return n
}

// GroupOutcome describes one browser group after reconciliation.
type GroupOutcome struct {
	ID       int
	Name     string
	Color    string
	TabCount int
	Merged   bool // tabs went into a pre-existing group
}

// ReconcileResult aggregates the per-category outcomes of one reconcile pass.
type ReconcileResult struct {
	Groups  []GroupOutcome
	Failed  int // categories that could not be created or merged
	Dropped int // tab IDs filtered out (wrong window, unknown)
	Cleaned int // duplicate groups collapsed by cleanup
}

// Profile represents a Firefox profile (offline mode).
type Profile struct {
	Name       string
	Path       string // absolute path to profile directory
	IsDefault  bool
	IsRelative bool
}

// Session holds all tabs and groups parsed from one source.
type Session struct {
	Tabs     []*Tab
	Groups   []*TabGroup
	Profile  Profile
	ParsedAt time.Time
}

// DomainOf extracts the lowercased host from a raw URL, stripping a
// leading "www.". Returns "" for unparseable or schemeless URLs.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
