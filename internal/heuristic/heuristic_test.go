package heuristic

import (
	"testing"

	"github.com/lotas/tabgruppen/internal/types"
)

func tab(id int, url, title string) *types.Tab {
	return &types.Tab{ID: id, URL: url, Title: title, Domain: types.DomainOf(url)}
}

func groupsByName(r *types.Result) map[string][]int {
	m := map[string][]int{}
	for _, g := range r.Groups {
		m[g.Name] = g.TabIDs
	}
	return m
}

func TestClassifyKnownDomains(t *testing.T) {
	tabs := []*types.Tab{
		tab(1, "https://github.com/foo", "foo repo"),
		tab(2, "https://youtube.com/watch", "Some Video"),
		tab(3, "https://mail.google.com", "Inbox (3)"),
		tab(4, "https://unknownsite.xyz", "Hello"),
		tab(5, "https://github.com/bar", "bar repo"),
	}
	got := groupsByName(Classify(tabs, 5))

	want := map[string][]int{
		"Dev":           {1, 5},
		"Entertainment": {2},
		"Work":          {3},
		"Other":         {4},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d groups %v, want %d", len(got), got, len(want))
	}
	for name, ids := range want {
		g, ok := got[name]
		if !ok {
			t.Errorf("missing group %s", name)
			continue
		}
		if len(g) != len(ids) {
			t.Errorf("%s = %v, want %v", name, g, ids)
			continue
		}
		for i := range ids {
			if g[i] != ids[i] {
				t.Errorf("%s = %v, want %v", name, g, ids)
				break
			}
		}
	}
}

func TestClassifyRespectsMaxGroups(t *testing.T) {
	tabs := []*types.Tab{
		tab(1, "https://github.com/foo", "foo"),
		tab(2, "https://youtube.com/watch", "video"),
		tab(3, "https://mail.google.com", "inbox"),
		tab(4, "https://unknownsite.xyz", "hello"),
		tab(5, "https://github.com/bar", "bar"),
	}
	res := Classify(tabs, 2)
	if len(res.Groups) > 2 {
		t.Fatalf("expected at most 2 groups, got %d", len(res.Groups))
	}

	got := groupsByName(res)
	if ids := got["Dev"]; len(ids) != 2 {
		t.Errorf("Dev = %v, want [1 5]", ids)
	}
	if ids := got["Other"]; len(ids) != 3 {
		t.Errorf("Other = %v, want [2 3 4]", ids)
	}
}

func TestClassifyCoversEveryTab(t *testing.T) {
	tabs := []*types.Tab{
		tab(1, "https://arxiv.org/abs/1234", "A Paper"),
		tab(2, "not a url", ""),
		tab(3, "", ""),
		tab(4, "https://reddit.com/r/golang", "r/golang"),
	}
	res := Classify(tabs, 10)

	seen := map[int]int{}
	for _, g := range res.Groups {
		for _, id := range g.TabIDs {
			seen[id]++
		}
	}
	if len(seen) != 4 {
		t.Fatalf("covered %d tabs, want 4", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("tab %d assigned %d times", id, n)
		}
	}
}

func TestClassifyTitleKeywords(t *testing.T) {
	// Domain unknown, but the title gives it away.
	tabs := []*types.Tab{
		tab(1, "https://example.org/post", "Breaking news from the capital"),
	}
	got := groupsByName(Classify(tabs, 10))
	if _, ok := got["News"]; !ok {
		t.Errorf("expected News from title keywords, got %v", got)
	}
}

func TestClassifyMetadataHint(t *testing.T) {
	withMeta := tab(1, "https://example.org/x", "Untitled")
	withMeta.Meta.OGType = "video"
	tabs := []*types.Tab{withMeta}

	got := groupsByName(Classify(tabs, 10))
	// og:type alone can't create a match, but a weak keyword match plus
	// the hint must not panic or misassign; Untitled matches nothing, so
	// the tab lands in Other.
	if _, ok := got["Other"]; !ok {
		t.Errorf("expected Other, got %v", got)
	}
}

func TestClassifyLongestMatchWins(t *testing.T) {
	// console.aws.amazon.com matches both Cloud (console.aws.amazon.com)
	// and Shopping (amazon.com); the longer domain match wins.
	tabs := []*types.Tab{
		tab(1, "https://console.aws.amazon.com/ec2", "EC2 Dashboard"),
	}
	got := groupsByName(Classify(tabs, 10))
	if _, ok := got["Cloud"]; !ok {
		t.Errorf("expected Cloud for AWS console, got %v", got)
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	res := Classify(nil, 5)
	if len(res.Groups) != 0 {
		t.Errorf("expected no groups for no tabs, got %v", res.Groups)
	}
}
