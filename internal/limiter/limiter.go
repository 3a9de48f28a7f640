// Package limiter caps a categorization result at a maximum group count by
// merging the smallest groups into the catch-all.
package limiter

import (
	"sort"

	"github.com/lotas/tabgruppen/internal/category"
	"github.com/lotas/tabgruppen/internal/types"
)

// Limit returns at most maxGroups assignments. Groups are ranked by tab
// count (stable, so equal-sized groups keep their input order); the top
// maxGroups-1 survive and everything else is merged into a grey Other
// group — an Other group already among the survivors is reused. No tab ID
// is ever dropped.
func Limit(groups []types.Assignment, maxGroups int) []types.Assignment {
	if maxGroups < 1 || len(groups) <= maxGroups {
		return groups
	}

	sorted := make([]types.Assignment, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].TabIDs) > len(sorted[j].TabIDs)
	})

	kept := sorted[:maxGroups-1]
	overflow := sorted[maxGroups-1:]

	var other *types.Assignment
	out := make([]types.Assignment, len(kept))
	copy(out, kept)
	for i := range out {
		if out[i].Name == category.Other {
			other = &out[i]
			break
		}
	}
	if other == nil {
		out = append(out, types.Assignment{Name: category.Other, Color: category.ColorGrey})
		other = &out[len(out)-1]
	}

	for _, g := range overflow {
		other.TabIDs = append(other.TabIDs, g.TabIDs...)
	}
	return out
}
