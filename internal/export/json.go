// Package export renders a classification result as a document: JSON for
// tooling, markdown for humans. Exports describe the proposed grouping and
// never touch the browser.
package export

import (
	"encoding/json"
	"time"

	"github.com/lotas/tabgruppen/internal/types"
)

type jsonExport struct {
	Profile    string      `json:"profile,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"`
	ExportedAt time.Time   `json:"exported_at"`
	Groups     []jsonGroup `json:"groups"`
}

type jsonGroup struct {
	Name  string    `json:"name"`
	Color string    `json:"color,omitempty"`
	Tabs  []jsonTab `json:"tabs"`
}

type jsonTab struct {
	ID                 int       `json:"id"`
	Title              string    `json:"title"`
	URL                string    `json:"url"`
	Domain             string    `json:"domain"`
	LastAccessed       time.Time `json:"last_accessed,omitempty"`
	LastAccessedPretty string    `json:"last_accessed_pretty,omitempty"`
}

// JSON formats a classification result as an indented JSON document.
func JSON(result *types.Result, tabsByID map[int]*types.Tab, profile string) (string, error) {
	out := jsonExport{
		Profile:    profile,
		Fallback:   result.Fallback,
		ExportedAt: time.Now(),
		Groups:     make([]jsonGroup, 0, len(result.Groups)),
	}

	for _, g := range result.Groups {
		group := jsonGroup{
			Name:  g.Name,
			Color: g.Color,
			Tabs:  make([]jsonTab, 0, len(g.TabIDs)),
		}
		for _, id := range g.TabIDs {
			t, ok := tabsByID[id]
			if !ok {
				group.Tabs = append(group.Tabs, jsonTab{ID: id})
				continue
			}
			jt := jsonTab{
				ID:     t.ID,
				Title:  t.Title,
				URL:    t.URL,
				Domain: t.Domain,
			}
			if !t.LastAccessed.IsZero() {
				jt.LastAccessed = t.LastAccessed
				jt.LastAccessedPretty = relativeTime(t.LastAccessed)
			}
			group.Tabs = append(group.Tabs, jt)
		}
		out.Groups = append(out.Groups, group)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
