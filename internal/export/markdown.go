package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/lotas/tabgruppen/internal/types"
)

// Markdown formats a classification result as a markdown document.
func Markdown(result *types.Result, tabsByID map[int]*types.Tab, profile string) string {
	var b strings.Builder

	source := profile
	if source == "" {
		source = "live session"
	}
	fmt.Fprintf(&b, "# Tab groups — %s\n", source)
	fmt.Fprintf(&b, "> Exported %s\n", time.Now().Format("2006-01-02 15:04"))
	if result.Fallback {
		b.WriteString("> Classified by pattern matching (model unavailable)\n")
	}

	for _, g := range result.Groups {
		n := len(g.TabIDs)
		noun := "tabs"
		if n == 1 {
			noun = "tab"
		}
		fmt.Fprintf(&b, "\n## %s (%d %s)\n\n", g.Name, n, noun)

		for _, id := range g.TabIDs {
			t, ok := tabsByID[id]
			if !ok {
				fmt.Fprintf(&b, "- tab %d\n", id)
				continue
			}
			title := t.Title
			if title == "" {
				title = t.URL
			}
			if t.LastAccessed.IsZero() {
				fmt.Fprintf(&b, "- [%s](%s)\n", title, t.URL)
			} else {
				fmt.Fprintf(&b, "- [%s](%s) — %s\n", title, t.URL, relativeTime(t.LastAccessed))
			}
		}
	}

	return b.String()
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
