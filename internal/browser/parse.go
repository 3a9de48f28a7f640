package browser

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lotas/tabgruppen/internal/types"
)

type wireTab struct {
	ID           int    `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	LastAccessed int64  `json:"lastAccessed"`
	GroupID      int    `json:"groupId"`
	WindowID     int    `json:"windowId"`
}

type wireGroup struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	WindowID  int    `json:"windowId"`
	Collapsed bool   `json:"collapsed"`
}

// ParseTabs converts a raw JSON tab array from the extension.
func ParseTabs(raw json.RawMessage) ([]*types.Tab, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wire []wireTab
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse tabs: %w", err)
	}
	tabs := make([]*types.Tab, 0, len(wire))
	for _, wt := range wire {
		groupID := wt.GroupID
		if groupID == 0 {
			groupID = types.UngroupedID
		}
		tabs = append(tabs, &types.Tab{
			ID:           wt.ID,
			URL:          wt.URL,
			Title:        wt.Title,
			Domain:       types.DomainOf(wt.URL),
			WindowID:     wt.WindowID,
			GroupID:      groupID,
			LastAccessed: time.UnixMilli(wt.LastAccessed),
		})
	}
	return tabs, nil
}

// ParseGroups converts a raw JSON group array from the extension.
func ParseGroups(raw json.RawMessage) ([]*types.TabGroup, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wire []wireGroup
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse groups: %w", err)
	}
	groups := make([]*types.TabGroup, 0, len(wire))
	for _, wg := range wire {
		groups = append(groups, &types.TabGroup{
			ID:        wg.ID,
			Title:     wg.Title,
			Color:     wg.Color,
			WindowID:  wg.WindowID,
			Collapsed: wg.Collapsed,
		})
	}
	return groups, nil
}

// ParseSnapshot converts an IncomingMsg of type "snapshot" into a Session.
func ParseSnapshot(msg IncomingMsg) (*types.Session, error) {
	tabs, err := ParseTabs(msg.Tabs)
	if err != nil {
		return nil, err
	}
	groups, err := ParseGroups(msg.Groups)
	if err != nil {
		return nil, err
	}
	return &types.Session{
		Tabs:     tabs,
		Groups:   groups,
		ParsedAt: time.Now(),
	}, nil
}
