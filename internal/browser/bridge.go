// Package browser is the live host collaborator: a WebSocket bridge the
// browser extension connects to. It exposes the extension's tab and
// tab-group APIs as a request/response client and satisfies
// reconcile.Host.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/reconcile"
	"github.com/lotas/tabgruppen/internal/types"
	"nhooyr.io/websocket"
)

const requestTimeout = 10 * time.Second

// IncomingMsg is a message from the extension.
type IncomingMsg struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	OK     *bool           `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Tabs   json.RawMessage `json:"tabs,omitempty"`
	Groups json.RawMessage `json:"groups,omitempty"`
	// GroupID carries the browser-assigned ID of a created group.
	GroupID int `json:"groupId,omitempty"`
}

// OutgoingMsg is a command to the extension.
type OutgoingMsg struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	WindowID  int    `json:"windowId,omitempty"`
	TabIDs    []int  `json:"tabIds,omitempty"`
	GroupID   int    `json:"groupId,omitempty"`
	Title     string `json:"title,omitempty"`
	Color     string `json:"color,omitempty"`
	Collapsed *bool  `json:"collapsed,omitempty"`
}

// Bridge accepts one extension connection and correlates its responses to
// in-flight commands by message ID.
type Bridge struct {
	port  int
	msgs  chan IncomingMsg
	seq   atomic.Int64
	mu    sync.Mutex
	conn  *websocket.Conn
	wctx  context.Context
	calls map[string]chan IncomingMsg
}

// New creates a Bridge. Port 0 means the caller manages the listener.
func New(port int) *Bridge {
	return &Bridge{
		port:  port,
		msgs:  make(chan IncomingMsg, 64),
		calls: make(map[string]chan IncomingMsg),
	}
}

// Messages returns the channel of uncorrelated messages (e.g. snapshots
// the extension pushes on its own).
func (b *Bridge) Messages() <-chan IncomingMsg {
	return b.msgs
}

// Connected reports whether an extension is connected.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// WaitForConnection blocks until an extension connects or the context ends.
func (b *Bridge) WaitForConnection(ctx context.Context) error {
	for !b.Connected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for extension: %w", ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("bridge.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // snapshots with many tabs can be large

		ctx := r.Context()
		b.mu.Lock()
		if b.conn != nil {
			applog.Info("bridge.replaced")
			b.conn.CloseNow()
		}
		b.conn = conn
		b.wctx = ctx
		b.mu.Unlock()

		applog.Info("bridge.connected", "remote", r.RemoteAddr)

		defer func() {
			b.mu.Lock()
			if b.conn == conn {
				b.conn = nil
				b.wctx = nil
			}
			b.mu.Unlock()
			conn.CloseNow()
			applog.Info("bridge.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("bridge.parse", err)
				continue
			}
			b.dispatch(msg)
		}
	})
}

// dispatch routes responses to their waiting call, everything else to the
// message channel.
func (b *Bridge) dispatch(msg IncomingMsg) {
	if msg.ID != "" {
		b.mu.Lock()
		ch, ok := b.calls[msg.ID]
		if ok {
			delete(b.calls, msg.ID)
		}
		b.mu.Unlock()
		if ok {
			ch <- msg
			return
		}
	}
	select {
	case b.msgs <- msg:
	default:
	}
}

// ListenAndServe starts the WebSocket server on the configured port.
func (b *Bridge) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", b.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", b.port)
	applog.Info("bridge.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	return srv.ListenAndServe()
}

// call sends a command and waits for the matching response.
func (b *Bridge) call(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	b.mu.Lock()
	conn := b.conn
	wctx := b.wctx
	b.mu.Unlock()
	if conn == nil {
		return IncomingMsg{}, errors.New("no extension connected")
	}

	msg.ID = fmt.Sprintf("%s-%d", msg.Action, b.seq.Add(1))
	ch := make(chan IncomingMsg, 1)
	b.mu.Lock()
	b.calls[msg.ID] = ch
	b.mu.Unlock()

	applog.Info("bridge.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return IncomingMsg{}, err
	}
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		return IncomingMsg{}, fmt.Errorf("send %s: %w", msg.Action, err)
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != "" {
			return resp, wireError(resp.Error)
		}
		if resp.OK != nil && !*resp.OK {
			return resp, fmt.Errorf("%s rejected by extension", msg.Action)
		}
		return resp, nil
	case <-timer.C:
		b.abandon(msg.ID)
		return IncomingMsg{}, fmt.Errorf("%s: timed out after %s", msg.Action, requestTimeout)
	case <-ctx.Done():
		b.abandon(msg.ID)
		return IncomingMsg{}, ctx.Err()
	}
}

// abandon forgets an in-flight call that will never be consumed, so late
// responses fall through to the message channel instead of leaking map
// entries.
func (b *Bridge) abandon(id string) {
	b.mu.Lock()
	delete(b.calls, id)
	b.mu.Unlock()
}

// wireError converts extension error strings to sentinel errors where the
// reconciler depends on them. Chrome reports stale group IDs as
// "No group with id: N".
func wireError(s string) error {
	lower := strings.ToLower(s)
	if strings.Contains(lower, "no group with id") || strings.Contains(lower, "not found") {
		return fmt.Errorf("%w: %s", reconcile.ErrGroupNotFound, s)
	}
	return errors.New(s)
}

// QueryGroups implements reconcile.Host.
func (b *Bridge) QueryGroups(ctx context.Context, windowID int) ([]*types.TabGroup, error) {
	resp, err := b.call(ctx, OutgoingMsg{Action: "queryGroups", WindowID: windowID})
	if err != nil {
		return nil, err
	}
	return ParseGroups(resp.Groups)
}

// QueryTabs implements reconcile.Host.
func (b *Bridge) QueryTabs(ctx context.Context, windowID int) ([]*types.Tab, error) {
	resp, err := b.call(ctx, OutgoingMsg{Action: "queryTabs", WindowID: windowID})
	if err != nil {
		return nil, err
	}
	return ParseTabs(resp.Tabs)
}

// CreateGroup implements reconcile.Host. The browser assigns the group ID.
func (b *Bridge) CreateGroup(ctx context.Context, tabIDs []int) (int, error) {
	resp, err := b.call(ctx, OutgoingMsg{Action: "createGroup", TabIDs: tabIDs})
	if err != nil {
		return 0, err
	}
	if resp.GroupID == 0 {
		return 0, errors.New("createGroup: extension returned no group ID")
	}
	return resp.GroupID, nil
}

// UpdateGroup implements reconcile.Host.
func (b *Bridge) UpdateGroup(ctx context.Context, groupID int, title, color string, collapsed bool) error {
	_, err := b.call(ctx, OutgoingMsg{
		Action:    "updateGroup",
		GroupID:   groupID,
		Title:     title,
		Color:     color,
		Collapsed: &collapsed,
	})
	return err
}

// AddTabsToGroup implements reconcile.Host.
func (b *Bridge) AddTabsToGroup(ctx context.Context, tabIDs []int, groupID int) error {
	_, err := b.call(ctx, OutgoingMsg{Action: "moveToGroup", TabIDs: tabIDs, GroupID: groupID})
	return err
}

// UngroupTabs implements reconcile.Host.
func (b *Bridge) UngroupTabs(ctx context.Context, tabIDs []int) error {
	_, err := b.call(ctx, OutgoingMsg{Action: "ungroup", TabIDs: tabIDs})
	return err
}
