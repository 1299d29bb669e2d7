// Package workspace owns the set of open tabs: it opens and closes them,
// serves their context menus and persists recovery tokens across restarts.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ideapedyudi/tabby/internal/i18n"
	"github.com/ideapedyudi/tabby/internal/logging"
	"github.com/ideapedyudi/tabby/internal/menu"
	"github.com/ideapedyudi/tabby/internal/notify"
	"github.com/ideapedyudi/tabby/internal/platform"
	"github.com/ideapedyudi/tabby/internal/profile"
	"github.com/ideapedyudi/tabby/internal/recovery"
	"github.com/ideapedyudi/tabby/internal/statedb"
	"github.com/ideapedyudi/tabby/internal/tab"
)

var hostLog = logging.ForComponent(logging.CompTab)

const (
	heartbeatInterval = 10 * time.Second
	instanceTimeout   = 30 * time.Second
)

var (
	// ErrUnknownTab is returned for a tab id that isn't open.
	ErrUnknownTab = errors.New("unknown tab")
	// ErrHostClosed is returned after Shutdown.
	ErrHostClosed = errors.New("workspace closed")
)

// ProfileStore is the profile source the host reads from and saves to.
type ProfileStore interface {
	profile.Source
	Add(p profile.Profile) error
}

// Options configure a Host.
type Options struct {
	Factory  tab.SessionFactory
	Profiles ProfileStore
	// DefaultProfile names the profile for tabs opened without one.
	DefaultProfile string

	// DB persists recovery tokens. Optional.
	DB         *statedb.StateDB
	Translator *i18n.Translator
	Notifier   notify.Notifier
	// Elevator enables administrator menu items. Nil hides them.
	Elevator platform.Elevator

	ReconnectPerMinute int
	ReconnectBurst     int
	MenuTimeout        time.Duration
}

// Event reports a tab lifecycle change.
type Event struct {
	TabID string    `json:"tabId"`
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// Host is the set of open tabs.
type Host struct {
	opts  Options
	tr    *i18n.Translator
	menus *menu.Registry

	mu      sync.RWMutex
	tabs    map[string]*tab.ConnectableTab
	order   []string
	closed  bool
	primary bool

	subMu sync.Mutex
	subs  map[chan Event]struct{}

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// New creates a host with the built-in menu providers registered.
func New(opts Options) *Host {
	tr := opts.Translator
	if tr == nil {
		tr = i18n.New("en")
	}
	opts.Translator = tr
	if opts.Notifier == nil {
		opts.Notifier = notify.NewHub()
	}

	h := &Host{
		opts:  opts,
		tr:    tr,
		menus: menu.NewRegistry(opts.MenuTimeout),
		tabs:  make(map[string]*tab.ConnectableTab),
		subs:  make(map[chan Event]struct{}),
	}
	h.menus.Register("new-tab", &newTabProvider{host: h})
	h.menus.Register("reconnect", &reconnectProvider{host: h})
	h.menus.Register("save-as-profile", &saveAsProfileProvider{host: h})
	return h
}

// Menus returns the registry so other components can add providers.
func (h *Host) Menus() *menu.Registry { return h.menus }

// Translator returns the host's translator.
func (h *Host) Translator() *i18n.Translator { return h.tr }

// Notifier returns the notifier used for user-visible messages.
func (h *Host) Notifier() notify.Notifier { return h.opts.Notifier }

// Profiles returns the profile store.
func (h *Host) Profiles() ProfileStore { return h.opts.Profiles }

// Primary reports whether this process owns tab persistence.
func (h *Host) Primary() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary
}

// Start registers this process in the state DB and, if it wins the
// election, restores the tabs saved by the previous run.
func (h *Host) Start(ctx context.Context, restore bool) error {
	db := h.opts.DB
	if db == nil {
		return nil
	}
	if err := db.CleanDeadInstances(instanceTimeout); err != nil {
		hostLog.Warn("clean_dead_instances_failed", slog.String("error", err.Error()))
	}
	if err := db.RegisterInstance(false); err != nil {
		return fmt.Errorf("register instance: %w", err)
	}
	primary, err := db.ElectPrimary(instanceTimeout)
	if err != nil {
		return fmt.Errorf("elect primary: %w", err)
	}

	h.mu.Lock()
	h.primary = primary
	h.stopHeartbeat = make(chan struct{})
	h.heartbeatDone = make(chan struct{})
	h.mu.Unlock()
	go h.heartbeatLoop(db)

	hostLog.Info("workspace_started", slog.Bool("primary", primary))
	if primary && restore {
		n, err := h.Restore(ctx)
		if err != nil {
			return err
		}
		hostLog.Info("tabs_restored", slog.Int("count", n))
	}
	return nil
}

func (h *Host) heartbeatLoop(db *statedb.StateDB) {
	defer close(h.heartbeatDone)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopHeartbeat:
			return
		case <-ticker.C:
			if err := db.Heartbeat(); err != nil {
				hostLog.Debug("heartbeat_failed", slog.String("error", err.Error()))
				continue
			}
			if !h.Primary() {
				h.takeOverIfPrimaryDied(db)
			}
		}
	}
}

// takeOverIfPrimaryDied claims the primary role once the old primary stops
// heartbeating, so tabs keep being saved.
func (h *Host) takeOverIfPrimaryDied(db *statedb.StateDB) {
	primary, err := db.ElectPrimary(instanceTimeout)
	if err != nil || !primary {
		return
	}
	h.mu.Lock()
	h.primary = true
	h.mu.Unlock()
	hostLog.Info("primary_taken_over")
}

// Open creates a tab for p and starts its session. A session that fails to
// start leaves the tab open in the terminated state so the user can retry.
func (h *Host) Open(ctx context.Context, p profile.Profile) (*tab.ConnectableTab, error) {
	return h.open(ctx, uuid.NewString(), p, nil)
}

// OpenDefault opens a tab with the default profile.
func (h *Host) OpenDefault(ctx context.Context) (*tab.ConnectableTab, error) {
	return h.Open(ctx, profile.DetectDefault(ctx, h.opts.Profiles, h.opts.DefaultProfile))
}

func (h *Host) open(ctx context.Context, id string, p profile.Profile, state []byte) (*tab.ConnectableTab, error) {
	if p.Type == "" {
		p.Type = profile.TypeLocal
	}
	perMinute, burst := h.opts.ReconnectPerMinute, h.opts.ReconnectBurst
	t := tab.New(tab.Options{
		ID:            id,
		Profile:       p,
		Factory:       h.opts.Factory,
		Translator:    h.tr,
		Limiter:       tab.NewReconnectLimiter(perMinute, burst),
		Notifier:      h.opts.Notifier,
		RestoredState: state,
		OnStateChange: h.publish,
	})

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		t.Destroy()
		return nil, ErrHostClosed
	}
	h.tabs[id] = t
	h.order = append(h.order, id)
	h.mu.Unlock()

	hostLog.Info("tab_opened", slog.String("tab_id", id), slog.String("profile", p.Name))
	if err := t.Initialize(ctx); err != nil {
		hostLog.Warn("tab_initialize_failed", slog.String("tab_id", id), slog.String("error", err.Error()))
		h.opts.Notifier.Error(id, h.tr.T(i18n.ReconnectFailed, err.Error()))
	}
	return t, nil
}

// Get returns the open tab with id.
func (h *Host) Get(id string) (*tab.ConnectableTab, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	return t, nil
}

// List returns open tabs in the order they were opened.
func (h *Host) List() []*tab.ConnectableTab {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*tab.ConnectableTab, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.tabs[id])
	}
	return out
}

// Close destroys the tab and its session.
func (h *Host) Close(id string) error {
	h.mu.Lock()
	t, ok := h.tabs[id]
	if ok {
		delete(h.tabs, id)
		h.order = slices.DeleteFunc(h.order, func(s string) bool { return s == id })
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	t.Destroy()
	hostLog.Info("tab_closed", slog.String("tab_id", id))
	return nil
}

// Reconnect reconnects the tab immediately, cancelling any prompt.
func (h *Host) Reconnect(ctx context.Context, id string) error {
	t, err := h.Get(id)
	if err != nil {
		return err
	}
	return t.Reconnect(ctx)
}

// Menu builds the context menu for the tab with id. An empty id builds the
// menu without a tab.
func (h *Host) Menu(ctx context.Context, id string, header bool) ([]menu.Item, error) {
	var mt menu.Tab
	if id != "" {
		t, err := h.Get(id)
		if err != nil {
			return nil, err
		}
		mt = t
	}
	return h.menus.Aggregate(ctx, mt, header), nil
}

// Snapshot is a saved tab.
type Snapshot struct {
	ID    string
	Title string
	Token recovery.Token
}

// Snapshots captures a recovery token for every open tab.
func (h *Host) Snapshots(includeState bool) []Snapshot {
	tabs := h.List()
	out := make([]Snapshot, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, Snapshot{ID: t.ID(), Title: t.Title(), Token: t.RecoveryToken(includeState)})
	}
	return out
}

// SaveRecovery writes the recovery tokens of all open tabs to the state DB,
// replacing what was saved before. Only the primary instance saves.
func (h *Host) SaveRecovery() error {
	db := h.opts.DB
	if db == nil || !h.Primary() {
		return nil
	}
	snaps := h.Snapshots(true)
	rows := make([]*statedb.TabRow, 0, len(snaps))
	for i, s := range snaps {
		data, err := recovery.Encode(s.Token)
		if err != nil {
			hostLog.Warn("recovery_encode_failed", slog.String("tab_id", s.ID), slog.String("error", err.Error()))
			continue
		}
		rows = append(rows, &statedb.TabRow{ID: s.ID, Title: s.Title, Order: i, Token: data})
	}
	if err := db.SaveTabs(rows); err != nil {
		return fmt.Errorf("save tabs: %w", err)
	}
	if err := db.Touch(); err != nil {
		hostLog.Warn("recovery_touch_failed", slog.String("error", err.Error()))
	}
	hostLog.Info("recovery_saved", slog.Int("tabs", len(rows)))
	return nil
}

// Restore re-creates tabs from saved recovery tokens. Tokens that fail to
// decode are skipped.
func (h *Host) Restore(ctx context.Context) (int, error) {
	db := h.opts.DB
	if db == nil {
		return 0, nil
	}
	if empty, err := db.IsEmpty(); err == nil && empty {
		return 0, nil
	}
	rows, err := db.LoadTabs()
	if err != nil {
		return 0, fmt.Errorf("load tabs: %w", err)
	}
	n := 0
	for _, row := range rows {
		tok, err := recovery.Decode(row.Token)
		if err != nil {
			hostLog.Warn("recovery_token_skipped", slog.String("tab_id", row.ID), slog.String("error", err.Error()))
			continue
		}
		id := row.ID
		if _, err := h.Get(id); err == nil || id == "" {
			id = uuid.NewString()
		}
		if _, err := h.open(ctx, id, tok.Profile, tok.SavedState); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Shutdown saves recovery tokens, destroys every tab and leaves the
// instance table.
func (h *Host) Shutdown() error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return nil
	}
	saveErr := h.SaveRecovery()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return saveErr
	}
	h.closed = true
	tabs := make([]*tab.ConnectableTab, 0, len(h.order))
	for _, id := range h.order {
		tabs = append(tabs, h.tabs[id])
	}
	h.tabs = make(map[string]*tab.ConnectableTab)
	h.order = nil
	stop, done := h.stopHeartbeat, h.heartbeatDone
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tabs {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.Destroy()
		}()
	}
	wg.Wait()

	if stop != nil {
		close(stop)
		<-done
	}
	if db := h.opts.DB; db != nil {
		if err := db.UnregisterInstance(); err != nil {
			hostLog.Debug("unregister_instance_failed", slog.String("error", err.Error()))
		}
	}
	return saveErr
}

// Subscribe returns a channel of tab lifecycle events.
func (h *Host) Subscribe() chan Event {
	ch := make(chan Event, 32)
	h.subMu.Lock()
	h.subs[ch] = struct{}{}
	h.subMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch.
func (h *Host) Unsubscribe(ch chan Event) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// publish runs with the tab lock held and must not block.
func (h *Host) publish(id string, s tab.State) {
	ev := Event{TabID: id, State: s.String(), At: time.Now().UTC()}
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
