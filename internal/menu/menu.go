// Package menu builds tab context menus from independently registered
// providers.
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ideapedyudi/tabby/internal/logging"
)

var menuLog = logging.ForComponent(logging.CompMenu)

// DefaultTimeout bounds how long one provider may take.
const DefaultTimeout = 2 * time.Second

var (
	// ErrInvalidPath is returned when a click path doesn't name an item.
	ErrInvalidPath = errors.New("invalid menu path")
	// ErrNotClickable is returned for items that only carry a submenu.
	ErrNotClickable = errors.New("menu item has no action")
)

// Item is one menu entry. Click is nil for pure submenu parents.
type Item struct {
	Label   string
	Click   func(ctx context.Context) error
	Submenu []Item
}

// Tab is what providers get to look at. Providers type-assert to richer
// interfaces when they need more.
type Tab interface {
	ID() string
	Title() string
}

// Provider contributes items to a tab's context menu. Items must not
// mutate any state; only Click does.
type Provider interface {
	Weight() int
	Items(ctx context.Context, t Tab, header bool) ([]Item, error)
}

type funcProvider struct {
	weight int
	fn     func(ctx context.Context, t Tab, header bool) ([]Item, error)
}

func (f funcProvider) Weight() int { return f.weight }

func (f funcProvider) Items(ctx context.Context, t Tab, header bool) ([]Item, error) {
	return f.fn(ctx, t, header)
}

// Func adapts a function to Provider.
func Func(weight int, fn func(ctx context.Context, t Tab, header bool) ([]Item, error)) Provider {
	return funcProvider{weight: weight, fn: fn}
}

type registered struct {
	name string
	p    Provider
}

// Registry holds providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers []registered
	timeout   time.Duration
}

// NewRegistry returns an empty registry. A non-positive timeout uses
// DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{timeout: timeout}
}

// Register adds a provider. The name is only used in logs.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, registered{name: name, p: p})
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

type group struct {
	weight int
	items  []Item
}

// Aggregate queries every provider concurrently and returns their items
// ordered by descending weight. Providers of equal weight keep registration
// order. A provider that fails, panics or times out contributes nothing.
func (r *Registry) Aggregate(ctx context.Context, t Tab, header bool) []Item {
	r.mu.RLock()
	providers := slices.Clone(r.providers)
	r.mu.RUnlock()

	groups := make([]group, len(providers))
	var g errgroup.Group
	for i, rp := range providers {
		i, rp := i, rp
		g.Go(func() error {
			groups[i] = r.collect(ctx, rp, t, header)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(groups, func(a, b group) int {
		return b.weight - a.weight
	})

	var out []Item
	for _, gr := range groups {
		out = append(out, gr.items...)
	}
	return out
}

type result struct {
	group
	err error
}

func (r *Registry) collect(ctx context.Context, rp registered, t Tab, header bool) group {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		weight := rp.p.Weight()
		items, err := rp.p.Items(ctx, t, header)
		done <- result{group: group{weight: weight, items: items}, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			menuLog.Warn("provider_failed", slog.String("provider", rp.name), slog.String("error", res.err.Error()))
			return group{}
		}
		return res.group
	case <-ctx.Done():
		menuLog.Warn("provider_timeout", slog.String("provider", rp.name), slog.Duration("timeout", r.timeout))
		return group{}
	}
}

// Lookup returns the item at path, where each element indexes one level of
// submenu.
func Lookup(items []Item, path []int) (Item, error) {
	if len(path) == 0 {
		return Item{}, ErrInvalidPath
	}
	level := items
	var it Item
	for depth, idx := range path {
		if idx < 0 || idx >= len(level) {
			return Item{}, fmt.Errorf("%w: index %d at depth %d", ErrInvalidPath, idx, depth)
		}
		it = level[idx]
		level = it.Submenu
	}
	return it, nil
}

// Click runs the action of the item at path.
func Click(ctx context.Context, items []Item, path []int) error {
	it, err := Lookup(items, path)
	if err != nil {
		return err
	}
	if it.Click == nil {
		return ErrNotClickable
	}
	menuLog.Info("menu_click", slog.String("label", it.Label), slog.Any("path", path))
	return it.Click(ctx)
}
