package workspace

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ideapedyudi/tabby/internal/i18n"
	"github.com/ideapedyudi/tabby/internal/menu"
	"github.com/ideapedyudi/tabby/internal/profile"
)

// terminalTab is a tab backed by a terminal session.
type terminalTab interface {
	menu.Tab
	Profile() profile.Profile
	WorkingDirectory(ctx context.Context) string
}

func asTerminal(t menu.Tab) (terminalTab, bool) {
	if t == nil {
		return nil, false
	}
	tt, ok := t.(terminalTab)
	return tt, ok
}

// newTabProvider offers new tabs: a plain one, one per local profile and
// administrator variants when the platform can elevate.
type newTabProvider struct {
	host *Host
}

func (p *newTabProvider) Weight() int { return 10 }

func (p *newTabProvider) Items(ctx context.Context, t menu.Tab, header bool) ([]menu.Item, error) {
	h := p.host
	tr := h.tr
	tt, isTerminal := asTerminal(t)

	// Re-queried on every menu open; a profile added a moment ago shows up.
	profiles, err := h.opts.Profiles.Profiles(ctx, profile.ByType(profile.TypeLocal))
	if err != nil {
		return nil, err
	}

	items := []menu.Item{{
		Label: tr.T(i18n.NewTerminal),
		Click: func(ctx context.Context) error {
			if isTerminal {
				_, err := h.Open(ctx, tt.Profile())
				return err
			}
			_, err := h.OpenDefault(ctx)
			return err
		},
	}}

	withProfile := make([]menu.Item, 0, len(profiles))
	for _, prof := range profiles {
		prof := prof
		withProfile = append(withProfile, menu.Item{
			Label: prof.Name,
			Click: func(ctx context.Context) error {
				_, err := h.Open(ctx, p.inheritCwd(ctx, prof, tt))
				return err
			},
		})
	}
	items = append(items, menu.Item{Label: tr.T(i18n.NewWithProfile), Submenu: withProfile})

	elev := h.opts.Elevator
	if elev == nil || !elev.Available() {
		return items, nil
	}

	admin := make([]menu.Item, 0, len(profiles))
	for _, prof := range profiles {
		prof := prof
		admin = append(admin, menu.Item{
			Label: prof.Name,
			Click: func(ctx context.Context) error {
				_, err := h.Open(ctx, prof.Elevated())
				return err
			},
		})
	}
	items = append(items, menu.Item{Label: tr.T(i18n.NewAdminTab), Submenu: admin})

	if header && isTerminal {
		items = append(items, menu.Item{
			Label: tr.T(i18n.DuplicateAsAdmin),
			Click: func(ctx context.Context) error {
				_, err := h.Open(ctx, tt.Profile().Elevated())
				return err
			},
		})
	}
	return items, nil
}

// inheritCwd starts a profile without its own cwd in the directory of the
// tab the menu was opened on.
func (p *newTabProvider) inheritCwd(ctx context.Context, prof profile.Profile, tt terminalTab) profile.Profile {
	if prof.Options.Cwd != "" || tt == nil {
		return prof
	}
	if cwd := tt.WorkingDirectory(ctx); cwd != "" {
		return prof.WithCwd(cwd)
	}
	return prof
}

// reconnecter is a tab that can be reconnected on request.
type reconnecter interface {
	menu.Tab
	Reconnect(ctx context.Context) error
}

type reconnectProvider struct {
	host *Host
}

func (p *reconnectProvider) Weight() int { return 5 }

func (p *reconnectProvider) Items(_ context.Context, t menu.Tab, _ bool) ([]menu.Item, error) {
	rt, ok := t.(reconnecter)
	if !ok {
		return nil, nil
	}
	return []menu.Item{{
		Label: p.host.tr.T(i18n.Reconnect),
		Click: rt.Reconnect,
	}}, nil
}

// saveAsProfileProvider stores a terminal tab's profile, with its current
// directory, as a new local profile.
type saveAsProfileProvider struct {
	host *Host
}

func (p *saveAsProfileProvider) Weight() int { return 0 }

func (p *saveAsProfileProvider) Items(_ context.Context, t menu.Tab, _ bool) ([]menu.Item, error) {
	tt, ok := asTerminal(t)
	if !ok {
		return nil, nil
	}
	return []menu.Item{{
		Label: p.host.tr.T(i18n.SaveAsProfile),
		Click: func(ctx context.Context) error { return p.save(ctx, tt) },
	}}, nil
}

func (p *saveAsProfileProvider) save(ctx context.Context, tt terminalTab) error {
	h := p.host
	tr := h.tr
	src := tt.Profile()

	name, err := menu.Ask(ctx, tr.T(i18n.ProfileNamePrompt), tr.T(i18n.ProfileCopyName, src.Name))
	if errors.Is(err, menu.ErrCancelled) {
		return nil
	}
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		hostLog.Debug("profile_save_skipped", slog.String("tab_id", tt.ID()))
		return nil
	}

	saved := src.WithCwd(tt.WorkingDirectory(ctx))
	saved.Type = profile.TypeLocal
	saved.Name = name
	if err := h.opts.Profiles.Add(saved); err != nil {
		return err
	}
	hostLog.Info("profile_saved", slog.String("tab_id", tt.ID()), slog.String("profile", name))
	h.opts.Notifier.Info(tt.ID(), tr.T(i18n.Saved))
	return nil
}
