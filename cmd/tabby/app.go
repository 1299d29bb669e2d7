package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ideapedyudi/tabby/internal/config"
	"github.com/ideapedyudi/tabby/internal/i18n"
	"github.com/ideapedyudi/tabby/internal/notify"
	"github.com/ideapedyudi/tabby/internal/platform"
	"github.com/ideapedyudi/tabby/internal/profile"
	"github.com/ideapedyudi/tabby/internal/statedb"
	"github.com/ideapedyudi/tabby/internal/terminal"
	"github.com/ideapedyudi/tabby/internal/workspace"
)

// app bundles what every command that opens tabs needs.
type app struct {
	cfg    *config.Config
	store  *profile.Store
	tr     *i18n.Translator
	hub    *notify.Hub
	elev   platform.Elevator
	db     *statedb.StateDB
	host   *workspace.Host
	closer []func()
}

// language picks the --lang flag, then the config, then the environment.
func language(cfg *config.Config) string {
	if strings.TrimSpace(langFlag) != "" {
		return langFlag
	}
	return cfg.Terminal.Language
}

func loadConfig() *config.Config {
	cfg, _ := config.Load()
	if cfg == nil {
		cfg = &config.Config{}
	}
	return cfg
}

// newApp wires the profile store, session factory and tab host. withDB
// opens the state database so tabs are saved and restored.
func newApp(withDB bool) (*app, error) {
	cfg := loadConfig()
	a := &app{
		cfg:   cfg,
		store: profile.NewStore(cfg.Profiles, config.ProfilePersister{}),
		tr:    i18n.New(language(cfg)),
		hub:   notify.NewHub(),
		elev:  platform.DetectElevator(),
	}

	if withDB {
		db, err := openStateDB()
		if err != nil {
			return nil, err
		}
		a.db = db
		a.closer = append(a.closer, func() { _ = db.Close() })
	}

	perMinute, burst := cfg.Terminal.ReconnectRate()
	a.host = workspace.New(workspace.Options{
		Factory:            terminal.NewFactory(a.elev),
		Profiles:           a.store,
		DefaultProfile:     cfg.Terminal.DefaultProfile,
		DB:                 a.db,
		Translator:         a.tr,
		Notifier:           a.hub,
		Elevator:           a.elev,
		ReconnectPerMinute: perMinute,
		ReconnectBurst:     burst,
		MenuTimeout:        cfg.Web.MenuTimeout(),
	})
	return a, nil
}

// Close shuts the host down and releases resources in reverse order.
func (a *app) Close() error {
	err := a.host.Shutdown()
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
	return err
}

func openStateDB() (*statedb.StateDB, error) {
	path, err := config.StateDBPath()
	if err != nil {
		return nil, err
	}
	db, err := statedb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return db, nil
}

// resolveProfile finds a profile by exact name first, then by fuzzy match.
// An empty query returns the default profile.
func (a *app) resolveProfile(ctx context.Context, query string) (profile.Profile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return profile.DetectDefault(ctx, a.store, a.cfg.Terminal.DefaultProfile), nil
	}
	if p, err := a.store.Find(query); err == nil {
		return p, nil
	}
	if matches := a.store.Search(query); len(matches) > 0 {
		return matches[0], nil
	}
	return profile.Profile{}, fmt.Errorf("%w: %s", profile.ErrNotFound, query)
}
