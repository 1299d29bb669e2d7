package config

import (
	"fmt"
	"log/slog"

	"github.com/ideapedyudi/tabby/internal/profile"
)

// ProfilePersister stores the profile list in config.toml.
type ProfilePersister struct{}

// SaveProfiles rewrites [[profiles]] and leaves every other section untouched.
func (ProfilePersister) SaveProfiles(profiles []profile.Profile) error {
	cfg, err := Reload()
	if err != nil {
		return fmt.Errorf("refusing to overwrite unreadable config: %w", err)
	}

	updated := *cfg
	updated.Profiles = profiles
	if err := Save(&updated); err != nil {
		return err
	}
	configLog.Info("profiles_saved", slog.Int("count", len(profiles)))
	return nil
}
