package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/ideapedyudi/tabby/internal/logging"
)

var profileLog = logging.ForComponent(logging.CompProfile)

// ErrNotFound is returned when no profile matches a lookup.
var ErrNotFound = errors.New("profile not found")

// Source lists profiles. Implementations must return the current list on
// every call; menus rebuild their submenus from it each time they open.
type Source interface {
	Profiles(ctx context.Context, filter Filter) ([]Profile, error)
}

// Persister writes the full profile list to durable storage.
type Persister interface {
	SaveProfiles(profiles []Profile) error
}

// Store is the in-memory profile list, optionally backed by a Persister.
type Store struct {
	mu        sync.RWMutex
	profiles  []Profile
	persister Persister
}

// NewStore creates a store seeded with initial. persister may be nil.
func NewStore(initial []Profile, persister Persister) *Store {
	s := &Store{persister: persister}
	s.profiles = cloneAll(initial)
	return s
}

// Profiles returns copies of the profiles that match filter, in stored order.
func (s *Store) Profiles(_ context.Context, filter Filter) ([]Profile, error) {
	if filter == nil {
		filter = All
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if filter(p) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// Add appends a profile and persists the new list.
func (s *Store) Add(p Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.Type == "" {
		p.Type = TypeLocal
	}

	s.mu.Lock()
	s.profiles = append(s.profiles, p.Clone())
	snapshot := cloneAll(s.profiles)
	s.mu.Unlock()

	profileLog.Info("profile_added", slog.String("name", p.Name), slog.String("type", p.Type))
	return s.persist(snapshot)
}

// Remove deletes every profile with the given name and persists the result.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	kept := s.profiles[:0:0]
	for _, p := range s.profiles {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	removed := len(kept) != len(s.profiles)
	s.profiles = kept
	snapshot := cloneAll(kept)
	s.mu.Unlock()

	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.persist(snapshot)
}

// Replace swaps the whole list without persisting. Used when the config
// file changed on disk.
func (s *Store) Replace(profiles []Profile) {
	s.mu.Lock()
	s.profiles = cloneAll(profiles)
	s.mu.Unlock()
	profileLog.Debug("profiles_replaced", slog.Int("count", len(profiles)))
}

// Find returns the profile with an exact (case-insensitive) name match.
func (s *Store) Find(name string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if strings.EqualFold(p.Name, name) {
			return p.Clone(), nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Search returns profiles whose names fuzzy-match query, best match first.
// An empty query returns every profile.
func (s *Store) Search(query string) []Profile {
	s.mu.RLock()
	all := cloneAll(s.profiles)
	s.mu.RUnlock()

	if query == "" {
		return all
	}

	matches := fuzzy.FindFrom(query, fuzzySource(all))
	out := make([]Profile, 0, len(matches))
	for _, m := range matches {
		out = append(out, all[m.Index])
	}
	return out
}

func (s *Store) persist(profiles []Profile) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveProfiles(profiles); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	return nil
}

type fuzzySource []Profile

func (f fuzzySource) String(i int) string { return f[i].Name }
func (f fuzzySource) Len() int            { return len(f) }

func cloneAll(in []Profile) []Profile {
	out := make([]Profile, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
