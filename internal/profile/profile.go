// Package profile defines connection profiles and the store that owns them.
package profile

import (
	"maps"
	"slices"
	"strings"
)

// TypeLocal is the profile type for local shell sessions.
const TypeLocal = "local"

// Behavior is the per-profile policy applied when a session ends.
type Behavior string

const (
	BehaviorReconnect Behavior = "reconnect"
	BehaviorKeep      Behavior = "keep"
	BehaviorAuto      Behavior = "auto"
	BehaviorClose     Behavior = "close"
)

// ParseBehavior normalizes a configured behavior value.
// An empty value means auto. Anything unrecognised is treated as close so a
// malformed config never triggers reconnect logic.
func ParseBehavior(s string) Behavior {
	switch Behavior(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return BehaviorAuto
	case BehaviorReconnect:
		return BehaviorReconnect
	case BehaviorKeep:
		return BehaviorKeep
	case BehaviorAuto:
		return BehaviorAuto
	case BehaviorClose:
		return BehaviorClose
	default:
		return BehaviorClose
	}
}

// Valid reports whether b is one of the known policies.
func (b Behavior) Valid() bool {
	switch b {
	case BehaviorReconnect, BehaviorKeep, BehaviorAuto, BehaviorClose:
		return true
	}
	return false
}

// Options are the connection parameters of a profile.
type Options struct {
	Cwd                  string            `json:"cwd,omitempty" toml:"cwd,omitempty"`
	Command              string            `json:"command,omitempty" toml:"command,omitempty"`
	Args                 []string          `json:"args,omitempty" toml:"args,omitempty"`
	Env                  map[string]string `json:"env,omitempty" toml:"env,omitempty"`
	RunAsAdministrator   bool              `json:"runAsAdministrator,omitempty" toml:"run_as_administrator,omitempty"`
	BehaviorOnSessionEnd string            `json:"behaviorOnSessionEnd,omitempty" toml:"behavior_on_session_end,omitempty"`
}

// Profile identifies a connection configuration.
type Profile struct {
	Type    string  `json:"type" toml:"type"`
	Name    string  `json:"name" toml:"name"`
	Options Options `json:"options" toml:"options"`
}

// Behavior returns the parsed session-end policy.
func (p Profile) Behavior() Behavior {
	return ParseBehavior(p.Options.BehaviorOnSessionEnd)
}

// Clone returns a deep copy so callers can derive variants without
// touching the store's copy.
func (p Profile) Clone() Profile {
	c := p
	c.Options.Args = slices.Clone(p.Options.Args)
	c.Options.Env = maps.Clone(p.Options.Env)
	return c
}

// WithCwd returns a copy with the working directory replaced.
func (p Profile) WithCwd(cwd string) Profile {
	c := p.Clone()
	c.Options.Cwd = cwd
	return c
}

// Elevated returns a copy that asks to run as administrator.
func (p Profile) Elevated() Profile {
	c := p.Clone()
	c.Options.RunAsAdministrator = true
	return c
}

// Filter selects profiles.
type Filter func(Profile) bool

// All matches every profile.
func All(Profile) bool { return true }

// ByType matches profiles of the given type.
func ByType(t string) Filter {
	return func(p Profile) bool { return p.Type == t }
}
