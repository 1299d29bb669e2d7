// Package recovery encodes and decodes the tokens that let a tab be
// re-created after the process restarts.
package recovery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ideapedyudi/tabby/internal/profile"
)

// CurrentVersion is written into every token produced by this build.
const CurrentVersion = 1

const (
	typePrefix = "app:"
	typeSuffix = "-tab"
)

// ErrInvalidToken is returned for tokens that cannot describe a tab.
var ErrInvalidToken = errors.New("invalid recovery token")

// Token identifies a tab's session type, the profile it was opened with and,
// optionally, the frontend's serialized visible state.
//
// Fields this build does not know about survive a decode/encode round trip so
// newer writers and older readers can share one state file.
type Token struct {
	Version    int
	Type       string
	Profile    profile.Profile
	SavedState json.RawMessage

	extra map[string]json.RawMessage
}

// TypeFor returns the token discriminator for a profile type.
func TypeFor(profileType string) string {
	return typePrefix + profileType + typeSuffix
}

// ProfileType extracts the profile type from a token discriminator.
func ProfileType(tokenType string) (string, bool) {
	if !strings.HasPrefix(tokenType, typePrefix) || !strings.HasSuffix(tokenType, typeSuffix) {
		return "", false
	}
	t := strings.TrimSuffix(strings.TrimPrefix(tokenType, typePrefix), typeSuffix)
	if t == "" {
		return "", false
	}
	return t, true
}

// New builds a token for p. savedState is dropped unless it is valid JSON.
func New(p profile.Profile, savedState json.RawMessage) Token {
	t := Token{
		Version: CurrentVersion,
		Type:    TypeFor(p.Type),
		Profile: p.Clone(),
	}
	if len(savedState) > 0 && json.Valid(savedState) {
		t.SavedState = bytes.Clone(savedState)
	}
	return t
}

// HasState reports whether the token carries frontend state.
func (t Token) HasState() bool {
	return len(t.SavedState) > 0
}

// Validate checks that the discriminator matches the embedded profile.
func (t Token) Validate() error {
	pt, ok := ProfileType(t.Type)
	if !ok {
		return fmt.Errorf("%w: type %q", ErrInvalidToken, t.Type)
	}
	if t.Profile.Type != "" && t.Profile.Type != pt {
		return fmt.Errorf("%w: type %q does not match profile type %q", ErrInvalidToken, t.Type, t.Profile.Type)
	}
	return nil
}

type wireToken struct {
	Version    int             `json:"version,omitempty"`
	Type       string          `json:"type"`
	Profile    profile.Profile `json:"profile"`
	SavedState json.RawMessage `json:"savedState,omitempty"`
}

var knownFields = []string{"version", "type", "profile", "savedState"}

// MarshalJSON writes the known fields plus any preserved unknown ones.
func (t Token) MarshalJSON() ([]byte, error) {
	w := wireToken{
		Version: t.Version,
		Type:    t.Type,
		Profile: t.Profile,
	}
	if len(t.SavedState) > 0 && json.Valid(t.SavedState) {
		w.SavedState = t.SavedState
	}
	if len(t.extra) == 0 {
		return json.Marshal(w)
	}

	known, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range t.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads a token, keeping unknown fields for re-encoding.
func (t *Token) UnmarshalJSON(data []byte) error {
	var w wireToken
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(all, k)
	}

	*t = Token{
		Version: w.Version,
		Type:    w.Type,
		Profile: w.Profile,
	}
	if len(w.SavedState) > 0 && !bytes.Equal(bytes.TrimSpace(w.SavedState), []byte("null")) {
		t.SavedState = w.SavedState
	}
	if len(all) > 0 {
		t.extra = all
	}
	return nil
}

// Encode serializes a token after validating it.
func Encode(t Token) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(t)
}

// Decode parses and validates a serialized token. Tokens without a profile
// type inherit it from the discriminator.
func Decode(data []byte) (Token, error) {
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := t.Validate(); err != nil {
		return Token{}, err
	}
	if t.Profile.Type == "" {
		t.Profile.Type, _ = ProfileType(t.Type)
	}
	return t, nil
}
