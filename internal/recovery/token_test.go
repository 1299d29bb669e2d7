package recovery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideapedyudi/tabby/internal/profile"
)

func localProfile() profile.Profile {
	return profile.Profile{
		Type:    "local",
		Name:    "x",
		Options: profile.Options{Cwd: "/tmp"},
	}
}

func TestNewTokenShape(t *testing.T) {
	tok := New(localProfile(), json.RawMessage(`{"lines":["$ ls"]}`))

	data, err := Encode(tok)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "app:local-tab", raw["type"])
	assert.Equal(t, float64(CurrentVersion), raw["version"])

	p := raw["profile"].(map[string]any)
	assert.Equal(t, "local", p["type"])
	assert.Equal(t, "x", p["name"])
	assert.Equal(t, "/tmp", p["options"].(map[string]any)["cwd"])

	assert.Equal(t, map[string]any{"lines": []any{"$ ls"}}, raw["savedState"])
}

func TestNewTokenWithoutState(t *testing.T) {
	tok := New(localProfile(), nil)
	assert.False(t, tok.HasState())

	data, err := Encode(tok)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "savedState")
}

func TestNewTokenDropsInvalidState(t *testing.T) {
	tok := New(localProfile(), json.RawMessage(`{broken`))
	assert.False(t, tok.HasState())
}

func TestDecodeRoundTrip(t *testing.T) {
	tok := New(localProfile(), json.RawMessage(`"opaque"`))
	data, err := Encode(tok)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, tok.Type, got.Type)
	assert.Equal(t, tok.Profile, got.Profile)
	assert.JSONEq(t, `"opaque"`, string(got.SavedState))
}

func TestDecodePreservesUnknownFields(t *testing.T) {
	in := `{"type":"app:local-tab","profile":{"type":"local","name":"x","options":{}},"tabTitle":"build","future":{"a":1}}`

	tok, err := Decode([]byte(in))
	require.NoError(t, err)

	out, err := Encode(tok)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.Equal(t, "build", raw["tabTitle"])
	assert.Equal(t, map[string]any{"a": float64(1)}, raw["future"])
}

func TestDecodeNullSavedState(t *testing.T) {
	tok, err := Decode([]byte(`{"type":"app:local-tab","profile":{"type":"local","name":"x","options":{}},"savedState":null}`))
	require.NoError(t, err)
	assert.False(t, tok.HasState())
}

func TestDecodeFillsProfileType(t *testing.T) {
	tok, err := Decode([]byte(`{"type":"app:ssh-tab","profile":{"name":"prod","options":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, "ssh", tok.Profile.Type)
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `nope`},
		{"missing type", `{"profile":{"type":"local","name":"x"}}`},
		{"wrong prefix", `{"type":"local-tab","profile":{"type":"local"}}`},
		{"empty profile type", `{"type":"app:-tab","profile":{}}`},
		{"mismatched profile", `{"type":"app:ssh-tab","profile":{"type":"local"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestProfileType(t *testing.T) {
	pt, ok := ProfileType(TypeFor("serial"))
	assert.True(t, ok)
	assert.Equal(t, "serial", pt)

	_, ok = ProfileType("app:serial")
	assert.False(t, ok)
}
