package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pagetint/internal/siteconfig"
)

func TestSanitizeHex(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "#ffeeaa", want: "#FFEEAA"},
		{in: "ffeeaa", want: "#FFEEAA"},
		{in: "  #abc ", want: "#AABBCC"},
		{in: "abc", want: "#AABBCC"},
		{in: "#12345", want: DefaultColor},
		{in: "red", want: DefaultColor},
		{in: "", want: DefaultColor},
		{in: "#gggggg", want: DefaultColor},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeHex(tt.in))
		})
	}
}

func TestMigrate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Settings
	}{
		{
			name: "not json",
			raw:  "{",
			want: DefaultSettings(),
		},
		{
			name: "unknown version",
			raw:  `{"version":2,"settings":{"defaultColor":"#000000","rules":{}}}`,
			want: DefaultSettings(),
		},
		{
			name: "settings not an object",
			raw:  `{"version":1,"settings":"x"}`,
			want: DefaultSettings(),
		},
		{
			name: "valid",
			raw:  `{"version":1,"settings":{"defaultColor":"abc","rules":{"example.com":{"enabled":true,"color":"#ffeeaa"}}}}`,
			want: Settings{DefaultColor: "#AABBCC", Rules: map[string]Rule{"example.com": {Enabled: true, Color: "#FFEEAA"}}},
		},
		{
			name: "bad rules dropped",
			raw:  `{"version":1,"settings":{"rules":{"a.com":{"enabled":"yes","color":"#fff"},"b.com":{"color":"#fff"},"c.com":{"enabled":false,"color":"nope"},"d.com":7}}}`,
			want: Settings{DefaultColor: DefaultColor, Rules: map[string]Rule{"c.com": {Enabled: false, Color: DefaultColor}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Migrate([]byte(tt.raw))
			assert.Equal(t, CurrentVersion, st.Version)
			assert.Equal(t, tt.want, st.Settings)
		})
	}
}

func TestStoreDefaults(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got)

	rule, err := s.DomainSettings(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, Rule{Enabled: false, Color: DefaultColor}, rule)
}

func TestStoreRules(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	got, err := s.UpdateRule(ctx, "example.com", Rule{Enabled: true, Color: "fea"})
	require.NoError(t, err)
	assert.Equal(t, Rule{Enabled: true, Color: "#FFEEAA"}, got.Rules["example.com"])

	_, err = s.UpdateRule(ctx, "other.org", Rule{Enabled: false, Color: "#123456"})
	require.NoError(t, err)

	rule, err := s.DomainSettings(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, rule.Enabled)

	got, err = s.RemoveRule(ctx, "example.com")
	require.NoError(t, err)
	assert.NotContains(t, got.Rules, "example.com")
	assert.Contains(t, got.Rules, "other.org")

	got, err = s.RemoveRule(ctx, "missing.net")
	require.NoError(t, err)
	assert.Len(t, got.Rules, 1)

	set, err := s.SetSettings(ctx, Settings{DefaultColor: "000", Rules: nil})
	require.NoError(t, err)
	assert.Equal(t, "#000000", set.DefaultColor)
	assert.Empty(t, set.Rules)
}

func TestStorePrefersSyncAndClearsLocal(t *testing.T) {
	ctx := context.Background()
	syncArea := NewMemoryArea(SyncQuotaBytesPerItem)
	localArea := NewMemoryArea(0)
	require.NoError(t, localArea.Set(ctx, StateKey, []byte(`{"version":1,"settings":{"defaultColor":"#111111","rules":{}}}`)))

	s := New(syncArea, localArea)

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "#111111", got.DefaultColor)

	_, err = s.UpdateRule(ctx, "example.com", Rule{Enabled: true, Color: "#ffffff"})
	require.NoError(t, err)

	_, ok, err := syncArea.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = localArea.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreFallsBackToLocalWhenTooLarge(t *testing.T) {
	ctx := context.Background()
	syncArea := NewMemoryArea(SyncQuotaBytesPerItem)
	localArea := NewMemoryArea(0)
	s := New(syncArea, localArea)

	rules := make(map[string]Rule)
	for i := range 400 {
		rules[fmt.Sprintf("site-%03d.example.com", i)] = Rule{Enabled: true, Color: "#ABCDEF"}
	}
	_, err := s.SetSettings(ctx, Settings{DefaultColor: DefaultColor, Rules: rules})
	require.NoError(t, err)

	_, ok, err := syncArea.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok)

	raw, ok, err := localArea.Get(ctx, StateKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, len(raw), SyncQuotaBytesPerItem-syncHeadroom)

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Rules, 400)
}

func TestStoreOversizedWriteReplacesSyncCopy(t *testing.T) {
	ctx := context.Background()
	syncArea := NewMemoryArea(SyncQuotaBytesPerItem)
	localArea := NewMemoryArea(0)
	s := New(syncArea, localArea)

	_, err := s.UpdateRule(ctx, "example.com", Rule{Enabled: true, Color: "#222222"})
	require.NoError(t, err)
	_, ok, err := syncArea.Get(ctx, StateKey)
	require.NoError(t, err)
	require.True(t, ok)

	rules := make(map[string]Rule)
	for i := range 401 {
		rules[fmt.Sprintf("site-%03d.example.com", i)] = Rule{Enabled: true, Color: "#ABCDEF"}
	}
	_, err = s.SetSettings(ctx, Settings{DefaultColor: DefaultColor, Rules: rules})
	require.NoError(t, err)

	_, ok, err = syncArea.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Rules, 401)

	// Shrinking again moves the state back to sync.
	_, err = s.SetSettings(ctx, Settings{DefaultColor: DefaultColor})
	require.NoError(t, err)
	got, err = s.Settings(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Rules)
	_, ok, err = localArea.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingArea struct{ Area }

func (failingArea) Set(context.Context, string, []byte) error {
	return errors.New("sync unavailable")
}

func TestStoreFallsBackToLocalOnSyncFailure(t *testing.T) {
	ctx := context.Background()
	localArea := NewMemoryArea(0)
	s := New(failingArea{NewMemoryArea(0)}, localArea)

	_, err := s.UpdateRule(ctx, "example.com", Rule{Enabled: true, Color: "#ffffff"})
	require.NoError(t, err)

	_, ok, err := localArea.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.True(t, ok)

	rule, err := s.DomainSettings(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, rule.Enabled)
}

func TestFitsSync(t *testing.T) {
	assert.False(t, fitsSync(nil))
	assert.True(t, fitsSync(make([]byte, 8064)))
	assert.False(t, fitsSync(make([]byte, 8065)))
}

func TestStoreSiteConfig(t *testing.T) {
	ctx := context.Background()
	syncArea := NewMemoryArea(0)
	s := New(syncArea, NewMemoryArea(0))

	_, err := s.SiteConfig(ctx, "example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, syncArea.Set(ctx, legacyColorKey, []byte(`{"legacy.com":"#abcdef"}`)))
	require.NoError(t, syncArea.Set(ctx, siteConfigsKey, []byte(`{"example.com":{"mode":"gradient","gradient":{"angle":90}},"broken.com":"x"}`)))

	cfg, err := s.SiteConfig(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, siteconfig.ModeGradient, cfg.Mode)
	assert.Equal(t, 90.0, cfg.Gradient.Angle)
	assert.Equal(t, "linear", cfg.Gradient.Type)
	assert.Equal(t, siteconfig.Default().Typography, cfg.Typography)

	cfg, err = s.SiteConfig(ctx, "legacy.com")
	require.NoError(t, err)
	assert.Equal(t, siteconfig.ModeColor, cfg.Mode)
	assert.Equal(t, "#abcdef", cfg.Color)

	_, err = s.SiteConfig(ctx, "broken.com")
	assert.ErrorIs(t, err, ErrNotFound)

	next := siteconfig.WithColor("#222222")
	require.NoError(t, s.SetSiteConfig(ctx, "new.com", next))
	cfg, err = s.SiteConfig(ctx, "new.com")
	require.NoError(t, err)
	assert.Equal(t, next, cfg)

	// Existing entries survive the write.
	cfg, err = s.SiteConfig(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, siteconfig.ModeGradient, cfg.Mode)

	require.NoError(t, s.RemoveSiteConfig(ctx, "new.com"))
	_, err = s.SiteConfig(ctx, "new.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileArea(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sync.json")
	a := NewFileArea(path, 64)

	_, ok, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Set(ctx, "k", []byte(`{"a":1}`)))
	require.NoError(t, a.Set(ctx, "j", []byte(`[1,2]`)))

	// A fresh handle sees the persisted data.
	b := NewFileArea(path, 64)
	raw, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	err = a.Set(ctx, "big", []byte(`"`+strings.Repeat("x", 100)+`"`))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	assert.Error(t, a.Set(ctx, "bad", []byte("{")))

	require.NoError(t, a.Remove(ctx, "k"))
	require.NoError(t, a.Remove(ctx, "k"))
	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".sync.json.*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFileBackedStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	open := func() *Store {
		return New(
			NewFileArea(filepath.Join(dir, "sync.json"), SyncQuotaBytesPerItem),
			NewFileArea(filepath.Join(dir, "local.json"), 0),
			WithPath(dir),
		)
	}

	_, err := open().UpdateRule(ctx, "example.com", Rule{Enabled: true, Color: "#fef3c7"})
	require.NoError(t, err)

	s := open()
	assert.Equal(t, dir, s.Path())
	rule, err := s.DomainSettings(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, Rule{Enabled: true, Color: "#FEF3C7"}, rule)
}

func TestMemoryAreaCopiesValues(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryArea(0)
	v := []byte(`{"a":1}`)
	require.NoError(t, a.Set(ctx, "k", v))
	v[2] = 'b'

	got, ok, err := a.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = a.Get(cancelled, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStateRoundTripShape(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_, err := s.UpdateRule(ctx, "example.com", Rule{Enabled: true, Color: "#000"})
	require.NoError(t, err)

	raw, ok, err := s.sync.Get(ctx, StateKey)
	require.NoError(t, err)
	require.True(t, ok)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.EqualValues(t, 1, doc["version"])
	assert.Contains(t, doc, "settings")
}
