// Package store persists per-domain theming rules and site configs.
//
// State lives in two areas: a small, quota-limited "sync" area that is
// preferred, and an unconstrained "local" area used when the state does not
// fit or the sync write fails. Reads try sync, then local, then defaults.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"regexp"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/pagetint/internal/siteconfig"
)

const (
	// StateKey is the key the versioned state is stored under.
	StateKey = "state_v1"
	// CurrentVersion is the schema version written by this package.
	CurrentVersion = 1
	// DefaultColor is used wherever a colour is missing or invalid.
	DefaultColor = "#FFFFFF"

	// SyncQuotaBytesPerItem is the per-item limit of the sync area.
	SyncQuotaBytesPerItem = 8192
	// syncHeadroom is kept free for area metadata.
	syncHeadroom = 128

	siteConfigsKey = "siteConfigs"
	legacyColorKey = "siteColors"
)

// ErrNotFound is returned when a domain or host has no stored entry.
var ErrNotFound = errors.New("not found")

// Rule is the theming rule for one domain.
type Rule struct {
	Enabled bool   `json:"enabled"`
	Color   string `json:"color"`
}

// Settings holds the fallback colour and the per-domain rules.
type Settings struct {
	DefaultColor string          `json:"defaultColor"`
	Rules        map[string]Rule `json:"rules"`
}

// State is the persisted, versioned document.
type State struct {
	Version  int      `json:"version"`
	Settings Settings `json:"settings"`
}

// DefaultSettings returns empty settings with the default colour.
func DefaultSettings() Settings {
	return Settings{DefaultColor: DefaultColor, Rules: map[string]Rule{}}
}

var (
	shortHex = regexp.MustCompile(`^#[0-9a-fA-F]{3}$`)
	longHex  = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// SanitizeHex normalises a colour to upper-case #RRGGBB. A missing leading
// '#' is added and #RGB is expanded; anything else becomes DefaultColor.
func SanitizeHex(c string) string {
	c = strings.TrimSpace(c)
	if !strings.HasPrefix(c, "#") {
		c = "#" + c
	}
	if shortHex.MatchString(c) {
		c = string([]byte{'#', c[1], c[1], c[2], c[2], c[3], c[3]})
	}
	if longHex.MatchString(c) {
		return strings.ToUpper(c)
	}
	return DefaultColor
}

// sanitizeSettings normalises every colour and drops nothing but invalid rules.
func sanitizeSettings(s Settings) Settings {
	out := DefaultSettings()
	if s.DefaultColor != "" {
		out.DefaultColor = SanitizeHex(s.DefaultColor)
	}
	for domain, r := range s.Rules {
		out.Rules[domain] = Rule{Enabled: r.Enabled, Color: SanitizeHex(r.Color)}
	}
	return out
}

// Migrate coerces a stored document of any shape into the current state.
// Unknown versions and malformed documents yield the default state; rules
// with the wrong shape are dropped individually.
func Migrate(raw []byte) State {
	def := State{Version: CurrentVersion, Settings: DefaultSettings()}

	var probe struct {
		Version  int             `json:"version"`
		Settings json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Version != CurrentVersion {
		return def
	}

	var loose struct {
		DefaultColor json.RawMessage            `json:"defaultColor"`
		Rules        map[string]json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(probe.Settings, &loose); err != nil {
		return def
	}

	var s Settings
	var dc string
	if json.Unmarshal(loose.DefaultColor, &dc) == nil {
		s.DefaultColor = dc
	}
	s.Rules = make(map[string]Rule, len(loose.Rules))
	for domain, rawRule := range loose.Rules {
		var r struct {
			Enabled *bool   `json:"enabled"`
			Color   *string `json:"color"`
		}
		if json.Unmarshal(rawRule, &r) != nil || r.Enabled == nil || r.Color == nil {
			continue
		}
		s.Rules[domain] = Rule{Enabled: *r.Enabled, Color: *r.Color}
	}

	return State{Version: CurrentVersion, Settings: sanitizeSettings(s)}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPath records the backing location reported by Path.
func WithPath(path string) Option {
	return func(s *Store) {
		s.path = path
	}
}

// Store reads and writes settings through a sync and a local area.
// Each operation is a single read followed by at most one write.
type Store struct {
	mu     sync.Mutex
	sync   Area
	local  Area
	path   string
	closer io.Closer
	logger hclog.Logger
}

// New returns a store over the given areas.
func New(syncArea, localArea Area, opts ...Option) *Store {
	s := &Store{
		sync:   syncArea,
		local:  localArea,
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemory returns a store backed by memory areas.
func NewMemory() *Store {
	return New(NewMemoryArea(SyncQuotaBytesPerItem), NewMemoryArea(0))
}

// Close releases the backing storage, if any.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Path returns the backing directory or file, "" for memory stores.
func (s *Store) Path() string {
	return s.path
}

// Settings returns the current settings migrated to the latest schema.
func (s *Store) Settings(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.readState(ctx)
	if err != nil {
		return Settings{}, err
	}
	return st.Settings, nil
}

// SetSettings validates and replaces the settings, returning what was stored.
func (s *Store) SetSettings(ctx context.Context, next Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSettings(ctx, next)
}

// UpdateRule upserts the rule for domain.
func (s *Store) UpdateRule(ctx context.Context, domain string, rule Rule) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.readState(ctx)
	if err != nil {
		return Settings{}, err
	}
	next := st.Settings
	next.Rules = maps.Clone(next.Rules)
	next.Rules[domain] = Rule{Enabled: rule.Enabled, Color: SanitizeHex(rule.Color)}
	return s.writeSettings(ctx, next)
}

// RemoveRule deletes the rule for domain. Removing an absent rule writes nothing.
func (s *Store) RemoveRule(ctx context.Context, domain string) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.readState(ctx)
	if err != nil {
		return Settings{}, err
	}
	if _, ok := st.Settings.Rules[domain]; !ok {
		return st.Settings, nil
	}
	next := st.Settings
	next.Rules = maps.Clone(next.Rules)
	delete(next.Rules, domain)
	return s.writeSettings(ctx, next)
}

// DomainSettings returns the rule for domain, or a disabled rule with the
// default colour when there is none.
func (s *Store) DomainSettings(ctx context.Context, domain string) (Rule, error) {
	st, err := s.Settings(ctx)
	if err != nil {
		return Rule{}, err
	}
	if r, ok := st.Rules[domain]; ok {
		return r, nil
	}
	return Rule{Enabled: false, Color: st.DefaultColor}, nil
}

// SiteConfig returns the theme for host. A structured site config is merged
// over the defaults; otherwise a legacy per-host colour yields the default
// config with that colour. ErrNotFound is returned when neither exists.
func (s *Store) SiteConfig(ctx context.Context, host string) (siteconfig.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var configs map[string]json.RawMessage
	if found, err := s.readKey(ctx, s.sync, siteConfigsKey, &configs); err != nil {
		return siteconfig.Config{}, err
	} else if found {
		if raw, ok := configs[host]; ok && isObject(raw) {
			cfg, err := siteconfig.Merge(raw)
			if err != nil {
				return siteconfig.Config{}, fmt.Errorf("site config for %s: %w", host, err)
			}
			return cfg, nil
		}
	}

	var legacy map[string]json.RawMessage
	if found, err := s.readKey(ctx, s.sync, legacyColorKey, &legacy); err != nil {
		return siteconfig.Config{}, err
	} else if found {
		var color string
		if raw, ok := legacy[host]; ok && json.Unmarshal(raw, &color) == nil {
			cfg := siteconfig.Default()
			cfg.Color = color
			return cfg, nil
		}
	}

	return siteconfig.Config{}, fmt.Errorf("site config for %s: %w", host, ErrNotFound)
}

// SetSiteConfig stores the theme for host.
func (s *Store) SetSiteConfig(ctx context.Context, host string, cfg siteconfig.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configs := make(map[string]json.RawMessage)
	if _, err := s.readKey(ctx, s.sync, siteConfigsKey, &configs); err != nil {
		return err
	}
	if configs == nil {
		configs = make(map[string]json.RawMessage)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode site config: %w", err)
	}
	configs[host] = raw

	data, err := json.Marshal(configs)
	if err != nil {
		return fmt.Errorf("failed to encode site configs: %w", err)
	}
	if err := s.sync.Set(ctx, siteConfigsKey, data); err != nil {
		return fmt.Errorf("failed to store site config: %w", err)
	}
	return nil
}

// RemoveSiteConfig deletes the structured theme for host.
func (s *Store) RemoveSiteConfig(ctx context.Context, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var configs map[string]json.RawMessage
	found, err := s.readKey(ctx, s.sync, siteConfigsKey, &configs)
	if err != nil || !found {
		return err
	}
	if _, ok := configs[host]; !ok {
		return nil
	}
	delete(configs, host)

	data, err := json.Marshal(configs)
	if err != nil {
		return fmt.Errorf("failed to encode site configs: %w", err)
	}
	return s.sync.Set(ctx, siteConfigsKey, data)
}

func (s *Store) readState(ctx context.Context) (State, error) {
	for _, area := range []struct {
		name string
		a    Area
	}{{"sync", s.sync}, {"local", s.local}} {
		raw, ok, err := area.a.Get(ctx, StateKey)
		if err != nil {
			// An unreadable area behaves like an empty one.
			s.logger.Debug("state read failed", "area", area.name, "error", err)
			continue
		}
		if ok && len(raw) > 0 && string(raw) != "null" {
			return Migrate(raw), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	return State{Version: CurrentVersion, Settings: DefaultSettings()}, nil
}

func (s *Store) writeSettings(ctx context.Context, next Settings) (Settings, error) {
	st := State{Version: CurrentVersion, Settings: sanitizeSettings(next)}
	data, err := json.Marshal(st)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to encode state: %w", err)
	}

	if fitsSync(data) {
		err := s.sync.Set(ctx, StateKey, data)
		if err == nil {
			if err := s.local.Remove(ctx, StateKey); err != nil {
				s.logger.Debug("failed to clear local state", "error", err)
			}
			return st.Settings, nil
		}
		s.logger.Debug("sync write failed, falling back to local", "error", err)
	}

	if err := s.local.Set(ctx, StateKey, data); err != nil {
		return Settings{}, fmt.Errorf("failed to store settings: %w", err)
	}
	// Reads prefer sync, so an older copy there would shadow this write.
	if err := s.sync.Remove(ctx, StateKey); err != nil {
		s.logger.Warn("failed to clear stale sync state", "error", err)
	}
	return st.Settings, nil
}

func fitsSync(data []byte) bool {
	return len(data) > 0 && len(data) <= SyncQuotaBytesPerItem-syncHeadroom
}

func (s *Store) readKey(ctx context.Context, a Area, key string, v any) (bool, error) {
	raw, ok, err := a.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Debug("ignoring malformed entry", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func isObject(raw json.RawMessage) bool {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	return len(raw) > 0 && raw[0] == '{'
}
