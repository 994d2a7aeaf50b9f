// Package content drives theming of one page: it injects the site stylesheet
// and owns the page's dynamic background applier.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/pagetint/internal/dom"
	"github.com/jmylchreest/pagetint/internal/dynbg"
	"github.com/jmylchreest/pagetint/internal/scheduler"
	"github.com/jmylchreest/pagetint/internal/siteconfig"
	"github.com/jmylchreest/pagetint/internal/store"
)

// StyleID is the id of the injected <style> element.
const StyleID = "cbx-style"

// Message types accepted by Handle.
const (
	MsgApplyConfig = "APPLY_CONFIG"
	MsgClearAll    = "CLEAR_ALL"
	MsgApplyColor  = "APPLY_COLOR"
	MsgClearColor  = "CLEAR_COLOR"
)

// Document is a page that also accepts injected stylesheets.
type Document interface {
	dom.Document
	SetStyleSheet(id, css string) error
	RemoveStyleSheet(id string) error
}

// ConfigSource looks up the stored theme for a host.
type ConfigSource interface {
	SiteConfig(ctx context.Context, host string) (siteconfig.Config, error)
}

// Message is a control message.
type Message struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
	Color  *string         `json:"color,omitempty"`
}

// DefaultBlendSettings returns the tunables used for page theming. They are
// gentler than the engine defaults and consider smaller elements.
func DefaultBlendSettings() dynbg.Settings {
	return dynbg.Settings{
		BrightThreshold: 0.62,
		MaxBlend:        0.9,
		MinContrast:     3.5,
		MinElementArea:  1600,
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithScheduler sets the scheduler handed to the applier.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(c *Controller) {
		c.sched = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBlendSettings replaces the blend tunables.
func WithBlendSettings(s dynbg.Settings) Option {
	return func(c *Controller) {
		c.settings = s
	}
}

// WithBatchSize sets the applier batch size.
func WithBatchSize(n int) Option {
	return func(c *Controller) {
		c.batchSize = n
	}
}

// Controller themes one page. It is safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	doc       Document
	sched     scheduler.Scheduler
	logger    hclog.Logger
	settings  dynbg.Settings
	batchSize int

	applier *dynbg.Applier
}

// NewController returns a controller for doc. Nothing is applied until a
// config or message arrives.
func NewController(doc Document, opts ...Option) *Controller {
	c := &Controller{
		doc:       doc,
		logger:    hclog.NewNullLogger(),
		settings:  DefaultBlendSettings(),
		batchSize: dynbg.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init applies the stored config for host, or clears everything when the
// host has none.
func (c *Controller) Init(ctx context.Context, src ConfigSource, host string) error {
	cfg, err := src.SiteConfig(ctx, host)
	if errors.Is(err, store.ErrNotFound) {
		c.logger.Debug("no site config", "host", host)
		return c.ClearAll()
	}
	if err != nil {
		return fmt.Errorf("failed to load config for %s: %w", host, err)
	}
	return c.Apply(cfg)
}

// Apply themes the page with cfg. A disabled config clears everything;
// colour mode blends toward the colour and injects the stylesheet; other
// modes stop blending and inject the stylesheet.
func (c *Controller) Apply(cfg siteconfig.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !cfg.Enabled {
		c.stopBlendLocked()
		return c.clearCSSLocked()
	}

	if cfg.Mode == siteconfig.ModeColor {
		c.startBlendLocked(cfg.Color)
	} else {
		c.stopBlendLocked()
	}
	return c.applyCSSLocked(cfg)
}

// ApplyColor applies the default config in colour mode with color.
func (c *Controller) ApplyColor(color string) error {
	return c.Apply(siteconfig.WithColor(color))
}

// ClearAll stops blending and removes the stylesheet.
func (c *Controller) ClearAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopBlendLocked()
	return c.clearCSSLocked()
}

// ClearColor stops blending and leaves the stylesheet in place.
func (c *Controller) ClearColor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopBlendLocked()
}

// Close is ClearAll.
func (c *Controller) Close() error {
	return c.ClearAll()
}

// Handle decodes and dispatches one control message. Unknown types and
// messages missing their payload are ignored.
func (c *Controller) Handle(ctx context.Context, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	c.logger.Trace("message", "type", msg.Type)

	switch msg.Type {
	case MsgApplyConfig:
		if !isObject(msg.Config) {
			return nil
		}
		cfg, err := siteconfig.Merge(msg.Config)
		if err != nil {
			return err
		}
		return c.Apply(cfg)
	case MsgClearAll:
		return c.ClearAll()
	case MsgApplyColor:
		if msg.Color == nil {
			return nil
		}
		return c.ApplyColor(*msg.Color)
	case MsgClearColor:
		c.ClearColor()
		return nil
	default:
		c.logger.Debug("ignoring unknown message", "type", msg.Type)
		return nil
	}
}

// Applier returns the page applier, or nil before colour mode was first used.
func (c *Controller) Applier() *dynbg.Applier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applier
}

// Blending reports whether the applier is active.
func (c *Controller) Blending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applier != nil && c.applier.Active()
}

func (c *Controller) startBlendLocked(color string) {
	if c.applier == nil {
		c.applier = dynbg.New(c.doc, color,
			dynbg.WithSettings(c.settings),
			dynbg.WithScheduler(c.sched),
			dynbg.WithBatchSize(c.batchSize),
			dynbg.WithLogger(c.logger.Named("dynbg")),
		)
	} else {
		c.applier.UpdateTarget(color)
	}
	c.applier.Start()
}

func (c *Controller) stopBlendLocked() {
	if c.applier != nil {
		c.applier.Stop()
	}
}

func (c *Controller) applyCSSLocked(cfg siteconfig.Config) error {
	if err := c.doc.SetStyleSheet(StyleID, siteconfig.BuildCSS(cfg)); err != nil {
		return fmt.Errorf("failed to inject stylesheet: %w", err)
	}
	return nil
}

func (c *Controller) clearCSSLocked() error {
	if err := c.doc.RemoveStyleSheet(StyleID); err != nil {
		return fmt.Errorf("failed to remove stylesheet: %w", err)
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
