// Package siteconfig describes how one site is themed and renders that
// description to an injectable stylesheet.
package siteconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Mode selects the page background treatment.
type Mode string

const (
	ModeColor    Mode = "color"
	ModeGradient Mode = "gradient"
	ModeImage    Mode = "image"
)

// Gradient is a two-stop background gradient.
type Gradient struct {
	Type   string    `json:"type"` // linear or radial
	Angle  float64   `json:"angle"`
	Colors [2]string `json:"colors"`
}

// Image is a background image layer.
type Image struct {
	URL        string `json:"url"`
	Size       string `json:"size"`
	Repeat     string `json:"repeat"`
	Position   string `json:"position"`
	Attachment string `json:"attachment"`
}

// Typography overrides text colours.
type Typography struct {
	TextColor           string `json:"textColor"`
	LinkColor           string `json:"linkColor,omitempty"`
	TextBgEnabled       bool   `json:"textBgEnabled"`
	TextBackgroundColor string `json:"textBackgroundColor"`
}

// Config is the theme of one site.
type Config struct {
	Enabled    bool       `json:"enabled"`
	Mode       Mode       `json:"mode"`
	Color      string     `json:"color"`
	Gradient   Gradient   `json:"gradient"`
	Image      Image      `json:"image"`
	Typography Typography `json:"typography"`
}

// Default returns the theme used for fields a stored config leaves out.
func Default() Config {
	return Config{
		Enabled: true,
		Mode:    ModeColor,
		Color:   "#fef3c7",
		Gradient: Gradient{
			Type:   "linear",
			Angle:  135,
			Colors: [2]string{"#f4f4f5", "#e5e7eb"},
		},
		Image: Image{
			Size:       "cover",
			Repeat:     "no-repeat",
			Position:   "center center",
			Attachment: "fixed",
		},
		Typography: Typography{
			TextColor:           "#111111",
			LinkColor:           "#2563eb",
			TextBackgroundColor: "#00000000",
		},
	}
}

// Merge decodes a partial config over the defaults. Nested objects are
// merged field by field.
func Merge(raw json.RawMessage) (Config, error) {
	cfg := Default()
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to decode site config: %w", err)
	}
	return cfg, nil
}

// WithColor returns the default config in colour mode with the given colour.
func WithColor(color string) Config {
	cfg := Default()
	cfg.Mode = ModeColor
	cfg.Color = color
	return cfg
}

// textSelectors are the elements retinted by the typography rule. Form
// controls are left alone.
var textSelectors = strings.Join([]string{
	"body", "p", "span", "li", "a",
	"h1", "h2", "h3", "h4", "h5", "h6",
	"small", "em", "strong", "code", "pre", "blockquote",
	"label", "th", "td", "dt", "dd",
}, ",")

// BuildCSS renders cfg as a stylesheet.
func BuildCSS(cfg Config) string {
	def := Default()
	t := cfg.Typography

	var b strings.Builder
	b.WriteString(":root{")
	fmt.Fprintf(&b, "--cbx-text:%s;", t.TextColor)
	if t.LinkColor != "" {
		fmt.Fprintf(&b, "--cbx-link:%s;", t.LinkColor)
	}
	fmt.Fprintf(&b, "--cbx-text-bg:%s;", t.TextBackgroundColor)
	b.WriteString("}")

	switch cfg.Mode {
	case ModeColor:
		col := cfg.Color
		if col == "" {
			col = def.Color
		}
		fmt.Fprintf(&b, "html,body{background:%s !important;}", col)
	case ModeGradient:
		g := cfg.Gradient
		var gradient string
		if g.Type == "radial" {
			gradient = fmt.Sprintf("radial-gradient(circle at center, %s, %s)", g.Colors[0], g.Colors[1])
		} else {
			gradient = fmt.Sprintf("linear-gradient(%ddeg, %s, %s)", int(math.Round(g.Angle)), g.Colors[0], g.Colors[1])
		}
		fmt.Fprintf(&b, "html,body{background:%s !important;}", gradient)
	case ModeImage:
		img := cfg.Image
		if strings.TrimSpace(img.URL) != "" {
			fmt.Fprintf(&b, `html,body{background-image:url("%s") !important;background-size:%s !important;background-repeat:%s !important;background-position:%s !important;background-attachment:%s !important;}`,
				escape(img.URL), img.Size, img.Repeat, img.Position, img.Attachment)
		}
	}

	fmt.Fprintf(&b, "%s{color:var(--cbx-text) !important;}", textSelectors)
	if t.LinkColor != "" {
		b.WriteString("a,a:visited{color:var(--cbx-link) !important;}")
	}
	if t.TextBgEnabled {
		fmt.Fprintf(&b, "%s{background-color:var(--cbx-text-bg) !important;}", textSelectors)
	}

	return b.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
