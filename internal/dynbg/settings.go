package dynbg

import (
	"errors"
	"fmt"
)

// Settings are the tunables of one Applier. They are fixed at construction.
type Settings struct {
	// BrightThreshold is the luminance at or below which nothing is blended (0-1).
	BrightThreshold float64 `json:"bright_threshold" mapstructure:"bright_threshold"`
	// MaxBlend caps the blend weight reached at luminance 1 (0-1).
	MaxBlend float64 `json:"max_blend" mapstructure:"max_blend"`
	// MinContrast is the minimum text/background contrast ratio to preserve (>= 1).
	MinContrast float64 `json:"min_contrast" mapstructure:"min_contrast"`
	// MinElementArea is the smallest rendered area in px² considered, anchors excepted.
	MinElementArea float64 `json:"min_element_area" mapstructure:"min_element_area"`
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		BrightThreshold: 0.65,
		MaxBlend:        0.9,
		MinContrast:     3.5,
		MinElementArea:  2000,
	}
}

// Validate reports out-of-range values.
func (s Settings) Validate() error {
	var errs []error
	if s.BrightThreshold < 0 || s.BrightThreshold >= 1 {
		errs = append(errs, fmt.Errorf("bright threshold must be in [0, 1), got %v", s.BrightThreshold))
	}
	if s.MaxBlend < 0 || s.MaxBlend > 1 {
		errs = append(errs, fmt.Errorf("max blend must be in [0, 1], got %v", s.MaxBlend))
	}
	if s.MinContrast < 1 {
		errs = append(errs, fmt.Errorf("min contrast must be at least 1, got %v", s.MinContrast))
	}
	if s.MinElementArea < 0 {
		errs = append(errs, fmt.Errorf("min element area must not be negative, got %v", s.MinElementArea))
	}
	return errors.Join(errs...)
}

// Overrides is a partial Settings; nil fields keep the defaults.
type Overrides struct {
	BrightThreshold *float64
	MaxBlend        *float64
	MinContrast     *float64
	MinElementArea  *float64
}

// Apply returns s with every non-nil override applied.
func (o Overrides) Apply(s Settings) Settings {
	if o.BrightThreshold != nil {
		s.BrightThreshold = *o.BrightThreshold
	}
	if o.MaxBlend != nil {
		s.MaxBlend = *o.MaxBlend
	}
	if o.MinContrast != nil {
		s.MinContrast = *o.MinContrast
	}
	if o.MinElementArea != nil {
		s.MinElementArea = *o.MinElementArea
	}
	return s
}

// Float returns a pointer to v, for building Overrides.
func Float(v float64) *float64 {
	return &v
}
