package dynbg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pagetint/internal/colour"
)

func mustParse(t *testing.T, s string) colour.RGBA {
	t.Helper()
	c, ok := colour.Parse(s)
	require.True(t, ok, "parse %q", s)
	return c
}

func TestBlendWeight(t *testing.T) {
	s := DefaultSettings()

	tests := []struct {
		name string
		lum  float64
		want float64
	}{
		{name: "dark", lum: 0.1, want: 0},
		{name: "at threshold", lum: s.BrightThreshold, want: 0},
		{name: "white", lum: 1, want: s.MaxBlend},
		{name: "halfway", lum: (1 + s.BrightThreshold) / 2, want: s.MaxBlend / 2},
		{name: "above one clamps", lum: 1.5, want: s.MaxBlend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, BlendWeight(tt.lum, s), 1e-9)
		})
	}
}

func TestDecideWhiteOnDarkTarget(t *testing.T) {
	target := mustParse(t, "#222222")

	d := Decide(colour.White, colour.Black, target, DefaultSettings())
	require.True(t, d.Apply)
	assert.InDelta(t, 0.9, d.Initial, 1e-9)

	// Full weight yields a grey too dark for black text, so one decay step applies.
	full := colour.Mix(colour.White, target, 0.9)
	assert.Less(t, colour.ContrastRatio(colour.Black, full), 3.5)

	assert.Equal(t, 1, d.Steps)
	assert.InDelta(t, 0.63, d.Weight, 1e-9)
	assert.Equal(t, colour.Mix(colour.White, target, 0.63), d.Blended)
	assert.GreaterOrEqual(t, d.Contrast, 3.5)
	assert.Equal(t, "rgba(116, 116, 116, 1)", d.Blended.String())
}

func TestDecideCommitsLargestPassingWeight(t *testing.T) {
	targets := []string{"#000000", "#222222", "#303a4a", "#5b2a86"}
	texts := []string{"#000000", "#333333", "#1a1a1a"}
	s := DefaultSettings()

	for _, tc := range targets {
		for _, tx := range texts {
			target := mustParse(t, tc)
			text := mustParse(t, tx)

			d := Decide(colour.White, text, target, s)

			// Replay the decay sequence to find the expected weight.
			w := BlendWeight(1, s)
			var want float64
			found := false
			for step := 0; step <= decaySteps; step++ {
				if colour.ContrastRatio(text, colour.Mix(colour.White, target, w)) >= s.MinContrast {
					want = w
					found = true
					break
				}
				w *= decayFactor
			}

			if !found || want < minUsableWeight {
				assert.False(t, d.Apply, "target %s text %s", tc, tx)
				continue
			}
			require.True(t, d.Apply, "target %s text %s", tc, tx)
			assert.InDelta(t, want, d.Weight, 1e-12, "target %s text %s", tc, tx)
			assert.GreaterOrEqual(t, d.Contrast, s.MinContrast)
		}
	}
}

func TestDecideAbandonsWhenNoWeightQualifies(t *testing.T) {
	s := DefaultSettings()
	s.MinContrast = 4.4
	text := mustParse(t, "#777777")

	// Grey text on white sits just above 4.4; any darkening breaks it.
	require.GreaterOrEqual(t, colour.ContrastRatio(text, colour.White), 4.4)

	d := Decide(colour.White, text, colour.Black, s)
	assert.False(t, d.Apply)
	assert.Equal(t, decaySteps, d.Steps)
}

func TestDecideBelowUsableWeight(t *testing.T) {
	s := DefaultSettings()
	s.MaxBlend = 0.025

	// Black on white tops out at 21:1, and every decayed weight darkens the
	// background enough to miss 20.9.
	s.MinContrast = 20.9
	d := Decide(colour.White, colour.Black, colour.Black, s)
	assert.False(t, d.Apply)
	assert.Less(t, d.Weight, minUsableWeight)
}

func TestDecideDarkBackgroundUntouched(t *testing.T) {
	d := Decide(mustParse(t, "#202020"), colour.White, colour.Black, DefaultSettings())
	assert.False(t, d.Apply)
	assert.Zero(t, d.Initial)
	assert.Zero(t, d.Steps)
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	bad := Settings{BrightThreshold: 1, MaxBlend: 2, MinContrast: 0.5, MinElementArea: -1}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"bright threshold", "max blend", "min contrast", "min element area"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestOverridesApply(t *testing.T) {
	got := Overrides{MaxBlend: Float(0.5), MinElementArea: Float(10)}.Apply(DefaultSettings())
	assert.Equal(t, 0.5, got.MaxBlend)
	assert.Equal(t, 10.0, got.MinElementArea)
	assert.Equal(t, DefaultSettings().BrightThreshold, got.BrightThreshold)
	assert.Equal(t, DefaultSettings().MinContrast, got.MinContrast)
}

func TestResolveBlend(t *testing.T) {
	c, w, ok := ResolveBlend(colour.White, colour.Black, mustParse(t, "#222222"), DefaultSettings())
	require.True(t, ok)
	assert.InDelta(t, 0.63, w, 1e-9)
	assert.Equal(t, "#747474", c.Hex())

	_, _, ok = ResolveBlend(colour.Black, colour.White, colour.White, DefaultSettings())
	assert.False(t, ok)
}
