package dynbg

import (
	"github.com/jmylchreest/pagetint/internal/colour"
)

const (
	// negligibleWeight is the initial weight below which an element no longer qualifies.
	negligibleWeight = 0.0001
	// minUsableWeight is the decayed weight below which a blend is abandoned.
	minUsableWeight = 0.02
	// decayFactor shrinks the weight on each contrast step.
	decayFactor = 0.7
	// decaySteps bounds the contrast search.
	decaySteps = 6
)

// BlendWeight maps a background luminance to a blend weight: 0 at or below
// the bright threshold, rising linearly to MaxBlend at luminance 1.
func BlendWeight(lum float64, s Settings) float64 {
	if lum <= s.BrightThreshold {
		return 0
	}
	t := (lum - s.BrightThreshold) / (1 - s.BrightThreshold)
	return colour.Clamp01(t) * s.MaxBlend
}

// Decision is the outcome of evaluating one background against the target.
type Decision struct {
	// Apply is false when the element should keep or regain its own background.
	Apply bool
	// Blended is the colour to paint when Apply is true.
	Blended colour.RGBA
	// Initial is the luminance-derived weight before any contrast decay.
	Initial float64
	// Weight is the committed weight after decay.
	Weight float64
	// Steps is the number of decay steps taken.
	Steps int
	// Contrast is the text contrast ratio at Weight.
	Contrast float64
}

// Decide computes the blend for background bg carrying text colour text.
// When the luminance-derived weight would break MinContrast, the weight decays
// by decayFactor up to decaySteps times; the first weight meeting the floor is
// committed. If none does, or the weight falls below minUsableWeight, the
// blend is abandoned.
func Decide(bg, text, target colour.RGBA, s Settings) Decision {
	d := Decision{Initial: BlendWeight(colour.Luminance(bg), s)}
	if d.Initial < negligibleWeight {
		return d
	}

	w := d.Initial
	blended := colour.Mix(bg, target, w)
	ratio := colour.ContrastRatio(text, blended)

	if ratio < s.MinContrast {
		for d.Steps < decaySteps {
			d.Steps++
			w *= decayFactor
			blended = colour.Mix(bg, target, w)
			ratio = colour.ContrastRatio(text, blended)
			if ratio >= s.MinContrast {
				break
			}
		}
		if ratio < s.MinContrast || w < minUsableWeight {
			d.Weight = w
			d.Contrast = ratio
			return d
		}
	}

	d.Apply = true
	d.Blended = blended
	d.Weight = w
	d.Contrast = ratio
	return d
}

// ResolveBlend is Decide reduced to the committed colour and weight.
func ResolveBlend(bg, text, target colour.RGBA, s Settings) (colour.RGBA, float64, bool) {
	d := Decide(bg, text, target, s)
	if !d.Apply {
		return colour.RGBA{}, 0, false
	}
	return d.Blended, d.Weight, true
}
