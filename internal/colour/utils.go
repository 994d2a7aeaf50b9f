package colour

import (
	"math"
)

// Luminance calculates the relative luminance of a colour according to WCAG 2.0.
// Alpha is ignored; callers flatten translucent colours first.
// Returns a value between 0 (darkest) and 1 (lightest).
// https://www.w3.org/TR/WCAG20/#relativeluminancedef.
func Luminance(c RGBA) float64 {
	r := gammaCorrect(c.R / 255.0)
	g := gammaCorrect(c.G / 255.0)
	b := gammaCorrect(c.B / 255.0)

	return 0.2126*r + 0.7152*g + 0.0722*b
}

// gammaCorrect converts an sRGB component to linear light.
func gammaCorrect(v float64) float64 {
	if v <= 0.03928 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// ContrastRatio calculates the contrast ratio between two colours according to WCAG 2.0.
// Translucent colours are composited over white before comparison.
// Returns a value between 1 and 21, where 21 is maximum contrast (black vs white).
// https://www.w3.org/TR/WCAG20/#contrast-ratiodef.
func ContrastRatio(c1, c2 RGBA) float64 {
	l1 := Luminance(OverWhite(c1))
	l2 := Luminance(OverWhite(c2))

	// Ensure l1 is the lighter colour.
	if l1 < l2 {
		l1, l2 = l2, l1
	}

	return (l1 + 0.05) / (l2 + 0.05)
}

// OverWhite alpha-composites c onto opaque white. Opaque colours are returned unchanged.
func OverWhite(c RGBA) RGBA {
	a := Clamp01(c.A)
	if a >= 1 {
		return c
	}
	return RGBA{
		R: c.R*a + 255*(1-a),
		G: c.G*a + 255*(1-a),
		B: c.B*a + 255*(1-a),
		A: 1,
	}
}

// Mix linearly interpolates every channel, alpha included, from a towards b.
// t is clamped to [0, 1]; 0 returns a and 1 returns b.
func Mix(a, b RGBA, t float64) RGBA {
	k := Clamp01(t)
	return RGBA{
		R: a.R + (b.R-a.R)*k,
		G: a.G + (b.G-a.G)*k,
		B: a.B + (b.B-a.B)*k,
		A: a.A + (b.A-a.A)*k,
	}
}
