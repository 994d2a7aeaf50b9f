// Package colour provides the colour parsing and maths used by the background
// blending engine: CSS colour parsing, relative luminance, contrast ratio and
// linear mixing.
package colour

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// RGBA is a colour with red, green and blue channels in 0-255 and alpha in 0-1.
// Channels are kept as floats so mixing does not accumulate rounding error.
type RGBA struct {
	R, G, B float64
	A       float64
}

var (
	// White is opaque white, the fallback target colour.
	White = RGBA{R: 255, G: 255, B: 255, A: 1}
	// Black is opaque black, the fallback text colour.
	Black = RGBA{R: 0, G: 0, B: 0, A: 1}
	// Transparent is fully transparent black.
	Transparent = RGBA{}
)

var (
	rgbRegex = regexp.MustCompile(`^rgba?\(([^)]+)\)$`)
	hexRegex = regexp.MustCompile(`^#([0-9a-f]{3}|[0-9a-f]{6})$`)
)

// Parse parses a CSS colour string. Supported forms are #rgb, #rrggbb,
// rgb()/rgba() with integer or percentage channels, and "transparent".
// The second return value is false when the input is not a colour.
func Parse(input string) (RGBA, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return RGBA{}, false
	}
	if s == "transparent" {
		return Transparent, true
	}

	if m := rgbRegex.FindStringSubmatch(s); m != nil {
		return parseFunctional(m[1])
	}

	if m := hexRegex.FindStringSubmatch(s); m != nil {
		return parseHexDigits(m[1]), true
	}

	return RGBA{}, false
}

// ParseHex parses a hex colour. It accepts the same inputs as Parse so a
// target given as rgb() still works.
func ParseHex(hex string) (RGBA, bool) {
	return Parse(hex)
}

// parseFunctional parses the comma separated body of rgb()/rgba().
func parseFunctional(body string) (RGBA, bool) {
	parts := strings.Split(body, ",")
	if len(parts) < 3 {
		return RGBA{}, false
	}

	values := make([]float64, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		percent := strings.HasSuffix(p, "%")
		v, err := strconv.ParseFloat(strings.TrimSuffix(p, "%"), 64)
		if err != nil {
			return RGBA{}, false
		}
		if percent && i < 3 {
			v = v / 100 * 255
		} else if percent {
			v = v / 100
		}
		values = append(values, v)
	}

	c := RGBA{
		R: math.Round(values[0]),
		G: math.Round(values[1]),
		B: math.Round(values[2]),
		A: 1,
	}
	if len(values) >= 4 {
		c.A = Clamp01(values[3])
	}
	return c, true
}

// parseHexDigits expands three or six validated hex digits.
func parseHexDigits(h string) RGBA {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	r, _ := strconv.ParseUint(h[0:2], 16, 8)
	g, _ := strconv.ParseUint(h[2:4], 16, 8)
	b, _ := strconv.ParseUint(h[4:6], 16, 8)
	return RGBA{R: float64(r), G: float64(g), B: float64(b), A: 1}
}

// Clamp01 clamps x to [0, 1]. NaN clamps to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}

// String serialises the colour as a CSS rgba() value with rounded channels.
func (c RGBA) String() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %s)",
		channel(c.R), channel(c.G), channel(c.B),
		strconv.FormatFloat(Clamp01(c.A), 'f', -1, 64))
}

// Hex returns the colour as #rrggbb, ignoring alpha.
func (c RGBA) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", channel(c.R), channel(c.G), channel(c.B))
}

// Opaque returns the colour with alpha forced to 1.
func (c RGBA) Opaque() RGBA {
	c.A = 1
	return c
}

// IsTransparent reports whether the colour is effectively invisible.
func (c RGBA) IsTransparent() bool {
	return c.A <= 0.01
}

// Equal reports whether two colours serialise to the same CSS value.
func (c RGBA) Equal(o RGBA) bool {
	return c.String() == o.String()
}

func channel(v float64) int {
	return int(math.Max(0, math.Min(255, math.Round(v))))
}
