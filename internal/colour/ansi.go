package colour

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI escape codes for terminal colours.
const (
	ansiReset    = "\033[0m"
	ansiFgPrefix = "\033[38;2;"
	ansiBgPrefix = "\033[48;2;"
	ansiSuffix   = "m"
	defaultWidth = 4
)

// DisableColourOutput can be used to disable colour output.
var DisableColourOutput = false

// Swatch returns an ANSI-coloured block for a colour, or an empty string when
// colour output is unavailable. Translucent colours are shown over white.
func Swatch(c RGBA, width int) string {
	if DisableColourOutput || !SupportsANSIColours() {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}

	f := OverWhite(c)
	bg := fmt.Sprintf("%s%d;%d;%d%s", ansiBgPrefix, channel(f.R), channel(f.G), channel(f.B), ansiSuffix)
	return bg + strings.Repeat(" ", width) + ansiReset
}

// SwatchWithText returns the colour as a block with legible text on top.
func SwatchWithText(c RGBA, text string, width int) string {
	if DisableColourOutput || !SupportsANSIColours() {
		return text
	}
	if width <= 0 {
		width = len(text)
	}

	f := OverWhite(c)
	fg := Black
	if ContrastRatio(White, f) > ContrastRatio(Black, f) {
		fg = White
	}

	displayText := text
	if len(text) > width {
		displayText = text[:width]
	} else if len(text) < width {
		padding := (width - len(text)) / 2
		displayText = strings.Repeat(" ", padding) + text + strings.Repeat(" ", width-len(text)-padding)
	}

	bg := fmt.Sprintf("%s%d;%d;%d%s", ansiBgPrefix, channel(f.R), channel(f.G), channel(f.B), ansiSuffix)
	fgs := fmt.Sprintf("%s%d;%d;%d%s", ansiFgPrefix, channel(fg.R), channel(fg.G), channel(fg.B), ansiSuffix)
	return bg + fgs + displayText + ansiReset
}

// SupportsANSIColours reports whether stdout is a terminal that is not opted out
// via NO_COLOR or TERM=dumb.
func SupportsANSIColours() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
