package htmldom

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/jmylchreest/pagetint/internal/colour"
)

// compound is one simple selector: an optional tag plus classes and an id.
type compound struct {
	tag     string
	id      string
	classes []string
	root    bool
}

// selector is a chain of compounds joined by descendant or child combinators.
// parts[len-1] is the subject; direct[i] reports a child combinator between
// parts[i] and parts[i+1].
type selector struct {
	parts  []compound
	direct []bool
	spec   int
}

type declaration struct {
	prop      string
	value     string
	important bool
}

type cssRule struct {
	sel   selector
	decls []declaration
	order int
}

// parseStylesheet extracts rules from CSS text. At-rule blocks are skipped.
// Unsupported selectors (attribute, pseudo-class other than :root) are dropped.
func parseStylesheet(txt string, startOrder int) ([]cssRule, int) {
	txt = stripComments(txt)
	rules := make([]cssRule, 0, 16)
	order := startOrder
	i := 0

	for i < len(txt) {
		bs := strings.IndexByte(txt[i:], '{')
		if bs == -1 {
			break
		}
		prelude := strings.TrimSpace(txt[i : i+bs])
		i += bs + 1

		if strings.HasPrefix(prelude, "@") {
			i = skipBlock(txt, i)
			continue
		}

		be := strings.IndexByte(txt[i:], '}')
		if be == -1 {
			break
		}
		body := txt[i : i+be]
		i += be + 1

		decls := parseDeclarations(body)
		if len(decls) == 0 {
			continue
		}

		for _, raw := range strings.Split(prelude, ",") {
			sel, ok := parseSelector(raw)
			if !ok {
				continue
			}
			rules = append(rules, cssRule{sel: sel, decls: decls, order: order})
			order++
		}
	}

	return rules, order
}

var commentRegex = regexp.MustCompile(`(?s)/\*.*?\*/`)

func stripComments(s string) string {
	return commentRegex.ReplaceAllString(s, "")
}

// skipBlock returns the index just past the brace that closes the block
// opened immediately before i.
func skipBlock(s string, i int) int {
	depth := 1
	for ; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

// parseDeclarations splits a declaration block, expanding the background shorthand.
func parseDeclarations(body string) []declaration {
	var out []declaration
	for _, part := range strings.Split(body, ";") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(kv[0]))
		value := strings.TrimSpace(kv[1])
		important := false
		if idx := strings.Index(strings.ToLower(value), "!important"); idx >= 0 {
			important = true
			value = strings.TrimSpace(value[:idx])
		}
		if prop == "" || value == "" {
			continue
		}

		if prop == "background" {
			bgColour, bgImage := splitBackground(value)
			out = append(out,
				declaration{prop: "background-color", value: bgColour, important: important},
				declaration{prop: "background-image", value: bgImage, important: important},
			)
			continue
		}
		out = append(out, declaration{prop: prop, value: value, important: important})
	}
	return out
}

var (
	imageRegex      = regexp.MustCompile(`(?i)(url\([^)]*\)|(repeating-)?(linear|radial|conic)-gradient\(.*\))`)
	colourFuncRegex = regexp.MustCompile(`(?i)rgba?\([^)]*\)|#[0-9a-f]{3,6}\b`)
)

// splitBackground pulls the colour and image layers out of a background
// shorthand value. Missing layers reset to their initial values.
func splitBackground(value string) (bgColour, bgImage string) {
	bgColour, bgImage = "transparent", "none"

	rest := value
	if m := imageRegex.FindString(value); m != "" {
		bgImage = m
		rest = strings.Replace(value, m, " ", 1)
	}

	if m := colourFuncRegex.FindString(rest); m != "" {
		return m, bgImage
	}
	for _, tok := range strings.Fields(rest) {
		if _, ok := resolveColour(tok); ok {
			return tok, bgImage
		}
	}
	return bgColour, bgImage
}

// parseSelector parses a selector made of compounds and descendant/child combinators.
func parseSelector(raw string) (selector, bool) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return selector{}, false
	}
	raw = strings.ReplaceAll(raw, ">", " > ")

	var sel selector
	direct := false
	for _, tok := range strings.Fields(raw) {
		if tok == ">" {
			direct = true
			continue
		}
		c, spec, ok := parseCompound(tok)
		if !ok {
			return selector{}, false
		}
		if len(sel.parts) > 0 {
			sel.direct = append(sel.direct, direct)
		}
		direct = false
		sel.parts = append(sel.parts, c)
		sel.spec += spec
	}
	if len(sel.parts) == 0 || direct {
		return selector{}, false
	}
	return sel, true
}

func parseCompound(tok string) (compound, int, bool) {
	var c compound
	spec := 0

	if tok == "*" {
		return c, 0, true
	}
	if tok == ":root" {
		c.root = true
		return c, 10, true
	}
	if strings.ContainsAny(tok, "[:+~") {
		return c, 0, false
	}

	i := 0
	for i < len(tok) && tok[i] != '.' && tok[i] != '#' {
		i++
	}
	c.tag = tok[:i]
	if c.tag == "*" {
		c.tag = ""
	} else if c.tag != "" {
		spec++
	}

	for i < len(tok) {
		kind := tok[i]
		j := i + 1
		for j < len(tok) && tok[j] != '.' && tok[j] != '#' {
			j++
		}
		name := tok[i+1 : j]
		if name == "" {
			return c, 0, false
		}
		if kind == '#' {
			c.id = name
			spec += 100
		} else {
			c.classes = append(c.classes, name)
			spec += 10
		}
		i = j
	}

	return c, spec, true
}

func (c compound) matches(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if c.root {
		return n.Parent != nil && n.Parent.Type == html.DocumentNode
	}
	if c.tag != "" && strings.ToLower(n.Data) != c.tag {
		return false
	}
	if c.id != "" && strings.ToLower(getAttr(n, "id")) != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(strings.ToLower(getAttr(n, "class")))
		for _, want := range c.classes {
			found := false
			for _, h := range have {
				if h == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (s selector) matches(n *html.Node) bool {
	last := len(s.parts) - 1
	if !s.parts[last].matches(n) {
		return false
	}
	return s.matchAncestors(n.Parent, last-1)
}

// matchAncestors matches parts[0..idx] against the ancestors starting at n.
func (s selector) matchAncestors(n *html.Node, idx int) bool {
	if idx < 0 {
		return true
	}
	if s.direct[idx] {
		if !s.parts[idx].matches(n) {
			return false
		}
		return s.matchAncestors(n.Parent, idx-1)
	}
	for a := n; a != nil; a = a.Parent {
		if s.parts[idx].matches(a) && s.matchAncestors(a.Parent, idx-1) {
			return true
		}
	}
	return false
}

// namedColours covers the keywords commonly found in page styles. Computed
// style always serialises them as rgb().
var namedColours = map[string]string{
	"black":      "#000000",
	"white":      "#ffffff",
	"red":        "#ff0000",
	"green":      "#008000",
	"blue":       "#0000ff",
	"yellow":     "#ffff00",
	"gray":       "#808080",
	"grey":       "#808080",
	"silver":     "#c0c0c0",
	"navy":       "#000080",
	"orange":     "#ffa500",
	"purple":     "#800080",
	"teal":       "#008080",
	"maroon":     "#800000",
	"beige":      "#f5f5dc",
	"ivory":      "#fffff0",
	"linen":      "#faf0e6",
	"snow":       "#fffafa",
	"whitesmoke": "#f5f5f5",
}

// resolveColour resolves a specified colour value to an RGBA.
func resolveColour(v string) (colour.RGBA, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if hex, ok := namedColours[v]; ok {
		v = hex
	}
	return colour.Parse(v)
}

// serialiseComputed formats a colour the way computed style reports it.
func serialiseComputed(c colour.RGBA) string {
	if c.A >= 1 {
		return fmt.Sprintf("rgb(%d, %d, %d)", int(math.Round(c.R)), int(math.Round(c.G)), int(math.Round(c.B)))
	}
	return c.String()
}
