package htmldom

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/jmylchreest/pagetint/internal/dom"
)

// Element is a handle to one element node. There is exactly one handle per
// node, so handles can be compared by identity.
type Element struct {
	doc      *Document
	node     *html.Node
	detached bool
}

var _ dom.Element = (*Element)(nil)

// Tag returns the lower-case tag name.
func (e *Element) Tag() string {
	return strings.ToLower(e.node.Data)
}

// ID returns the id attribute.
func (e *Element) ID() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return getAttr(e.node, "id")
}

// Attr returns the named attribute, "" when absent.
func (e *Element) Attr(key string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return getAttr(e.node, strings.ToLower(key))
}

// String describes the element for logs and reports, e.g. div#main.card.
func (e *Element) String() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	var b strings.Builder
	b.WriteString(e.Tag())
	if id := getAttr(e.node, "id"); id != "" {
		b.WriteString("#" + id)
	}
	for _, c := range strings.Fields(getAttr(e.node, "class")) {
		b.WriteString("." + c)
	}
	return b.String()
}

// Detached reports whether the element has been removed from the document.
func (e *Element) Detached() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.detached
}

func (e *Element) detachedLocked() bool {
	return e.detached
}

// ComputedStyle resolves the colour and image values the engine needs.
func (e *Element) ComputedStyle() (dom.Style, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.detached {
		return dom.Style{}, dom.ErrDetached
	}

	props := e.doc.cascade(e.node)
	style := dom.Style{
		BackgroundColor: "rgba(0, 0, 0, 0)",
		BackgroundImage: "none",
		Color:           "rgb(0, 0, 0)",
	}

	if v, ok := props["background-color"]; ok {
		v = e.doc.resolveVar(e.node, v)
		if c, ok := resolveColour(v); ok {
			style.BackgroundColor = serialiseComputed(c)
		} else {
			style.BackgroundColor = v
		}
	}
	if v, ok := props["background-image"]; ok {
		style.BackgroundImage = v
	}

	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		v, ok := e.doc.cascade(n)["color"]
		if !ok || v == "inherit" {
			continue
		}
		v = e.doc.resolveVar(n, v)
		if c, ok := resolveColour(v); ok {
			style.Color = serialiseComputed(c)
		}
		break
	}

	return style, nil
}

// Size returns the rendered width and height. See package docs for the model:
// explicit px or % sizes from the cascade, otherwise the parent's size, with
// the root sized to the viewport and display:none collapsing to zero.
func (e *Element) Size() (float64, float64, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.detached {
		return 0, 0, dom.ErrDetached
	}
	w, h := e.doc.size(e.node)
	return w, h, nil
}

// InlineBackground returns the inline background-color declaration value.
func (e *Element) InlineBackground() (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.detached {
		return "", dom.ErrDetached
	}
	for _, d := range splitInline(getAttr(e.node, "style")) {
		if d.prop == "background-color" {
			return d.value, nil
		}
	}
	return "", nil
}

// SetInlineBackground sets the inline background-color, or removes it when
// value is empty. No mutation is recorded when the style attribute is unchanged.
func (e *Element) SetInlineBackground(value string) error {
	e.doc.mu.Lock()
	if e.detached {
		e.doc.mu.Unlock()
		return dom.ErrDetached
	}

	before := getAttr(e.node, "style")
	decls := splitInline(before)
	out := make([]inlineDecl, 0, len(decls)+1)
	replaced := false
	for _, d := range decls {
		if d.prop == "background-color" {
			if value != "" && !replaced {
				out = append(out, inlineDecl{prop: d.prop, value: value})
				replaced = true
			}
			continue
		}
		out = append(out, d)
	}
	if value != "" && !replaced {
		out = append(out, inlineDecl{prop: "background-color", value: value})
	}

	after := joinInline(out)
	if after == before || (len(decls) == len(out) && joinInline(decls) == after) {
		e.doc.mu.Unlock()
		return nil
	}
	setAttr(e.node, "style", after)
	e.doc.mu.Unlock()

	e.doc.notify([]dom.Mutation{{Kind: dom.Attributes, Target: e, Attribute: "style"}})
	return nil
}

type inlineDecl struct {
	prop  string
	value string
}

func splitInline(s string) []inlineDecl {
	var out []inlineDecl
	for _, part := range strings.Split(s, ";") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(kv[0]))
		value := strings.TrimSpace(kv[1])
		if prop == "" || value == "" {
			continue
		}
		out = append(out, inlineDecl{prop: prop, value: value})
	}
	return out
}

func joinInline(decls []inlineDecl) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.value)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}

// rank orders competing declarations: importance, then inline, then
// specificity, then source order.
type rank struct {
	important bool
	inline    bool
	spec      int
	order     int
}

func (r rank) beats(o rank) bool {
	if r.important != o.important {
		return r.important
	}
	if r.inline != o.inline {
		return r.inline
	}
	if r.spec != o.spec {
		return r.spec > o.spec
	}
	return r.order >= o.order
}

// cascade resolves the winning specified value per property for n. Caller holds the lock.
func (d *Document) cascade(n *html.Node) map[string]string {
	type winner struct {
		r     rank
		value string
	}
	won := make(map[string]winner)
	apply := func(decl declaration, r rank) {
		if cur, ok := won[decl.prop]; !ok || r.beats(cur.r) {
			won[decl.prop] = winner{r: r, value: decl.value}
		}
	}

	for _, rule := range d.stylesheet() {
		if !rule.sel.matches(n) {
			continue
		}
		for _, decl := range rule.decls {
			apply(decl, rank{important: decl.important, spec: rule.sel.spec, order: rule.order})
		}
	}

	for i, decl := range parseDeclarations(getAttr(n, "style")) {
		apply(decl, rank{important: decl.important, inline: true, order: i})
	}

	out := make(map[string]string, len(won))
	for k, w := range won {
		out[k] = w.value
	}
	return out
}

var varRegex = regexp.MustCompile(`^var\(\s*(--[a-z0-9_-]+)\s*(?:,\s*(.+))?\)$`)

// resolveVar substitutes a var() reference with the custom property value
// inherited by n, or the fallback. Caller holds the lock.
func (d *Document) resolveVar(n *html.Node, v string) string {
	m := varRegex.FindStringSubmatch(strings.ToLower(strings.TrimSpace(v)))
	if m == nil {
		return v
	}
	for a := n; a != nil && a.Type == html.ElementNode; a = a.Parent {
		if val, ok := d.cascade(a)[m[1]]; ok {
			return val
		}
	}
	return m[2]
}

// size computes the geometry of n. Caller holds the lock.
func (d *Document) size(n *html.Node) (float64, float64) {
	if n == nil || n.Type != html.ElementNode {
		return d.viewportW, d.viewportH
	}

	props := d.cascade(n)
	if strings.TrimSpace(props["display"]) == "none" {
		return 0, 0
	}

	var pw, ph float64
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		pw, ph = d.viewportW, d.viewportH
	} else {
		pw, ph = d.size(n.Parent)
		if pw == 0 && ph == 0 {
			return 0, 0
		}
	}

	return length(props["width"], pw), length(props["height"], ph)
}

// length resolves a px, unitless or % length against the parent length.
// Anything else (auto, em, calc) falls back to the parent length.
func length(v string, parent float64) float64 {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "":
		return parent
	case strings.HasSuffix(v, "%"):
		if f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64); err == nil {
			return parent * f / 100
		}
	case strings.HasSuffix(v, "px"):
		if f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64); err == nil {
			return f
		}
	default:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return parent
}

// walker is a lazy pre-order traversal that tolerates mutation between
// calls to Next, the way a DOM TreeWalker does.
type walker struct {
	doc     *Document
	root    *html.Node
	current *html.Node
	done    bool
}

func (w *walker) Next() (dom.Element, bool) {
	if w.doc == nil || w.done {
		return nil, false
	}
	w.doc.mu.Lock()
	defer w.doc.mu.Unlock()

	if w.current == nil {
		w.current = w.root
	} else {
		w.current = w.following(w.current)
	}
	if w.current == nil {
		w.done = true
		return nil, false
	}
	return w.doc.handle(w.current), true
}

// following returns the next element node after n in pre-order within root.
func (w *walker) following(n *html.Node) *html.Node {
	if c := firstElementChild(n); c != nil {
		return c
	}
	for a := n; a != nil && a != w.root; a = a.Parent {
		if s := nextElementSibling(a); s != nil {
			return s
		}
	}
	return nil
}

func firstElementChild(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func nextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}
