// Package htmldom is a dom.Document host backed by golang.org/x/net/html.
//
// It resolves a small CSS cascade (tag, class and id selectors from <style>
// elements plus inline styles, with !important) and a simple block geometry
// model, which is enough to run the background engine against static pages
// and to drive it deterministically in tests.
package htmldom

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jmylchreest/pagetint/internal/dom"
)

// Default viewport used for the root element geometry.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
)

// Option configures a Document.
type Option func(*Document)

// WithViewport sets the viewport size used for the root element.
func WithViewport(width, height float64) Option {
	return func(d *Document) {
		d.viewportW = width
		d.viewportH = height
	}
}

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(logger hclog.Logger) Option {
	return func(d *Document) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Document is a parsed HTML page. All methods are safe for concurrent use.
type Document struct {
	mu sync.Mutex

	doc   *html.Node
	elems map[*html.Node]*Element

	rules      []cssRule
	rulesDirty bool

	viewportW, viewportH float64

	observers map[int]func([]dom.Mutation)
	nextObs   int

	logger hclog.Logger
}

var _ dom.Document = (*Document)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	node, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	d := &Document{
		doc:        node,
		elems:      make(map[*html.Node]*Element),
		rulesDirty: true,
		viewportW:  DefaultViewportWidth,
		viewportH:  DefaultViewportHeight,
		observers:  make(map[int]func([]dom.Mutation)),
		logger:     hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.findFirst(d.doc, "html") == nil {
		return nil, fmt.Errorf("document has no root element")
	}
	return d, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Render writes the current document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.doc)
}

// Root returns the <html> element.
func (d *Document) Root() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle(d.findFirst(d.doc, "html"))
}

// Body returns the <body> element, or nil.
func (d *Document) Body() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.findFirst(d.doc, "body")
	if n == nil {
		return nil
	}
	return d.handle(n)
}

// Element returns the element with the given id attribute.
func (d *Document) Element(id string) (*Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var found *html.Node
	walkNodes(d.doc, func(n *html.Node) bool {
		if getAttr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil, false
	}
	return d.handle(found), true
}

// Query returns all elements with the given tag in document order.
func (d *Document) Query(tag string) []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	tag = strings.ToLower(tag)
	var out []*Element
	walkNodes(d.doc, func(n *html.Node) bool {
		if n.Data == tag {
			out = append(out, d.handle(n))
		}
		return true
	})
	return out
}

// Observe subscribes fn to every mutation made through this Document.
// fn is called synchronously after the mutating call releases its lock.
func (d *Document) Observe(fn func([]dom.Mutation)) func() {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.observers, id)
			d.mu.Unlock()
		})
	}
}

// Walk returns a document-order walker over from and its descendants.
func (d *Document) Walk(from dom.Element) dom.Walker {
	el, ok := from.(*Element)
	if !ok || el == nil || el.doc != d {
		return &walker{}
	}
	return &walker{doc: d, root: el.node}
}

// CreateElement returns a new detached element ready for AppendChild.
func (d *Document) CreateElement(tag string, attrs map[string]string) *Element {
	tag = strings.ToLower(tag)
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Attr = append(n.Attr, html.Attribute{Key: strings.ToLower(k), Val: attrs[k]})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle(n)
}

// AppendChild inserts child as the last child of parent.
func (d *Document) AppendChild(parent, child *Element) error {
	d.mu.Lock()
	if parent.detachedLocked() {
		d.mu.Unlock()
		return dom.ErrDetached
	}
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	parent.node.AppendChild(child.node)
	d.markAttached(child.node)
	d.rulesDirty = true
	d.mu.Unlock()

	d.notify([]dom.Mutation{{Kind: dom.ChildList, Target: parent}})
	return nil
}

// Remove detaches el and its subtree from the document.
func (d *Document) Remove(el *Element) error {
	d.mu.Lock()
	if el.detachedLocked() || el.node.Parent == nil {
		d.mu.Unlock()
		return dom.ErrDetached
	}
	parent := d.handle(el.node.Parent)
	el.node.Parent.RemoveChild(el.node)
	walkNodes(el.node, func(n *html.Node) bool {
		if h, ok := d.elems[n]; ok {
			h.detached = true
		}
		return true
	})
	d.rulesDirty = true
	d.mu.Unlock()

	d.notify([]dom.Mutation{{Kind: dom.ChildList, Target: parent}})
	return nil
}

// SetAttr sets or, with an empty value, removes an attribute.
func (d *Document) SetAttr(el *Element, key, value string) error {
	d.mu.Lock()
	if el.detachedLocked() {
		d.mu.Unlock()
		return dom.ErrDetached
	}
	key = strings.ToLower(key)
	if getAttr(el.node, key) == value {
		d.mu.Unlock()
		return nil
	}
	setAttr(el.node, key, value)
	d.mu.Unlock()

	d.notify([]dom.Mutation{{Kind: dom.Attributes, Target: el, Attribute: key}})
	return nil
}

// SetStyleSheet creates or replaces a <style> element with the given id in <head>.
func (d *Document) SetStyleSheet(id, css string) error {
	d.mu.Lock()
	head := d.findFirst(d.doc, "head")
	if head == nil {
		head = d.findFirst(d.doc, "html")
	}

	var style *html.Node
	walkNodes(head, func(n *html.Node) bool {
		if n.Data == "style" && getAttr(n, "id") == id {
			style = n
			return false
		}
		return true
	})

	if style != nil && styleText(style) == css {
		d.mu.Unlock()
		return nil
	}
	if style == nil {
		style = &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
		setAttr(style, "id", id)
		head.AppendChild(style)
	}
	for c := style.FirstChild; c != nil; c = style.FirstChild {
		style.RemoveChild(c)
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	d.rulesDirty = true
	target := d.handle(head)
	d.mu.Unlock()

	d.notify([]dom.Mutation{{Kind: dom.ChildList, Target: target}})
	return nil
}

// RemoveStyleSheet removes the <style> element with the given id, if present.
func (d *Document) RemoveStyleSheet(id string) error {
	d.mu.Lock()
	var style *html.Node
	walkNodes(d.doc, func(n *html.Node) bool {
		if n.Data == "style" && getAttr(n, "id") == id {
			style = n
			return false
		}
		return true
	})
	if style == nil || style.Parent == nil {
		d.mu.Unlock()
		return nil
	}
	parent := style.Parent
	parent.RemoveChild(style)
	d.rulesDirty = true
	target := d.handle(parent)
	d.mu.Unlock()

	d.notify([]dom.Mutation{{Kind: dom.ChildList, Target: target}})
	return nil
}

// notify delivers records to a snapshot of the observers. Must be called
// without holding the lock.
func (d *Document) notify(records []dom.Mutation) {
	d.mu.Lock()
	ids := make([]int, 0, len(d.observers))
	for id := range d.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func([]dom.Mutation), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, d.observers[id])
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(records)
	}
}

// handle returns the unique Element for n. Caller holds the lock.
func (d *Document) handle(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if el, ok := d.elems[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n, detached: !d.attached(n)}
	d.elems[n] = el
	return el
}

func (d *Document) attached(n *html.Node) bool {
	for a := n; a != nil; a = a.Parent {
		if a == d.doc {
			return true
		}
	}
	return false
}

func (d *Document) markAttached(root *html.Node) {
	walkNodes(root, func(n *html.Node) bool {
		if h, ok := d.elems[n]; ok {
			h.detached = false
		}
		return true
	})
}

// findFirst returns the first element with the given tag under n.
func (d *Document) findFirst(n *html.Node, tag string) *html.Node {
	var found *html.Node
	walkNodes(n, func(c *html.Node) bool {
		if c.Data == tag {
			found = c
			return false
		}
		return true
	})
	return found
}

// stylesheet returns the parsed rules of every <style> element. Caller holds the lock.
func (d *Document) stylesheet() []cssRule {
	if !d.rulesDirty {
		return d.rules
	}

	var rules []cssRule
	order := 0
	walkNodes(d.doc, func(n *html.Node) bool {
		if n.Data == "style" {
			var parsed []cssRule
			parsed, order = parseStylesheet(styleText(n), order)
			rules = append(rules, parsed...)
		}
		return true
	})

	d.logger.Trace("stylesheet parsed", "rules", len(rules))
	d.rules = rules
	d.rulesDirty = false
	return rules
}

// walkNodes visits element nodes under n in document order, including n.
// Returning false from fn stops the walk.
func walkNodes(n *html.Node, fn func(*html.Node) bool) bool {
	if n == nil {
		return true
	}
	if n.Type == html.ElementNode && !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walkNodes(c, fn) {
			return false
		}
	}
	return true
}

func styleText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Key == key {
			if value == "" {
				n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			} else {
				n.Attr[i].Val = value
			}
			return
		}
	}
	if value != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
	}
}
