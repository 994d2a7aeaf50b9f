// Package dom defines the host page environment the background engine runs
// against: elements with computed style and geometry, document-order
// traversal, and a structural mutation feed.
package dom

import "errors"

// ErrDetached is returned by element reads and writes once the element has
// been removed from its document.
var ErrDetached = errors.New("element is detached")

// Style holds the computed style values the engine reads, as CSS strings.
type Style struct {
	BackgroundColor string
	BackgroundImage string
	Color           string
}

// HasBackgroundImage reports whether the style paints an image background.
func (s Style) HasBackgroundImage() bool {
	return s.BackgroundImage != "" && s.BackgroundImage != "none"
}

// Element is a live element handle. Handles are compared by identity, so
// implementations must use pointer receivers.
type Element interface {
	// Tag returns the lower-case tag name.
	Tag() string
	ComputedStyle() (Style, error)
	// Size returns the rendered width and height in CSS pixels.
	Size() (width, height float64, err error)
	// InlineBackground returns the inline background-color value, "" when unset.
	InlineBackground() (string, error)
	// SetInlineBackground writes the inline background-color; "" clears it.
	SetInlineBackground(value string) error
}

// Walker iterates elements in document order.
type Walker interface {
	Next() (Element, bool)
}

// MutationKind classifies a mutation record.
type MutationKind int

const (
	// ChildList records an insertion or removal of children.
	ChildList MutationKind = iota
	// Attributes records an attribute change.
	Attributes
)

func (k MutationKind) String() string {
	switch k {
	case ChildList:
		return "childList"
	case Attributes:
		return "attributes"
	default:
		return "unknown"
	}
}

// Mutation is one structural change notification.
type Mutation struct {
	Kind      MutationKind
	Target    Element
	Attribute string
}

// Document is the page an engine works on.
type Document interface {
	// Root returns the document element.
	Root() Element
	// Body returns the top-level content container, or nil.
	Body() Element
	// Walk returns a document-order walker over from and its descendants.
	Walk(from Element) Walker
	// Observe subscribes fn to mutations anywhere in the document subtree.
	// fn may run synchronously inside the write that caused the mutation.
	// The returned function disconnects the subscription.
	Observe(fn func([]Mutation)) (disconnect func())
}
