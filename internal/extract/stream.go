package extract

import (
	"context"
	"io"
)

// Element is the view of a start tag handed to element handlers.
type Element interface {
	TagName() string
	// Attribute returns the entity-decoded value of the named attribute.
	Attribute(name string) (string, bool)
}

// Text is one chunk of text inside a matched element.
type Text interface {
	// Content returns the chunk as it appeared in the markup, entities
	// not yet decoded.
	Content() string
	// LastInTextNode reports whether this chunk ends a text node.
	LastInTextNode() bool
}

// Stream matches selectors against a document as it is read. Element
// handlers fire at element start, in registration order. Text handlers
// receive the text of every matched element's subtree.
type Stream interface {
	OnElement(selector string, fn func(Element) error) error
	OnText(selector string, fn func(Text) error) error
	Run(ctx context.Context, r io.Reader) error
}

// StreamFactory returns a fresh Stream for each parse.
type StreamFactory func() Stream
