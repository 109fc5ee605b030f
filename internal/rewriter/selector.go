package rewriter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/osslab-pku/github-scraper/internal/extract"
)

// XPathPrefix marks a selector as an XPath expression. Only the DOM backend
// evaluates them.
const XPathPrefix = "xpath:"

var (
	cssCache   sync.Map // string -> cascadia.Selector
	xpathCache sync.Map // string -> *xpath.Expr
)

func compileCSS(selector string) (cascadia.Selector, error) {
	if v, ok := cssCache.Load(selector); ok {
		return v.(cascadia.Selector), nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	cssCache.Store(selector, sel)
	return sel, nil
}

func compileXPath(selector string) (*xpath.Expr, error) {
	if v, ok := xpathCache.Load(selector); ok {
		return v.(*xpath.Expr), nil
	}
	expr, err := xpath.Compile(strings.TrimPrefix(selector, XPathPrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", selector, err)
	}
	xpathCache.Store(selector, expr)
	return expr, nil
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, XPathPrefix)
}

// xpathMatches evaluates expr against the whole document.
func xpathMatches(doc *html.Node, expr *xpath.Expr) map[*html.Node]bool {
	set := make(map[*html.Node]bool)
	for _, n := range htmlquery.QuerySelectorAll(doc, expr) {
		set[n] = true
	}
	return set
}

// Factory returns the stream constructor for a backend name: "stream"
// (the default) or "dom".
func Factory(backend string) (extract.StreamFactory, error) {
	switch backend {
	case "", "stream":
		return func() extract.Stream { return NewStream() }, nil
	case "dom":
		return func() extract.Stream { return NewDOM() }, nil
	default:
		return nil, fmt.Errorf("unknown extraction backend %q", backend)
	}
}

// element adapts an *html.Node to extract.Element.
type element struct {
	n *html.Node
}

func (e element) TagName() string { return e.n.Data }

func (e element) Attribute(name string) (string, bool) {
	for _, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// chunk is a whole text node delivered at once.
type chunk struct {
	content string
}

func (c chunk) Content() string      { return c.content }
func (c chunk) LastInTextNode() bool { return true }
