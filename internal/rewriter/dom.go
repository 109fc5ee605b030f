package rewriter

import (
	"context"
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/osslab-pku/github-scraper/internal/extract"
)

type domHandler struct {
	selector string
	matches  map[*html.Node]bool
	onElem   func(extract.Element) error
	onText   func(extract.Text) error
}

// DOM buffers the whole document, then replays it through the handlers in
// document order. It accepts every CSS selector cascadia supports and
// XPath expressions prefixed with "xpath:".
type DOM struct {
	elements []*domHandler
	texts    []*domHandler
	visited  int
}

// NewDOM creates an empty DOM backend.
func NewDOM() *DOM {
	return &DOM{}
}

// OnElement implements extract.Stream.
func (d *DOM) OnElement(selector string, fn func(extract.Element) error) error {
	if err := validate(selector); err != nil {
		return err
	}
	d.elements = append(d.elements, &domHandler{selector: selector, onElem: fn})
	return nil
}

// OnText implements extract.Stream.
func (d *DOM) OnText(selector string, fn func(extract.Text) error) error {
	if err := validate(selector); err != nil {
		return err
	}
	d.texts = append(d.texts, &domHandler{selector: selector, onText: fn})
	return nil
}

// Run implements extract.Stream.
func (d *DOM) Run(ctx context.Context, r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("parsing document: %w", err)
	}

	for _, h := range append(append([]*domHandler(nil), d.elements...), d.texts...) {
		if h.matches, err = matchSet(doc, h.selector); err != nil {
			return err
		}
	}

	d.visited = 0
	return d.walk(ctx, doc.Nodes[0], make([]int, len(d.texts)))
}

func (d *DOM) walk(ctx context.Context, n *html.Node, active []int) error {
	d.visited++
	if d.visited%ctxCheckInterval == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	switch n.Type {
	case html.TextNode:
		// Re-escape so the engine's decode yields the original text.
		t := chunk{content: html.EscapeString(n.Data)}
		for i, count := range active {
			if count == 0 {
				continue
			}
			if err := d.texts[i].onText(t); err != nil {
				return err
			}
		}
		return nil

	case html.ElementNode:
		for _, h := range d.elements {
			if h.matches[n] {
				if err := h.onElem(element{n}); err != nil {
					return err
				}
			}
		}
		var opened []int
		for i, h := range d.texts {
			if h.matches[n] {
				active[i]++
				opened = append(opened, i)
			}
		}
		defer func() {
			for _, i := range opened {
				active[i]--
			}
		}()

	case html.DocumentNode:
	default:
		return nil
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := d.walk(ctx, c, active); err != nil {
			return err
		}
	}
	return nil
}

func validate(selector string) error {
	if isXPath(selector) {
		_, err := compileXPath(selector)
		return err
	}
	_, err := compileCSS(selector)
	return err
}

func matchSet(doc *goquery.Document, selector string) (map[*html.Node]bool, error) {
	if isXPath(selector) {
		expr, err := compileXPath(selector)
		if err != nil {
			return nil, err
		}
		return xpathMatches(doc.Nodes[0], expr), nil
	}

	sel, err := compileCSS(selector)
	if err != nil {
		return nil, err
	}
	set := make(map[*html.Node]bool)
	for _, n := range doc.FindMatcher(sel).Nodes {
		set[n] = true
	}
	return set, nil
}
