package rewriter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/osslab-pku/github-scraper/internal/extract"
)

// ErrXPathUnsupported is returned when an XPath selector is registered on
// the streaming backend.
var ErrXPathUnsupported = errors.New("xpath selectors need the dom backend")

// ctxCheckInterval is how many tokens are read between context checks.
const ctxCheckInterval = 256

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

type elementHandler struct {
	sel cascadia.Selector
	fn  func(extract.Element) error
}

type textHandler struct {
	sel cascadia.Selector
	fn  func(extract.Text) error
}

type frame struct {
	node  *html.Node
	texts []int
	// foreign is set inside svg and math, where a trailing slash closes
	// the element.
	foreign bool
}

// Stream matches CSS selectors while tokenizing, without building the
// document. Only the open elements and their preceding siblings are kept,
// so selectors that look ahead (:has, :last-child, :contains) never match.
type Stream struct {
	elements []elementHandler
	texts    []textHandler

	stack  []frame
	active []int
}

// NewStream creates an empty streaming backend.
func NewStream() *Stream {
	return &Stream{}
}

// OnElement implements extract.Stream.
func (s *Stream) OnElement(selector string, fn func(extract.Element) error) error {
	if isXPath(selector) {
		return fmt.Errorf("%w: %q", ErrXPathUnsupported, selector)
	}
	sel, err := compileCSS(selector)
	if err != nil {
		return err
	}
	s.elements = append(s.elements, elementHandler{sel: sel, fn: fn})
	return nil
}

// OnText implements extract.Stream.
func (s *Stream) OnText(selector string, fn func(extract.Text) error) error {
	if isXPath(selector) {
		return fmt.Errorf("%w: %q", ErrXPathUnsupported, selector)
	}
	sel, err := compileCSS(selector)
	if err != nil {
		return err
	}
	s.texts = append(s.texts, textHandler{sel: sel, fn: fn})
	return nil
}

// Run implements extract.Stream.
func (s *Stream) Run(ctx context.Context, r io.Reader) error {
	z := html.NewTokenizer(r)
	s.stack = []frame{{node: &html.Node{Type: html.DocumentNode}}}
	s.active = make([]int, len(s.texts))

	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		var err error
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		case html.StartTagToken:
			err = s.start(z.Token(), false)
		case html.SelfClosingTagToken:
			err = s.start(z.Token(), true)
		case html.EndTagToken:
			name, _ := z.TagName()
			s.end(string(name))
		case html.TextToken:
			err = s.text(string(z.Raw()))
		}
		if err != nil {
			return err
		}
	}
}

func (s *Stream) start(tok html.Token, selfClosing bool) error {
	s.closeImplied(tok.Data)

	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tok.Data,
		DataAtom: tok.DataAtom,
		Attr:     tok.Attr,
	}
	s.top().node.AppendChild(n)

	for _, h := range s.elements {
		if h.sel.Match(n) {
			if err := h.fn(element{n}); err != nil {
				return err
			}
		}
	}

	foreign := s.top().foreign || tok.Data == "svg" || tok.Data == "math"
	if voidElements[tok.Data] || (selfClosing && foreign) {
		return nil
	}

	f := frame{node: n, foreign: foreign}
	for i, h := range s.texts {
		if h.sel.Match(n) {
			f.texts = append(f.texts, i)
			s.active[i]++
		}
	}
	s.stack = append(s.stack, f)
	return nil
}

func (s *Stream) end(name string) {
	for i := len(s.stack) - 1; i > 0; i-- {
		if s.stack[i].node.Data == name {
			for len(s.stack) > i {
				s.pop()
			}
			return
		}
	}
}

func (s *Stream) text(raw string) error {
	for i, count := range s.active {
		if count == 0 {
			continue
		}
		if err := s.texts[i].fn(chunk{content: raw}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) closeImplied(tag string) {
	closes := impliedEnd(tag)
	if len(closes) == 0 {
		return
	}
	for len(s.stack) > 1 && contains(closes, s.top().node.Data) {
		s.pop()
	}
}

func (s *Stream) top() frame {
	return s.stack[len(s.stack)-1]
}

// pop closes the top element and forgets the subtrees of its children,
// which no later selector can reach.
func (s *Stream) pop() {
	f := s.top()
	s.stack = s.stack[:len(s.stack)-1]
	for _, i := range f.texts {
		s.active[i]--
	}
	for c := f.node.FirstChild; c != nil; c = c.NextSibling {
		c.FirstChild, c.LastChild = nil, nil
	}
}

// impliedEnd lists the open elements a start tag closes implicitly.
func impliedEnd(tag string) []string {
	switch tag {
	case "li", "option", "p":
		return []string{tag}
	case "dt", "dd":
		return []string{"dt", "dd"}
	case "tr":
		return []string{"td", "th", "tr"}
	case "td", "th":
		return []string{"td", "th"}
	case "div", "ul", "ol", "table", "pre", "form", "section", "blockquote", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6":
		return []string{"p"}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
