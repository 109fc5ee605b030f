package extract

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/osslab-pku/github-scraper/internal/types"
)

// Engine extracts a Collection from a document stream in a single pass.
// An Engine is safe for concurrent use; every Parse gets its own state.
type Engine struct {
	keyRules   []KeyRule
	valueRules []Rule
	newStream  StreamFactory
	logger     *slog.Logger
}

// NewEngine binds a registry to a stream backend. Selectors are checked
// up front so a bad registry fails here rather than on the first page.
func NewEngine(reg *Registry, newStream StreamFactory, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		newStream: newStream,
		logger:    logger.With("component", "extract"),
	}
	for _, rule := range reg.Rules() {
		switch r := rule.(type) {
		case KeyRule:
			if r.Derive == nil {
				return nil, fmt.Errorf("key rule %q has no derive function", r.Selector)
			}
			e.keyRules = append(e.keyRules, r)
		case TextRule, AttributeRule, CaseRule:
			e.valueRules = append(e.valueRules, r)
		default:
			return nil, fmt.Errorf("unsupported rule type %T", rule)
		}
	}

	if err := e.register(newStream(), &parseContext{}); err != nil {
		return nil, err
	}
	return e, nil
}

// parseContext is the mutable state of one Parse call.
type parseContext struct {
	current Key
	coll    *Collection
	texts   map[int]*textAccumulator
}

type textAccumulator struct {
	key Key
	buf strings.Builder
}

// Parse runs the registry over r and returns the collected records. A
// failed parse returns no collection.
func (e *Engine) Parse(ctx context.Context, r io.Reader) (*Collection, error) {
	pc := &parseContext{
		current: Uncollected,
		coll:    NewCollection(),
		texts:   make(map[int]*textAccumulator),
	}

	stream := e.newStream()
	if err := e.register(stream, pc); err != nil {
		return nil, err
	}
	if err := stream.Run(ctx, r); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		var xe *types.ExtractError
		if errors.As(err, &xe) {
			return nil, err
		}
		return nil, fmt.Errorf("reading document: %w", err)
	}

	e.logger.Debug("page parsed", "records", pc.coll.Len())
	return pc.coll, nil
}

// register installs key rules first so they update the active key before
// any other rule sees the same element.
func (e *Engine) register(s Stream, pc *parseContext) error {
	for _, r := range e.keyRules {
		if err := s.OnElement(r.Selector, e.keyHandler(r, pc)); err != nil {
			return fmt.Errorf("key rule %q: %w", r.Selector, err)
		}
	}

	for i, rule := range e.valueRules {
		switch r := rule.(type) {
		case TextRule:
			if err := e.registerText(s, i, r, pc); err != nil {
				return fmt.Errorf("text rule %q: %w", r.Name, err)
			}
		case AttributeRule:
			if err := s.OnElement(r.Selector, attributeHandler(r, pc)); err != nil {
				return fmt.Errorf("attribute rule %q: %w", r.Name, err)
			}
		case CaseRule:
			for _, c := range r.Cases {
				if err := s.OnElement(c.Selector, caseHandler(r, c, pc)); err != nil {
					return fmt.Errorf("case rule %q: %w", r.Name, err)
				}
			}
		}
	}
	return nil
}

func (e *Engine) keyHandler(r KeyRule, pc *parseContext) func(Element) error {
	return func(el Element) error {
		key, err := r.Derive(el, pc.current)
		if err != nil {
			return &types.ExtractError{Selector: r.Selector, Err: err}
		}
		pc.current = key
		return nil
	}
}

func (e *Engine) registerText(s Stream, idx int, r TextRule, pc *parseContext) error {
	err := s.OnElement(r.Selector, func(Element) error {
		pc.texts[idx] = &textAccumulator{key: target(r.Key, pc.current)}
		return nil
	})
	if err != nil {
		return err
	}

	return s.OnText(r.Selector, func(t Text) error {
		acc, ok := pc.texts[idx]
		if !ok {
			return nil
		}
		acc.buf.WriteString(t.Content())
		if t.LastInTextNode() {
			pc.coll.Add(acc.key, r.Name, html.UnescapeString(acc.buf.String()))
			acc.buf.Reset()
		}
		return nil
	})
}

func attributeHandler(r AttributeRule, pc *parseContext) func(Element) error {
	return func(el Element) error {
		v, ok := el.Attribute(r.Attribute)
		if !ok {
			return nil
		}
		pc.coll.Add(target(r.Key, pc.current), r.Name, percentDecode(v))
		return nil
	}
}

func caseHandler(r CaseRule, c Case, pc *parseContext) func(Element) error {
	return func(Element) error {
		pc.coll.Add(target(r.Key, pc.current), r.Name, c.Value)
		return nil
	}
}

func target(override, current Key) Key {
	if override.IsUncollected() {
		return current
	}
	return override
}

func percentDecode(v string) string {
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}
