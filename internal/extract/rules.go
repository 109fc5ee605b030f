package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/osslab-pku/github-scraper/internal/types"
)

// KeyFunc derives the key of the record that starts at el. current is the
// key active before el.
type KeyFunc func(el Element, current Key) (Key, error)

// Rule is one of KeyRule, TextRule, AttributeRule or CaseRule.
type Rule interface {
	isRule()
}

// KeyRule switches the active key whenever Selector matches.
type KeyRule struct {
	Selector string
	Derive   KeyFunc
}

// TextRule collects the text of elements matching Selector into Name.
// One value is added per text node. A non-zero Key files values there
// instead of under the active key.
type TextRule struct {
	Name     string
	Selector string
	Key      Key
}

// AttributeRule collects Attribute of elements matching Selector into Name.
// Values are percent-decoded.
type AttributeRule struct {
	Name      string
	Selector  string
	Attribute string
	Key       Key
}

// Case pairs a selector with the literal recorded when it matches.
type Case struct {
	Selector string
	Value    string
}

// CaseRule records the Value of every Case whose selector matches an element.
type CaseRule struct {
	Name  string
	Cases []Case
	Key   Key
}

func (KeyRule) isRule()       {}
func (TextRule) isRule()      {}
func (AttributeRule) isRule() {}
func (CaseRule) isRule()      {}

// Registry is an ordered set of rules. It can be shared by any number of
// engines and parses once built.
type Registry struct {
	rules []Rule
}

// NewRegistry creates a registry holding rules.
func NewRegistry(rules ...Rule) *Registry {
	return (&Registry{}).Add(rules...)
}

// Add appends rules in order.
func (r *Registry) Add(rules ...Rule) *Registry {
	r.rules = append(r.rules, rules...)
	return r
}

// Rules returns the registered rules in registration order.
func (r *Registry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Len returns the number of rules.
func (r *Registry) Len() int { return len(r.rules) }

// IDFromAttr derives an integer key from attr after stripping prefix, as in
// id="issue_1234".
func IDFromAttr(attr, prefix string) KeyFunc {
	return func(el Element, _ Key) (Key, error) {
		v, ok := el.Attribute(attr)
		if !ok {
			return Key{}, fmt.Errorf("%w: <%s> has no %s attribute", types.ErrNoIdentity, el.TagName(), attr)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(v, prefix))
		if err != nil || !strings.HasPrefix(v, prefix) {
			return Key{}, fmt.Errorf("%w: malformed %s=%q", types.ErrNoIdentity, attr, v)
		}
		return IntKey(n), nil
	}
}

// StringFromAttr derives a string key from a non-empty attribute.
func StringFromAttr(attr string) KeyFunc {
	return func(el Element, _ Key) (Key, error) {
		v, ok := el.Attribute(attr)
		if !ok || strings.TrimSpace(v) == "" {
			return Key{}, fmt.Errorf("%w: <%s> has no %s attribute", types.ErrNoIdentity, el.TagName(), attr)
		}
		return StringKey(v), nil
	}
}

// Ordinal numbers records 0, 1, 2... in document order.
func Ordinal() KeyFunc {
	return func(_ Element, current Key) (Key, error) {
		n, ok := current.Int()
		if !ok {
			return IntKey(0), nil
		}
		return IntKey(n + 1), nil
	}
}
