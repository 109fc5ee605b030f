package transform

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/osslab-pku/github-scraper/internal/extract"
	"github.com/osslab-pku/github-scraper/internal/types"
)

var (
	countRe  = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)([kKmM])?\b`)
	checksRe = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
)

// Text concatenates the text nodes of a field and collapses whitespace.
func Text() Func {
	return Join("")
}

// Join concatenates values with sep and collapses whitespace.
func Join(sep string) Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		s := collapse(strings.Join(raw, sep))
		return s, s != ""
	}
}

// First returns the first non-blank value, trimmed.
func First() Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		for _, v := range raw {
			if s := collapse(v); s != "" {
				return s, true
			}
		}
		return nil, false
	}
}

// Last returns the last non-blank value, trimmed.
func Last() Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		for i := len(raw) - 1; i >= 0; i-- {
			if s := collapse(raw[i]); s != "" {
				return s, true
			}
		}
		return nil, false
	}
}

// Values trims every value and drops blanks.
func Values() Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		out := nonBlank(raw)
		return out, len(out) > 0
	}
}

// Unique is Values without repeats, in first-seen order.
func Unique() Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		out := dedupe(nonBlank(raw))
		return out, len(out) > 0
	}
}

// Int parses the first number in the text, dropping thousands separators
// and expanding k/m suffixes ("1,234 Open" -> 1234, "1.2k" -> 1200).
func Int() Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		n, ok := parseCount(strings.Join(raw, " "))
		if !ok {
			return nil, false
		}
		return n, true
	}
}

// Time keeps the first value that is an RFC 3339 timestamp, in UTC.
func Time() Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		for _, v := range raw {
			t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
			if err == nil {
				return t.UTC().Format(time.RFC3339), true
			}
		}
		return nil, false
	}
}

// Checks reads "N / M checks passed" into a types.Checks.
func Checks() Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		for _, v := range raw {
			m := checksRe.FindStringSubmatch(v)
			if m == nil {
				continue
			}
			passed, err1 := strconv.Atoi(m[1])
			total, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil {
				continue
			}
			status := "failed"
			if passed == total {
				status = "passed"
			}
			return types.Checks{Status: status, Passed: passed, Total: total}, true
		}
		return nil, false
	}
}

// Links resolves every value against base, keeps http(s) links only and
// removes duplicates.
func Links(base string) Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		out := absolutize(base, raw)
		return out, len(out) > 0
	}
}

// Link is Links reduced to the first surviving link.
func Link(base string) Func {
	return func(raw []string, _ extract.Key) (any, bool) {
		out := absolutize(base, raw)
		if len(out) == 0 {
			return nil, false
		}
		return out[0], true
	}
}

func absolutize(base string, raw []string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var links []string
	for _, v := range raw {
		href := strings.TrimSpace(v)
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		parsed, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := baseURL.ResolveReference(parsed)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		links = append(links, resolved.String())
	}
	return dedupe(links)
}

func parseCount(s string) (int, bool) {
	m := countRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	digits := strings.ReplaceAll(m[1], ",", "")

	mult := 1.0
	switch strings.ToLower(m[2]) {
	case "k":
		mult = 1e3
	case "m":
		mult = 1e6
	}
	if mult == 1 && !strings.Contains(digits, ".") {
		n, err := strconv.Atoi(digits)
		return n, err == nil
	}
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return int(f*mult + 0.5), true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nonBlank(raw []string) []string {
	var out []string
	for _, v := range raw {
		if s := collapse(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
