package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/conduit/internal/ir"
)

var paramName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Segment is one piece of a template string: literal text, or a reference to
// a named argument when Param is set.
type Segment struct {
	Text  string
	Param string
}

// ParseTemplate splits s into literal and placeholder segments. A placeholder
// is "{{name}}" with optional surrounding spaces inside the braces.
func ParseTemplate(s string) ([]Segment, error) {
	var segs []Segment
	rest := s
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder in %q", s)
		}
		name := strings.TrimSpace(rest[open+2 : open+2+end])
		if !paramName.MatchString(name) {
			return nil, fmt.Errorf("invalid placeholder name %q in %q", name, s)
		}
		if open > 0 {
			segs = append(segs, Segment{Text: rest[:open]})
		}
		segs = append(segs, Segment{Param: name})
		rest = rest[open+2+end+2:]
	}
	if rest != "" || len(segs) == 0 {
		segs = append(segs, Segment{Text: rest})
	}
	return segs, nil
}

// WholePlaceholder reports the parameter name when segs is exactly one
// placeholder and nothing else. Such leaves substitute the argument with its
// own type rather than as text.
func WholePlaceholder(segs []Segment) (string, bool) {
	if len(segs) == 1 && segs[0].Param != "" {
		return segs[0].Param, true
	}
	return "", false
}

// Params returns the sorted, de-duplicated placeholder names used anywhere in
// the template value.
func Params(v ir.IRValue) ([]string, error) {
	seen := make(map[string]struct{})
	if err := collectParams(v, seen); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func collectParams(v ir.IRValue, seen map[string]struct{}) error {
	switch val := v.(type) {
	case ir.IRString:
		segs, err := ParseTemplate(string(val))
		if err != nil {
			return err
		}
		for _, s := range segs {
			if s.Param != "" {
				seen[s.Param] = struct{}{}
			}
		}
	case ir.IRArray:
		for _, e := range val {
			if err := collectParams(e, seen); err != nil {
				return err
			}
		}
	case ir.IRObject:
		for _, k := range val.SortedKeys() {
			if err := collectParams(val[k], seen); err != nil {
				return err
			}
		}
	}
	return nil
}
