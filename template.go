package sestemplates

import (
	"regexp"
)

// placeholderPattern matches a replacement tag such as {{name}} or {{ user.id }}.
// The identifier is captured without the braces and surrounding whitespace.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// PlaceholderSet is an insertion-ordered set of placeholder names.
// The zero value is ready to use.
type PlaceholderSet struct {
	index map[string]struct{}
	order []string
}

// NewPlaceholderSet returns a set seeded with names, keeping first occurrences.
func NewPlaceholderSet(names ...string) *PlaceholderSet {
	s := &PlaceholderSet{}
	for _, name := range names {
		s.Add(name)
	}
	return s
}

// Add inserts name unless it is already present. It reports whether the set changed.
func (s *PlaceholderSet) Add(name string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[name]; ok {
		return false
	}
	s.index[name] = struct{}{}
	s.order = append(s.order, name)
	return true
}

// Contains reports whether name is in the set.
func (s *PlaceholderSet) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Len returns the number of distinct names.
func (s *PlaceholderSet) Len() int {
	return len(s.order)
}

// Values returns the names in first-occurrence order. The result is never nil.
func (s *PlaceholderSet) Values() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Scan adds every placeholder found in body, in encounter order.
func (s *PlaceholderSet) Scan(body string) {
	if body == "" {
		return
	}
	for _, match := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		s.Add(match[1])
	}
}

// ExtractPlaceholders returns the distinct placeholder names found in the
// given bodies, scanned in argument order (subject, text, html).
// Empty bodies contribute nothing.
func ExtractPlaceholders(bodies ...string) []string {
	var set PlaceholderSet
	for _, body := range bodies {
		set.Scan(body)
	}
	return set.Values()
}

// TemplateFields returns the placeholder names of a template's subject,
// text and HTML parts. A nil template yields an empty result.
func TemplateFields(tmpl *Template) []string {
	if tmpl == nil {
		return []string{}
	}
	return ExtractPlaceholders(tmpl.Subject, tmpl.TextBody, tmpl.HTMLBody)
}
