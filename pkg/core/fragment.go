package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Fragment is one node of an already-tokenized mapping document.
// Parsers produce fragments; the builders only ever read them.
type Fragment struct {
	// Name is the element name (e.g. "mapper", "result-map", "select")
	Name string
	// Attrs holds string-valued attributes, never pre-typed
	Attrs map[string]string
	// Children are nested fragments in document order
	Children []*Fragment
	// Body is the element text (statement SQL, sql fragment text)
	Body string
	// Line is the 1-based source line, zero when unknown
	Line int
}

// NewFragment creates a fragment with the given name and attributes.
func NewFragment(name string, attrs map[string]string, children ...*Fragment) *Fragment {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &Fragment{Name: name, Attrs: attrs, Children: children}
}

// Attr returns the attribute value and whether it was present and non-empty.
func (f *Fragment) Attr(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.Attrs[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// AttrOr returns the attribute value or def when absent.
func (f *Fragment) AttrOr(name, def string) string {
	if v, ok := f.Attr(name); ok {
		return v
	}
	return def
}

// BoolAttr parses a boolean attribute. Absent attributes yield def.
func (f *Fragment) BoolAttr(name string, def bool) (bool, error) {
	v, ok := f.Attr(name)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, &AttrError{Fragment: f.Name, Attr: name, Value: v, Err: err}
	}
	return b, nil
}

// IntAttr parses an integer attribute. Absent attributes yield def.
func (f *Fragment) IntAttr(name string, def int) (int, error) {
	v, ok := f.Attr(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, &AttrError{Fragment: f.Name, Attr: name, Value: v, Err: err}
	}
	return n, nil
}

// DurationAttr parses a duration attribute. Bare integers are milliseconds.
func (f *Fragment) DurationAttr(name string, def time.Duration) (time.Duration, error) {
	v, ok := f.Attr(name)
	if !ok {
		return def, nil
	}
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, &AttrError{Fragment: f.Name, Attr: name, Value: v, Err: err}
	}
	return d, nil
}

// Child returns the first child with the given name.
func (f *Fragment) Child(name string) *Fragment {
	if f == nil {
		return nil
	}
	for _, c := range f.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child whose name is one of names, in document order.
func (f *Fragment) ChildrenNamed(names ...string) []*Fragment {
	if f == nil {
		return nil
	}
	var out []*Fragment
	for _, c := range f.Children {
		for _, n := range names {
			if c.Name == n {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Properties returns the attributes of the "property" children merged with
// the attributes of a "properties" child, as a plain string map.
func (f *Fragment) Properties() map[string]string {
	props := make(map[string]string)
	if f == nil {
		return props
	}
	if p := f.Child("properties"); p != nil {
		for k, v := range p.Attrs {
			props[k] = v
		}
	}
	for _, c := range f.ChildrenNamed("property") {
		if name, ok := c.Attr("name"); ok {
			props[name] = c.Attrs["value"]
		}
	}
	return props
}

// ValueBasedIdentifier derives an identifier for anonymous fragments from
// their position in the tree, e.g. "result-map[user]_association[Address]".
func (f *Fragment) ValueBasedIdentifier() string {
	if f == nil {
		return ""
	}
	value := f.AttrOr("id", f.AttrOr("value", f.AttrOr("property", "")))
	id := f.Name
	if value != "" {
		id = fmt.Sprintf("%s[%s]", f.Name, value)
	}
	return id
}

// String renders the fragment header for error messages.
func (f *Fragment) String() string {
	if f == nil {
		return "<nil>"
	}
	keys := make([]string, 0, len(f.Attrs))
	for k := range f.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(f.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, f.Attrs[k])
	}
	b.WriteString(">")
	return b.String()
}

// AttrError reports an attribute that could not be parsed.
type AttrError struct {
	Fragment string
	Attr     string
	Value    string
	Err      error
}

func (e *AttrError) Error() string {
	return fmt.Sprintf("invalid value %q for attribute %q on <%s>: %v", e.Value, e.Attr, e.Fragment, e.Err)
}

func (e *AttrError) Unwrap() error {
	return e.Err
}
