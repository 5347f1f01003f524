package builder

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
	"github.com/leapstack-labs/leapmap/pkg/marshal"
)

// missingError reports a reference that is not declared yet.
type missingError struct {
	ref  string
	what string
}

func (e *missingError) Error() string {
	return fmt.Sprintf("%s: %s %q not found", mapping.ErrIncomplete, e.what, e.ref)
}

func (e *missingError) Unwrap() error { return mapping.ErrIncomplete }

// referenceOf returns the missing reference carried by err, if any.
func referenceOf(err error) string {
	var m *missingError
	if errors.As(err, &m) {
		return m.ref
	}
	return ""
}

// assistant carries the state of the mapper being built: its namespace and
// resource, and helpers that qualify ids and resolve names.
type assistant struct {
	cfg       *mapping.Configuration
	namespace string
	resource  string
	// cacheRef is the namespace named by this mapper's cache-ref
	cacheRef string
}

func newAssistant(cfg *mapping.Configuration, resource string) *assistant {
	return &assistant{cfg: cfg, resource: resource}
}

func (a *assistant) setNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("builder: mapper's namespace cannot be empty")
	}
	if a.namespace != "" && a.namespace != ns {
		return fmt.Errorf("builder: wrong namespace, expected %q but found %q", a.namespace, ns)
	}
	a.namespace = ns
	return nil
}

// applyNamespace qualifies base with the current namespace. References that
// already contain a dot are taken as qualified; declared ids may not contain
// dots unless they start with the namespace.
func (a *assistant) applyNamespace(base string, isReference bool) (string, error) {
	if base == "" {
		return "", nil
	}
	if isReference {
		if strings.Contains(base, ".") {
			return base, nil
		}
	} else {
		if strings.HasPrefix(base, a.namespace+".") {
			return base, nil
		}
		if strings.Contains(base, ".") {
			return "", fmt.Errorf("builder: dots are not allowed in element names, please remove it from %s", base)
		}
	}
	return a.namespace + "." + base, nil
}

// attr reads an attribute with variables substituted.
func (a *assistant) attr(f *core.Fragment, name string) string {
	v, _ := f.Attr(name)
	return Substitute(v, a.cfg.Variables)
}

// qualifiedRefs splits a comma separated reference list and qualifies each.
func (a *assistant) qualifiedRefs(list string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := a.applyNamespace(part, true)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (a *assistant) resolveType(name string) (reflect.Type, error) {
	return a.cfg.ResolveType(name)
}

// marshaller instantiates the marshaller type named by alias for valueType,
// reusing the registered instance when it is not specialized.
func (a *assistant) marshaller(alias string, valueType reflect.Type) (core.Marshaller, error) {
	mt, err := a.resolveType(alias)
	if err != nil || mt == nil {
		return nil, err
	}
	if m, ok := a.cfg.Marshallers().ByMarshallerType(mt); ok && !isSpecializable(mt) {
		return m, nil
	}
	return a.cfg.Marshallers().Instance(valueType, mt)
}

func isSpecializable(mt reflect.Type) bool {
	specializer := reflect.TypeFor[marshal.Specializer]()
	return mt.Implements(specializer) || reflect.PointerTo(mt).Implements(specializer)
}

func parseWire(name string) (core.WireType, error) {
	if name == "" {
		return core.WireAny, nil
	}
	w, ok := core.ParseWireType(name)
	if !ok {
		return core.WireAny, fmt.Errorf("builder: unknown wire type %q", name)
	}
	return w, nil
}
