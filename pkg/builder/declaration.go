package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapmap/pkg/binding"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// Declaration attaches a statement (or just parameter names) to one method of
// an interface, in place of a mapper document entry.
type Declaration struct {
	// Method is the interface method name
	Method string
	// Kind is the statement kind; KindUnknown declares parameter names only
	Kind core.StatementKind
	// SQL is the statement text, with the same placeholders as mapper bodies
	SQL string
	// ResultMap names result maps (comma separated)
	ResultMap string
	// ResultType names the row type when no result map is given
	ResultType string
	// ParameterType names the parameter type
	ParameterType string
	// ParamNames names the arguments of a multi-argument call
	ParamNames []string
	// UseCache overrides the kind default when non-nil
	UseCache *bool
	// FlushCache overrides the kind default when non-nil
	FlushCache *bool
	// Timeout bounds execution
	Timeout string
}

func (d Declaration) fragment() *core.Fragment {
	attrs := map[string]string{
		"id":             d.Method,
		"result_map":     d.ResultMap,
		"result_type":    d.ResultType,
		"parameter_type": d.ParameterType,
		"timeout":        d.Timeout,
	}
	if d.UseCache != nil {
		attrs["use_cache"] = strconv.FormatBool(*d.UseCache)
	}
	if d.FlushCache != nil {
		attrs["flush_cache"] = strconv.FormatBool(*d.FlushCache)
	}
	f := core.NewFragment(d.Kind.String(), attrs)
	f.Body = d.SQL
	return f
}

// Declare records statement declarations for interface t. They are applied
// when t is bound.
func (b *Builder) Declare(t reflect.Type, decls ...Declaration) error {
	if t == nil || t.Kind() != reflect.Interface {
		return fmt.Errorf("builder: declarations need an interface type, got %v", t)
	}
	for _, d := range decls {
		if _, ok := t.MethodByName(d.Method); !ok {
			return fmt.Errorf("%w: %s.%s", binding.ErrUnknownMethod, binding.Namespace(t), d.Method)
		}
	}
	if err := b.cfg.Aliases().RegisterType(t); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declarations[t] = append(b.declarations[t], decls...)
	return nil
}

// Scan implements binding.Scanner. It loads the mapper document located for
// t unless its namespace is already loaded, then applies t's declarations.
func (b *Builder) Scan(t reflect.Type) ([]binding.MethodSpec, error) {
	ns := binding.Namespace(t)
	if !b.cfg.IsResourceLoaded("namespace:"+ns) && b.locate != nil {
		if resource := b.locate(t); resource != "" {
			err := b.LoadMapper(context.Background(), resource)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	b.mu.Lock()
	decls := append([]Declaration(nil), b.declarations[t]...)
	b.mu.Unlock()

	a := newAssistant(b.cfg, "interface:"+ns)
	a.namespace = ns
	if ref, ok := b.cfg.DeclaredCacheRef(ns); ok {
		a.cacheRef = ref
	}

	var specs []binding.MethodSpec
	for _, d := range decls {
		specs = append(specs, binding.MethodSpec{Name: d.Method, ParamNames: d.ParamNames})
		if d.Kind == core.KindUnknown || strings.TrimSpace(d.SQL) == "" {
			continue
		}
		if _, ok := b.cfg.Statement(ns + "." + d.Method); ok {
			continue
		}
		if err := b.addStatement(a, d.fragment()); err != nil {
			return nil, err
		}
	}
	if err := b.pass(); err != nil {
		return nil, err
	}
	return specs, nil
}
