package builder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// ============================================================================
// Result maps
// ============================================================================

type resultMapResolver struct {
	a       *assistant
	frag    *core.Fragment
	id      string
	extends string
	missing string
}

func (r *resultMapResolver) Resolve() error {
	maps, err := r.a.buildResultMap(r.frag, r.id, nil, nil)
	if err != nil {
		r.missing = referenceOf(err)
		return err
	}
	for _, rm := range maps {
		if err := r.a.cfg.AddResultMap(rm); err != nil {
			return err
		}
	}
	return nil
}

func (r *resultMapResolver) Describe() mapping.Straggler {
	ref := r.missing
	if ref == "" {
		ref = r.extends
	}
	return mapping.Straggler{ID: r.id, Namespace: r.a.namespace, Resource: r.a.resource, Reference: ref}
}

// buildResultMap builds the result map declared by f and every inline result
// map nested in it. The outer map comes last. Nothing is registered.
func (a *assistant) buildResultMap(f *core.Fragment, id string, enclosing reflect.Type, additional []core.ResultMapping) ([]*core.ResultMap, error) {
	typ := enclosing
	if name := a.typeAttr(f); name != "" {
		t, err := a.resolveType(name)
		if err != nil {
			return nil, err
		}
		typ = t
	}

	var autoMapping *bool
	if _, ok := f.Attr("auto_mapping"); ok {
		v, err := f.BoolAttr("auto_mapping", false)
		if err != nil {
			return nil, err
		}
		autoMapping = &v
	}

	var (
		nested   []*core.ResultMap
		mappings []core.ResultMapping
		disc     *core.Discriminator
		discFrag *core.Fragment
	)
	for _, child := range f.Children {
		switch child.Name {
		case "id", "result", "association", "collection":
			m, inner, err := a.buildMapping(child, id, typ)
			if err != nil {
				return nil, err
			}
			mappings = append(mappings, m)
			nested = append(nested, inner...)
		case "discriminator":
			discFrag = child
		}
	}

	declared := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		declared[m.Property] = struct{}{}
	}

	if discFrag != nil {
		d, inner, err := a.buildDiscriminator(discFrag, id, typ, mappings)
		if err != nil {
			return nil, err
		}
		disc = d
		nested = append(nested, inner...)
	}

	for _, m := range additional {
		if _, ok := declared[m.Property]; !ok {
			mappings = append(mappings, m)
		}
	}

	extends, err := a.applyNamespace(a.attr(f, "extends"), true)
	if err != nil {
		return nil, err
	}
	if extends != "" {
		if extends == id {
			return nil, fmt.Errorf("builder: result map %q extends itself", id)
		}
		parent, ok := a.cfg.ResultMap(extends)
		if !ok {
			return nil, &missingError{ref: extends, what: "result map"}
		}
		for _, m := range parent.Mappings {
			if _, ok := declared[m.Property]; !ok || m.Property == "" {
				mappings = append(mappings, m)
			}
		}
		if typ == nil {
			typ = parent.Type
		}
	}

	rm := core.NewResultMap(id, typ, mappings, disc, autoMapping)
	rm.Extends = extends
	return append(nested, rm), nil
}

func (a *assistant) typeAttr(f *core.Fragment) string {
	for _, name := range []string{"type", "of_type", "result_type"} {
		if v := a.attr(f, name); v != "" {
			return v
		}
	}
	return ""
}

func (a *assistant) buildMapping(f *core.Fragment, ownerID string, owner reflect.Type) (core.ResultMapping, []*core.ResultMap, error) {
	m := core.ResultMapping{
		Property:     a.attr(f, "property"),
		Column:       a.attr(f, "column"),
		ColumnPrefix: a.attr(f, "column_prefix"),
		Lazy:         strings.EqualFold(a.attr(f, "fetch_type"), "lazy"),
	}
	if f.Name == "id" {
		m.Flags |= core.FlagID
	}
	if v := a.attr(f, "not_null_column"); v != "" {
		for _, col := range strings.Split(v, ",") {
			if col = strings.TrimSpace(col); col != "" {
				m.NotNullColumns = append(m.NotNullColumns, col)
			}
		}
	}

	wire, err := parseWire(a.attr(f, "wire_type"))
	if err != nil {
		return m, nil, err
	}
	m.Wire = wire

	if name := a.attr(f, "value_type"); name != "" {
		if m.ValueType, err = a.resolveType(name); err != nil {
			return m, nil, err
		}
	} else if owner != nil && m.Property != "" {
		m.ValueType, _ = a.cfg.Accessor().PropertyType(owner, m.Property)
	}

	if m.NestedSelect, err = a.applyNamespace(a.attr(f, "select"), true); err != nil {
		return m, nil, err
	}
	if m.NestedResultMap, err = a.applyNamespace(a.attr(f, "result_map"), true); err != nil {
		return m, nil, err
	}

	var nested []*core.ResultMap
	if (f.Name == "association" || f.Name == "collection") && m.NestedSelect == "" && m.NestedResultMap == "" && len(f.Children) > 0 {
		nestedID := ownerID + "_" + f.ValueBasedIdentifier()
		nested, err = a.buildResultMap(f, nestedID, elementType(m.ValueType), nil)
		if err != nil {
			return m, nil, err
		}
		m.NestedResultMap = nestedID
	}

	if name := a.attr(f, "marshaller"); name != "" {
		if m.Marshaller, err = a.marshaller(name, m.ValueType); err != nil {
			return m, nil, err
		}
	}
	return m, nested, nil
}

func (a *assistant) buildDiscriminator(f *core.Fragment, ownerID string, owner reflect.Type, mappings []core.ResultMapping) (*core.Discriminator, []*core.ResultMap, error) {
	d := &core.Discriminator{Column: a.attr(f, "column"), Cases: make(map[string]string)}
	if d.Column == "" {
		return nil, nil, fmt.Errorf("builder: discriminator of %q has no column", ownerID)
	}
	var err error
	if d.Wire, err = parseWire(a.attr(f, "wire_type")); err != nil {
		return nil, nil, err
	}
	if d.ValueType, err = a.resolveType(a.attr(f, "value_type")); err != nil {
		return nil, nil, err
	}
	if name := a.attr(f, "marshaller"); name != "" {
		if d.Marshaller, err = a.marshaller(name, d.ValueType); err != nil {
			return nil, nil, err
		}
	}

	var nested []*core.ResultMap
	for _, c := range f.ChildrenNamed("case") {
		value := a.attr(c, "value")
		ref, err := a.applyNamespace(a.attr(c, "result_map"), true)
		if err != nil {
			return nil, nil, err
		}
		if ref == "" {
			ref = ownerID + "-" + c.ValueBasedIdentifier()
			inner, err := a.buildResultMap(c, ref, owner, mappings)
			if err != nil {
				return nil, nil, err
			}
			nested = append(nested, inner...)
		}
		d.Cases[value] = ref
	}
	return d, nested, nil
}

// elementType returns the type an inline nested result map produces for a
// property of type t: slice elements, dereferenced.
func elementType(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// ============================================================================
// Cache references
// ============================================================================

type cacheRefResolver struct {
	a      *assistant
	target string
}

func (r *cacheRefResolver) Resolve() error {
	_, err := r.a.cfg.UseCacheRef(r.a.namespace, r.target)
	return err
}

func (r *cacheRefResolver) Describe() mapping.Straggler {
	return mapping.Straggler{ID: r.a.namespace, Namespace: r.a.namespace, Resource: r.a.resource, Reference: r.target}
}

// ============================================================================
// Statements
// ============================================================================

type statementResolver struct {
	a       *assistant
	frag    *core.Fragment
	kind    core.StatementKind
	id      string
	missing string
}

func (r *statementResolver) Describe() mapping.Straggler {
	return mapping.Straggler{ID: r.id, Namespace: r.a.namespace, Resource: r.a.resource, Reference: r.missing}
}

func (r *statementResolver) Resolve() error {
	stmt, inline, err := r.build()
	if err != nil {
		r.missing = referenceOf(err)
		return err
	}
	if err := r.a.cfg.AddStatement(stmt); err != nil {
		return err
	}
	if inline != nil {
		if _, ok := r.a.cfg.ResultMap(inline.ID); !ok {
			return r.a.cfg.AddResultMap(inline)
		}
	}
	return nil
}

func (r *statementResolver) build() (*core.Statement, *core.ResultMap, error) {
	a, f := r.a, r.frag
	ref := a.cacheRef
	if ref == "" {
		ref, _ = a.cfg.DeclaredCacheRef(a.namespace)
	}
	if ref != "" {
		if _, ok := a.cfg.Cache(a.namespace); !ok {
			return nil, nil, &missingError{ref: ref, what: "cache-ref namespace"}
		}
	}

	stmt := &core.Statement{
		ID:        r.id,
		Namespace: a.namespace,
		Resource:  a.resource,
		Kind:      r.kind,
	}
	isSelect := r.kind == core.KindSelect

	var err error
	if stmt.ParameterType, err = a.resolveType(a.attr(f, "parameter_type")); err != nil {
		return nil, nil, err
	}

	refs, err := a.qualifiedRefs(a.attr(f, "result_map"))
	if err != nil {
		return nil, nil, err
	}
	for _, ref := range refs {
		rm, ok := a.cfg.ResultMap(ref)
		if !ok {
			return nil, nil, &missingError{ref: ref, what: "result map"}
		}
		stmt.ResultMaps = append(stmt.ResultMaps, rm)
	}

	var inline *core.ResultMap
	if name := a.attr(f, "result_type"); name != "" && len(refs) == 0 {
		t, err := a.resolveType(name)
		if err != nil {
			return nil, nil, err
		}
		inline = core.NewResultMap(r.id+"-Inline", t, nil, nil, nil)
		stmt.ResultMaps = append(stmt.ResultMaps, inline)
	}

	if stmt.SQL, err = a.parseSQL(f.Body, stmt.ParameterType); err != nil {
		return nil, nil, err
	}

	if stmt.UseCache, err = f.BoolAttr("use_cache", isSelect); err != nil {
		return nil, nil, err
	}
	if stmt.FlushCache, err = f.BoolAttr("flush_cache", !isSelect); err != nil {
		return nil, nil, err
	}
	if stmt.Timeout, err = f.DurationAttr("timeout", 0); err != nil {
		return nil, nil, err
	}
	if stmt.FetchSize, err = f.IntAttr("fetch_size", 0); err != nil {
		return nil, nil, err
	}
	if stmt.UseGeneratedKeys, err = f.BoolAttr("use_generated_keys", r.kind == core.KindInsert && a.attr(f, "key_property") != ""); err != nil {
		return nil, nil, err
	}
	for _, p := range strings.Split(a.attr(f, "key_property"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			stmt.KeyProperties = append(stmt.KeyProperties, p)
		}
	}

	if a.cfg.Settings.CacheEnabled {
		if c, ok := a.cfg.Cache(a.namespace); ok {
			stmt.Cache = c
		}
	}
	return stmt, inline, nil
}
