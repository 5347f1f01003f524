// Package reflection provides the default core.PropertyAccessor, built on
// package reflect with per-type field tables memoized in a sync.Map.
//
// Properties are exported struct fields, matched by name, by `map:"..."` tag or
// case-insensitively, and string-keyed map entries. Dotted paths ("Address.City")
// walk nested values.
package reflection

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

var (
	// ErrNoProperty is returned when a type has no such property.
	ErrNoProperty = errors.New("reflection: no such property")
	// ErrNotAddressable is returned when SetValue is given a non-pointer struct.
	ErrNotAddressable = errors.New("reflection: instance is not addressable")
)

// Accessor is the reflection-based core.PropertyAccessor. The zero value is ready to use.
type Accessor struct {
	// tables caches *fieldTable by reflect.Type (always a struct type)
	tables sync.Map
}

var _ core.PropertyAccessor = (*Accessor)(nil)

// fieldTable indexes the settable fields of a struct type.
type fieldTable struct {
	exact map[string][]int
	fold  map[string][]int
	types map[string]reflect.Type
}

func (a *Accessor) table(t reflect.Type) *fieldTable {
	if v, ok := a.tables.Load(t); ok {
		return v.(*fieldTable)
	}
	ft := &fieldTable{
		exact: make(map[string][]int),
		fold:  make(map[string][]int),
		types: make(map[string]reflect.Type),
	}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		names := []string{f.Name}
		if tag := f.Tag.Get("map"); tag != "" && tag != "-" {
			names = append(names, tag)
		}
		for _, n := range names {
			if _, dup := ft.exact[n]; !dup {
				ft.exact[n] = f.Index
				ft.types[n] = f.Type
			}
			if _, dup := ft.fold[strings.ToLower(n)]; !dup {
				ft.fold[strings.ToLower(n)] = f.Index
			}
		}
	}
	actual, _ := a.tables.LoadOrStore(t, ft)
	return actual.(*fieldTable)
}

func (ft *fieldTable) lookup(t reflect.Type, name string) (reflect.StructField, bool) {
	idx, ok := ft.exact[name]
	if !ok {
		idx, ok = ft.fold[strings.ToLower(name)]
	}
	if !ok {
		return reflect.StructField{}, false
	}
	return t.FieldByIndex(idx), true
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func isStringMap(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String
}

// propertyType resolves one path segment on t.
func (a *Accessor) propertyType(t reflect.Type, name string) (reflect.Type, error) {
	t = indirectType(t)
	switch {
	case t == nil:
		return nil, fmt.Errorf("%w %q on nil type", ErrNoProperty, name)
	case isStringMap(t):
		return t.Elem(), nil
	case t.Kind() == reflect.Struct:
		f, ok := a.table(t).lookup(t, name)
		if !ok {
			return nil, fmt.Errorf("%w %q on %s", ErrNoProperty, name, t)
		}
		return f.Type, nil
	default:
		return nil, fmt.Errorf("%w %q on %s", ErrNoProperty, name, t)
	}
}

// PropertyType implements core.PropertyAccessor.
func (a *Accessor) PropertyType(t reflect.Type, name string) (reflect.Type, error) {
	for _, part := range strings.Split(name, ".") {
		next, err := a.propertyType(t, part)
		if err != nil {
			return nil, err
		}
		t = next
	}
	return t, nil
}

// HasWritableProperty implements core.PropertyAccessor.
func (a *Accessor) HasWritableProperty(t reflect.Type, name string) bool {
	_, err := a.PropertyType(t, name)
	return err == nil
}

// GetValue implements core.PropertyAccessor.
func (a *Accessor) GetValue(instance any, name string) (any, error) {
	v := reflect.ValueOf(instance)
	for _, part := range strings.Split(name, ".") {
		next, err := a.field(v, part)
		if err != nil {
			return nil, err
		}
		v = next
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

func (a *Accessor) field(v reflect.Value, name string) (reflect.Value, error) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, nil
		}
		v = v.Elem()
	}
	switch {
	case !v.IsValid():
		return reflect.Value{}, nil
	case isStringMap(v.Type()):
		return v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key())), nil
	case v.Kind() == reflect.Struct:
		f, ok := a.table(v.Type()).lookup(v.Type(), name)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w %q on %s", ErrNoProperty, name, v.Type())
		}
		return v.FieldByIndexErr(f.Index)
	default:
		return reflect.Value{}, fmt.Errorf("%w %q on %s", ErrNoProperty, name, v.Type())
	}
}

// SetValue implements core.PropertyAccessor. Nil intermediate pointers and
// maps along a dotted path are allocated.
func (a *Accessor) SetValue(instance any, name string, value any) error {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer && v.Kind() != reflect.Map {
		return fmt.Errorf("%w: %T", ErrNotAddressable, instance)
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return fmt.Errorf("%w: nil %s", ErrNotAddressable, v.Type())
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		last := i == len(parts)-1
		switch {
		case isStringMap(v.Type()):
			if v.IsNil() {
				if !v.CanSet() {
					return fmt.Errorf("%w: nil %s", ErrNotAddressable, v.Type())
				}
				v.Set(reflect.MakeMap(v.Type()))
			}
			key := reflect.ValueOf(part).Convert(v.Type().Key())
			if !last {
				return fmt.Errorf("%w %q: cannot descend into map values", ErrNoProperty, name)
			}
			val, err := assignable(value, v.Type().Elem())
			if err != nil {
				return fmt.Errorf("property %s: %w", name, err)
			}
			v.SetMapIndex(key, val)
			return nil
		case v.Kind() == reflect.Struct:
			f, ok := a.table(v.Type()).lookup(v.Type(), part)
			if !ok {
				return fmt.Errorf("%w %q on %s", ErrNoProperty, part, v.Type())
			}
			fv, err := v.FieldByIndexErr(f.Index)
			if err != nil {
				return err
			}
			if !last {
				v = fv
				continue
			}
			if !fv.CanSet() {
				return fmt.Errorf("%w: %s.%s", ErrNotAddressable, v.Type(), f.Name)
			}
			val, err := assignable(value, fv.Type())
			if err != nil {
				return fmt.Errorf("property %s: %w", name, err)
			}
			fv.Set(val)
			return nil
		default:
			return fmt.Errorf("%w %q on %s", ErrNoProperty, part, v.Type())
		}
	}
	return nil
}

// assignable converts value to t where Go allows it.
func assignable(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(t):
		return v, nil
	case t.Kind() == reflect.Pointer && v.Type().AssignableTo(t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		return p, nil
	case v.Type().ConvertibleTo(t) && v.Kind() != reflect.String && t.Kind() != reflect.String:
		return v.Convert(t), nil
	case v.Kind() == reflect.String && t.Kind() == reflect.String:
		return v.Convert(t), nil
	default:
		return reflect.Value{}, fmt.Errorf("cannot assign %s to %s", v.Type(), t)
	}
}
