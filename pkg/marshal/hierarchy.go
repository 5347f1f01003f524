package marshal

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrNilType is returned when a nil reflect.Type is provided.
	ErrNilType = errors.New("marshal: nil type")
	// ErrNotInterface is returned when a capability is not an interface type.
	ErrNotInterface = errors.New("marshal: capability is not an interface type")
	// ErrHierarchyCycle is returned when a parent declaration would form a cycle.
	ErrHierarchyCycle = errors.New("marshal: parent declaration forms a cycle")
)

// maxHierarchyDepth bounds parent chain walks.
const maxHierarchyDepth = 32

var emptyInterface = reflect.TypeFor[any]()

// Hierarchy is the statically known "extends/implements" relation used when a
// value type has no marshaller of its own. Go has no subclassing, so parents and
// enum capabilities are declared explicitly; pointer element types and the
// underlying basic type of named types are implied.
type Hierarchy struct {
	mu         sync.RWMutex
	parents    map[reflect.Type]reflect.Type
	interfaces map[reflect.Type][]reflect.Type
	enums      map[reflect.Type][]any
}

// NewHierarchy creates an empty hierarchy.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		parents:    make(map[reflect.Type]reflect.Type),
		interfaces: make(map[reflect.Type][]reflect.Type),
		enums:      make(map[reflect.Type][]any),
	}
}

// DeclareParent records that child derives from parent.
func (h *Hierarchy) DeclareParent(child, parent reflect.Type) error {
	if child == nil || parent == nil {
		return ErrNilType
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for p, depth := parent, 0; p != nil && depth < maxHierarchyDepth; depth++ {
		if p == child {
			return fmt.Errorf("%w: %s -> %s", ErrHierarchyCycle, child, parent)
		}
		p = h.parents[p]
	}
	h.parents[child] = parent
	return nil
}

// DeclareInterfaces records capability interfaces of t, in declaration order.
// t may itself be an interface (to express interface inheritance).
func (h *Hierarchy) DeclareInterfaces(t reflect.Type, ifaces ...reflect.Type) error {
	if t == nil {
		return ErrNilType
	}
	for _, iface := range ifaces {
		if iface == nil {
			return ErrNilType
		}
		if iface.Kind() != reflect.Interface {
			return fmt.Errorf("%w: %s", ErrNotInterface, iface)
		}
		if !t.Implements(iface) {
			return fmt.Errorf("marshal: %s does not implement %s", t, iface)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interfaces[t] = append(h.interfaces[t], ifaces...)
	return nil
}

// DeclareEnum marks t as an enumerated type with the given values (in ordinal
// order) and optional capability interfaces.
func (h *Hierarchy) DeclareEnum(t reflect.Type, values []any, ifaces ...reflect.Type) error {
	if t == nil {
		return ErrNilType
	}
	for i, v := range values {
		if reflect.TypeOf(v) != t {
			return fmt.Errorf("marshal: enum value %d of %s has type %T", i, t, v)
		}
	}
	if err := h.DeclareInterfaces(t, ifaces...); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enums[t] = append([]any(nil), values...)
	return nil
}

// IsEnum reports whether t was declared as an enumerated type.
func (h *Hierarchy) IsEnum(t reflect.Type) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.enums[t]
	return ok
}

// EnumValues returns the declared values of an enumerated type.
func (h *Hierarchy) EnumValues(t reflect.Type) []any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]any(nil), h.enums[t]...)
}

// Interfaces returns the directly declared capability interfaces of t.
func (h *Hierarchy) Interfaces(t reflect.Type) []reflect.Type {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]reflect.Type(nil), h.interfaces[t]...)
}

// Parent returns the next type in t's parent chain, or nil.
// Order: declared parent, pointer element, underlying basic type of a named type.
// The empty interface is never a parent.
func (h *Hierarchy) Parent(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	h.mu.RLock()
	p, ok := h.parents[t]
	h.mu.RUnlock()
	if !ok {
		p = impliedParent(t)
	}
	if p == emptyInterface {
		return nil
	}
	return p
}

// impliedParent returns the parent Go's type system implies for t.
func impliedParent(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return nil
	}
	if b := basicType(t.Kind()); b != nil && b != t {
		return b
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return bytesType
	}
	return nil
}

var bytesType = reflect.TypeFor[[]byte]()

// basicType returns the unnamed predeclared type of a basic kind.
func basicType(k reflect.Kind) reflect.Type {
	switch k {
	case reflect.Bool:
		return reflect.TypeFor[bool]()
	case reflect.Int:
		return reflect.TypeFor[int]()
	case reflect.Int8:
		return reflect.TypeFor[int8]()
	case reflect.Int16:
		return reflect.TypeFor[int16]()
	case reflect.Int32:
		return reflect.TypeFor[int32]()
	case reflect.Int64:
		return reflect.TypeFor[int64]()
	case reflect.Uint:
		return reflect.TypeFor[uint]()
	case reflect.Uint8:
		return reflect.TypeFor[uint8]()
	case reflect.Uint16:
		return reflect.TypeFor[uint16]()
	case reflect.Uint32:
		return reflect.TypeFor[uint32]()
	case reflect.Uint64:
		return reflect.TypeFor[uint64]()
	case reflect.Float32:
		return reflect.TypeFor[float32]()
	case reflect.Float64:
		return reflect.TypeFor[float64]()
	case reflect.String:
		return reflect.TypeFor[string]()
	default:
		return nil
	}
}
