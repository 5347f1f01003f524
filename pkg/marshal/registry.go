// Package marshal provides the type dispatch table that maps a
// (value type, wire type) pair to the marshaller converting between them.
//
// The table has two levels: value type -> wire type -> marshaller. Value types
// that were never registered are resolved through the Hierarchy (enum capability
// interfaces, then parent chain) and the outcome is cached, including misses,
// so repeated lookups are a single sync.Map load.
package marshal

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

var (
	// ErrNoMarshaller is returned when no marshaller is registered for a value type.
	ErrNoMarshaller = errors.New("marshal: no marshaller found")
	// ErrAmbiguous is returned when several marshallers match and none is preferred.
	ErrAmbiguous = errors.New("marshal: ambiguous marshaller, specify a wire type")
	// ErrNotMarshaller is returned when a type does not implement core.Marshaller.
	ErrNotMarshaller = errors.New("marshal: type does not implement core.Marshaller")
)

var paramMapType = reflect.TypeFor[core.ParamMap]()

// Capabilities is the declarative registration metadata of a marshaller.
type Capabilities struct {
	// Types are the value types handled
	Types []reflect.Type
	// Wires are the wire types handled; empty means the wildcard slot only
	Wires []core.WireType
	// IncludeAnyWire also registers the wildcard wire slot when Wires is set
	IncludeAnyWire bool
}

// Describer is implemented by marshallers that declare their capabilities.
type Describer interface {
	Capabilities() Capabilities
}

// Specializer is implemented by marshallers constructed generically and then
// bound to one concrete value type (enum marshallers in particular).
type Specializer interface {
	Specialize(t reflect.Type, h *Hierarchy) (core.Marshaller, error)
}

// subTable is an immutable wire type -> marshaller map. Registration publishes
// a fresh copy so readers never observe a partially written table.
type subTable struct {
	entries map[core.WireType]core.Marshaller
}

// noMapping caches a negative hierarchy walk.
var noMapping = &subTable{}

func (s *subTable) with(w core.WireType, m core.Marshaller) *subTable {
	next := &subTable{entries: make(map[core.WireType]core.Marshaller, len(s.entries)+1)}
	for k, v := range s.entries {
		next.entries[k] = v
	}
	next.entries[w] = m
	return next
}

// Registry is the type dispatch table. Lookups are safe for concurrent use;
// registrations are serialized.
type Registry struct {
	hierarchy *Hierarchy

	// mu serializes registration; lookups do not take it.
	mu sync.Mutex
	// byType maps reflect.Type to *subTable (noMapping for cached misses).
	byType sync.Map
	// anyType is the last-resort wildcard value type slot.
	anyType *subTable
	// byWire maps wire types to marshallers for wire-only lookups.
	byWire map[core.WireType]core.Marshaller
	// all maps a marshaller's concrete type to its registered instance.
	all map[reflect.Type]core.Marshaller

	defaultEnum reflect.Type
}

// NewRegistry creates a registry populated with the built-in marshallers.
func NewRegistry(h *Hierarchy) *Registry {
	if h == nil {
		h = NewHierarchy()
	}
	r := &Registry{
		hierarchy:   h,
		anyType:     &subTable{},
		byWire:      make(map[core.WireType]core.Marshaller),
		all:         make(map[reflect.Type]core.Marshaller),
		defaultEnum: reflect.TypeFor[*EnumMarshaller](),
	}
	registerBuiltins(r)
	return r
}

// Hierarchy returns the type relation used for fallback lookups.
func (r *Registry) Hierarchy() *Hierarchy {
	return r.hierarchy
}

// SetDefaultEnumMarshaller sets the marshaller type used for enums that have no
// registered capability interface. It must implement Specializer.
func (r *Registry) SetDefaultEnumMarshaller(mt reflect.Type) error {
	if mt == nil {
		return ErrNilType
	}
	if _, err := Instantiate(nil, mt, r.hierarchy); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultEnum = mt
	return nil
}

// Register infers the value types and wire types of m from its Capabilities.
// Without declared value types m lands in the wildcard value type slot.
func (r *Registry) Register(m core.Marshaller) {
	caps := capabilitiesOf(m)
	if len(caps.Types) == 0 {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, w := range wireSlots(caps) {
			r.anyType = r.anyType.with(w, m)
		}
		r.all[reflect.TypeOf(m)] = m
		return
	}
	for _, t := range caps.Types {
		r.RegisterType(t, m)
	}
}

// RegisterType registers m for t under the wire types m declares
// (or the wildcard wire slot when it declares none).
func (r *Registry) RegisterType(t reflect.Type, m core.Marshaller) {
	for _, w := range wireSlots(capabilitiesOf(m)) {
		r.RegisterTypeWire(t, w, m)
	}
}

// RegisterTypeWire registers m for the exact (t, w) pair. The last registration wins.
func (r *Registry) RegisterTypeWire(t reflect.Type, w core.WireType, m core.Marshaller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeLocked(t, w, m)
}

// RegisterWire registers m for wire-only lookups.
func (r *Registry) RegisterWire(w core.WireType, m core.Marshaller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byWire[w] = m
	r.all[reflect.TypeOf(m)] = m
}

func (r *Registry) storeLocked(t reflect.Type, w core.WireType, m core.Marshaller) {
	if t == nil {
		r.anyType = r.anyType.with(w, m)
	} else {
		current := &subTable{}
		if v, ok := r.byType.Load(t); ok && v.(*subTable) != noMapping {
			current = v.(*subTable)
		}
		r.byType.Store(t, current.with(w, m))
	}
	r.all[reflect.TypeOf(m)] = m
}

// Resolve returns the marshaller for (t, w). A nil t consults only the wildcard slot.
func (r *Registry) Resolve(t reflect.Type, w core.WireType) (core.Marshaller, error) {
	if t == paramMapType {
		return nil, fmt.Errorf("%w for %s", ErrNoMarshaller, t)
	}
	st := r.subTableFor(t)
	if st == nil {
		st = r.wildcard()
		if len(st.entries) == 0 {
			return nil, fmt.Errorf("%w for %s", ErrNoMarshaller, typeName(t))
		}
	}
	if m, ok := st.entries[w]; ok {
		return m, nil
	}
	if m, ok := st.entries[core.WireAny]; ok {
		return m, nil
	}
	if m := pickSole(st); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s with wire type %s", ErrAmbiguous, typeName(t), w)
}

// Has reports whether Resolve(t, w) would succeed.
func (r *Registry) Has(t reflect.Type, w core.WireType) bool {
	_, err := r.Resolve(t, w)
	return err == nil
}

// ForWire returns the marshaller registered for a wire type alone.
func (r *Registry) ForWire(w core.WireType) (core.Marshaller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byWire[w]
	return m, ok
}

// ByMarshallerType returns the registered instance of a marshaller type.
func (r *Registry) ByMarshallerType(mt reflect.Type) (core.Marshaller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.all[mt]
	return m, ok
}

// Marshallers returns every registered marshaller instance, one per concrete type,
// sorted by type name.
func (r *Registry) Marshallers() []core.Marshaller {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Marshaller, 0, len(r.all))
	for _, m := range r.all {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return reflect.TypeOf(out[i]).String() < reflect.TypeOf(out[j]).String()
	})
	return out
}

// Instance builds a marshaller of type mt for value type t, specialized when mt
// supports it, using this registry's hierarchy.
func (r *Registry) Instance(t, mt reflect.Type) (core.Marshaller, error) {
	return Instantiate(t, mt, r.hierarchy)
}

func (r *Registry) wildcard() *subTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.anyType
}

// subTableFor returns the sub-table for t, walking the hierarchy on first use.
// Returns nil when t has no mapping.
func (r *Registry) subTableFor(t reflect.Type) *subTable {
	if t == nil {
		return nil
	}
	if v, ok := r.byType.Load(t); ok {
		return nonEmpty(v.(*subTable))
	}

	var found *subTable
	if r.hierarchy.IsEnum(t) {
		found = r.subTableForEnumInterfaces(t)
		if found == nil {
			return nonEmpty(r.registerDefaultEnum(t))
		}
	} else {
		found = r.subTableForParents(t)
	}
	if found == nil {
		found = noMapping
	}
	actual, _ := r.byType.LoadOrStore(t, found)
	return nonEmpty(actual.(*subTable))
}

// subTableForEnumInterfaces walks the enum's capability interfaces breadth-first
// and specializes every marshaller of the first hit for the enum type.
func (r *Registry) subTableForEnumInterfaces(enum reflect.Type) *subTable {
	seen := map[reflect.Type]bool{}
	queue := r.hierarchy.Interfaces(enum)
	for len(queue) > 0 {
		iface := queue[0]
		queue = queue[1:]
		if seen[iface] {
			continue
		}
		seen[iface] = true

		if v, ok := r.byType.Load(iface); ok && v.(*subTable) != noMapping {
			src := v.(*subTable)
			dst := &subTable{entries: make(map[core.WireType]core.Marshaller, len(src.entries))}
			for w, m := range src.entries {
				if specialized, ok := r.specialize(enum, m); ok {
					dst.entries[w] = specialized
				}
			}
			if len(dst.entries) == 0 {
				return noMapping
			}
			return dst
		}
		queue = append(queue, r.hierarchy.Interfaces(iface)...)
	}
	return nil
}

// specialize adapts m to t. A marshaller that cannot be specialized for t is
// left out rather than used at the interface level.
func (r *Registry) specialize(t reflect.Type, m core.Marshaller) (core.Marshaller, bool) {
	s, ok := m.(Specializer)
	if !ok {
		return m, true
	}
	specialized, err := s.Specialize(t, r.hierarchy)
	if err != nil {
		return nil, false
	}
	return specialized, true
}

// subTableForParents returns the first registered sub-table along t's parent chain.
func (r *Registry) subTableForParents(t reflect.Type) *subTable {
	p := r.hierarchy.Parent(t)
	for depth := 0; p != nil && depth < maxHierarchyDepth; depth++ {
		if v, ok := r.byType.Load(p); ok && v.(*subTable) != noMapping {
			return v.(*subTable)
		}
		p = r.hierarchy.Parent(p)
	}
	return nil
}

// registerDefaultEnum registers the default enum marshaller for t unless
// another goroutine did so first, and returns t's sub-table.
func (r *Registry) registerDefaultEnum(t reflect.Type) *subTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byType.Load(t); ok {
		return v.(*subTable)
	}
	m, err := Instantiate(t, r.defaultEnum, r.hierarchy)
	if err != nil {
		r.byType.Store(t, noMapping)
		return noMapping
	}
	for _, w := range wireSlots(capabilitiesOf(m)) {
		r.storeLocked(t, w, m)
	}
	v, _ := r.byType.Load(t)
	return v.(*subTable)
}

func nonEmpty(s *subTable) *subTable {
	if s == noMapping || s == nil {
		return nil
	}
	return s
}

// pickSole returns the marshaller when every entry shares one implementation.
func pickSole(st *subTable) core.Marshaller {
	var sole core.Marshaller
	for _, m := range st.entries {
		if sole == nil {
			sole = m
		} else if reflect.TypeOf(m) != reflect.TypeOf(sole) {
			return nil
		}
	}
	return sole
}

func capabilitiesOf(m core.Marshaller) Capabilities {
	if d, ok := m.(Describer); ok {
		return d.Capabilities()
	}
	return Capabilities{}
}

func wireSlots(caps Capabilities) []core.WireType {
	if len(caps.Wires) == 0 {
		return []core.WireType{core.WireAny}
	}
	slots := append([]core.WireType(nil), caps.Wires...)
	if caps.IncludeAnyWire {
		slots = append(slots, core.WireAny)
	}
	return slots
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<any>"
	}
	return t.String()
}

// Instantiate constructs a marshaller of type mt. When t is non-nil and the
// marshaller implements Specializer it is bound to t.
func Instantiate(t, mt reflect.Type, h *Hierarchy) (core.Marshaller, error) {
	if mt == nil {
		return nil, ErrNilType
	}
	var m core.Marshaller
	if mt.Kind() == reflect.Pointer {
		m, _ = reflect.New(mt.Elem()).Interface().(core.Marshaller)
	} else {
		m, _ = reflect.New(mt).Elem().Interface().(core.Marshaller)
		if m == nil {
			m, _ = reflect.New(mt).Interface().(core.Marshaller)
		}
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotMarshaller, mt)
	}
	if t != nil {
		if s, ok := m.(Specializer); ok {
			return s.Specialize(t, h)
		}
	}
	return m, nil
}
