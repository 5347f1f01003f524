package mapping

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

var (
	// ErrUnknownType is returned when a type name has no alias.
	ErrUnknownType = errors.New("mapping: unknown type alias")
	// ErrAliasConflict is returned when an alias is already bound to another type.
	ErrAliasConflict = errors.New("mapping: alias is already mapped to a different type")
)

// TypeAliases resolves textual type names to reflect.Type. Names are
// case-insensitive. "*name" and "[]name" resolve to pointer and slice types.
type TypeAliases struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
}

// NewTypeAliases creates an alias table holding the built-in names.
func NewTypeAliases() *TypeAliases {
	a := &TypeAliases{byName: make(map[string]reflect.Type)}
	builtins := map[string]reflect.Type{
		"string":    reflect.TypeFor[string](),
		"bool":      reflect.TypeFor[bool](),
		"boolean":   reflect.TypeFor[bool](),
		"int":       reflect.TypeFor[int](),
		"int8":      reflect.TypeFor[int8](),
		"int16":     reflect.TypeFor[int16](),
		"int32":     reflect.TypeFor[int32](),
		"int64":     reflect.TypeFor[int64](),
		"long":      reflect.TypeFor[int64](),
		"uint":      reflect.TypeFor[uint](),
		"uint8":     reflect.TypeFor[uint8](),
		"uint16":    reflect.TypeFor[uint16](),
		"uint32":    reflect.TypeFor[uint32](),
		"uint64":    reflect.TypeFor[uint64](),
		"byte":      reflect.TypeFor[byte](),
		"float32":   reflect.TypeFor[float32](),
		"float64":   reflect.TypeFor[float64](),
		"double":    reflect.TypeFor[float64](),
		"bytes":     reflect.TypeFor[[]byte](),
		"time":      reflect.TypeFor[time.Time](),
		"date":      reflect.TypeFor[time.Time](),
		"duration":  reflect.TypeFor[time.Duration](),
		"uuid":      reflect.TypeFor[uuid.UUID](),
		"bigint":    reflect.TypeFor[*big.Int](),
		"map":       reflect.TypeFor[map[string]any](),
		"hashmap":   reflect.TypeFor[map[string]any](),
		"any":       reflect.TypeFor[any](),
		"object":    reflect.TypeFor[any](),
		"param_map": reflect.TypeFor[core.ParamMap](),
	}
	for name, t := range builtins {
		a.byName[name] = t
	}
	return a
}

// Register binds alias to t. Re-registering the same pair is a no-op.
func (a *TypeAliases) Register(alias string, t reflect.Type) error {
	if alias == "" || t == nil {
		return fmt.Errorf("mapping: alias and type are required")
	}
	key := strings.ToLower(alias)
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.byName[key]; ok && existing != t {
		return fmt.Errorf("%w: %q is %s, not %s", ErrAliasConflict, alias, existing, t)
	}
	a.byName[key] = t
	return nil
}

// RegisterType binds t under its qualified name ("pkgpath.Name") and its
// package-qualified short name ("pkg.Name"). A short name already bound to
// another type is left alone.
func (a *TypeAliases) RegisterType(t reflect.Type) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("mapping: only named types can be registered, got %v", t)
	}
	if t.PkgPath() != "" {
		if err := a.Register(t.PkgPath()+"."+t.Name(), t); err != nil {
			return err
		}
	}
	if err := a.Register(t.String(), t); err != nil && !errors.Is(err, ErrAliasConflict) {
		return err
	}
	return nil
}

// Resolve returns the type named by name. An empty name resolves to nil.
func (a *TypeAliases) Resolve(name string) (reflect.Type, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	switch {
	case strings.HasPrefix(name, "*"):
		elem, err := a.Resolve(name[1:])
		if err != nil || elem == nil {
			return nil, err
		}
		return reflect.PointerTo(elem), nil
	case strings.HasPrefix(name, "[]"):
		elem, err := a.Resolve(name[2:])
		if err != nil || elem == nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	}
	a.mu.RLock()
	t, ok := a.byName[strings.ToLower(name)]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Aliases returns a copy of the alias table.
func (a *TypeAliases) Aliases() map[string]reflect.Type {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]reflect.Type, len(a.byName))
	for k, v := range a.byName {
		out[k] = v
	}
	return out
}

// Names returns every alias, sorted.
func (a *TypeAliases) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.byName))
	for k := range a.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
