package core

import (
	"context"
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Marshaller converts between an in-memory value type and its wire representation.
type Marshaller interface {
	// ToWire converts v into a driver value for the given wire type.
	ToWire(v any, wire WireType) (driver.Value, error)
	// FromWire converts a scanned column value into the Go value.
	FromWire(src any) (any, error)
}

// CacheKey identifies a cached entry. Keys are built by cache.NewKey.
type CacheKey string

// Cache is the runtime cache attached to a namespace.
type Cache interface {
	// ID returns the cache identifier (the owning namespace).
	ID() string
	// Put stores a value.
	Put(key CacheKey, value any) error
	// Get returns the value and whether it was present.
	Get(key CacheKey) (any, bool, error)
	// Remove drops a value (see cache.Blocking for its special meaning there).
	Remove(key CacheKey) error
	// Clear drops every value.
	Clear() error
	// Size returns the number of stored entries.
	Size() int
}

// CacheConfig is the declared cache of a namespace.
type CacheConfig struct {
	// Namespace owns the cache and doubles as its id
	Namespace string
	// Type names the base implementation ("perpetual", "sqlite", ...)
	Type string
	// Eviction names the eviction policy ("lru", "fifo", "none")
	Eviction string
	// FlushInterval clears the cache periodically, zero disables
	FlushInterval time.Duration
	// Size bounds the eviction policy, zero uses the default
	Size int
	// ReadOnly returns shared instances instead of copies
	ReadOnly bool
	// Blocking wraps the cache in a per-key mutual exclusion decorator
	Blocking bool
	// Properties are applied to the base implementation
	Properties map[string]string
}

// PropertyAccessor is the property read/write capability the core relies on.
// The core never reflects on user types directly.
type PropertyAccessor interface {
	// HasWritableProperty reports whether t has a settable property name.
	HasWritableProperty(t reflect.Type, name string) bool
	// PropertyType returns the type of property name on t.
	PropertyType(t reflect.Type, name string) (reflect.Type, error)
	// GetValue reads property name from instance.
	GetValue(instance any, name string) (any, error)
	// SetValue writes property name on instance (which must be addressable).
	SetValue(instance any, name string, value any) error
}

// Executor issues resolved statements. Implementations live outside the core.
type Executor interface {
	// Query runs a select and returns mapped rows.
	Query(ctx context.Context, stmt *Statement, param any) ([]any, error)
	// Update runs an insert, update or delete and returns affected rows.
	Update(ctx context.Context, stmt *Statement, param any) (int64, error)
}

// ParamMap wraps the arguments of a multi-argument call under generated names
// ("param1".., "arg0"..). It is a reserved type and never has a marshaller.
type ParamMap map[string]any

// Get returns a named parameter.
func (p ParamMap) Get(name string) (any, error) {
	v, ok := p[name]
	if !ok {
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("parameter %q not found, available parameters are %v", name, keys)
	}
	return v, nil
}
