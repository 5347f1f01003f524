// Package binding binds Go interface types to mapped statements.
//
// A bound interface gets a Factory; Lookup turns the factory into a Dispatcher
// for a caller-supplied core.Executor. Dispatcher.Invoke maps a method name to
// the statement "<namespace>.<method>", where the namespace of an interface is
// its package path and name (see Namespace).
package binding

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

var (
	// ErrAlreadyKnown is returned when an interface is bound twice.
	ErrAlreadyKnown = errors.New("binding: type is already known to the registry")
	// ErrNotKnown is returned when looking up an unbound interface.
	ErrNotKnown = errors.New("binding: type is not known to the registry")
)

// BindError describes a failed Bind or Lookup.
type BindError struct {
	Type reflect.Type
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("binding %s: %v", Namespace(e.Type), e.Err)
}

// Unwrap returns the underlying error.
func (e *BindError) Unwrap() error { return e.Err }

// MethodSpec overrides how one interface method dispatches.
type MethodSpec struct {
	// Name is the method name
	Name string
	// StatementID replaces "<namespace>.<Name>" when set
	StatementID string
	// ParamNames names the arguments of a multi-argument call
	ParamNames []string
}

// Scanner inspects an interface while it is being bound, typically loading the
// mapper that belongs to it and applying statement declarations.
// A Scan error rolls the binding back.
type Scanner interface {
	Scan(t reflect.Type) ([]MethodSpec, error)
}

// StatementSource resolves statement ids at call time.
type StatementSource interface {
	Statement(id string) (*core.Statement, bool)
}

// Catalog lists the interfaces available under a namespace prefix.
type Catalog interface {
	Interfaces(prefix string) []reflect.Type
}

// StaticCatalog is a Catalog over a fixed list of interface types.
type StaticCatalog []reflect.Type

// Interfaces implements Catalog.
func (c StaticCatalog) Interfaces(prefix string) []reflect.Type {
	var out []reflect.Type
	for _, t := range c {
		if strings.HasPrefix(Namespace(t), prefix) {
			out = append(out, t)
		}
	}
	return out
}

// Namespace returns the mapper namespace of t: "<pkgpath>.<Name>".
func Namespace(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// Registry holds the bound interfaces of one configuration.
type Registry struct {
	mu         sync.RWMutex
	known      map[reflect.Type]*Factory
	statements StatementSource
	scanner    Scanner
	logger     *slog.Logger
}

// NewRegistry creates an empty registry resolving statements through statements.
func NewRegistry(statements StatementSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		known:      make(map[reflect.Type]*Factory),
		statements: statements,
		logger:     logger,
	}
}

// SetScanner installs the scanner run by Bind.
func (r *Registry) SetScanner(s Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanner = s
}

// Bind registers t. Non-interface types are ignored. The factory is visible
// to IsBound while the scanner runs and removed again if the scan fails.
func (r *Registry) Bind(t reflect.Type) error {
	if t == nil || t.Kind() != reflect.Interface {
		return nil
	}

	r.mu.Lock()
	if _, ok := r.known[t]; ok {
		r.mu.Unlock()
		return &BindError{Type: t, Err: ErrAlreadyKnown}
	}
	f := newFactory(t, r.statements)
	r.known[t] = f
	scanner := r.scanner
	r.mu.Unlock()

	if scanner != nil {
		specs, err := scanner.Scan(t)
		if err != nil {
			r.mu.Lock()
			delete(r.known, t)
			r.mu.Unlock()
			r.logger.Debug("binding rolled back", "namespace", Namespace(t), "error", err)
			return &BindError{Type: t, Err: err}
		}
		f.apply(specs)
	}

	r.logger.Debug("interface bound", "namespace", Namespace(t))
	return nil
}

// Lookup returns a dispatcher for t that issues statements through exec.
func (r *Registry) Lookup(t reflect.Type, exec core.Executor) (*Dispatcher, error) {
	r.mu.RLock()
	f, ok := r.known[t]
	r.mu.RUnlock()
	if !ok {
		return nil, &BindError{Type: t, Err: ErrNotKnown}
	}
	return f.New(exec), nil
}

// IsBound reports whether t is bound (including while its scan is running).
func (r *Registry) IsBound(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[t]
	return ok
}

// Bound returns the bound interfaces sorted by namespace.
func (r *Registry) Bound() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]reflect.Type, 0, len(r.known))
	for t := range r.known {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return Namespace(out[i]) < Namespace(out[j]) })
	return out
}

// BindAll binds every catalog interface under prefix that satisfies super
// (nil accepts all). Each bind is independent; failures are joined.
func (r *Registry) BindAll(catalog Catalog, prefix string, super reflect.Type) error {
	var errs []error
	for _, t := range catalog.Interfaces(prefix) {
		if super != nil && !t.Implements(super) {
			continue
		}
		if err := r.Bind(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
