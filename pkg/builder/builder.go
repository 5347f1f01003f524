// Package builder turns mapping documents into a resolved mapping.Configuration.
//
// Documents arrive as core.Fragment trees, one per resource. Each element that
// references something not declared yet (a parent result map, a cache-ref
// namespace, a result map or SQL fragment used by a statement) is parked in the
// configuration's pending queues and retried after every document. Finish
// reports whatever is still unresolved once the last document is in.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapmap/pkg/binding"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// ErrDanglingReference is returned by Finish for nested selects, nested result
// maps and discriminator cases naming elements that were never declared.
var ErrDanglingReference = errors.New("builder: dangling reference")

// BuildError attaches the failing resource and namespace to a load error.
type BuildError struct {
	Resource  string
	Namespace string
	Err       error
}

func (e *BuildError) Error() string {
	if e.Namespace != "" {
		return fmt.Sprintf("builder: %s (namespace %s): %v", e.Resource, e.Namespace, e.Err)
	}
	return fmt.Sprintf("builder: %s: %v", e.Resource, e.Err)
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error { return e.Err }

// Loader reads a resource into a fragment tree.
type Loader interface {
	Load(ctx context.Context, resource string) (*core.Fragment, error)
}

// Options configures a Builder.
type Options struct {
	// Logger defaults to the configuration logger
	Logger *slog.Logger
	// Loader reads mapper and configuration resources
	Loader Loader
	// Locate returns the mapper resource belonging to an interface, "" when none
	Locate func(t reflect.Type) string
	// Catalog supplies interfaces for package mappers, defaults to the
	// interfaces known as type aliases
	Catalog binding.Catalog
}

// Builder loads documents into one Configuration. Loading is single-threaded.
type Builder struct {
	cfg     *mapping.Configuration
	logger  *slog.Logger
	loader  Loader
	locate  func(reflect.Type) string
	catalog binding.Catalog

	mu           sync.Mutex
	declarations map[reflect.Type][]Declaration
}

// New creates a builder for cfg and installs it as the interface scanner of
// cfg's binding registry.
func New(cfg *mapping.Configuration, opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = cfg.Logger()
	}
	b := &Builder{
		cfg:          cfg,
		logger:       logger,
		loader:       opts.Loader,
		locate:       opts.Locate,
		catalog:      opts.Catalog,
		declarations: make(map[reflect.Type][]Declaration),
	}
	if b.catalog == nil {
		b.catalog = aliasCatalog{aliases: cfg.Aliases()}
	}
	cfg.Bindings().SetScanner(b)
	return b
}

// Configuration returns the configuration being built.
func (b *Builder) Configuration() *mapping.Configuration { return b.cfg }

// LoadMapper reads and adds a mapper resource. Resources load once.
func (b *Builder) LoadMapper(ctx context.Context, resource string) error {
	if b.cfg.IsResourceLoaded(resource) {
		return nil
	}
	root, err := b.load(ctx, resource)
	if err != nil {
		return err
	}
	return b.AddMapper(resource, root)
}

// AddMapper adds an already parsed mapper document.
func (b *Builder) AddMapper(resource string, root *core.Fragment) error {
	if b.cfg.IsResourceLoaded(resource) {
		return nil
	}
	b.cfg.AddLoadedResource(resource)

	a := newAssistant(b.cfg, resource)
	if err := b.parseMapper(a, root); err != nil {
		return &BuildError{Resource: resource, Namespace: a.namespace, Err: err}
	}
	if err := b.bindNamespace(a.namespace); err != nil {
		return &BuildError{Resource: resource, Namespace: a.namespace, Err: err}
	}
	if err := b.pass(); err != nil {
		return &BuildError{Resource: resource, Namespace: a.namespace, Err: err}
	}
	return nil
}

// LoadConfig reads and adds a root configuration resource.
func (b *Builder) LoadConfig(ctx context.Context, resource string) error {
	root, err := b.load(ctx, resource)
	if err != nil {
		return err
	}
	return b.AddConfig(ctx, resource, root)
}

// Bind binds an interface, registering it as a type alias first so mapper
// namespaces can name it.
func (b *Builder) Bind(t reflect.Type) error {
	if t != nil && t.Kind() == reflect.Interface && t.Name() != "" {
		if err := b.cfg.Aliases().RegisterType(t); err != nil {
			return err
		}
	}
	return b.cfg.Bindings().Bind(t)
}

// Finish resolves what is still pending and validates cross references.
// After Finish the configuration is complete.
func (b *Builder) Finish() error {
	if err := b.pass(); err != nil {
		return err
	}
	if err := b.cfg.Pending().Check(); err != nil {
		return err
	}
	return b.validateReferences()
}

func (b *Builder) load(ctx context.Context, resource string) (*core.Fragment, error) {
	if b.loader == nil {
		return nil, fmt.Errorf("builder: no loader configured for %s", resource)
	}
	root, err := b.loader.Load(ctx, resource)
	if err != nil {
		return nil, &BuildError{Resource: resource, Err: err}
	}
	return root, nil
}

// pass retries every pending element once the newest document is in.
func (b *Builder) pass() error {
	before := b.cfg.Pending().Total()
	if err := b.cfg.Pending().Pass(); err != nil {
		return err
	}
	if before > 0 {
		b.logger.Debug("pending elements retried", "pending", b.cfg.Pending().Total(), "resolved", before-b.cfg.Pending().Total())
	}
	return nil
}

// attempt resolves r now or queues it when a reference is missing.
func (b *Builder) attempt(kind mapping.PendingKind, r mapping.Resolver) error {
	err := r.Resolve()
	if err == nil {
		return nil
	}
	if errors.Is(err, mapping.ErrIncomplete) {
		s := r.Describe()
		b.logger.Debug("element deferred", "kind", kind.String(), "id", s.ID, "namespace", s.Namespace, "reference", s.Reference)
		b.cfg.Pending().Add(kind, r, err)
		return nil
	}
	return err
}

// bindNamespace binds the interface a mapper namespace names, when there is one.
func (b *Builder) bindNamespace(ns string) error {
	t, err := b.cfg.Aliases().Resolve(ns)
	if err != nil || t == nil || t.Kind() != reflect.Interface {
		return nil
	}
	if b.cfg.Bindings().IsBound(t) {
		return nil
	}
	b.cfg.AddLoadedResource("namespace:" + ns)
	return b.cfg.Bindings().Bind(t)
}

func (b *Builder) validateReferences() error {
	var errs []error
	for _, rm := range b.cfg.ResultMaps() {
		for _, m := range rm.Mappings {
			if m.NestedResultMap != "" {
				if _, ok := b.cfg.ResultMap(m.NestedResultMap); !ok {
					errs = append(errs, fmt.Errorf("%w: result map %s property %s names result map %s", ErrDanglingReference, rm.ID, m.Property, m.NestedResultMap))
				}
			}
			if m.NestedSelect != "" {
				if _, ok := b.cfg.Statement(m.NestedSelect); !ok {
					errs = append(errs, fmt.Errorf("%w: result map %s property %s names statement %s", ErrDanglingReference, rm.ID, m.Property, m.NestedSelect))
				}
			}
		}
		if rm.Discriminator != nil {
			values := make([]string, 0, len(rm.Discriminator.Cases))
			for value := range rm.Discriminator.Cases {
				values = append(values, value)
			}
			sort.Strings(values)
			for _, value := range values {
				id := rm.Discriminator.Cases[value]
				if _, ok := b.cfg.ResultMap(id); !ok {
					errs = append(errs, fmt.Errorf("%w: result map %s case %q names result map %s", ErrDanglingReference, rm.ID, value, id))
				}
			}
		}
	}
	return errors.Join(errs...)
}
