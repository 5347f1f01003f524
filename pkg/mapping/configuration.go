// Package mapping holds the resolved configuration: result maps, namespace
// caches, statements, SQL fragments and the registries that execution needs.
//
// A Configuration is populated by pkg/builder during a single-threaded load and
// is read-only (and safe for concurrent reads) afterwards.
package mapping

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapmap/pkg/binding"
	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/marshal"
	"github.com/leapstack-labs/leapmap/pkg/reflection"
)

// Options configures a new Configuration.
type Options struct {
	// Settings defaults to DefaultSettings()
	Settings *Settings
	// Variables are substituted into ${name} placeholders
	Variables map[string]string
	// Hierarchy declares parents and enums for marshaller lookup
	Hierarchy *marshal.Hierarchy
	// Accessor defaults to the reflection accessor
	Accessor core.PropertyAccessor
	// Logger defaults to a discard logger
	Logger *slog.Logger
}

// Configuration is the resolved result of one load.
type Configuration struct {
	Settings  Settings
	Variables map[string]string

	logger      *slog.Logger
	aliases     *TypeAliases
	marshallers *marshal.Registry
	bindings    *binding.Registry
	accessor    core.PropertyAccessor
	pending     PendingQueue

	mu           sync.RWMutex
	resultMaps   map[string]*core.ResultMap
	statements   map[string]*core.Statement
	fragments    map[string]*core.Fragment
	caches       map[string]core.Cache // effective cache by namespace
	cacheConfigs map[string]core.CacheConfig
	cacheRefs    map[string]string // namespace -> delegated namespace, once resolved
	declaredRefs map[string]string // namespace -> cache-ref target as written
	loaded       map[string]bool
}

// New creates an empty configuration.
func New(opts Options) (*Configuration, error) {
	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	accessor := opts.Accessor
	if accessor == nil {
		accessor = &reflection.Accessor{}
	}
	vars := make(map[string]string, len(opts.Variables))
	for k, v := range opts.Variables {
		vars[k] = v
	}

	c := &Configuration{
		Settings:     settings,
		Variables:    vars,
		logger:       logger,
		aliases:      NewTypeAliases(),
		marshallers:  marshal.NewRegistry(opts.Hierarchy),
		accessor:     accessor,
		resultMaps:   make(map[string]*core.ResultMap),
		statements:   make(map[string]*core.Statement),
		fragments:    make(map[string]*core.Fragment),
		caches:       make(map[string]core.Cache),
		cacheConfigs: make(map[string]core.CacheConfig),
		cacheRefs:    make(map[string]string),
		declaredRefs: make(map[string]string),
		loaded:       make(map[string]bool),
	}
	c.bindings = binding.NewRegistry(c, logger)
	if err := c.ApplyEnumSetting(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnumSetting installs the default enum marshaller named by the settings.
func (c *Configuration) ApplyEnumSetting() error {
	mt, err := marshal.EnumMarshallerType(c.Settings.DefaultEnumMarshaller)
	if err != nil {
		return err
	}
	return c.marshallers.SetDefaultEnumMarshaller(mt)
}

// Logger returns the configuration logger.
func (c *Configuration) Logger() *slog.Logger { return c.logger }

// Aliases returns the type alias table.
func (c *Configuration) Aliases() *TypeAliases { return c.aliases }

// Marshallers returns the type dispatch table.
func (c *Configuration) Marshallers() *marshal.Registry { return c.marshallers }

// Bindings returns the interface binding registry.
func (c *Configuration) Bindings() *binding.Registry { return c.bindings }

// Accessor returns the property accessor.
func (c *Configuration) Accessor() core.PropertyAccessor { return c.accessor }

// Pending returns the deferred resolution queues.
func (c *Configuration) Pending() *PendingQueue { return &c.pending }

// ============================================================================
// Result maps
// ============================================================================

// AddResultMap registers a resolved result map.
func (c *Configuration) AddResultMap(rm *core.ResultMap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.resultMaps[rm.ID]; ok {
		return fmt.Errorf("mapping: result maps already contains value for %s", rm.ID)
	}
	c.resultMaps[rm.ID] = rm
	return nil
}

// ResultMap returns a result map by qualified id.
func (c *Configuration) ResultMap(id string) (*core.ResultMap, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rm, ok := c.resultMaps[id]
	return rm, ok
}

// ResultMaps returns every result map sorted by id.
func (c *Configuration) ResultMaps() []*core.ResultMap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*core.ResultMap, 0, len(c.resultMaps))
	for _, rm := range c.resultMaps {
		out = append(out, rm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============================================================================
// Caches
// ============================================================================

// AddCache builds and registers the cache declared by a namespace.
func (c *Configuration) AddCache(cfg core.CacheConfig) (core.Cache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cacheConfigs[cfg.Namespace]; ok {
		return nil, fmt.Errorf("mapping: caches already contains value for %s", cfg.Namespace)
	}
	built, err := cache.Builder{BlockingTimeout: c.Settings.BlockingTimeout, Logger: c.logger}.Build(cfg)
	if err != nil {
		return nil, err
	}
	if ref, ok := c.cacheRefs[cfg.Namespace]; ok {
		c.logger.Warn("namespace declares its own cache, ignoring cache-ref", "namespace", cfg.Namespace, "ref", ref)
		delete(c.cacheRefs, cfg.Namespace)
	}
	c.cacheConfigs[cfg.Namespace] = cfg
	c.caches[cfg.Namespace] = built
	return built, nil
}

// UseCacheRef makes namespace share the effective cache of target. It fails
// with ErrIncomplete while target has no effective cache.
func (c *Configuration) UseCacheRef(namespace, target string) (core.Cache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	shared, ok := c.caches[target]
	if !ok {
		return nil, fmt.Errorf("%w: no cache for namespace %q", ErrIncomplete, target)
	}
	if _, own := c.cacheConfigs[namespace]; own {
		c.logger.Warn("namespace declares its own cache, ignoring cache-ref", "namespace", namespace, "ref", target)
		return c.caches[namespace], nil
	}
	c.caches[namespace] = shared
	c.cacheRefs[namespace] = target
	return shared, nil
}

// DeclareCacheRef records that namespace delegates its cache to target,
// before the delegation can be resolved. Statements of the namespace wait
// for its effective cache whatever document or declaration they come from.
func (c *Configuration) DeclareCacheRef(namespace, target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.declaredRefs[namespace] = target
}

// DeclaredCacheRef returns the cache-ref target declared for namespace,
// resolved or not.
func (c *Configuration) DeclaredCacheRef(namespace string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.declaredRefs[namespace]
	return ref, ok
}

// Cache returns the effective cache of a namespace.
func (c *Configuration) Cache(namespace string) (core.Cache, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cc, ok := c.caches[namespace]
	return cc, ok
}

// CacheConfig returns the cache a namespace declared itself.
func (c *Configuration) CacheConfig(namespace string) (core.CacheConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.cacheConfigs[namespace]
	return cfg, ok
}

// CacheRef returns the namespace whose cache namespace delegates to.
func (c *Configuration) CacheRef(namespace string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.cacheRefs[namespace]
	return ref, ok
}

// CacheNamespaces returns every namespace with an effective cache, sorted.
func (c *Configuration) CacheNamespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.caches))
	for ns := range c.caches {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// Statements and fragments
// ============================================================================

// AddStatement registers a resolved statement.
func (c *Configuration) AddStatement(s *core.Statement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.statements[s.ID]; ok {
		return fmt.Errorf("mapping: statements already contains value for %s", s.ID)
	}
	c.statements[s.ID] = s
	return nil
}

// Statement returns a statement by qualified id. It implements binding.StatementSource.
func (c *Configuration) Statement(id string) (*core.Statement, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.statements[id]
	return s, ok
}

// Statements returns every statement sorted by id.
func (c *Configuration) Statements() []*core.Statement {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*core.Statement, 0, len(c.statements))
	for _, s := range c.statements {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddFragment registers a reusable SQL fragment under its qualified id.
// Later declarations of the same id replace earlier ones.
func (c *Configuration) AddFragment(id string, f *core.Fragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragments[id] = f
}

// Fragment returns a SQL fragment by qualified id.
func (c *Configuration) Fragment(id string) (*core.Fragment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.fragments[id]
	return f, ok
}

// ============================================================================
// Resources
// ============================================================================

// AddLoadedResource marks a resource (or "namespace:<ns>") as loaded.
func (c *Configuration) AddLoadedResource(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded[resource] = true
}

// IsResourceLoaded reports whether a resource was loaded.
func (c *Configuration) IsResourceLoaded(resource string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded[resource]
}

// LoadedResources returns every loaded resource, sorted.
func (c *Configuration) LoadedResources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.loaded))
	for r := range c.loaded {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// Types
// ============================================================================

// ResolveType resolves a type alias, honouring Settings.UnknownTypes.
func (c *Configuration) ResolveType(name string) (reflect.Type, error) {
	t, err := c.aliases.Resolve(name)
	if err != nil && c.Settings.UnknownTypes == UnknownTypesIgnore {
		c.logger.Warn("unknown type ignored", "type", name)
		return nil, nil
	}
	return t, err
}

// Marshaller resolves the marshaller for (t, wire), falling back to the
// wire-only table when t is unknown.
func (c *Configuration) Marshaller(t reflect.Type, wire core.WireType) (core.Marshaller, error) {
	if t == nil {
		if m, ok := c.marshallers.ForWire(wire); ok {
			return m, nil
		}
	}
	return c.marshallers.Resolve(t, wire)
}
