// Package engine loads a leapmap project: it discovers mapper documents, reads
// them concurrently and feeds them through the builder into a resolved
// mapping.Configuration.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/leapmap/internal/loader"
	"github.com/leapstack-labs/leapmap/pkg/builder"
	"github.com/leapstack-labs/leapmap/pkg/mapping"

	_ "github.com/leapstack-labs/leapmap/pkg/cache/sqlcache" // register the sqlite cache type
)

// Config holds engine configuration.
type Config struct {
	// Root is the project directory resources are relative to
	Root string
	// Configuration is an optional root configuration document
	Configuration string
	// Mappers lists mapper resources or glob patterns
	Mappers []string
	// MapperDir is searched for <Interface>.yaml when an interface is bound
	MapperDir string
	// Settings defaults to mapping.DefaultSettings()
	Settings *mapping.Settings
	// Properties are substituted into ${name} placeholders
	Properties map[string]string
	// Aliases registers Go types under document names before loading
	Aliases map[string]reflect.Type
	// Interfaces are bound after the documents are in
	Interfaces []reflect.Type
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Result is one completed load.
type Result struct {
	Configuration *mapping.Configuration
	// Resources are the documents that were read, sorted
	Resources []string
	LoadedAt  time.Time
	Duration  time.Duration
}

// Engine loads projects. Loads are serialized; the last successful result
// stays available through Current.
type Engine struct {
	cfg    Config
	files  loader.FileLoader
	logger *slog.Logger

	mu      sync.Mutex
	current *Result
}

// New creates an engine. Nothing is read until Load.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("engine: resolving root: %w", err)
	}
	cfg.Root = root
	if len(cfg.Mappers) == 0 && cfg.Configuration == "" && len(cfg.Interfaces) == 0 {
		return nil, fmt.Errorf("engine: nothing to load (no configuration, mappers or interfaces)")
	}
	if cfg.Settings != nil {
		if err := cfg.Settings.Validate(); err != nil {
			return nil, err
		}
	}

	logger.Debug("initializing engine", "root", cfg.Root, "mappers", cfg.Mappers)

	return &Engine{
		cfg:    cfg,
		files:  loader.FileLoader{Root: cfg.Root},
		logger: logger,
	}, nil
}

// Load builds a fresh configuration from disk. A failed load leaves Current
// untouched.
func (e *Engine) Load(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	mc, err := mapping.New(mapping.Options{
		Settings:  e.cfg.Settings,
		Variables: e.cfg.Properties,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, alias := range slices.Sorted(maps.Keys(e.cfg.Aliases)) {
		if err := mc.Aliases().Register(alias, e.cfg.Aliases[alias]); err != nil {
			return nil, err
		}
	}
	// Known up front so mapper documents naming them bind as they load.
	for _, t := range e.cfg.Interfaces {
		if err := mc.Aliases().RegisterType(t); err != nil {
			return nil, err
		}
	}

	b := builder.New(mc, builder.Options{
		Logger: e.logger,
		Loader: e.files,
		Locate: e.locate,
	})

	if e.cfg.Configuration != "" {
		if err := b.LoadConfig(ctx, e.cfg.Configuration); err != nil {
			return nil, err
		}
	}

	resources, err := e.files.Discover(e.cfg.Mappers)
	if err != nil {
		return nil, err
	}
	resources = slices.DeleteFunc(resources, func(r string) bool {
		return r == e.cfg.Configuration || mc.IsResourceLoaded(r)
	})

	docs, err := e.files.LoadAll(ctx, resources)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if err := b.AddMapper(doc.Resource, doc.Root); err != nil {
			return nil, err
		}
		e.logger.Debug("mapper added", "resource", doc.Resource)
	}

	for _, t := range e.cfg.Interfaces {
		if mc.Bindings().IsBound(t) {
			continue
		}
		if err := b.Bind(t); err != nil {
			return nil, err
		}
	}

	if err := b.Finish(); err != nil {
		return nil, err
	}

	res := &Result{
		Configuration: mc,
		Resources:     documents(mc.LoadedResources()),
		LoadedAt:      start,
		Duration:      time.Since(start),
	}
	e.current = res

	e.logger.Info("configuration loaded",
		"resources", len(res.Resources),
		"statements", len(mc.Statements()),
		"result_maps", len(mc.ResultMaps()),
		"duration", res.Duration)
	return res, nil
}

// documents drops the namespace markers the builder records next to resources.
func documents(loaded []string) []string {
	return slices.DeleteFunc(loaded, func(r string) bool {
		return strings.HasPrefix(r, "namespace:")
	})
}

// Current returns the last successful load, nil before the first one.
func (e *Engine) Current() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Root returns the project directory.
func (e *Engine) Root() string { return e.cfg.Root }

// locate maps an interface to <MapperDir>/<Name>.yaml (or .yml) when the file
// exists. The resource is named relative to Root, the way Discover names it,
// so a document already loaded by pattern is not read twice.
func (e *Engine) locate(t reflect.Type) string {
	if e.cfg.MapperDir == "" || t.Name() == "" {
		return ""
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := e.files.Path(filepath.Join(e.cfg.MapperDir, t.Name()+ext))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if rel, err := filepath.Rel(e.cfg.Root, path); err == nil && filepath.IsLocal(rel) {
			return rel
		}
		return path
	}
	return ""
}
