package cache

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// Factory creates a base cache for a namespace.
type Factory func(id string, logger *slog.Logger) core.Cache

// Initializer is implemented by base caches that need setup after their
// properties have been applied.
type Initializer interface {
	Initialize() error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"perpetual": func(id string, _ *slog.Logger) core.Cache { return NewPerpetual(id) },
	}
)

// Register adds a base cache factory. Called by implementations in their init() functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// Get retrieves a base cache factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// ListImplementations returns all registered base cache names (sorted).
func ListImplementations() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownImplementationError is returned when a cache type is not registered.
type UnknownImplementationError struct {
	Type      string
	Available []string
}

func (e *UnknownImplementationError) Error() string {
	return fmt.Sprintf("cache: unknown cache type %q\nAvailable types: %v\nHint: Check the cache type in your mapper", e.Type, e.Available)
}

// Builder assembles a decorator chain from a core.CacheConfig.
type Builder struct {
	// BlockingTimeout applies to blocking caches without a "timeout" property
	BlockingTimeout time.Duration
	// Logger is passed to base caches and the logging decorator
	Logger *slog.Logger
}

// Build creates the effective cache for cfg.
func (b Builder) Build(cfg core.CacheConfig) (core.Cache, error) {
	if cfg.Namespace == "" {
		return nil, ErrNoID
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	typ := cfg.Type
	if typ == "" {
		typ = "perpetual"
	}
	factory, ok := Get(typ)
	if !ok {
		return nil, &UnknownImplementationError{Type: typ, Available: ListImplementations()}
	}
	base := factory(cfg.Namespace, logger)

	props := make(map[string]string, len(cfg.Properties))
	for k, v := range cfg.Properties {
		props[k] = v
	}
	timeout := b.BlockingTimeout
	if raw, ok := props["timeout"]; ok {
		d, err := parseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("cache %s: timeout: %w", cfg.Namespace, err)
		}
		timeout = d
		delete(props, "timeout")
	}
	if err := applyProperties(base, props); err != nil {
		return nil, fmt.Errorf("cache %s: %w", cfg.Namespace, err)
	}
	if init, ok := base.(Initializer); ok {
		if err := init.Initialize(); err != nil {
			return nil, fmt.Errorf("cache %s: initialize: %w", cfg.Namespace, err)
		}
	}
	if base.ID() != cfg.Namespace {
		return nil, fmt.Errorf("cache %s: implementation %s reports id %q", cfg.Namespace, typ, base.ID())
	}

	// Custom implementations only get logging (and blocking when asked).
	if _, isPerpetual := base.(*Perpetual); !isPerpetual {
		if cfg.Blocking {
			return NewBlocking(NewLogging(base, logger), timeout), nil
		}
		return NewLogging(base, logger), nil
	}

	var c core.Cache = base
	switch strings.ToLower(cfg.Eviction) {
	case "", "lru":
		c = NewLRU(c, cfg.Size)
	case "fifo":
		c = NewFIFO(c, cfg.Size)
	case "none":
	default:
		return nil, fmt.Errorf("cache %s: unknown eviction %q (want lru, fifo or none)", cfg.Namespace, cfg.Eviction)
	}
	if cfg.FlushInterval > 0 {
		c = NewScheduled(c, cfg.FlushInterval)
	}
	if !cfg.ReadOnly {
		c = NewSerialized(c)
	}
	c = NewLogging(c, logger)
	c = NewSynchronized(c)
	if cfg.Blocking {
		c = NewBlocking(c, timeout)
	}
	return c, nil
}

// applyProperties decodes string properties onto exported fields of target
// (matched by mapstructure tag or case-insensitive name).
func applyProperties(target any, props map[string]string) error {
	if len(props) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(props); err != nil {
		return fmt.Errorf("apply properties: %w", err)
	}
	return nil
}

// parseDuration accepts Go durations and bare integers as milliseconds.
func parseDuration(raw string) (time.Duration, error) {
	var ms int64
	if _, err := fmt.Sscanf(raw, "%d", &ms); err == nil && fmt.Sprint(ms) == strings.TrimSpace(raw) {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(strings.TrimSpace(raw))
}
