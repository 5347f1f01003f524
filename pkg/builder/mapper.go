package builder

import (
	"fmt"

	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// statementElements are the fragment names that declare statements.
var statementElements = []string{"select", "insert", "update", "delete"}

// parseMapper walks a mapper document: cache-ref, cache, result maps, SQL
// fragments, then statements.
func (b *Builder) parseMapper(a *assistant, root *core.Fragment) error {
	if root == nil {
		return fmt.Errorf("builder: empty mapper document")
	}
	if err := a.setNamespace(a.attr(root, "namespace")); err != nil {
		return err
	}

	if ref := root.Child("cache-ref"); ref != nil {
		target := a.attr(ref, "namespace")
		if target == "" {
			return fmt.Errorf("builder: cache-ref element requires a namespace attribute")
		}
		a.cacheRef = target
		b.cfg.DeclareCacheRef(a.namespace, target)
		if err := b.attempt(mapping.PendingCacheRef, &cacheRefResolver{a: a, target: target}); err != nil {
			return err
		}
	}

	if c := root.Child("cache"); c != nil {
		cfg, err := a.cacheConfig(c)
		if err != nil {
			return err
		}
		if _, err := b.cfg.AddCache(cfg); err != nil {
			return err
		}
	}

	for _, rm := range root.ChildrenNamed("result-map") {
		id, err := a.applyNamespace(a.attr(rm, "id"), false)
		if err != nil {
			return err
		}
		if id == "" {
			return fmt.Errorf("builder: result-map %s requires an id", rm)
		}
		extends, err := a.applyNamespace(a.attr(rm, "extends"), true)
		if err != nil {
			return err
		}
		if err := b.attempt(mapping.PendingResultMap, &resultMapResolver{a: a, frag: rm, id: id, extends: extends}); err != nil {
			return err
		}
	}

	for _, s := range root.ChildrenNamed("sql") {
		id, err := a.applyNamespace(a.attr(s, "id"), false)
		if err != nil {
			return err
		}
		if id == "" {
			return fmt.Errorf("builder: sql %s requires an id", s)
		}
		b.cfg.AddFragment(id, s)
	}

	for _, s := range root.ChildrenNamed(statementElements...) {
		if err := b.addStatement(a, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) addStatement(a *assistant, f *core.Fragment) error {
	kind, ok := core.ParseStatementKind(f.Name)
	if !ok {
		return fmt.Errorf("builder: unknown statement element %s", f)
	}
	id, err := a.applyNamespace(a.attr(f, "id"), false)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("builder: %s requires an id", f)
	}
	return b.attempt(mapping.PendingStatement, &statementResolver{a: a, frag: f, kind: kind, id: id})
}

// cacheConfig reads a cache element. Its properties configure the cache
// implementation.
func (a *assistant) cacheConfig(f *core.Fragment) (core.CacheConfig, error) {
	cfg := core.CacheConfig{
		Namespace:  a.namespace,
		Type:       a.attr(f, "type"),
		Eviction:   a.attr(f, "eviction"),
		Properties: make(map[string]string),
	}
	var err error
	if cfg.FlushInterval, err = f.DurationAttr("flush_interval", 0); err != nil {
		return cfg, err
	}
	if cfg.Size, err = f.IntAttr("size", 0); err != nil {
		return cfg, err
	}
	if cfg.ReadOnly, err = f.BoolAttr("read_only", false); err != nil {
		return cfg, err
	}
	if cfg.Blocking, err = f.BoolAttr("blocking", false); err != nil {
		return cfg, err
	}
	for k, v := range f.Properties() {
		cfg.Properties[k] = Substitute(v, a.cfg.Variables)
	}
	return cfg, nil
}
