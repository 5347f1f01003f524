package builder

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmap/pkg/binding"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// AddConfig adds a root configuration document: properties, settings,
// type-aliases, marshallers and mappers, in that order.
func (b *Builder) AddConfig(ctx context.Context, resource string, root *core.Fragment) error {
	if root == nil {
		return &BuildError{Resource: resource, Err: fmt.Errorf("empty configuration document")}
	}
	b.cfg.AddLoadedResource(resource)

	steps := []func(*core.Fragment) error{
		b.properties,
		b.settings,
		b.typeAliases,
		b.marshallers,
	}
	for _, step := range steps {
		if err := step(root); err != nil {
			return &BuildError{Resource: resource, Err: err}
		}
	}
	if err := b.mappers(ctx, root.Child("mappers")); err != nil {
		return &BuildError{Resource: resource, Err: err}
	}
	if err := b.pass(); err != nil {
		return &BuildError{Resource: resource, Err: err}
	}
	return nil
}

// properties adds document variables. Variables passed in by the caller win.
func (b *Builder) properties(root *core.Fragment) error {
	for k, v := range root.Properties() {
		if _, ok := b.cfg.Variables[k]; !ok {
			b.cfg.Variables[k] = v
		}
	}
	return nil
}

func (b *Builder) settings(root *core.Fragment) error {
	s := root.Child("settings")
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.Attrs))
	for k := range s.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := b.cfg.Settings.Set(k, Substitute(s.Attrs[k], b.cfg.Variables)); err != nil {
			return err
		}
	}
	if err := b.cfg.Settings.Validate(); err != nil {
		return err
	}
	return b.cfg.ApplyEnumSetting()
}

func (b *Builder) typeAliases(root *core.Fragment) error {
	section := root.Child("type-aliases")
	for _, f := range section.ChildrenNamed("type-alias") {
		alias, _ := f.Attr("alias")
		name, ok := f.Attr("type")
		if !ok {
			return fmt.Errorf("type-alias %s requires a type", f)
		}
		t, err := b.cfg.Aliases().Resolve(name)
		if err != nil {
			return err
		}
		if alias == "" {
			if err := b.cfg.Aliases().RegisterType(t); err != nil {
				return err
			}
			continue
		}
		if err := b.cfg.Aliases().Register(alias, t); err != nil {
			return err
		}
	}
	return nil
}

// marshallers registers marshaller declarations. With a value type (and
// optionally a wire type) the marshaller is bound to that pair, otherwise it
// registers under the capabilities it describes.
func (b *Builder) marshallers(root *core.Fragment) error {
	section := root.Child("marshallers")
	for _, f := range section.ChildrenNamed("marshaller") {
		name, ok := f.Attr("marshaller")
		if !ok {
			return fmt.Errorf("marshaller %s requires a marshaller attribute", f)
		}
		mt, err := b.cfg.Aliases().Resolve(name)
		if err != nil {
			return err
		}
		vt, err := b.cfg.Aliases().Resolve(f.AttrOr("value_type", ""))
		if err != nil {
			return err
		}
		wire, err := parseWire(f.AttrOr("wire_type", ""))
		if err != nil {
			return err
		}
		m, err := b.cfg.Marshallers().Instance(vt, mt)
		if err != nil {
			return err
		}
		switch {
		case vt != nil && wire != core.WireAny:
			b.cfg.Marshallers().RegisterTypeWire(vt, wire, m)
		case vt != nil:
			b.cfg.Marshallers().RegisterType(vt, m)
		case wire != core.WireAny:
			b.cfg.Marshallers().RegisterWire(wire, m)
		default:
			b.cfg.Marshallers().Register(m)
		}
	}
	return nil
}

// mappers loads mapper resources, binds single interfaces and binds every
// interface of a package.
func (b *Builder) mappers(ctx context.Context, section *core.Fragment) error {
	for _, f := range section.Children {
		switch f.Name {
		case "mapper":
			resource, hasResource := f.Attr("resource")
			iface, hasIface := f.Attr("interface")
			switch {
			case hasResource && hasIface:
				return fmt.Errorf("a mapper element may only specify a resource or an interface, not both")
			case hasResource:
				if err := b.LoadMapper(ctx, Substitute(resource, b.cfg.Variables)); err != nil {
					return err
				}
			case hasIface:
				t, err := b.cfg.Aliases().Resolve(iface)
				if err != nil {
					return err
				}
				if t.Kind() != reflect.Interface {
					return fmt.Errorf("mapper interface %s is not an interface", t)
				}
				if err := b.Bind(t); err != nil {
					return err
				}
			default:
				return fmt.Errorf("a mapper element requires a resource or an interface")
			}
		case "package":
			name, ok := f.Attr("name")
			if !ok {
				return fmt.Errorf("package %s requires a name", f)
			}
			super, err := b.cfg.Aliases().Resolve(f.AttrOr("super", ""))
			if err != nil {
				return err
			}
			if err := b.cfg.Bindings().BindAll(b.catalog, name, super); err != nil {
				return err
			}
		}
	}
	return nil
}

// aliasCatalog lists the interfaces registered as type aliases.
type aliasCatalog struct {
	aliases *mapping.TypeAliases
}

func (c aliasCatalog) Interfaces(prefix string) []reflect.Type {
	seen := make(map[reflect.Type]bool)
	var out []reflect.Type
	for _, t := range c.aliases.Aliases() {
		if seen[t] || t.Kind() != reflect.Interface || t.Name() == "" {
			continue
		}
		seen[t] = true
		if strings.HasPrefix(binding.Namespace(t), prefix) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return binding.Namespace(out[i]) < binding.Namespace(out[j]) })
	return out
}
