package marshal

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// ErrNotEnum is returned when an enum marshaller is specialized for a type
// that was not declared as an enum.
var ErrNotEnum = errors.New("marshal: type is not a declared enum")

// EnumMarshaller stores enum values by name. The name of a value is its
// fmt.Sprint form, so enums implementing fmt.Stringer use String().
type EnumMarshaller struct {
	typ    reflect.Type
	byName map[string]any
}

// Specialize implements Specializer.
func (m *EnumMarshaller) Specialize(t reflect.Type, h *Hierarchy) (core.Marshaller, error) {
	values, err := enumValues(t, h)
	if err != nil {
		return nil, err
	}
	s := &EnumMarshaller{typ: t, byName: make(map[string]any, len(values))}
	for _, v := range values {
		s.byName[fmt.Sprint(v)] = v
	}
	return s, nil
}

// Type returns the enum type the marshaller was specialized for.
func (m *EnumMarshaller) Type() reflect.Type {
	return m.typ
}

// ToWire implements core.Marshaller.
func (m *EnumMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	if m.typ != nil && reflect.TypeOf(v) != m.typ {
		return nil, unexpected(m.typ.String(), v)
	}
	return fmt.Sprint(v), nil
}

// FromWire implements core.Marshaller.
func (m *EnumMarshaller) FromWire(src any) (any, error) {
	var name string
	switch s := src.(type) {
	case nil:
		return nil, nil
	case string:
		name = s
	case []byte:
		name = string(s)
	default:
		return nil, unexpected(typeName(m.typ), src)
	}
	v, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("marshal: %q is not a value of %s", name, typeName(m.typ))
	}
	return v, nil
}

// EnumOrdinalMarshaller stores enum values by their declaration index.
type EnumOrdinalMarshaller struct {
	typ    reflect.Type
	values []any
}

// Specialize implements Specializer.
func (m *EnumOrdinalMarshaller) Specialize(t reflect.Type, h *Hierarchy) (core.Marshaller, error) {
	values, err := enumValues(t, h)
	if err != nil {
		return nil, err
	}
	return &EnumOrdinalMarshaller{typ: t, values: values}, nil
}

// Type returns the enum type the marshaller was specialized for.
func (m *EnumOrdinalMarshaller) Type() reflect.Type {
	return m.typ
}

// ToWire implements core.Marshaller.
func (m *EnumOrdinalMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	for i, candidate := range m.values {
		if reflect.DeepEqual(candidate, v) {
			return int64(i), nil
		}
	}
	return nil, fmt.Errorf("marshal: %v is not a value of %s", v, typeName(m.typ))
}

// FromWire implements core.Marshaller.
func (m *EnumOrdinalMarshaller) FromWire(src any) (any, error) {
	var idx int64
	switch s := src.(type) {
	case nil:
		return nil, nil
	case int64:
		idx = s
	case []byte:
		n, err := strconv.ParseInt(string(s), 10, 64)
		if err != nil {
			return nil, err
		}
		idx = n
	case string:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		idx = n
	default:
		return nil, unexpected(typeName(m.typ), src)
	}
	if idx < 0 || idx >= int64(len(m.values)) {
		return nil, fmt.Errorf("marshal: ordinal %d out of range for %s", idx, typeName(m.typ))
	}
	return m.values[idx], nil
}

func enumValues(t reflect.Type, h *Hierarchy) ([]any, error) {
	if t == nil {
		return nil, ErrNilType
	}
	if h == nil || !h.IsEnum(t) {
		return nil, fmt.Errorf("%w: %s", ErrNotEnum, t)
	}
	return h.EnumValues(t), nil
}

// EnumMarshallerType maps the default_enum_marshaller setting to a marshaller type.
func EnumMarshallerType(name string) (reflect.Type, error) {
	switch name {
	case "", "name":
		return reflect.TypeFor[*EnumMarshaller](), nil
	case "ordinal":
		return reflect.TypeFor[*EnumOrdinalMarshaller](), nil
	default:
		return nil, fmt.Errorf("marshal: unknown enum marshaller %q (want name or ordinal)", name)
	}
}
