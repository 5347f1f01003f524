package marshal

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// registerBuiltins installs the default marshallers.
func registerBuiltins(r *Registry) {
	r.Register(BoolMarshaller{})

	r.Register(IntMarshaller[int]{})
	r.Register(IntMarshaller[int8]{})
	r.Register(IntMarshaller[int16]{})
	r.Register(IntMarshaller[int32]{})
	r.Register(IntMarshaller[int64]{})
	r.Register(IntMarshaller[uint]{})
	r.Register(IntMarshaller[uint8]{})
	r.Register(IntMarshaller[uint16]{})
	r.Register(IntMarshaller[uint32]{})
	r.Register(IntMarshaller[uint64]{})
	r.Register(FloatMarshaller[float32]{})
	r.Register(FloatMarshaller[float64]{})

	r.Register(StringMarshaller{})
	r.Register(ClobMarshaller{})
	r.Register(BytesMarshaller{})

	r.Register(TimestampMarshaller{})
	r.Register(DateMarshaller{})
	r.Register(TimeOfDayMarshaller{})
	r.Register(DurationMarshaller{})

	r.Register(BigIntMarshaller{})
	r.Register(UUIDMarshaller{})
	r.Register(JSONMarshaller{})

	r.RegisterType(emptyInterface, &UnknownMarshaller{registry: r})

	r.RegisterWire(core.WireBoolean, BoolMarshaller{})
	r.RegisterWire(core.WireBit, BoolMarshaller{})
	r.RegisterWire(core.WireTinyInt, IntMarshaller[int8]{})
	r.RegisterWire(core.WireSmallInt, IntMarshaller[int16]{})
	r.RegisterWire(core.WireInteger, IntMarshaller[int32]{})
	r.RegisterWire(core.WireBigInt, IntMarshaller[int64]{})
	r.RegisterWire(core.WireFloat, FloatMarshaller[float64]{})
	r.RegisterWire(core.WireReal, FloatMarshaller[float32]{})
	r.RegisterWire(core.WireDouble, FloatMarshaller[float64]{})
	r.RegisterWire(core.WireNumeric, BigIntMarshaller{})
	r.RegisterWire(core.WireDecimal, BigIntMarshaller{})
	r.RegisterWire(core.WireChar, StringMarshaller{})
	r.RegisterWire(core.WireVarchar, StringMarshaller{})
	r.RegisterWire(core.WireNChar, StringMarshaller{})
	r.RegisterWire(core.WireNVarchar, StringMarshaller{})
	r.RegisterWire(core.WireClob, ClobMarshaller{})
	r.RegisterWire(core.WireNClob, ClobMarshaller{})
	r.RegisterWire(core.WireLongVarchar, ClobMarshaller{})
	r.RegisterWire(core.WireBinary, BytesMarshaller{})
	r.RegisterWire(core.WireVarBinary, BytesMarshaller{})
	r.RegisterWire(core.WireLongVarBinary, BytesMarshaller{})
	r.RegisterWire(core.WireBlob, BytesMarshaller{})
	r.RegisterWire(core.WireTimestamp, TimestampMarshaller{})
	r.RegisterWire(core.WireTimestampTZ, TimestampMarshaller{})
	r.RegisterWire(core.WireDate, DateMarshaller{})
	r.RegisterWire(core.WireTime, TimeOfDayMarshaller{})
	r.RegisterWire(core.WireUUID, UUIDMarshaller{})
	r.RegisterWire(core.WireJSON, JSONMarshaller{})
}

func typesOf(ts ...reflect.Type) []reflect.Type { return ts }

func unexpected(target string, src any) error {
	return fmt.Errorf("marshal: cannot convert %T to %s", src, target)
}

// ============================================================================
// Booleans and numbers
// ============================================================================

// BoolMarshaller handles bool.
type BoolMarshaller struct{}

// Capabilities implements Describer.
func (BoolMarshaller) Capabilities() Capabilities {
	return Capabilities{Types: typesOf(reflect.TypeFor[bool]())}
}

// ToWire implements core.Marshaller.
func (BoolMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Bool {
		return nil, unexpected("bool", v)
	}
	return rv.Bool(), nil
}

// FromWire implements core.Marshaller.
func (BoolMarshaller) FromWire(src any) (any, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case bool:
		return s, nil
	case int64:
		return s != 0, nil
	case []byte:
		return strconv.ParseBool(string(s))
	case string:
		return strconv.ParseBool(s)
	default:
		return nil, unexpected("bool", src)
	}
}

// Integer is the set of integer kinds handled by IntMarshaller.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// IntMarshaller handles one integer type. Values travel as int64.
type IntMarshaller[T Integer] struct{}

// Capabilities implements Describer.
func (IntMarshaller[T]) Capabilities() Capabilities {
	return Capabilities{Types: typesOf(reflect.TypeFor[T]())}
}

// ToWire implements core.Marshaller.
func (IntMarshaller[T]) ToWire(v any, wire core.WireType) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n = int64(rv.Uint())
	default:
		return nil, unexpected("integer", v)
	}
	if isTextWire(wire) {
		return strconv.FormatInt(n, 10), nil
	}
	return n, nil
}

// FromWire implements core.Marshaller.
func (IntMarshaller[T]) FromWire(src any) (any, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case int64:
		return T(s), nil
	case float64:
		return T(s), nil
	case []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
		if err != nil {
			return nil, err
		}
		return T(n), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, err
		}
		return T(n), nil
	default:
		return nil, unexpected(reflect.TypeFor[T]().String(), src)
	}
}

// Float is the set of floating point kinds handled by FloatMarshaller.
type Float interface {
	~float32 | ~float64
}

// FloatMarshaller handles one floating point type. Values travel as float64.
type FloatMarshaller[T Float] struct{}

// Capabilities implements Describer.
func (FloatMarshaller[T]) Capabilities() Capabilities {
	return Capabilities{Types: typesOf(reflect.TypeFor[T]())}
}

// ToWire implements core.Marshaller.
func (FloatMarshaller[T]) ToWire(v any, _ core.WireType) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Float32 && rv.Kind() != reflect.Float64 {
		return nil, unexpected("float", v)
	}
	return rv.Float(), nil
}

// FromWire implements core.Marshaller.
func (FloatMarshaller[T]) FromWire(src any) (any, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case float64:
		return T(s), nil
	case int64:
		return T(s), nil
	case []byte:
		f, err := strconv.ParseFloat(string(s), 64)
		if err != nil {
			return nil, err
		}
		return T(f), nil
	case string:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return T(f), nil
	default:
		return nil, unexpected(reflect.TypeFor[T]().String(), src)
	}
}

// BigIntMarshaller handles *big.Int as NUMERIC/DECIMAL text.
type BigIntMarshaller struct{}

// Capabilities implements Describer.
func (BigIntMarshaller) Capabilities() Capabilities {
	return Capabilities{Types: typesOf(reflect.TypeFor[*big.Int]())}
}

// ToWire implements core.Marshaller.
func (BigIntMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case *big.Int:
		if n == nil {
			return nil, nil
		}
		return n.String(), nil
	default:
		return nil, unexpected("*big.Int", v)
	}
}

// FromWire implements core.Marshaller.
func (BigIntMarshaller) FromWire(src any) (any, error) {
	var text string
	switch s := src.(type) {
	case nil:
		return nil, nil
	case int64:
		return big.NewInt(s), nil
	case []byte:
		text = string(s)
	case string:
		text = s
	default:
		return nil, unexpected("*big.Int", src)
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(text), 10)
	if !ok {
		return nil, fmt.Errorf("marshal: invalid integer %q", text)
	}
	return n, nil
}

// ============================================================================
// Text and bytes
// ============================================================================

// StringMarshaller handles string for every wire type without a better match.
type StringMarshaller struct{}

// Capabilities implements Describer.
func (StringMarshaller) Capabilities() Capabilities {
	return Capabilities{
		Types:          typesOf(reflect.TypeFor[string]()),
		Wires:          []core.WireType{core.WireChar, core.WireVarchar, core.WireNChar, core.WireNVarchar},
		IncludeAnyWire: true,
	}
}

// ToWire implements core.Marshaller.
func (StringMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	return stringValue(v)
}

// FromWire implements core.Marshaller.
func (StringMarshaller) FromWire(src any) (any, error) {
	return stringFrom(src)
}

// ClobMarshaller handles string stored as large text.
type ClobMarshaller struct{}

// Capabilities implements Describer.
func (ClobMarshaller) Capabilities() Capabilities {
	return Capabilities{
		Types: typesOf(reflect.TypeFor[string]()),
		Wires: []core.WireType{core.WireClob, core.WireNClob, core.WireLongVarchar},
	}
}

// ToWire implements core.Marshaller.
func (ClobMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	s, err := stringValue(v)
	if err != nil || s == nil {
		return s, err
	}
	return []byte(s.(string)), nil
}

// FromWire implements core.Marshaller.
func (ClobMarshaller) FromWire(src any) (any, error) {
	return stringFrom(src)
}

func stringValue(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return nil, unexpected("string", v)
	}
	return rv.String(), nil
}

func stringFrom(src any) (any, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(s), nil
	case time.Time:
		return s.Format(time.RFC3339Nano), nil
	default:
		return nil, unexpected("string", src)
	}
}

// BytesMarshaller handles []byte.
type BytesMarshaller struct{}

// Capabilities implements Describer.
func (BytesMarshaller) Capabilities() Capabilities {
	return Capabilities{Types: typesOf(bytesType)}
}

// ToWire implements core.Marshaller.
func (BytesMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() != reflect.Uint8 {
		return nil, unexpected("[]byte", v)
	}
	return rv.Bytes(), nil
}

// FromWire implements core.Marshaller.
func (BytesMarshaller) FromWire(src any) (any, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return append([]byte(nil), s...), nil
	case string:
		return []byte(s), nil
	default:
		return nil, unexpected("[]byte", src)
	}
}

func isTextWire(w core.WireType) bool {
	switch w {
	case core.WireChar, core.WireVarchar, core.WireLongVarchar, core.WireNChar, core.WireNVarchar, core.WireClob, core.WireNClob:
		return true
	default:
		return false
	}
}

// ============================================================================
// Time
// ============================================================================

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05",
}

func parseTime(src any) (any, error) {
	var text string
	switch s := src.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return s, nil
	case int64:
		return time.Unix(s, 0).UTC(), nil
	case []byte:
		text = string(s)
	case string:
		text = s
	default:
		return nil, unexpected("time.Time", src)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("marshal: invalid time %q", text)
}

func timeValue(v any) (time.Time, bool, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return t, true, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, false, nil
		}
		return *t, true, nil
	default:
		return time.Time{}, false, unexpected("time.Time", v)
	}
}

// TimestampMarshaller handles time.Time as a full timestamp.
type TimestampMarshaller struct{}

// Capabilities implements Describer.
func (TimestampMarshaller) Capabilities() Capabilities {
	return Capabilities{
		Types:          typesOf(reflect.TypeFor[time.Time]()),
		Wires:          []core.WireType{core.WireTimestamp, core.WireTimestampTZ},
		IncludeAnyWire: true,
	}
}

// ToWire implements core.Marshaller.
func (TimestampMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	t, ok, err := timeValue(v)
	if err != nil || !ok {
		return nil, err
	}
	return t, nil
}

// FromWire implements core.Marshaller.
func (TimestampMarshaller) FromWire(src any) (any, error) {
	return parseTime(src)
}

// DateMarshaller handles time.Time truncated to the calendar day.
type DateMarshaller struct{}

// Capabilities implements Describer.
func (DateMarshaller) Capabilities() Capabilities {
	return Capabilities{
		Types: typesOf(reflect.TypeFor[time.Time]()),
		Wires: []core.WireType{core.WireDate},
	}
}

// ToWire implements core.Marshaller.
func (DateMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	t, ok, err := timeValue(v)
	if err != nil || !ok {
		return nil, err
	}
	return t.Format("2006-01-02"), nil
}

// FromWire implements core.Marshaller.
func (DateMarshaller) FromWire(src any) (any, error) {
	v, err := parseTime(src)
	if err != nil || v == nil {
		return v, err
	}
	t := v.(time.Time)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()), nil
}

// TimeOfDayMarshaller handles the clock part of time.Time.
type TimeOfDayMarshaller struct{}

// Capabilities implements Describer.
func (TimeOfDayMarshaller) Capabilities() Capabilities {
	return Capabilities{
		Types: typesOf(reflect.TypeFor[time.Time]()),
		Wires: []core.WireType{core.WireTime},
	}
}

// ToWire implements core.Marshaller.
func (TimeOfDayMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	t, ok, err := timeValue(v)
	if err != nil || !ok {
		return nil, err
	}
	return t.Format("15:04:05"), nil
}

// FromWire implements core.Marshaller.
func (TimeOfDayMarshaller) FromWire(src any) (any, error) {
	return parseTime(src)
}

// DurationMarshaller handles time.Duration as nanoseconds, or as text for text wire types.
type DurationMarshaller struct{}

// Capabilities implements Describer.
func (DurationMarshaller) Capabilities() Capabilities {
	return Capabilities{Types: typesOf(reflect.TypeFor[time.Duration]())}
}

// ToWire implements core.Marshaller.
func (DurationMarshaller) ToWire(v any, wire core.WireType) (driver.Value, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Duration:
		if isTextWire(wire) {
			return d.String(), nil
		}
		return int64(d), nil
	default:
		return nil, unexpected("time.Duration", v)
	}
}

// FromWire implements core.Marshaller.
func (DurationMarshaller) FromWire(src any) (any, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case int64:
		return time.Duration(s), nil
	case []byte:
		return time.ParseDuration(string(s))
	case string:
		return time.ParseDuration(s)
	default:
		return nil, unexpected("time.Duration", src)
	}
}

// ============================================================================
// Structured values
// ============================================================================

// UUIDMarshaller handles uuid.UUID as text, or as 16 raw bytes for binary wire types.
type UUIDMarshaller struct{}

// Capabilities implements Describer.
func (UUIDMarshaller) Capabilities() Capabilities {
	return Capabilities{Types: typesOf(reflect.TypeFor[uuid.UUID]())}
}

// ToWire implements core.Marshaller.
func (UUIDMarshaller) ToWire(v any, wire core.WireType) (driver.Value, error) {
	switch id := v.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		switch wire {
		case core.WireBinary, core.WireVarBinary, core.WireBlob:
			return id[:], nil
		default:
			return id.String(), nil
		}
	default:
		return nil, unexpected("uuid.UUID", v)
	}
}

// FromWire implements core.Marshaller.
func (UUIDMarshaller) FromWire(src any) (any, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(s) == 16 {
			return uuid.FromBytes(s)
		}
		return uuid.ParseBytes(s)
	case string:
		return uuid.Parse(s)
	default:
		return nil, unexpected("uuid.UUID", src)
	}
}

// JSONMarshaller handles map[string]any documents.
type JSONMarshaller struct{}

// Capabilities implements Describer.
func (JSONMarshaller) Capabilities() Capabilities {
	return Capabilities{Types: typesOf(reflect.TypeFor[map[string]any]())}
}

// ToWire implements core.Marshaller.
func (JSONMarshaller) ToWire(v any, _ core.WireType) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: encode json: %w", err)
	}
	return string(b), nil
}

// FromWire implements core.Marshaller.
func (JSONMarshaller) FromWire(src any) (any, error) {
	var raw []byte
	switch s := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return nil, unexpected("map[string]any", src)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("marshal: decode json: %w", err)
	}
	return doc, nil
}

// UnknownMarshaller handles values declared as any by dispatching on the
// runtime type of each value.
type UnknownMarshaller struct {
	registry *Registry
}

// ToWire implements core.Marshaller.
func (u *UnknownMarshaller) ToWire(v any, wire core.WireType) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	t := reflect.TypeOf(v)
	if t == emptyInterface {
		return nil, unexpected(wire.String(), v)
	}
	m, err := u.registry.Resolve(t, wire)
	if err != nil {
		return nil, err
	}
	if _, self := m.(*UnknownMarshaller); self {
		return nil, fmt.Errorf("%w for %s", ErrNoMarshaller, t)
	}
	return m.ToWire(v, wire)
}

// FromWire implements core.Marshaller.
func (u *UnknownMarshaller) FromWire(src any) (any, error) {
	if b, ok := src.([]byte); ok {
		return string(b), nil
	}
	return src, nil
}
