package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// Auto-mapping behaviours.
const (
	AutoMappingNone    = "none"
	AutoMappingPartial = "partial"
	AutoMappingFull    = "full"
)

// Unknown type name behaviours.
const (
	UnknownTypesError  = "error"
	UnknownTypesIgnore = "ignore"
)

// Settings are the runtime switches of a configuration.
type Settings struct {
	// CacheEnabled attaches namespace caches to statements
	CacheEnabled bool `koanf:"cache_enabled"`
	// MapUnderscoreToCamelCase lets user_name auto-map onto UserName
	MapUnderscoreToCamelCase bool `koanf:"map_underscore_to_camel_case"`
	// DefaultEnumMarshaller is "name" or "ordinal"
	DefaultEnumMarshaller string `koanf:"default_enum_marshaller"`
	// WireTypeForNull is the wire type used for nil parameters without one
	WireTypeForNull string `koanf:"wire_type_for_null"`
	// BlockingTimeout bounds blocking caches without their own timeout
	BlockingTimeout time.Duration `koanf:"blocking_timeout"`
	// AutoMapping is none, partial or full
	AutoMapping string `koanf:"auto_mapping"`
	// UnknownTypes is error or ignore (unknown type names resolve to no type)
	UnknownTypes string `koanf:"unknown_types"`
	// ShrinkWhitespace collapses runs of whitespace in statement text. Line
	// comments and string literals are not recognised when it is on.
	ShrinkWhitespace bool `koanf:"shrink_whitespaces_in_sql"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		CacheEnabled:          true,
		DefaultEnumMarshaller: "name",
		WireTypeForNull:       core.WireOther.String(),
		AutoMapping:           AutoMappingPartial,
		UnknownTypes:          UnknownTypesError,
	}
}

// NullWireType parses WireTypeForNull.
func (s Settings) NullWireType() core.WireType {
	if w, ok := core.ParseWireType(s.WireTypeForNull); ok {
		return w
	}
	return core.WireOther
}

// Validate checks enumerated settings.
func (s Settings) Validate() error {
	switch s.AutoMapping {
	case AutoMappingNone, AutoMappingPartial, AutoMappingFull:
	default:
		return fmt.Errorf("settings: auto_mapping %q (want none, partial or full)", s.AutoMapping)
	}
	switch s.DefaultEnumMarshaller {
	case "name", "ordinal":
	default:
		return fmt.Errorf("settings: default_enum_marshaller %q (want name or ordinal)", s.DefaultEnumMarshaller)
	}
	switch s.UnknownTypes {
	case UnknownTypesError, UnknownTypesIgnore:
	default:
		return fmt.Errorf("settings: unknown_types %q (want error or ignore)", s.UnknownTypes)
	}
	if _, ok := core.ParseWireType(s.WireTypeForNull); !ok {
		return fmt.Errorf("settings: wire_type_for_null %q is not a wire type", s.WireTypeForNull)
	}
	if s.BlockingTimeout < 0 {
		return fmt.Errorf("settings: blocking_timeout must not be negative")
	}
	return nil
}

// Set applies one setting by its key, as found in a configuration document.
func (s *Settings) Set(key, value string) error {
	var err error
	switch strings.ToLower(key) {
	case "cache_enabled":
		s.CacheEnabled, err = strconv.ParseBool(value)
	case "map_underscore_to_camel_case":
		s.MapUnderscoreToCamelCase, err = strconv.ParseBool(value)
	case "default_enum_marshaller":
		s.DefaultEnumMarshaller = strings.ToLower(value)
	case "wire_type_for_null":
		s.WireTypeForNull = strings.ToUpper(value)
	case "blocking_timeout":
		s.BlockingTimeout, err = parseMillisOrDuration(value)
	case "auto_mapping":
		s.AutoMapping = strings.ToLower(value)
	case "unknown_types":
		s.UnknownTypes = strings.ToLower(value)
	case "shrink_whitespaces_in_sql":
		s.ShrinkWhitespace, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("settings: the setting %q is not known", key)
	}
	if err != nil {
		return fmt.Errorf("settings: %s: %w", key, err)
	}
	return nil
}

func parseMillisOrDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}
