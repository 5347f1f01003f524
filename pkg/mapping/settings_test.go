package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

func TestSettings_Set(t *testing.T) {
	tests := []struct {
		key, value string
		check      func(t *testing.T, s Settings)
	}{
		{"cache_enabled", "false", func(t *testing.T, s Settings) { assert.False(t, s.CacheEnabled) }},
		{"map_underscore_to_camel_case", "true", func(t *testing.T, s Settings) { assert.True(t, s.MapUnderscoreToCamelCase) }},
		{"default_enum_marshaller", "ORDINAL", func(t *testing.T, s Settings) { assert.Equal(t, "ordinal", s.DefaultEnumMarshaller) }},
		{"wire_type_for_null", "null", func(t *testing.T, s Settings) { assert.Equal(t, core.WireNull, s.NullWireType()) }},
		{"blocking_timeout", "250", func(t *testing.T, s Settings) { assert.Equal(t, 250*time.Millisecond, s.BlockingTimeout) }},
		{"blocking_timeout", "2s", func(t *testing.T, s Settings) { assert.Equal(t, 2*time.Second, s.BlockingTimeout) }},
		{"auto_mapping", "FULL", func(t *testing.T, s Settings) { assert.Equal(t, AutoMappingFull, s.AutoMapping) }},
		{"shrink_whitespaces_in_sql", "true", func(t *testing.T, s Settings) { assert.True(t, s.ShrinkWhitespace) }},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			s := DefaultSettings()
			require.NoError(t, s.Set(tt.key, tt.value))
			require.NoError(t, s.Validate())
			tt.check(t, s)
		})
	}
}

func TestDefaultSettings_KeepStatementText(t *testing.T) {
	assert.False(t, DefaultSettings().ShrinkWhitespace)
}

func TestSettings_Errors(t *testing.T) {
	s := DefaultSettings()
	assert.ErrorContains(t, s.Set("lazy_loading", "true"), `the setting "lazy_loading" is not known`)
	assert.Error(t, s.Set("cache_enabled", "maybe"))

	s = DefaultSettings()
	s.AutoMapping = "sometimes"
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.WireTypeForNull = "NOPE"
	assert.Error(t, s.Validate())
}
