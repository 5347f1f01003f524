package core

import (
	"reflect"
	"strings"
)

// ResultFlag marks special result mappings.
type ResultFlag int

// Result flags.
const (
	// FlagID marks a mapping that identifies the row (used for nested result grouping).
	FlagID ResultFlag = 1 << iota
)

// ResultMapping maps one source column onto one target property.
type ResultMapping struct {
	// Property is the target property name
	Property string
	// Column is the source column name (may be empty for nested result maps)
	Column string
	// ValueType is the property type, nil when it could not be determined
	ValueType reflect.Type
	// Wire is the declared wire type, WireAny when unspecified
	Wire WireType
	// Marshaller is an explicit override, nil means dispatch at first use
	Marshaller Marshaller
	// NestedResultMap is the id of a nested result map
	NestedResultMap string
	// NestedSelect is the id of a statement loading the property
	NestedSelect string
	// ColumnPrefix is prepended to nested result map columns
	ColumnPrefix string
	// NotNullColumns suppress nested objects when all are null
	NotNullColumns []string
	// Flags holds ResultFlag bits
	Flags ResultFlag
	// Lazy requests deferred loading of a nested select
	Lazy bool
}

// IsID reports whether the mapping carries FlagID.
func (m ResultMapping) IsID() bool {
	return m.Flags&FlagID != 0
}

// Discriminator selects a different result map based on a column value.
type Discriminator struct {
	// Column is the discriminating column
	Column string
	// ValueType is the column value type
	ValueType reflect.Type
	// Wire is the column wire type
	Wire WireType
	// Marshaller is an explicit override
	Marshaller Marshaller
	// Cases maps a column value to a result map id
	Cases map[string]string
}

// ResultMap is a resolved result descriptor. Immutable after construction.
type ResultMap struct {
	// ID is globally unique within a configuration
	ID string
	// Type is the target value type
	Type reflect.Type
	// Mappings are all mappings in declaration order (inherited ones last)
	Mappings []ResultMapping
	// IDMappings are mappings flagged as ids; all mappings when none is flagged
	IDMappings []ResultMapping
	// Discriminator is optional
	Discriminator *Discriminator
	// Extends is the parent result map id, empty when none
	Extends string
	// AutoMapping overrides the configuration default when non-nil
	AutoMapping *bool
	// MappedColumns holds upper-cased column names
	MappedColumns map[string]struct{}
	// MappedProperties holds mapped property names
	MappedProperties map[string]struct{}
	// HasNestedResultMaps is true if any mapping or discriminator case nests a result map
	HasNestedResultMaps bool
	// HasNestedSelects is true if any mapping loads through another statement
	HasNestedSelects bool
}

// NewResultMap builds a ResultMap and derives its lookup sets.
func NewResultMap(id string, typ reflect.Type, mappings []ResultMapping, disc *Discriminator, autoMapping *bool) *ResultMap {
	rm := &ResultMap{
		ID:               id,
		Type:             typ,
		Mappings:         mappings,
		Discriminator:    disc,
		AutoMapping:      autoMapping,
		MappedColumns:    make(map[string]struct{}),
		MappedProperties: make(map[string]struct{}),
	}
	for _, m := range mappings {
		if m.Column != "" {
			rm.MappedColumns[strings.ToUpper(m.Column)] = struct{}{}
		}
		if m.Property != "" {
			rm.MappedProperties[m.Property] = struct{}{}
		}
		if m.NestedResultMap != "" {
			rm.HasNestedResultMaps = true
		}
		if m.NestedSelect != "" {
			rm.HasNestedSelects = true
		}
		if m.IsID() {
			rm.IDMappings = append(rm.IDMappings, m)
		}
	}
	if disc != nil && len(disc.Cases) > 0 {
		rm.HasNestedResultMaps = true
	}
	if len(rm.IDMappings) == 0 {
		rm.IDMappings = append(rm.IDMappings, mappings...)
	}
	return rm
}

// Mapping returns the mapping for a property.
func (rm *ResultMap) Mapping(property string) (ResultMapping, bool) {
	for _, m := range rm.Mappings {
		if m.Property == property {
			return m, true
		}
	}
	return ResultMapping{}, false
}
