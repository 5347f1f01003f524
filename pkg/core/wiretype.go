package core

import (
	"sort"
	"strings"
)

// WireType is the storage-side representation a marshaller targets,
// analogous to a database column type.
type WireType int

// Wire type constants. WireAny is the wildcard ("none") slot.
const (
	WireAny WireType = iota
	WireBit
	WireBoolean
	WireTinyInt
	WireSmallInt
	WireInteger
	WireBigInt
	WireFloat
	WireReal
	WireDouble
	WireNumeric
	WireDecimal
	WireChar
	WireVarchar
	WireLongVarchar
	WireNChar
	WireNVarchar
	WireClob
	WireNClob
	WireBinary
	WireVarBinary
	WireLongVarBinary
	WireBlob
	WireDate
	WireTime
	WireTimestamp
	WireTimestampTZ
	WireArray
	WireJSON
	WireUUID
	WireNull
	WireOther
)

var wireTypeNames = map[WireType]string{
	WireAny:           "ANY",
	WireBit:           "BIT",
	WireBoolean:       "BOOLEAN",
	WireTinyInt:       "TINYINT",
	WireSmallInt:      "SMALLINT",
	WireInteger:       "INTEGER",
	WireBigInt:        "BIGINT",
	WireFloat:         "FLOAT",
	WireReal:          "REAL",
	WireDouble:        "DOUBLE",
	WireNumeric:       "NUMERIC",
	WireDecimal:       "DECIMAL",
	WireChar:          "CHAR",
	WireVarchar:       "VARCHAR",
	WireLongVarchar:   "LONGVARCHAR",
	WireNChar:         "NCHAR",
	WireNVarchar:      "NVARCHAR",
	WireClob:          "CLOB",
	WireNClob:         "NCLOB",
	WireBinary:        "BINARY",
	WireVarBinary:     "VARBINARY",
	WireLongVarBinary: "LONGVARBINARY",
	WireBlob:          "BLOB",
	WireDate:          "DATE",
	WireTime:          "TIME",
	WireTimestamp:     "TIMESTAMP",
	WireTimestampTZ:   "TIMESTAMP_WITH_TIMEZONE",
	WireArray:         "ARRAY",
	WireJSON:          "JSON",
	WireUUID:          "UUID",
	WireNull:          "NULL",
	WireOther:         "OTHER",
}

var wireTypesByName = func() map[string]WireType {
	m := make(map[string]WireType, len(wireTypeNames))
	for t, name := range wireTypeNames {
		m[name] = t
	}
	// Aliases accepted in documents.
	m["INT"] = WireInteger
	m["TEXT"] = WireLongVarchar
	m["BOOL"] = WireBoolean
	m["TIMESTAMPTZ"] = WireTimestampTZ
	m["NONE"] = WireAny
	return m
}()

// String returns the canonical upper-case name.
func (w WireType) String() string {
	if name, ok := wireTypeNames[w]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseWireType converts a textual wire type name (case-insensitive) into a WireType.
// Returns WireAny and false if the name is unknown.
func ParseWireType(s string) (WireType, bool) {
	w, ok := wireTypesByName[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return WireAny, false
	}
	return w, true
}

// WireTypeNames returns all canonical wire type names, sorted.
func WireTypeNames() []string {
	names := make([]string, 0, len(wireTypeNames))
	for _, name := range wireTypeNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
