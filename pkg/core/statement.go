package core

import (
	"reflect"
	"strings"
	"time"
)

// StatementKind is the operation a statement performs.
type StatementKind int

// Statement kinds.
const (
	KindUnknown StatementKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
)

// String returns the element name of the kind.
func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseStatementKind converts an element name to a StatementKind.
func ParseStatementKind(s string) (StatementKind, bool) {
	switch strings.ToLower(s) {
	case "select":
		return KindSelect, true
	case "insert":
		return KindInsert, true
	case "update":
		return KindUpdate, true
	case "delete":
		return KindDelete, true
	default:
		return KindUnknown, false
	}
}

// ParameterMapping describes one #{...} placeholder.
type ParameterMapping struct {
	// Property is the parameter property path
	Property string
	// ValueType is the declared value type, nil when unspecified
	ValueType reflect.Type
	// Wire is the declared wire type
	Wire WireType
	// Marshaller is an explicit override
	Marshaller Marshaller
}

// SQLSource is statement text with placeholders replaced by "?".
type SQLSource struct {
	// Text is the driver-ready SQL
	Text string
	// Params are the placeholders in order of appearance
	Params []ParameterMapping
}

// Statement is a resolved, read-only statement descriptor.
type Statement struct {
	// ID is the fully qualified id (namespace.local)
	ID string
	// Namespace owns the statement
	Namespace string
	// Resource is the document the statement was declared in
	Resource string
	// Kind is the operation
	Kind StatementKind
	// SQL is the parsed source
	SQL *SQLSource
	// ParameterType is the declared parameter type, nil when unspecified
	ParameterType reflect.Type
	// ResultMaps are the resolved result maps (selects only)
	ResultMaps []*ResultMap
	// Cache is the namespace's effective cache, nil when caching is disabled
	Cache Cache
	// UseCache reads through Cache
	UseCache bool
	// FlushCache clears Cache before execution
	FlushCache bool
	// Timeout bounds execution, zero means driver default
	Timeout time.Duration
	// FetchSize is a driver hint
	FetchSize int
	// UseGeneratedKeys requests generated keys for inserts
	UseGeneratedKeys bool
	// KeyProperties receive generated keys
	KeyProperties []string
}

// HasNestedResultMaps reports whether any result map nests others.
func (s *Statement) HasNestedResultMaps() bool {
	for _, rm := range s.ResultMaps {
		if rm.HasNestedResultMaps {
			return true
		}
	}
	return false
}
