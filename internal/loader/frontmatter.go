package loader

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// frontmatterPattern matches /*--- ... ---*/ blocks
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

// statementFields are the frontmatter keys a statement file accepts.
var statementFields = map[string]bool{
	"namespace":          true,
	"id":                 true,
	"kind":               true,
	"result_map":         true,
	"result_type":        true,
	"parameter_type":     true,
	"use_cache":          true,
	"flush_cache":        true,
	"timeout":            true,
	"fetch_size":         true,
	"use_generated_keys": true,
	"key_property":       true,
}

// ParseStatementFile turns a SQL file with YAML frontmatter into a mapper
// document holding one statement:
//
//	/*---
//	namespace: example.com/app/store.UserMapper
//	result_map: user
//	---*/
//	SELECT * FROM users WHERE id = #{id}
//
// The statement id defaults to the file name and the kind to select.
func ParseStatementFile(name string, content []byte) (*core.Fragment, error) {
	matches := frontmatterPattern.FindStringSubmatch(string(content))
	if len(matches) < 2 {
		return nil, &ParseError{File: name, Message: "statement file has no /*--- ---*/ frontmatter"}
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(matches[1]), &raw); err != nil {
		return nil, &ParseError{File: name, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	attrs := make(map[string]string, len(raw))
	for field, v := range raw {
		if !statementFields[field] {
			return nil, &UnknownFieldError{File: name, Field: field}
		}
		attrs[field] = scalarString(v)
	}

	ns := attrs["namespace"]
	if ns == "" {
		return nil, &ParseError{File: name, Message: "frontmatter requires a namespace"}
	}
	delete(attrs, "namespace")

	kind := strings.ToLower(attrs["kind"])
	if kind == "" {
		kind = "select"
	}
	if _, ok := core.ParseStatementKind(kind); !ok {
		return nil, &ParseError{File: name, Message: fmt.Sprintf("invalid kind: %q, must be one of: select, insert, update, delete", kind)}
	}
	delete(attrs, "kind")

	if attrs["id"] == "" {
		attrs["id"] = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}

	stmt := core.NewFragment(kind, attrs)
	stmt.Body = strings.TrimSpace(frontmatterPattern.ReplaceAllString(string(content), ""))
	return core.NewFragment("mapper", map[string]string{"namespace": ns}, stmt), nil
}

func scalarString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// ParseError represents a document that could not be parsed.
type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// UnknownFieldError represents an unknown frontmatter field.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in frontmatter", e.Field)
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}
