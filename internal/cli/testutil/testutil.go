// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// ProjectConfig is the leapmap.yaml written by SetupTestProject.
const ProjectConfig = `mappers:
  - mappers/*.yaml
  - statements/*.sql
properties:
  table: app_users
`

// UsersMapper declares a cache, a result map and two statements.
const UsersMapper = `namespace: users
cache: {eviction: lru, size: 2048, blocking: true}
result-map:
  - id: user
    type: app.User
    id-result:
      - {property: ID, column: id}
    result:
      - {property: Name, column: user_name}
sql:
  - {id: columns, body: "id, user_name"}
select:
  - id: FindByID
    result_map: user
    body: SELECT <include refid="columns"/> FROM ${table} WHERE id = #{id}
`

// ReportsMapper loads before the users cache it shares, so its cache-ref
// resolves on a later pass.
const ReportsMapper = `namespace: reports
cache-ref: {namespace: users}
select:
  - id: CountUsers
    result_type: int64
    body: SELECT count(*) FROM ${table}
`

// PurgeStatement is a single statement file.
const PurgeStatement = `/*---
namespace: users
kind: delete
---*/
DELETE FROM ${table} WHERE id = #{id}
`

// SetupTestProject creates a temporary project with test mappers.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	WriteFiles(t, tmpDir, map[string]string{
		"leapmap.yaml":          ProjectConfig,
		"mappers/users.yaml":    UsersMapper,
		"mappers/reports.yaml":  ReportsMapper,
		"statements/Purge.sql": PurgeStatement,
	})
	return tmpDir
}

// WriteFiles writes files (relative name to content) under dir.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
}

// Buffers captures command output.
type Buffers struct {
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewBuffers creates empty output buffers.
func NewBuffers() *Buffers {
	return &Buffers{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}
}

// Output returns the stdout output as a string.
func (b *Buffers) Output() string {
	return b.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (b *Buffers) ErrorOutput() string {
	return b.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and basic structure.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	// Check for balanced code fences
	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	// Check that headers have content
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
