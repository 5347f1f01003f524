package cli

import (
	"context"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmap/internal/cli/commands"
	"github.com/leapstack-labs/leapmap/internal/cli/testutil"
)

// execute runs the root command with args and captures its output.
func execute(t *testing.T, args ...string) (*testutil.Buffers, error) {
	t.Helper()
	buf := testutil.NewBuffers()
	root := NewRootCmd()
	root.SetOut(buf.Out)
	root.SetErr(buf.ErrOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf, err
}

func TestValidate(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	buf, err := execute(t, "validate", "--project-dir", dir, "-o", "text")
	require.NoError(t, err, buf.ErrorOutput())
	assert.Contains(t, buf.Output(), "Loaded 3 documents: 3 statements, 2 result maps, 2 caches")
}

func TestValidate_JSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	buf, err := execute(t, "validate", "--project-dir", dir, "-o", "json")
	require.NoError(t, err, buf.ErrorOutput())

	var report struct {
		OK      bool              `json:"ok"`
		Summary commands.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Out.Bytes(), &report))
	assert.True(t, report.OK)
	assert.Equal(t, []string{"mappers/reports.yaml", "mappers/users.yaml", "statements/Purge.sql"}, report.Summary.Resources)
	assert.Equal(t, 2, report.Summary.Caches)
}

func TestValidate_ReportsUnresolved(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	testutil.WriteFiles(t, dir, map[string]string{
		"mappers/orphan.yaml": `namespace: orphan
result-map:
  - {id: child, extends: missing.parent}
`,
	})

	buf, err := execute(t, "validate", "--project-dir", dir, "-o", "text")
	require.ErrorIs(t, err, commands.ErrValidationFailed)
	assert.Contains(t, buf.ErrorOutput(), "1 element(s) could not be resolved")
	assert.Contains(t, buf.ErrorOutput(), `"orphan.child"`)

	buf, err = execute(t, "validate", "--project-dir", dir, "-o", "json")
	require.ErrorIs(t, err, commands.ErrValidationFailed)
	var report struct {
		OK         bool     `json:"ok"`
		Unresolved []string `json:"unresolved"`
	}
	require.NoError(t, json.Unmarshal(buf.Out.Bytes(), &report))
	assert.False(t, report.OK)
	assert.Len(t, report.Unresolved, 1)
}

func TestValidate_SetOverridesSetting(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	buf, err := execute(t, "inspect", "statements", "--project-dir", dir, "-o", "json", "--set", "cache_enabled=false")
	require.NoError(t, err, buf.ErrorOutput())

	var out map[string][]map[string]any
	require.NoError(t, json.Unmarshal(buf.Out.Bytes(), &out))
	for _, row := range out["statements"] {
		assert.Equal(t, "-", row["cache"], "statement %v", row["id"])
	}
}

func TestInspect_Markdown(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	buf, err := execute(t, "inspect", "--project-dir", dir)
	require.NoError(t, err, buf.ErrorOutput())

	out := buf.Output()
	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
	for _, want := range []string{"## Statements", "## Result maps", "## Caches", "users.FindByID", "2,048"} {
		assert.Contains(t, out, want)
	}
}

func TestInspect_CachesJSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	buf, err := execute(t, "inspect", "caches", "--project-dir", dir, "-o", "json")
	require.NoError(t, err, buf.ErrorOutput())

	var out map[string][]map[string]any
	require.NoError(t, json.Unmarshal(buf.Out.Bytes(), &out))
	assert.NotContains(t, out, "statements")
	require.Len(t, out["caches"], 2)

	byNamespace := map[string]map[string]any{}
	for _, row := range out["caches"] {
		byNamespace[row["namespace"].(string)] = row
	}
	assert.Equal(t, "users", byNamespace["reports"]["delegates_to"])
	assert.Equal(t, "lru", byNamespace["users"]["eviction"])
	assert.Equal(t, true, byNamespace["users"]["blocking"])
}

func TestInspect_RejectsUnknownSection(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	_, err := execute(t, "inspect", "models", "--project-dir", dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid argument"), err.Error())
}

func TestVersion_SkipsConfig(t *testing.T) {
	buf, err := execute(t, "version", "--project-dir", "/does/not/exist")
	require.NoError(t, err)
	assert.Contains(t, buf.Output(), "leapmap v"+Version)
}

func TestMissingProjectDir(t *testing.T) {
	_, err := execute(t, "validate", "--project-dir", "/does/not/exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project directory does not exist")
}
