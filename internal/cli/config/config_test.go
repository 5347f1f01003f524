package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "leapmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "config file")
	flags.String("project-dir", "", "project directory")
	flags.StringSlice("mappers", nil, "mapper resources")
	flags.String("mapper-dir", "", "mapper directory")
	flags.StringArray("set", nil, "setting override")
	flags.BoolP("verbose", "v", false, "verbose")
	flags.StringP("output", "o", "", "output format")
	return flags
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	flags := newFlags()
	require.NoError(t, flags.Set("project-dir", dir))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, []string{DefaultMapperPattern}, cfg.Mappers)
	assert.Equal(t, filepath.Join(dir, DefaultMapperDir), cfg.MapperDir)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Empty(t, GetConfigFileUsed())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `configuration: config.yaml
mappers:
  - users.yaml
  - orders/*.yaml
settings:
  cache_enabled: false
  blocking_timeout: 250
properties:
  schema: app
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, cfgPath, GetConfigFileUsed())
	assert.Equal(t, "config.yaml", cfg.Configuration)
	assert.Equal(t, []string{"users.yaml", "orders/*.yaml"}, cfg.Mappers)
	assert.Equal(t, "app", cfg.Properties["schema"])

	s, err := cfg.MappingSettings()
	require.NoError(t, err)
	assert.False(t, s.CacheEnabled)
	assert.Equal(t, 250*time.Millisecond, s.BlockingTimeout)
}

func TestLoadConfig_FindsFileInProjectDir(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	writeConfig(t, dir, "output: json\n")

	flags := newFlags()
	require.NoError(t, flags.Set("project-dir", dir))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, filepath.Join(dir, "leapmap.yaml"), GetConfigFileUsed())
}

// TestLoadConfig_FlagPrecedence tests that flags override env vars and config file.
func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, t.TempDir(), "output: markdown\nmappers: [from_file.yaml]\n")

	t.Setenv("LEAPMAP_OUTPUT", "text")
	t.Setenv("LEAPMAP_MAPPERS", "a.yaml, b.yaml")

	flags := newFlags()
	require.NoError(t, flags.Set("output", "json"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.OutputFormat, "flag value should override config file and env var")
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.Mappers, "env var should override config file")

	require.NoError(t, flags.Set("mappers", "c.yaml,d.yaml"))
	cfg, err = LoadConfig(cfgPath, flags)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.yaml", "d.yaml"}, cfg.Mappers)
}

func TestLoadConfig_NestedEnvAndSetFlag(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, t.TempDir(), "settings:\n  auto_mapping: none\n  unknown_types: error\n")

	t.Setenv("LEAPMAP_SETTINGS__AUTO_MAPPING", "full")

	flags := newFlags()
	require.NoError(t, flags.Set("set", "unknown_types=ignore"))
	require.NoError(t, flags.Set("set", "Default_Enum_Marshaller=ordinal"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	s, err := cfg.MappingSettings()
	require.NoError(t, err)
	assert.Equal(t, "full", s.AutoMapping)
	assert.Equal(t, "ignore", s.UnknownTypes)
	assert.Equal(t, "ordinal", s.DefaultEnumMarshaller)
}

func TestLoadConfig_InvalidSetFlag(t *testing.T) {
	ResetConfig()
	flags := newFlags()
	require.NoError(t, flags.Set("project-dir", t.TempDir()))
	require.NoError(t, flags.Set("set", "cache_enabled"))

	_, err := LoadConfig("", flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want key=value")
}

func TestLoadConfig_DotEnv(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("LEAPMAP_PROPERTIES__TENANT=acme\nLEAPMAP_OUTPUT=markdown\n"), 0600))
	t.Cleanup(func() {
		_ = os.Unsetenv("LEAPMAP_PROPERTIES__TENANT")
	})

	// Already set in the process environment, so .env must not replace it.
	t.Setenv("LEAPMAP_OUTPUT", "text")

	flags := newFlags()
	require.NoError(t, flags.Set("project-dir", dir))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Properties["tenant"])
	assert.Equal(t, "text", cfg.OutputFormat)
}

func TestLoadConfig_BadFile(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, t.TempDir(), "mappers: [unclosed\n")

	_, err := LoadConfig(cfgPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestFindProjectRootUpward(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "verbose: true\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0750))

	assert.Equal(t, root, findProjectRootUpward(nested))
	assert.Empty(t, findProjectRootUpward(t.TempDir()))
}

// TestConfig_Validate tests the Config.Validate method.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		errSubstr string
	}{
		{name: "valid", cfg: Config{Mappers: []string{"users.yaml"}, OutputFormat: "auto"}},
		{name: "configuration only", cfg: Config{Configuration: "config.yaml"}},
		{name: "nothing to load", cfg: Config{}, errSubstr: "no mappers configured"},
		{name: "bad output", cfg: Config{Mappers: []string{"x"}, OutputFormat: "html"}, errSubstr: "unknown output format"},
		{
			name:      "bad setting",
			cfg:       Config{Mappers: []string{"x"}, Settings: map[string]string{"auto_mapping": "always"}},
			errSubstr: "auto_mapping",
		},
		{
			name:      "unknown setting",
			cfg:       Config{Mappers: []string{"x"}, Settings: map[string]string{"lazy_loading": "true"}},
			errSubstr: "not known",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestGetLogger_Fallback(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))
}
