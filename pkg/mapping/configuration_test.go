package mapping

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmap/internal/testutil"
	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/marshal"
)

func newConfiguration(t *testing.T, settings *Settings) *Configuration {
	t.Helper()
	c, err := New(Options{Settings: settings, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return c
}

func TestNew_RejectsInvalidSettings(t *testing.T) {
	s := DefaultSettings()
	s.DefaultEnumMarshaller = "bitmask"
	_, err := New(Options{Settings: &s})
	assert.Error(t, err)
}

func TestConfiguration_Caches(t *testing.T) {
	s := DefaultSettings()
	s.BlockingTimeout = time.Second
	c := newConfiguration(t, &s)

	own, err := c.AddCache(core.CacheConfig{Namespace: "A", Blocking: true})
	require.NoError(t, err)
	blocking, ok := own.(*cache.Blocking)
	require.True(t, ok, "blocking caches are wrapped last")
	assert.Equal(t, time.Second, blocking.Timeout(), "timeout comes from the settings")

	_, err = c.AddCache(core.CacheConfig{Namespace: "A"})
	assert.Error(t, err, "one cache per namespace")

	_, err = c.UseCacheRef("B", "C")
	assert.ErrorIs(t, err, ErrIncomplete)

	shared, err := c.UseCacheRef("B", "A")
	require.NoError(t, err)
	assert.Same(t, own, shared)

	_, err = c.UseCacheRef("C", "B")
	require.NoError(t, err)
	viaB, _ := c.Cache("C")
	assert.Same(t, own, viaB, "delegation is transitive")

	assert.Equal(t, []string{"A", "B", "C"}, c.CacheNamespaces())
}

func TestConfiguration_Registries(t *testing.T) {
	c := newConfiguration(t, nil)

	rm := core.NewResultMap("ns.user", reflect.TypeFor[Account](), nil, nil, nil)
	require.NoError(t, c.AddResultMap(rm))
	assert.Error(t, c.AddResultMap(rm))
	got, ok := c.ResultMap("ns.user")
	require.True(t, ok)
	assert.Same(t, rm, got)

	stmt := &core.Statement{ID: "ns.find", Namespace: "ns", Kind: core.KindSelect}
	require.NoError(t, c.AddStatement(stmt))
	assert.Error(t, c.AddStatement(stmt))
	s, ok := c.Statement("ns.find")
	require.True(t, ok)
	assert.Same(t, stmt, s)
	assert.Len(t, c.Statements(), 1)

	c.AddLoadedResource("b.yaml")
	c.AddLoadedResource("a.yaml")
	assert.True(t, c.IsResourceLoaded("a.yaml"))
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, c.LoadedResources())
}

func TestConfiguration_ResolveType(t *testing.T) {
	c := newConfiguration(t, nil)
	_, err := c.ResolveType("Missing")
	assert.ErrorIs(t, err, ErrUnknownType)

	s := DefaultSettings()
	s.UnknownTypes = UnknownTypesIgnore
	c = newConfiguration(t, &s)
	typ, err := c.ResolveType("Missing")
	require.NoError(t, err)
	assert.Nil(t, typ)
}

type Status string

func TestConfiguration_EnumSetting(t *testing.T) {
	h := marshal.NewHierarchy()
	require.NoError(t, h.DeclareEnum(reflect.TypeFor[Status](), []any{Status("new"), Status("done")}))

	s := DefaultSettings()
	s.DefaultEnumMarshaller = "ordinal"
	c, err := New(Options{Settings: &s, Hierarchy: h})
	require.NoError(t, err)

	m, err := c.Marshaller(reflect.TypeFor[Status](), core.WireInteger)
	require.NoError(t, err)
	v, err := m.ToWire(Status("done"), core.WireInteger)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	m, err = c.Marshaller(nil, core.WireVarchar)
	require.NoError(t, err)
	assert.IsType(t, marshal.StringMarshaller{}, m, "unknown value types fall back to the wire type")
}
