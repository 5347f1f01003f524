package cache

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmap/internal/testutil"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

func keys(t *testing.T, c core.Cache, ks ...core.CacheKey) []bool {
	t.Helper()
	out := make([]bool, len(ks))
	for i, k := range ks {
		_, ok, err := c.Get(k)
		require.NoError(t, err)
		out[i] = ok
	}
	return out
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU(NewPerpetual("ns"), 2)
	require.NoError(t, c.Put("a", 1))
	require.NoError(t, c.Put("b", 2))

	// Touch a so b becomes the eldest.
	_, _, _ = c.Get("a")
	require.NoError(t, c.Put("c", 3))

	assert.Equal(t, []bool{true, false, true}, keys(t, c, "a", "b", "c"))
	assert.Equal(t, 2, c.Size())

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Size())
}

func TestFIFO_EvictsOldest(t *testing.T) {
	c := NewFIFO(NewPerpetual("ns"), 2)
	require.NoError(t, c.Put("a", 1))
	require.NoError(t, c.Put("b", 2))
	_, _, _ = c.Get("a")
	require.NoError(t, c.Put("c", 3))

	assert.Equal(t, []bool{false, true, true}, keys(t, c, "a", "b", "c"))
}

func TestScheduled_ClearsAfterInterval(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := newScheduledWithClock(NewPerpetual("ns"), time.Minute, clock)

	require.NoError(t, c.Put("a", 1))
	assert.Equal(t, []bool{true}, keys(t, c, "a"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, []bool{false}, keys(t, c, "a"))
	assert.Equal(t, 0, c.Size())
}

func TestSerialized_ReturnsCopies(t *testing.T) {
	c := NewSerialized(NewPerpetual("ns"))
	original := map[string]any{"name": "ada"}
	require.NoError(t, c.Put("a", original))

	original["name"] = "changed"
	v, ok, err := c.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "ada"}, v)

	v.(map[string]any)["name"] = "mutated"
	again, _, _ := c.Get("a")
	assert.Equal(t, map[string]any{"name": "ada"}, again)
}

func TestLogging_HitRatio(t *testing.T) {
	c := NewLogging(NewPerpetual("ns"), testutil.NewTestLogger(t))
	assert.Zero(t, c.HitRatio())

	require.NoError(t, c.Put("a", 1))
	keys(t, c, "a", "b", "a", "c")
	assert.InDelta(t, 0.5, c.HitRatio(), 1e-9)
}

func TestNewKey_And_Hash(t *testing.T) {
	k := NewKey("users.FindByID", 42, "x")
	assert.Equal(t, core.CacheKey("users.FindByID:42:x"), k)
	assert.Equal(t, Hash(k), Hash(NewKey("users.FindByID", 42, "x")))
	assert.NotEqual(t, Hash(k), Hash(NewKey("users.FindByID", 43, "x")))
}

func TestBuilder_Build(t *testing.T) {
	tests := []struct {
		name      string
		cfg       core.CacheConfig
		wantChain []string
		wantErr   string
	}{
		{
			name:      "defaults",
			cfg:       core.CacheConfig{Namespace: "ns"},
			wantChain: []string{"*cache.Synchronized", "*cache.Logging", "*cache.Serialized", "*cache.LRU", "*cache.Perpetual"},
		},
		{
			name: "fifo read-only scheduled blocking",
			cfg: core.CacheConfig{
				Namespace: "ns", Eviction: "fifo", ReadOnly: true,
				FlushInterval: time.Minute, Blocking: true,
			},
			wantChain: []string{"*cache.Blocking", "*cache.Synchronized", "*cache.Logging", "*cache.Scheduled", "*cache.FIFO", "*cache.Perpetual"},
		},
		{
			name:      "no eviction",
			cfg:       core.CacheConfig{Namespace: "ns", Eviction: "none", ReadOnly: true},
			wantChain: []string{"*cache.Synchronized", "*cache.Logging", "*cache.Perpetual"},
		},
		{
			name:    "missing id",
			cfg:     core.CacheConfig{},
			wantErr: "cache id is required",
		},
		{
			name:    "unknown type",
			cfg:     core.CacheConfig{Namespace: "ns", Type: "redis"},
			wantErr: `unknown cache type "redis"`,
		},
		{
			name:    "unknown eviction",
			cfg:     core.CacheConfig{Namespace: "ns", Eviction: "random"},
			wantErr: `unknown eviction "random"`,
		},
		{
			name:    "unknown property",
			cfg:     core.CacheConfig{Namespace: "ns", Properties: map[string]string{"color": "red"}},
			wantErr: "apply properties",
		},
		{
			name:    "bad timeout",
			cfg:     core.CacheConfig{Namespace: "ns", Blocking: true, Properties: map[string]string{"timeout": "soon"}},
			wantErr: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Builder{Logger: testutil.NewTestLogger(t)}.Build(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChain, chain(c))
			assert.Equal(t, "ns", c.ID())
		})
	}
}

func TestBuilder_BlockingTimeout(t *testing.T) {
	c, err := Builder{BlockingTimeout: time.Second}.Build(core.CacheConfig{Namespace: "ns", Blocking: true})
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.(*Blocking).Timeout())

	c, err = Builder{BlockingTimeout: time.Second}.Build(core.CacheConfig{
		Namespace: "ns", Blocking: true, Properties: map[string]string{"timeout": "20ms"},
	})
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, c.(*Blocking).Timeout())
}

func TestRegister_CustomImplementation(t *testing.T) {
	Register("Custom-Test", func(id string, _ *slog.Logger) core.Cache { return NewPerpetual(id) })
	_, ok := Get("custom-test")
	assert.True(t, ok)
	assert.Contains(t, ListImplementations(), "custom-test")
}

func chain(c core.Cache) []string {
	var out []string
	for c != nil {
		out = append(out, fmt.Sprintf("%T", c))
		d, ok := c.(Delegating)
		if !ok {
			break
		}
		c = d.Delegate()
	}
	return out
}
