package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// build adds ids and links each pair as from -> to.
func build(t *testing.T, ids []string, links [][2]string) *Graph {
	t.Helper()
	g := New()
	for _, id := range ids {
		g.Add(id)
	}
	for _, l := range links {
		require.NoError(t, g.Link(l[0], l[1]))
	}
	return g
}

func TestGraph_Link(t *testing.T) {
	g := build(t, []string{"ns.base", "ns.user", "ns.admin"}, [][2]string{
		{"ns.user", "ns.base"},
		{"ns.admin", "ns.user"},
		{"ns.admin", "ns.user"},
	})

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []string{"ns.base"}, g.References("ns.user"))
	assert.Equal(t, []string{"ns.user"}, g.References("ns.admin"), "duplicate links collapse")
	assert.Equal(t, []string{"ns.admin"}, g.Referrers("ns.user"))
	assert.Empty(t, g.References("ns.base"))

	g.Add("ns.user")
	assert.Equal(t, []string{"ns.base"}, g.References("ns.user"), "re-adding keeps links")
}

func TestGraph_Link_Errors(t *testing.T) {
	g := build(t, []string{"a"}, nil)

	tests := []struct {
		name     string
		from, to string
	}{
		{"unknown target", "a", "missing"},
		{"unknown source", "missing", "a"},
		{"self reference", "a", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, g.Link(tt.from, tt.to))
		})
	}
}

func TestGraph_Cycles(t *testing.T) {
	tests := []struct {
		name   string
		ids    []string
		links  [][2]string
		cycles [][]string
		cyclic []string
	}{
		{
			name:  "chain",
			ids:   []string{"a", "b", "c"},
			links: [][2]string{{"a", "b"}, {"b", "c"}},
		},
		{
			name:   "pair with a referrer outside",
			ids:    []string{"r1", "r2", "r3", "r4"},
			links:  [][2]string{{"r1", "r2"}, {"r2", "r1"}, {"r3", "r1"}},
			cycles: [][]string{{"r1", "r2"}},
			cyclic: []string{"r1", "r2"},
		},
		{
			name: "two rings",
			ids:  []string{"x", "y", "z", "b", "a"},
			links: [][2]string{
				{"x", "y"}, {"y", "z"}, {"z", "x"},
				{"b", "a"}, {"a", "b"},
			},
			cycles: [][]string{{"a", "b"}, {"x", "y", "z"}},
			cyclic: []string{"a", "b", "x", "y", "z"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t, tt.ids, tt.links)
			assert.Equal(t, tt.cycles, g.Cycles())
			assert.Equal(t, tt.cyclic, g.Cyclic())
		})
	}
}
