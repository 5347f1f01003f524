// Package dag holds the reference graph between pending configuration
// elements: result maps extending other result maps and namespaces
// delegating their cache. It finds the elements caught in reference cycles.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

// Graph is a directed graph of references between element ids. A link
// from -> to means from references (extends, delegates to) to.
type Graph struct {
	refs      map[string][]string
	referrers map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		refs:      make(map[string][]string),
		referrers: make(map[string][]string),
	}
}

// Add adds an element. Adding it again is a no-op.
func (g *Graph) Add(id string) {
	if _, ok := g.refs[id]; ok {
		return
	}
	g.refs[id] = nil
	g.referrers[id] = nil
}

// Has reports whether id was added.
func (g *Graph) Has(id string) bool {
	_, ok := g.refs[id]
	return ok
}

// Len returns the number of elements.
func (g *Graph) Len() int { return len(g.refs) }

// Link records that from references to. Both must have been added; an
// element referencing itself is rejected since callers report that directly.
func (g *Graph) Link(from, to string) error {
	if !g.Has(from) {
		return fmt.Errorf("unknown element %q", from)
	}
	if !g.Has(to) {
		return fmt.Errorf("unknown element %q", to)
	}
	if from == to {
		return fmt.Errorf("%q references itself", from)
	}
	if !slices.Contains(g.refs[from], to) {
		g.refs[from] = append(g.refs[from], to)
		g.referrers[to] = append(g.referrers[to], from)
	}
	return nil
}

// References returns the elements id references, in link order.
func (g *Graph) References(id string) []string { return g.refs[id] }

// Referrers returns the elements referencing id, in link order.
func (g *Graph) Referrers(id string) []string { return g.referrers[id] }

func (g *Graph) ids() []string {
	ids := make([]string, 0, len(g.refs))
	for id := range g.refs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Cycles returns the groups of elements that reference each other, each
// group sorted and the groups ordered by their first member. Elements that
// merely reference into a cycle are not part of it.
func (g *Graph) Cycles() [][]string {
	// Tarjan's strongly connected components.
	var (
		index   = make(map[string]int)
		low     = make(map[string]int)
		onStack = make(map[string]bool)
		stack   []string
		next    int
		cycles  [][]string
	)

	var connect func(id string)
	connect = func(id string) {
		index[id], low[id] = next, next
		next++
		stack = append(stack, id)
		onStack[id] = true

		for _, to := range g.refs[id] {
			if _, seen := index[to]; !seen {
				connect(to)
				low[id] = min(low[id], low[to])
			} else if onStack[to] {
				low[id] = min(low[id], index[to])
			}
		}

		if low[id] != index[id] {
			return
		}
		var group []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			group = append(group, top)
			if top == id {
				break
			}
		}
		// Self links are rejected, so a single element is never a cycle.
		if len(group) > 1 {
			slices.Sort(group)
			cycles = append(cycles, group)
		}
	}

	for _, id := range g.ids() {
		if _, seen := index[id]; !seen {
			connect(id)
		}
	}
	slices.SortFunc(cycles, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return cycles
}

// Cyclic returns every element on some cycle, sorted.
func (g *Graph) Cyclic() []string {
	var out []string
	for _, group := range g.Cycles() {
		out = append(out, group...)
	}
	slices.Sort(out)
	return out
}
