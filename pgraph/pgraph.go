// Mgmt
// Copyright (C) 2013-2016+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package pgraph represents the internal "pointer graph" used to back a
// trellis trace: a directed acyclic structure of arena-held nodes connected
// by stable, index-free (pointer) edges. It is a generalization of the
// original mgmt resource-DAG: instead of wrapping a resources.Res, a Vertex
// here is any comparable value a caller wants to graph (trace nodes, in this
// repository).
package pgraph

import (
	"fmt"
	"sort"

	errwrap "github.com/pkg/errors"
)

// Vertex is anything that can sit in the graph. Implementations must have
// value identity suitable for use as a map key (pointers are typical).
type Vertex interface {
	String() string
}

// Edge is the data carried on a directed arc between two vertices.
type Edge interface {
	String() string
}

// Graph is the graph structure in this library.
// The graph abstract data type (ADT) is defined as follows:
// * the directed arrows point from left to right ( -> )
// * the arrows point in the direction of dependency ("must happen after")
// * IOW, if a -> b, then a must be (re)computed before b
type Graph struct {
	Name string

	adjacency map[Vertex]map[Vertex]Edge
}

// NewGraph builds a new, empty graph.
func NewGraph(name string) (*Graph, error) {
	if name == "" {
		return nil, fmt.Errorf("graph name cannot be empty")
	}
	return &Graph{
		Name:      name,
		adjacency: make(map[Vertex]map[Vertex]Edge),
	}, nil
}

// Adjacency exposes the raw adjacency map. Mutating the map directly bypasses
// graph bookkeeping; prefer AddEdge/DeleteEdge outside this package.
func (g *Graph) Adjacency() map[Vertex]map[Vertex]Edge {
	return g.adjacency
}

// Copy makes a shallow copy of the graph structure (vertices and edges are
// not themselves copied).
func (g *Graph) Copy() *Graph {
	newGraph := &Graph{
		Name:      g.Name,
		adjacency: make(map[Vertex]map[Vertex]Edge, len(g.adjacency)),
	}
	for k, v := range g.adjacency {
		newGraph.adjacency[k] = make(map[Vertex]Edge, len(v))
		for k2, v2 := range v {
			newGraph.adjacency[k][k2] = v2
		}
	}
	return newGraph
}

// GetName returns the name of the graph.
func (g *Graph) GetName() string { return g.Name }

// SetName sets the name of the graph.
func (g *Graph) SetName(name string) { g.Name = name }

// AddVertex adds one or more vertices to the graph. Adding a vertex that is
// already present is a no-op for that vertex.
func (g *Graph) AddVertex(xv ...Vertex) {
	for _, v := range xv {
		if _, exists := g.adjacency[v]; !exists {
			g.adjacency[v] = make(map[Vertex]Edge)
		}
	}
}

// DeleteVertex removes a vertex and any edges that touch it.
func (g *Graph) DeleteVertex(v Vertex) {
	delete(g.adjacency, v)
	for k := range g.adjacency {
		delete(g.adjacency[k], v)
	}
}

// AddEdge adds a directed edge from v1 to v2, implicitly adding either vertex
// if not already present.
func (g *Graph) AddEdge(v1, v2 Vertex, e Edge) {
	g.AddVertex(v1, v2)
	g.adjacency[v1][v2] = e
}

// DeleteEdge removes the edge between v1 and v2 if it exists.
func (g *Graph) DeleteEdge(v1, v2 Vertex) {
	if _, exists := g.adjacency[v1]; exists {
		delete(g.adjacency[v1], v2)
	}
}

// HasVertex returns true if v is part of the graph.
func (g *Graph) HasVertex(v Vertex) bool {
	_, exists := g.adjacency[v]
	return exists
}

// HasEdge returns true if there is a direct edge from v1 to v2.
func (g *Graph) HasEdge(v1, v2 Vertex) bool {
	m, exists := g.adjacency[v1]
	if !exists {
		return false
	}
	_, exists = m[v2]
	return exists
}

// NumVertices returns the number of vertices in the graph.
func (g *Graph) NumVertices() int { return len(g.adjacency) }

// NumEdges returns the number of edges in the graph.
func (g *Graph) NumEdges() int {
	count := 0
	for _, m := range g.adjacency {
		count += len(m)
	}
	return count
}

// Vertices returns an unordered slice of every vertex in the graph.
func (g *Graph) Vertices() []Vertex {
	out := make([]Vertex, 0, len(g.adjacency))
	for v := range g.adjacency {
		out = append(out, v)
	}
	return out
}

// VertexSlice is a sortable list of vertices, ordered by String().
type VertexSlice []Vertex

func (vs VertexSlice) Len() int           { return len(vs) }
func (vs VertexSlice) Swap(i, j int)      { vs[i], vs[j] = vs[j], vs[i] }
func (vs VertexSlice) Less(i, j int) bool { return vs[i].String() < vs[j].String() }

// VerticesSorted returns a deterministically ordered slice of every vertex.
// Used anywhere iteration order must not depend on map order (in particular,
// scaffold border construction, which must be reproducible given a seed).
func (g *Graph) VerticesSorted() []Vertex {
	vs := g.Vertices()
	sort.Sort(VertexSlice(vs))
	return vs
}

// VertexMatchFn returns the first vertex for which fn returns true, or nil
// if none match. Ties are broken by VerticesSorted order so the result is
// deterministic.
func (g *Graph) VertexMatchFn(fn func(Vertex) (bool, error)) (Vertex, error) {
	for _, v := range g.VerticesSorted() {
		b, err := fn(v)
		if err != nil {
			return nil, errwrap.Wrapf(err, "VertexMatchFn failed")
		}
		if b {
			return v, nil
		}
	}
	return nil, nil
}

func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%s): %d vertices, %d edges", g.Name, g.NumVertices(), g.NumEdges())
}

// IncomingGraphVertices returns the vertices with an edge pointing at v.
func (g *Graph) IncomingGraphVertices(v Vertex) []Vertex {
	var out []Vertex
	for v1, m := range g.adjacency {
		if _, exists := m[v]; exists {
			out = append(out, v1)
		}
	}
	return out
}

// OutgoingGraphVertices returns the vertices that v has an edge pointing at.
func (g *Graph) OutgoingGraphVertices(v Vertex) []Vertex {
	var out []Vertex
	for v2 := range g.adjacency[v] {
		out = append(out, v2)
	}
	return out
}

// GraphVertices returns the union of incoming and outgoing neighbors of v.
func (g *Graph) GraphVertices(v Vertex) []Vertex {
	return append(g.IncomingGraphVertices(v), g.OutgoingGraphVertices(v)...)
}

// DFS returns every vertex reachable from start by following outgoing edges,
// start included.
func (g *Graph) DFS(start Vertex) []Vertex {
	if !g.HasVertex(start) {
		return nil
	}
	var d []Vertex
	seen := make(map[Vertex]struct{})
	var stack []Vertex
	stack = append(stack, start)
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, exists := seen[v]; exists {
			continue
		}
		seen[v] = struct{}{}
		d = append(d, v)
		for _, w := range g.OutgoingGraphVertices(v) {
			if _, exists := seen[w]; !exists {
				stack = append(stack, w)
			}
		}
	}
	return d
}

// ReverseDFS returns every vertex that can reach start by following incoming
// edges backward, start included. Used to walk "upstream" from a node.
func (g *Graph) ReverseDFS(start Vertex) []Vertex {
	if !g.HasVertex(start) {
		return nil
	}
	var d []Vertex
	seen := make(map[Vertex]struct{})
	var stack []Vertex
	stack = append(stack, start)
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, exists := seen[v]; exists {
			continue
		}
		seen[v] = struct{}{}
		d = append(d, v)
		for _, w := range g.IncomingGraphVertices(v) {
			if _, exists := seen[w]; !exists {
				stack = append(stack, w)
			}
		}
	}
	return d
}

// FilterGraph builds a new graph containing only the given vertices, and
// whichever edges between them exist in the receiver.
func (g *Graph) FilterGraph(name string, vertices []Vertex) (*Graph, error) {
	newGraph, err := NewGraph(name)
	if err != nil {
		return nil, err
	}
	keep := make(map[Vertex]struct{}, len(vertices))
	for _, v := range vertices {
		keep[v] = struct{}{}
		newGraph.AddVertex(v)
	}
	for v1, m := range g.adjacency {
		if _, ok := keep[v1]; !ok {
			continue
		}
		for v2, e := range m {
			if _, ok := keep[v2]; !ok {
				continue
			}
			newGraph.AddEdge(v1, v2, e)
		}
	}
	return newGraph, nil
}

// InDegree returns the in-degree of every vertex in the graph. Used directly
// to seed a scaffold node's regenCount: spec §4.E defines regenCount as "the
// in-degree-within-scaffold of each resampling node".
func (g *Graph) InDegree() map[Vertex]int {
	result := make(map[Vertex]int, len(g.adjacency))
	for v := range g.adjacency {
		result[v] = 0
	}
	for _, m := range g.adjacency {
		for v2 := range m {
			result[v2]++
		}
	}
	return result
}

// OutDegree returns the out-degree of every vertex in the graph.
func (g *Graph) OutDegree() map[Vertex]int {
	result := make(map[Vertex]int, len(g.adjacency))
	for v1, m := range g.adjacency {
		result[v1] += len(m)
		for v2 := range m {
			if _, exists := result[v2]; !exists {
				result[v2] = 0
			}
		}
	}
	return result
}

// TopologicalSort orders the vertices so that every edge points from an
// earlier vertex to a later one (Kahn's algorithm). ok is false if the graph
// has a cycle, which should never happen for a trace or a scaffold border.
func (g *Graph) TopologicalSort() (result []Vertex, ok bool) {
	count := len(g.adjacency)
	q := make([]Vertex, 0, count)
	result = make([]Vertex, 0, count)

	inDegree := g.InDegree()
	for v, d := range inDegree {
		if d == 0 {
			q = append(q, v)
		}
	}

	// sort the initial queue for determinism
	sort.Sort(VertexSlice(q))

	for len(q) > 0 {
		v := q[0]
		q = q[1:]
		result = append(result, v)
		var ready []Vertex
		for _, n := range g.OutgoingGraphVertices(v) {
			inDegree[n]--
			if inDegree[n] == 0 {
				ready = append(ready, n)
			}
		}
		sort.Sort(VertexSlice(ready))
		q = append(q, ready...)
	}

	return result, len(result) == count
}

// Reachability returns a shortest path of vertices from a to b following
// outgoing edges (inclusive of both ends), or nil if b is unreachable from a.
func (g *Graph) Reachability(a, b Vertex) []Vertex {
	if a == b {
		return []Vertex{a}
	}
	prev := map[Vertex]Vertex{}
	seen := map[Vertex]struct{}{a: {}}
	queue := []Vertex{a}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.OutgoingGraphVertices(v) {
			if _, exists := seen[w]; exists {
				continue
			}
			seen[w] = struct{}{}
			prev[w] = v
			if w == b {
				// reconstruct
				path := []Vertex{b}
				for path[0] != a {
					path = append([]Vertex{prev[path[0]]}, path...)
				}
				return path
			}
			queue = append(queue, w)
		}
	}
	return nil
}

// VertexContains returns true if needle is present in haystack.
func VertexContains(needle Vertex, haystack []Vertex) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// EdgeContains returns true if needle is present in haystack.
func EdgeContains(needle Edge, haystack []Edge) bool {
	for _, e := range haystack {
		if e == needle {
			return true
		}
	}
	return false
}

// Reverse returns a new slice with vs in the opposite order.
func Reverse(vs []Vertex) []Vertex {
	out := make([]Vertex, len(vs))
	for i, v := range vs {
		out[len(vs)-1-i] = v
	}
	return out
}
