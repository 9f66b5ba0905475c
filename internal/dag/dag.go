// SPDX-License-Identifier: MPL-2.0

// Package dag orders services by their depends_on edges and rejects cycles.
package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycle is the sentinel error wrapped by CycleError.
	ErrCycle = errors.New("dependency cycle")

	// ErrUnknownDependency is the sentinel error wrapped by UnknownDependencyError.
	ErrUnknownDependency = errors.New("unknown dependency")
)

type (
	// CycleError indicates that the graph contains a cycle, preventing ordering.
	CycleError[K comparable] struct {
		// Nodes are the nodes left with unresolved dependencies, in insertion order.
		// They include every cycle member, plus anything downstream of one.
		Nodes []K
	}

	// UnknownDependencyError is returned by Resolve when a node depends on a key that
	// was never declared.
	UnknownDependencyError[K comparable] struct {
		Node       K
		Dependency K
	}

	// Graph is a directed graph for topological sorting. An edge from A to B means A
	// must be handled before B.
	Graph[K comparable] struct {
		adjacency map[K][]K
		// nodes keeps insertion order so that the output is deterministic.
		nodes   []K
		nodeSet map[K]bool
	}
)

func (e *CycleError[K]) Error() string {
	parts := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		parts[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("dependency cycle among: %s", strings.Join(parts, ", "))
}

// Unwrap returns ErrCycle for errors.Is() compatibility.
func (e *CycleError[K]) Unwrap() error { return ErrCycle }

func (e *UnknownDependencyError[K]) Error() string {
	return fmt.Sprintf("%v depends on %v, which is not defined", e.Node, e.Dependency)
}

// Unwrap returns ErrUnknownDependency for errors.Is() compatibility.
func (e *UnknownDependencyError[K]) Unwrap() error { return ErrUnknownDependency }

// New creates an empty Graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		adjacency: make(map[K][]K),
		nodeSet:   make(map[K]bool),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph[K]) AddNode(node K) {
	if g.nodeSet[node] {
		return
	}
	g.nodeSet[node] = true
	g.nodes = append(g.nodes, node)
}

// Has reports whether node was added.
func (g *Graph[K]) Has(node K) bool { return g.nodeSet[node] }

// AddEdge adds a directed edge meaning "from" must be handled before "to".
// Both nodes are added if missing.
func (g *Graph[K]) AddEdge(from, to K) {
	g.AddNode(from)
	g.AddNode(to)
	g.adjacency[from] = append(g.adjacency[from], to)
}

// TopologicalSort returns an order using Kahn's algorithm. Nodes at the same level
// keep their insertion order.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[K]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, n := range neighbors {
			inDegree[n]++
		}
	}

	queue := make([]K, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]K, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, n := range g.adjacency[node] {
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var stuck []K
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				stuck = append(stuck, node)
			}
		}
		return nil, &CycleError[K]{Nodes: stuck}
	}
	return result, nil
}

// Resolve orders items so that every item follows its dependencies. key names an item
// and deps lists the keys it depends on. Every dependency must name another item.
// Items with no ordering constraint between them keep their input order.
func Resolve[T any, K comparable](items []T, key func(T) K, deps func(T) []K) ([]T, error) {
	g := New[K]()
	byKey := make(map[K]T, len(items))
	for _, item := range items {
		k := key(item)
		g.AddNode(k)
		byKey[k] = item
	}

	for _, item := range items {
		for _, dep := range deps(item) {
			if !g.Has(dep) {
				return nil, &UnknownDependencyError[K]{Node: key(item), Dependency: dep}
			}
			g.AddEdge(dep, key(item))
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, nil
}
