// Package dag holds the model dependency graph. Nodes are model names,
// edges point from a producer to the models that select from it. It
// answers the ordering questions the pipeline asks: is the graph
// acyclic, in which order do models resolve, and which models can run
// in parallel.
package dag

import (
	"fmt"
	"sort"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// Graph is a directed graph over model names. Adjacency lists are kept
// sorted so every traversal is deterministic regardless of the order
// models were discovered in.
type Graph struct {
	nodes    map[string]struct{}
	children map[string][]string // producer -> consumers
	parents  map[string][]string // consumer -> producers
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]struct{}),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode registers a model name. Adding an existing name is a no-op.
func (g *Graph) AddNode(name string) {
	g.nodes[name] = struct{}{}
}

// AddEdge records that child depends on parent. Both endpoints must
// already be nodes. Duplicate edges collapse; a self-edge is accepted
// here and reported by HasCycle as a one-element cycle.
func (g *Graph) AddEdge(parent, child string) error {
	if _, ok := g.nodes[parent]; !ok {
		return fmt.Errorf("dag: %q is not a node", parent)
	}
	if _, ok := g.nodes[child]; !ok {
		return fmt.Errorf("dag: %q is not a node", child)
	}
	g.children[parent] = insertSorted(g.children[parent], child)
	g.parents[child] = insertSorted(g.parents[child], parent)
	return nil
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns all node names in lexicographic order.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetParents returns the direct dependencies of name, sorted.
func (g *Graph) GetParents(name string) []string {
	return copySlice(g.parents[name])
}

// GetChildren returns the direct dependents of name, sorted.
func (g *Graph) GetChildren(name string) []string {
	return copySlice(g.children[name])
}

// Ancestors returns every node reachable upstream of name, sorted.
// The node itself is not included.
func (g *Graph) Ancestors(name string) []string {
	return g.reachable(name, g.parents)
}

// Descendants returns every node reachable downstream of name, sorted.
// The node itself is not included.
func (g *Graph) Descendants(name string) []string {
	return g.reachable(name, g.children)
}

func (g *Graph) reachable(name string, adj map[string][]string) []string {
	seen := make(map[string]bool)
	var walk func(n string)
	walk = func(n string) {
		for _, next := range adj[n] {
			if !seen[next] {
				seen[next] = true
				walk(next)
			}
		}
	}
	walk(name)
	delete(seen, name)

	result := make([]string, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}

// HasCycle reports whether the graph contains a cycle. When it does,
// the returned path lists the models along one cycle in edge order,
// with the entry node repeated at the end to close the loop.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	cameFrom := make(map[string]string)

	var cycle []string
	var visit func(n string) bool
	visit = func(n string) bool {
		visited[n] = true
		onStack[n] = true
		for _, child := range g.children[n] {
			if !visited[child] {
				cameFrom[child] = n
				if visit(child) {
					return true
				}
			} else if onStack[child] {
				cycle = []string{child}
				for at := n; at != child; at = cameFrom[at] {
					cycle = append([]string{at}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}
		onStack[n] = false
		return false
	}

	for _, n := range g.Nodes() {
		if !visited[n] {
			if visit(n) {
				return true, cycle
			}
		}
	}
	return false, nil
}

// TopologicalSort returns the node names in an order where every
// producer precedes its consumers. Ties break lexicographically, so
// the order is stable across runs. A cycle yields a
// core.CyclicDependencyError.
func (g *Graph) TopologicalSort() ([]string, error) {
	if cyclic, cycle := g.HasCycle(); cyclic {
		return nil, core.NewCyclicDependencyError(cycle)
	}

	indegree := make(map[string]int, len(g.nodes))
	for name := range g.nodes {
		indegree[name] = len(g.parents[name])
	}

	var ready []string
	for _, name := range g.Nodes() {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, child := range g.children[next] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = insertSorted(ready, child)
			}
		}
	}
	return order, nil
}

// GetExecutionLevels groups the nodes into layers: level 0 holds
// models with no dependencies, and a model sits one level below its
// deepest producer. Members of one level never depend on each other,
// so a level can be processed in parallel once the previous level is
// done. Levels and their members are sorted.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, name := range order {
		d := 0
		for _, parent := range g.parents[name] {
			if depth[parent]+1 > d {
				d = depth[parent] + 1
			}
		}
		depth[name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, name := range order {
		levels[depth[name]] = append(levels[depth[name]], name)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// insertSorted inserts s into the sorted slice unless already present.
func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	if i < len(list) && list[i] == s {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

func copySlice(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}
