package schema

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyGraph orders entity types by their to-one relations. An entity
// depends on the target of every foreign key it stores, so rows of the target
// must exist first. Self references are ignored.
type DependencyGraph struct {
	nodes []string
	edges map[string][]string // entity -> entities it references
}

// NewDependencyGraph builds the graph of the given entity types
func NewDependencyGraph(entities []*EntityType) *DependencyGraph {
	graph := &DependencyGraph{
		edges: make(map[string][]string),
	}

	for _, entity := range entities {
		graph.nodes = append(graph.nodes, entity.Name)
		seen := make(map[string]bool)
		for _, rel := range entity.Relations {
			if rel.Many || rel.Target == nil || rel.Target.Name == entity.Name || seen[rel.Target.Name] {
				continue
			}
			seen[rel.Target.Name] = true
			graph.edges[entity.Name] = append(graph.edges[entity.Name], rel.Target.Name)
		}
		sort.Strings(graph.edges[entity.Name])
	}
	sort.Strings(graph.nodes)

	return graph
}

// Dependencies returns the entities the given entity references
func (g *DependencyGraph) Dependencies(entity string) []string {
	return append([]string(nil), g.edges[entity]...)
}

// Dependents returns the entities that reference the given entity, sorted
func (g *DependencyGraph) Dependents(entity string) []string {
	var dependents []string
	for _, node := range g.nodes {
		for _, dep := range g.edges[node] {
			if dep == entity {
				dependents = append(dependents, node)
				break
			}
		}
	}
	return dependents
}

// DetectCycles returns the reference cycles of the graph. Each cycle lists
// its entities in reference order, starting from the first one visited.
func (g *DependencyGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onPath := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		onPath[node] = true
		path = append(path, node)

		for _, next := range g.edges[node] {
			if !visited[next] {
				dfs(next, path)
				continue
			}
			if !onPath[next] {
				continue
			}
			for i, n := range path {
				if n == next {
					cycles = append(cycles, append([]string(nil), path[i:]...))
					break
				}
			}
		}

		onPath[node] = false
	}

	for _, node := range g.nodes {
		if !visited[node] {
			dfs(node, nil)
		}
	}
	return cycles
}

// TopologicalSort returns the entities with referenced entities first. Ties
// are broken by name so the order is stable.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	pending := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string)
	for _, node := range g.nodes {
		for _, dep := range g.edges[node] {
			// references to unregistered entities do not block ordering
			if g.has(dep) {
				pending[node]++
				dependents[dep] = append(dependents[dep], node)
			}
		}
	}

	var ready []string
	for _, node := range g.nodes {
		if pending[node] == 0 {
			ready = append(ready, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		node := ready[0]
		ready = ready[1:]
		result = append(result, node)

		for _, dependent := range dependents[node] {
			pending[dependent]--
			if pending[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("circular references between entities:\n%s", formatCycles(g.DetectCycles()))
	}
	return result, nil
}

func (g *DependencyGraph) has(name string) bool {
	i := sort.SearchStrings(g.nodes, name)
	return i < len(g.nodes) && g.nodes[i] == name
}

func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  cycle %d: %s -> %s", i+1, strings.Join(cycle, " -> "), cycle[0])
	}
	return b.String()
}
