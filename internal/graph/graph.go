// Package graph models dependencies between content nodes, templates,
// and data entries, and answers what must rerender when a node changes.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind distinguishes node namespaces so a template named "blog" can
// never collide with a section of the same path.
type Kind string

const (
	KindPage     Kind = "page"
	KindSection  Kind = "section"
	KindTemplate Kind = "template"
	KindData     Kind = "data"
)

// Ref identifies a graph node.
type Ref struct {
	Kind Kind
	Path string
}

func (r Ref) String() string { return string(r.Kind) + ":" + r.Path }

// PageRef and friends are shorthands for building refs.
func PageRef(path string) Ref     { return Ref{Kind: KindPage, Path: path} }
func SectionRef(path string) Ref  { return Ref{Kind: KindSection, Path: path} }
func TemplateRef(name string) Ref { return Ref{Kind: KindTemplate, Path: name} }
func DataRef(key string) Ref      { return Ref{Kind: KindData, Path: key} }

// CycleError reports a rejected edge insertion that would have created
// a dependency cycle. Members lists the cycle in traversal order.
type CycleError struct {
	Members []Ref
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Members))
	for i, m := range e.Members {
		names[i] = m.String()
	}
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(names, " -> "))
}

// Graph is the dependency graph. Mutation is serialized behind a
// mutex; reads traverse a consistent view under a read lock.
type Graph struct {
	mu sync.RWMutex
	// dependents maps producer -> consumers (forward edges, the
	// direction invalidation travels).
	dependents map[Ref]map[Ref]struct{}
	// deps maps consumer -> producers (reverse edges, used for
	// scheduling barriers and edge replacement).
	deps  map[Ref]map[Ref]struct{}
	nodes map[Ref]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		dependents: map[Ref]map[Ref]struct{}{},
		deps:       map[Ref]map[Ref]struct{}{},
		nodes:      map[Ref]struct{}{},
	}
}

// Register inserts or updates node together with its outgoing
// dependency edges (node depends on each producer in deps). The
// previous dependency edges of node are replaced. If any new edge
// would create a cycle the whole registration is rejected and the
// graph is left unchanged.
func (g *Graph) Register(node Ref, deps []Ref) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, producer := range deps {
		if producer == node {
			return &CycleError{Members: []Ref{node, node}}
		}
		// Adding producer -> node closes a cycle iff node already
		// reaches producer through forward edges.
		if path := g.pathBetween(node, producer); path != nil {
			return &CycleError{Members: append(path, node)}
		}
	}

	// Validation passed; replace node's dependency edges.
	for producer := range g.deps[node] {
		delete(g.dependents[producer], node)
	}
	g.deps[node] = map[Ref]struct{}{}
	g.nodes[node] = struct{}{}
	for _, producer := range deps {
		g.nodes[producer] = struct{}{}
		g.deps[node][producer] = struct{}{}
		if g.dependents[producer] == nil {
			g.dependents[producer] = map[Ref]struct{}{}
		}
		g.dependents[producer][node] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy sharing no state with g, so a build cycle
// can mutate its own view and commit it only on publish.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c := New()
	for node := range g.nodes {
		c.nodes[node] = struct{}{}
	}
	for node, producers := range g.deps {
		cp := make(map[Ref]struct{}, len(producers))
		for p := range producers {
			cp[p] = struct{}{}
		}
		c.deps[node] = cp
	}
	for node, consumers := range g.dependents {
		cp := make(map[Ref]struct{}, len(consumers))
		for d := range consumers {
			cp[d] = struct{}{}
		}
		c.dependents[node] = cp
	}
	return c
}

// Remove deletes node and all edges touching it.
func (g *Graph) Remove(node Ref) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for producer := range g.deps[node] {
		delete(g.dependents[producer], node)
	}
	for consumer := range g.dependents[node] {
		delete(g.deps[consumer], node)
	}
	delete(g.deps, node)
	delete(g.dependents, node)
	delete(g.nodes, node)
}

// Has reports whether node exists in the graph.
func (g *Graph) Has(node Ref) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[node]
	return ok
}

// Deps returns the producers node depends on, sorted.
func (g *Graph) Deps(node Ref) []Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Ref, 0, len(g.deps[node]))
	for producer := range g.deps[node] {
		out = append(out, producer)
	}
	sortRefs(out)
	return out
}

// Invalidate returns the transitive closure of nodes that must
// rerender when start changes, including start itself when known. The
// result is in stable topological order: producers before consumers,
// ties broken by canonical (kind, path) order.
func (g *Graph) Invalidate(start Ref) []Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[start]; !ok {
		return nil
	}

	// Forward closure.
	closure := map[Ref]struct{}{start: {}}
	queue := []Ref{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for consumer := range g.dependents[cur] {
			if _, seen := closure[consumer]; !seen {
				closure[consumer] = struct{}{}
				queue = append(queue, consumer)
			}
		}
	}

	return g.topoOrder(closure)
}

// InvalidateAll unions the invalidation closures of several starting
// nodes into one stable topological order. Unknown starts contribute
// nothing.
func (g *Graph) InvalidateAll(starts ...Ref) []Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()

	closure := map[Ref]struct{}{}
	var queue []Ref
	for _, start := range starts {
		if _, ok := g.nodes[start]; !ok {
			continue
		}
		if _, seen := closure[start]; !seen {
			closure[start] = struct{}{}
			queue = append(queue, start)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for consumer := range g.dependents[cur] {
			if _, seen := closure[consumer]; !seen {
				closure[consumer] = struct{}{}
				queue = append(queue, consumer)
			}
		}
	}
	if len(closure) == 0 {
		return nil
	}
	return g.topoOrder(closure)
}

// topoOrder runs Kahn's algorithm over the subgraph induced by set,
// picking the smallest ready ref each round for determinism.
func (g *Graph) topoOrder(set map[Ref]struct{}) []Ref {
	indegree := map[Ref]int{}
	for node := range set {
		for producer := range g.deps[node] {
			if _, in := set[producer]; in {
				indegree[node]++
			}
		}
	}

	var ready []Ref
	for node := range set {
		if indegree[node] == 0 {
			ready = append(ready, node)
		}
	}
	sortRefs(ready)

	out := make([]Ref, 0, len(set))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		out = append(out, cur)

		var next []Ref
		for consumer := range g.dependents[cur] {
			if _, in := set[consumer]; !in {
				continue
			}
			indegree[consumer]--
			if indegree[consumer] == 0 {
				next = append(next, consumer)
			}
		}
		sortRefs(next)
		ready = mergeSorted(ready, next)
	}
	return out
}

// pathBetween returns a forward path from src to dst, or nil.
func (g *Graph) pathBetween(src, dst Ref) []Ref {
	if _, ok := g.nodes[src]; !ok {
		return nil
	}
	prev := map[Ref]Ref{}
	visited := map[Ref]struct{}{src: {}}
	queue := []Ref{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == dst {
			var path []Ref
			for at := dst; ; at = prev[at] {
				path = append([]Ref{at}, path...)
				if at == src {
					return path
				}
			}
		}
		for consumer := range g.dependents[cur] {
			if _, seen := visited[consumer]; !seen {
				visited[consumer] = struct{}{}
				prev[consumer] = cur
				queue = append(queue, consumer)
			}
		}
	}
	return nil
}

// less orders refs by canonical path, then kind, for stable tie-breaks.
func less(x, y Ref) bool {
	if x.Path != y.Path {
		return x.Path < y.Path
	}
	return x.Kind < y.Kind
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool { return less(refs[i], refs[j]) })
}

func mergeSorted(a, b []Ref) []Ref {
	out := make([]Ref, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if less(a[i], b[j]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
