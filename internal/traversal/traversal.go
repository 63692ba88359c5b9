// Package traversal implements the access graph's bounded-depth DFS
// primitives: descendant search, all simple paths between two nodes, and
// per-descendant path enumeration, each filtered by edge, passthrough, and
// target predicates.
package traversal

import (
	"strconv"
	"strings"

	"github.com/jettylabs/jetty/internal/graph"
)

// Path is one acyclic node sequence, source first.
type Path []graph.NodeIndex

// key renders the path for dedup.
func (p Path) key() string {
	var b strings.Builder
	for i, idx := range p {
		if i > 0 {
			b.WriteByte('>')
		}
		b.WriteString(strconv.Itoa(int(idx)))
	}
	return b.String()
}

// Spec parameterizes a traversal. Nil predicates match everything.
//
// Depth counts edges from the source: direct neighbors are at depth 1.
// MaxDepth 0 means unbounded (the graph's node count - 1); results shallower
// than MinDepth are elided but traversal still descends through them.
type Spec struct {
	// Edge must return true for the traversal to follow an edge.
	Edge func(graph.EdgeRelation) bool
	// Passthrough must return true for the traversal to descend through a
	// node. Targets that fail it are still reported; their descendants are
	// not explored.
	Passthrough func(graph.Node) bool
	// Target selects result nodes.
	Target func(graph.Node) bool

	MinDepth int
	MaxDepth int
}

func (s Spec) matchEdge(r graph.EdgeRelation) bool {
	return s.Edge == nil || s.Edge(r)
}

func (s Spec) matchPassthrough(n graph.Node) bool {
	return s.Passthrough == nil || s.Passthrough(n)
}

func (s Spec) matchTarget(n graph.Node) bool {
	return s.Target == nil || s.Target(n)
}

func (s Spec) maxDepth(g *graph.Graph) int {
	if s.MaxDepth > 0 {
		return s.MaxDepth
	}
	if n := g.NodeCount(); n > 1 {
		return n - 1
	}
	return 1
}

// EdgeOneOf builds an edge predicate matching any of the given relations.
func EdgeOneOf(rels ...graph.EdgeRelation) func(graph.EdgeRelation) bool {
	set := make(map[graph.EdgeRelation]struct{}, len(rels))
	for _, r := range rels {
		set[r] = struct{}{}
	}
	return func(r graph.EdgeRelation) bool {
		_, ok := set[r]
		return ok
	}
}

// NodeOfKind builds a node predicate matching any of the given kinds.
func NodeOfKind(kinds ...graph.NodeKind) func(graph.Node) bool {
	set := make(map[graph.NodeKind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(n graph.Node) bool {
		_, ok := set[n.NodeName().Kind]
		return ok
	}
}

// Descendants returns the dedup'd set of nodes reachable from source along
// matching edges, through passthrough nodes, that satisfy the target
// predicate within the depth bounds. Only outgoing edges are followed.
// Result order is unspecified; sort by canonical name for stability.
func Descendants(g *graph.Graph, source graph.NodeIndex, spec Spec) []graph.NodeIndex {
	visited := map[graph.NodeIndex]struct{}{}
	var results []graph.NodeIndex
	descendantsRecursive(g, source, spec, spec.maxDepth(g), 0, visited, &results)
	return results
}

func descendantsRecursive(
	g *graph.Graph,
	idx graph.NodeIndex,
	spec Spec,
	maxDepth, currentDepth int,
	visited map[graph.NodeIndex]struct{},
	results *[]graph.NodeIndex,
) {
	currentDepth++
	if currentDepth > maxDepth {
		return
	}
	for _, e := range g.Outgoing(idx) {
		if !spec.matchEdge(e.Relation) {
			continue
		}
		child := e.To
		if _, seen := visited[child]; seen {
			continue
		}
		visited[child] = struct{}{}

		node := g.Node(child)
		if node == nil {
			continue
		}
		if currentDepth >= spec.MinDepth && spec.matchTarget(node) {
			*results = append(*results, child)
		}
		if spec.matchPassthrough(node) {
			descendantsRecursive(g, child, spec, maxDepth, currentDepth, visited, results)
		}
	}
}

// Children returns the adjacent matching nodes: Descendants pinned to
// depth one with no passthrough.
func Children(g *graph.Graph, source graph.NodeIndex, edge func(graph.EdgeRelation) bool, target func(graph.Node) bool) []graph.NodeIndex {
	return Descendants(g, source, Spec{
		Edge:        edge,
		Passthrough: func(graph.Node) bool { return false },
		Target:      target,
		MinDepth:    1,
		MaxDepth:    1,
	})
}

// SimplePaths returns every acyclic path from source to sink along matching
// edges and passthrough nodes within the depth bounds. The Target field of
// spec is ignored; the sink is the target.
//
// The visited set is insertion-ordered and each node is popped on exit from
// its recursion level so it can reappear in sibling paths.
func SimplePaths(g *graph.Graph, source, sink graph.NodeIndex, spec Spec) []Path {
	visited := newOrderedSet()
	visited.insert(source)
	var results []Path
	simplePathsRecursive(g, source, sink, spec, spec.maxDepth(g), 0, visited, &results)
	return results
}

func simplePathsRecursive(
	g *graph.Graph,
	idx, sink graph.NodeIndex,
	spec Spec,
	maxDepth, currentDepth int,
	visited *orderedSet,
	results *[]Path,
) {
	currentDepth++
	if currentDepth > maxDepth {
		return
	}
	for _, e := range g.Outgoing(idx) {
		if !spec.matchEdge(e.Relation) {
			continue
		}
		child := e.To
		if !visited.insert(child) {
			continue
		}
		if currentDepth >= spec.MinDepth && child == sink {
			*results = append(*results, visited.path())
			visited.pop()
			continue
		}
		if node := g.Node(child); node != nil && spec.matchPassthrough(node) {
			simplePathsRecursive(g, child, sink, spec, maxDepth, currentDepth, visited, results)
		}
		visited.pop()
	}
}

// PathsToDescendants returns, for every matching descendant, the set of
// acyclic paths that reach it. Paths are dedup'd per target.
func PathsToDescendants(g *graph.Graph, source graph.NodeIndex, spec Spec) map[graph.NodeIndex][]Path {
	visited := newOrderedSet()
	visited.insert(source)
	results := map[graph.NodeIndex][]Path{}
	seen := map[graph.NodeIndex]map[string]struct{}{}
	pathsToDescendantsRecursive(g, source, spec, spec.maxDepth(g), 0, visited, results, seen)
	return results
}

func pathsToDescendantsRecursive(
	g *graph.Graph,
	idx graph.NodeIndex,
	spec Spec,
	maxDepth, currentDepth int,
	visited *orderedSet,
	results map[graph.NodeIndex][]Path,
	seen map[graph.NodeIndex]map[string]struct{},
) {
	currentDepth++
	if currentDepth > maxDepth {
		return
	}
	for _, e := range g.Outgoing(idx) {
		if !spec.matchEdge(e.Relation) {
			continue
		}
		child := e.To
		if !visited.insert(child) {
			continue
		}
		node := g.Node(child)
		if node == nil {
			visited.pop()
			continue
		}
		if currentDepth >= spec.MinDepth && spec.matchTarget(node) {
			p := visited.path()
			if seen[child] == nil {
				seen[child] = map[string]struct{}{}
			}
			if _, dup := seen[child][p.key()]; !dup {
				seen[child][p.key()] = struct{}{}
				results[child] = append(results[child], p)
			}
		}
		if spec.matchPassthrough(node) {
			pathsToDescendantsRecursive(g, child, spec, maxDepth, currentDepth, visited, results, seen)
		}
		visited.pop()
	}
}

// orderedSet is an insertion-ordered set of node indices. The current
// contents, in order, are the path from the source to the node on top.
type orderedSet struct {
	order []graph.NodeIndex
	index map[graph.NodeIndex]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: map[graph.NodeIndex]struct{}{}}
}

// insert returns false when the element is already present.
func (s *orderedSet) insert(idx graph.NodeIndex) bool {
	if _, ok := s.index[idx]; ok {
		return false
	}
	s.index[idx] = struct{}{}
	s.order = append(s.order, idx)
	return true
}

// pop removes the most recently inserted element.
func (s *orderedSet) pop() {
	last := s.order[len(s.order)-1]
	s.order = s.order[:len(s.order)-1]
	delete(s.index, last)
}

// path copies the current contents in insertion order.
func (s *orderedSet) path() Path {
	p := make(Path, len(s.order))
	copy(p, s.order)
	return p
}
