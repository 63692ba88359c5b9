package graph

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jettylabs/jetty/internal/errors"
)

// NodeIndex is an untyped handle into the graph's node arena. Indices are
// stable for the life of a graph; removal leaves a tombstone rather than
// shifting later indices.
type NodeIndex int

// Edge is a resolved directed edge between two arena indices.
type Edge struct {
	From     NodeIndex
	To       NodeIndex
	Relation EdgeRelation
}

// Graph is the access graph: an arena of heterogeneous nodes plus a labeled
// adjacency list. Construction happens through AddNode/AddEdge; after build
// the graph is read-only except for the identity-diff mutators.
type Graph struct {
	nodes []Node
	out   [][]Edge
	names map[NodeName]NodeIndex
	edges map[JettyEdge]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{names: make(map[NodeName]NodeIndex), edges: make(map[JettyEdge]struct{})}
}

// AddNode inserts a node, merging with any existing node carrying the same
// canonical name. Returns the node's index.
func (g *Graph) AddNode(n Node) (NodeIndex, error) {
	name := n.NodeName()
	if idx, ok := g.names[name]; ok {
		merged, err := MergeNodes(g.nodes[idx], n)
		if err != nil {
			return 0, err
		}
		g.nodes[idx] = merged
		return idx, nil
	}
	idx := NodeIndex(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.out = append(g.out, nil)
	g.names[name] = idx
	return idx, nil
}

// AddEdge inserts an edge and its paired inverse, deduplicating both. Both
// endpoints must already exist and be of kinds legal for the relation.
func (g *Graph) AddEdge(e JettyEdge) error {
	if err := checkEndpoints(e.From, e.To, e.Relation); err != nil {
		return errors.MergeErrorf("illegal edge: %v", err)
	}
	fromIdx, ok := g.names[e.From]
	if !ok {
		return errors.MergeErrorf("edge %s -%s-> %s references unknown node %s", e.From, e.Relation, e.To, e.From)
	}
	toIdx, ok := g.names[e.To]
	if !ok {
		return errors.MergeErrorf("edge %s -%s-> %s references unknown node %s", e.From, e.Relation, e.To, e.To)
	}

	g.insertEdge(e, fromIdx, toIdx)
	if pair, ok := pairedEdge(e); ok {
		g.insertEdge(pair, toIdx, fromIdx)
	}
	return nil
}

// pairedEdge returns the inverse edge to insert alongside e. GrantedTo from
// a default policy pairs back as GrantedFrom rather than GrantedBy.
func pairedEdge(e JettyEdge) (JettyEdge, bool) {
	rel, ok := e.Relation.Paired()
	if !ok {
		return JettyEdge{}, false
	}
	if e.Relation == GrantedTo && e.From.Kind == KindDefaultPolicy {
		rel = GrantedFrom
	}
	return JettyEdge{From: e.To, To: e.From, Relation: rel}, true
}

func (g *Graph) insertEdge(e JettyEdge, from, to NodeIndex) {
	if _, seen := g.edges[e]; seen {
		return
	}
	g.edges[e] = struct{}{}
	g.out[from] = append(g.out[from], Edge{From: from, To: to, Relation: e.Relation})
}

// Node returns the node at idx, or nil for a removed node.
func (g *Graph) Node(idx NodeIndex) Node {
	if int(idx) < 0 || int(idx) >= len(g.nodes) {
		return nil
	}
	return g.nodes[idx]
}

// NodeCount is the number of live nodes.
func (g *Graph) NodeCount() int {
	count := 0
	for _, n := range g.nodes {
		if n != nil {
			count++
		}
	}
	return count
}

// Outgoing returns the outgoing edges of idx. The returned slice is owned by
// the graph; callers must not mutate it.
func (g *Graph) Outgoing(idx NodeIndex) []Edge {
	if int(idx) < 0 || int(idx) >= len(g.out) {
		return nil
	}
	return g.out[idx]
}

// IndexOf resolves a canonical name to its arena index.
func (g *Graph) IndexOf(name NodeName) (NodeIndex, bool) {
	idx, ok := g.names[name]
	return idx, ok
}

// NameOf returns the canonical name at idx; ok is false for a removed or
// out-of-range index.
func (g *Graph) NameOf(idx NodeIndex) (NodeName, bool) {
	n := g.Node(idx)
	if n == nil {
		return NodeName{}, false
	}
	return n.NodeName(), true
}

// UUIDOf returns the stable ID of the node at idx.
func (g *Graph) UUIDOf(idx NodeIndex) (uuid.UUID, bool) {
	name, ok := g.NameOf(idx)
	if !ok {
		return uuid.UUID{}, false
	}
	return name.UUID(), true
}

// Indices returns all live node indices in arena order.
func (g *Graph) Indices() []NodeIndex {
	out := make([]NodeIndex, 0, len(g.nodes))
	for i, n := range g.nodes {
		if n != nil {
			out = append(out, NodeIndex(i))
		}
	}
	return out
}

// Edges returns every edge in the graph, ordered by source index.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, edges := range g.out {
		out = append(out, edges...)
	}
	return out
}

// SortedNames returns the canonical names of all live nodes sorted by their
// string form. Traversal order is unspecified; callers that need stability
// go through here.
func (g *Graph) SortedNames() []NodeName {
	out := make([]NodeName, 0, len(g.names))
	for name := range g.names {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// RemoveNode tombstones a node and drops every edge touching it.
func (g *Graph) RemoveNode(name NodeName) error {
	idx, ok := g.names[name]
	if !ok {
		return errors.InternalErrorf("cannot remove unknown node %s", name)
	}
	delete(g.names, name)
	g.nodes[idx] = nil
	g.out[idx] = nil
	for i := range g.out {
		g.out[i] = dropEdgesTo(g.out[i], idx)
	}
	for e := range g.edges {
		if e.From == name || e.To == name {
			delete(g.edges, e)
		}
	}
	return nil
}

func dropEdgesTo(edges []Edge, target NodeIndex) []Edge {
	kept := edges[:0]
	for _, e := range edges {
		if e.To != target {
			kept = append(kept, e)
		}
	}
	return kept
}

// RewireUser redirects every edge touching oldName onto newName, creating
// the new user node if it doesn't exist yet, then removes the old node.
// Used by identity-diff application when a local account is reassigned to a
// different canonical user.
func (g *Graph) RewireUser(oldName, newName NodeName) error {
	if oldName.Kind != KindUser || newName.Kind != KindUser {
		return errors.InternalErrorf("rewire requires user nodes, got %s and %s", oldName.Kind, newName.Kind)
	}
	oldIdx, ok := g.names[oldName]
	if !ok {
		return errors.InternalErrorf("cannot rewire unknown user %s", oldName)
	}
	oldUser, _ := AsUser(g.nodes[oldIdx])

	if _, ok := g.names[newName]; !ok {
		_, err := g.AddNode(&UserAttributes{
			Name:        newName,
			Identifiers: oldUser.Identifiers,
			Metadata:    oldUser.Metadata,
			Connectors:  oldUser.Connectors,
		})
		if err != nil {
			return err
		}
	}

	// Re-point the old node's edges at the new node, in both directions.
	var moved []JettyEdge
	for e := range g.edges {
		if e.From != oldName && e.To != oldName {
			continue
		}
		next := e
		if next.From == oldName {
			next.From = newName
		}
		if next.To == oldName {
			next.To = newName
		}
		if next.From != next.To {
			moved = append(moved, next)
		}
	}
	if err := g.RemoveNode(oldName); err != nil {
		return err
	}
	for _, e := range moved {
		fromIdx, ok := g.names[e.From]
		if !ok {
			continue
		}
		toIdx, ok := g.names[e.To]
		if !ok {
			continue
		}
		g.insertEdge(e, fromIdx, toIdx)
	}
	return nil
}

// String summarizes the graph for logs.
func (g *Graph) String() string {
	return fmt.Sprintf("graph{nodes: %d, edges: %d}", g.NodeCount(), len(g.edges))
}
