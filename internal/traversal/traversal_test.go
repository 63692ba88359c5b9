package traversal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

// membershipGraph: user -> {group1, group2}, group2 -> {group1, group3,
// group4}, group3 -> group4, group4 -> group1. Four distinct simple paths
// from user to group1.
func membershipGraph(t *testing.T) *graph.Graph {
	t.Helper()
	ns := connectors.Namespace("test")
	g := graph.New()

	_, err := g.AddNode(&graph.UserAttributes{Name: graph.UserName("user"), Connectors: graph.NewNamespaceSet(ns)})
	require.NoError(t, err)
	for _, name := range []string{"group1", "group2", "group3", "group4"} {
		_, err := g.AddNode(&graph.GroupAttributes{Name: graph.GroupName(name, ns), Connectors: graph.NewNamespaceSet(ns)})
		require.NoError(t, err)
	}
	for _, e := range []graph.JettyEdge{
		{From: graph.UserName("user"), To: graph.GroupName("group1", ns), Relation: graph.MemberOf},
		{From: graph.UserName("user"), To: graph.GroupName("group2", ns), Relation: graph.MemberOf},
		{From: graph.GroupName("group2", ns), To: graph.GroupName("group1", ns), Relation: graph.MemberOf},
		{From: graph.GroupName("group2", ns), To: graph.GroupName("group3", ns), Relation: graph.MemberOf},
		{From: graph.GroupName("group2", ns), To: graph.GroupName("group4", ns), Relation: graph.MemberOf},
		{From: graph.GroupName("group3", ns), To: graph.GroupName("group4", ns), Relation: graph.MemberOf},
		{From: graph.GroupName("group4", ns), To: graph.GroupName("group1", ns), Relation: graph.MemberOf},
	} {
		require.NoError(t, g.AddEdge(e))
	}
	return g
}

func idx(t *testing.T, g *graph.Graph, name graph.NodeName) graph.NodeIndex {
	t.Helper()
	i, ok := g.IndexOf(name)
	require.True(t, ok, "missing node %s", name)
	return i
}

// memberOfOnly keeps the fixture traversals on the forward membership
// edges; AddEdge also inserted the Includes pairs.
var memberOfOnly = EdgeOneOf(graph.MemberOf)

func TestSimplePaths(t *testing.T) {
	ns := connectors.Namespace("test")
	g := membershipGraph(t)
	user := idx(t, g, graph.UserName("user"))
	group1 := idx(t, g, graph.GroupName("group1", ns))

	t.Run("all paths", func(t *testing.T) {
		paths := SimplePaths(g, user, group1, Spec{Edge: memberOfOnly})
		assert.Len(t, paths, 4)
	})

	t.Run("depth window 2..3", func(t *testing.T) {
		paths := SimplePaths(g, user, group1, Spec{Edge: memberOfOnly, MinDepth: 2, MaxDepth: 3})
		assert.Len(t, paths, 2)
	})

	t.Run("depth pinned to 2", func(t *testing.T) {
		paths := SimplePaths(g, user, group1, Spec{Edge: memberOfOnly, MinDepth: 2, MaxDepth: 2})
		assert.Len(t, paths, 1)
	})

	t.Run("edge predicate excludes everything", func(t *testing.T) {
		paths := SimplePaths(g, user, group1, Spec{Edge: EdgeOneOf(graph.TaggedAs)})
		assert.Empty(t, paths)
	})

	t.Run("passthrough restricted to group2", func(t *testing.T) {
		paths := SimplePaths(g, user, group1, Spec{
			Edge: memberOfOnly,
			Passthrough: func(n graph.Node) bool {
				return n.NodeName() == graph.GroupName("group2", ns)
			},
		})
		assert.Len(t, paths, 2)
	})
}

func TestPathsToDescendants(t *testing.T) {
	ns := connectors.Namespace("test")
	g := membershipGraph(t)
	user := idx(t, g, graph.UserName("user"))

	t.Run("multiple paths to one target", func(t *testing.T) {
		results := PathsToDescendants(g, user, Spec{
			Edge: memberOfOnly,
			Target: func(n graph.Node) bool {
				return n.NodeName() == graph.GroupName("group4", ns)
			},
		})
		require.Len(t, results, 1)
		for _, paths := range results {
			assert.Len(t, paths, 2)
		}
	})

	t.Run("reaches all groups", func(t *testing.T) {
		results := PathsToDescendants(g, user, Spec{Edge: memberOfOnly})
		assert.Len(t, results, 4)
	})
}

func TestDescendants(t *testing.T) {
	g := membershipGraph(t)
	user := idx(t, g, graph.UserName("user"))

	t.Run("dedup across paths", func(t *testing.T) {
		groups := Descendants(g, user, Spec{Edge: memberOfOnly, Target: NodeOfKind(graph.KindGroup)})
		assert.Len(t, groups, 4)
	})

	t.Run("children only", func(t *testing.T) {
		direct := Children(g, user, memberOfOnly, NodeOfKind(graph.KindGroup))
		assert.Len(t, direct, 2)
	})

	t.Run("min depth elides shallow results", func(t *testing.T) {
		deep := Descendants(g, user, Spec{Edge: memberOfOnly, Target: NodeOfKind(graph.KindGroup), MinDepth: 2})
		// group1 is found at depth 1 first and the visited set keeps it
		// from being re-reported deeper; group3 and group4 qualify.
		assert.GreaterOrEqual(t, len(deep), 2)
	})
}

func TestCycleSafety(t *testing.T) {
	ns := connectors.Namespace("test")
	g := graph.New()
	for _, name := range []string{"a", "b"} {
		_, err := g.AddNode(&graph.GroupAttributes{Name: graph.GroupName(name, ns), Connectors: graph.NewNamespaceSet(ns)})
		require.NoError(t, err)
	}
	// Mutual nesting: a <-> b.
	require.NoError(t, g.AddEdge(graph.JettyEdge{From: graph.GroupName("a", ns), To: graph.GroupName("b", ns), Relation: graph.MemberOf}))
	require.NoError(t, g.AddEdge(graph.JettyEdge{From: graph.GroupName("b", ns), To: graph.GroupName("a", ns), Relation: graph.MemberOf}))

	a := idx(t, g, graph.GroupName("a", ns))
	results := Descendants(g, a, Spec{Edge: memberOfOnly})
	assert.Len(t, results, 2)
}
