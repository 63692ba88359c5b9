package queries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/graph"
)

func asset(n string) graph.NodeName {
	return graph.AssetName("wh", "table", []string{n})
}

func addAsset(t *testing.T, g *graph.Graph, n string) {
	t.Helper()
	_, err := g.AddNode(&graph.AssetAttributes{
		Name:       asset(n),
		AssetType:  "table",
		Connectors: graph.NewNamespaceSet("wh"),
	})
	require.NoError(t, err)
}

func addTag(t *testing.T, g *graph.Graph, name string, hierarchy, lineage bool) {
	t.Helper()
	_, err := g.AddNode(&graph.TagAttributes{
		Name:                 graph.TagName(name),
		PassThroughHierarchy: hierarchy,
		PassThroughLineage:   lineage,
		Connectors:           graph.NewNamespaceSet("wh"),
	})
	require.NoError(t, err)
}

func edge(t *testing.T, g *graph.Graph, from, to graph.NodeName, rel graph.EdgeRelation) {
	t.Helper()
	require.NoError(t, g.AddEdge(graph.JettyEdge{From: from, To: to, Relation: rel}))
}

func tagNames(g *graph.Graph, tags []graph.TagIndex) []string {
	out := make([]string, 0, len(tags))
	for _, idx := range tags {
		out = append(out, g.TagAt(idx).Name.Name)
	}
	return out
}

func assetIdx(t *testing.T, g *graph.Graph, n string) graph.AssetIndex {
	t.Helper()
	idx, ok := g.AssetIndexOf(asset(n))
	require.True(t, ok)
	return idx
}

func tagsOn(t *testing.T, g *graph.Graph, n string) []string {
	t.Helper()
	return tagNames(g, TagsForAsset(g, assetIdx(t, g, n)).All())
}

// Hierarchy chain a1 -> a4 -> a6 -> a8 with t1 applied at the top and
// removed mid-chain at a6.
func TestTagViaHierarchyRemovedMidChain(t *testing.T) {
	g := graph.New()
	for _, n := range []string{"a1", "a4", "a6", "a8"} {
		addAsset(t, g, n)
	}
	addTag(t, g, "t1", true, false)

	edge(t, g, asset("a1"), asset("a4"), graph.ParentOf)
	edge(t, g, asset("a4"), asset("a6"), graph.ParentOf)
	edge(t, g, asset("a6"), asset("a8"), graph.ParentOf)
	edge(t, g, asset("a1"), graph.TagName("t1"), graph.TaggedAs)
	edge(t, g, asset("a6"), graph.TagName("t1"), graph.UntaggedAs)

	assert.Equal(t, []string{"t1"}, tagsOn(t, g, "a1"))
	assert.Equal(t, []string{"t1"}, tagsOn(t, g, "a4"))
	assert.Empty(t, tagsOn(t, g, "a6"))
	assert.Empty(t, tagsOn(t, g, "a8"))
}

// Lineage chain a1 -> a3 -> a5 -> a7 with t2 applied at the top and removed
// at a5.
func TestTagViaLineageRemovedMidChain(t *testing.T) {
	g := graph.New()
	for _, n := range []string{"a1", "a3", "a5", "a7"} {
		addAsset(t, g, n)
	}
	addTag(t, g, "t2", false, true)

	edge(t, g, asset("a1"), asset("a3"), graph.DerivedTo)
	edge(t, g, asset("a3"), asset("a5"), graph.DerivedTo)
	edge(t, g, asset("a5"), asset("a7"), graph.DerivedTo)
	edge(t, g, asset("a1"), graph.TagName("t2"), graph.TaggedAs)
	edge(t, g, asset("a5"), graph.TagName("t2"), graph.UntaggedAs)

	assert.Equal(t, []string{"t2"}, tagsOn(t, g, "a3"))
	assert.Empty(t, tagsOn(t, g, "a5"))
	assert.Empty(t, tagsOn(t, g, "a7"))
}

// inheritanceFixture is the four-tag fixture: t1 hierarchy-only, t2
// lineage-only, t3 both, t4 neither, all applied to a1; a4/a6/a8 are the
// hierarchy chain, a3/a5/a7 the lineage chain; t1 and t2 are removed from
// a6 and a5.
func inheritanceFixture(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	addTag(t, g, "t1", true, false)
	addTag(t, g, "t2", false, true)
	addTag(t, g, "t3", true, true)
	addTag(t, g, "t4", false, false)
	for _, n := range []string{"a1", "a3", "a4", "a5", "a6", "a7", "a8"} {
		addAsset(t, g, n)
	}

	for _, tag := range []string{"t1", "t2", "t3", "t4"} {
		edge(t, g, asset("a1"), graph.TagName(tag), graph.TaggedAs)
	}
	edge(t, g, asset("a4"), asset("a1"), graph.ChildOf)
	edge(t, g, asset("a6"), asset("a4"), graph.ChildOf)
	edge(t, g, asset("a8"), asset("a6"), graph.ChildOf)
	edge(t, g, asset("a3"), asset("a1"), graph.DerivedFrom)
	edge(t, g, asset("a5"), asset("a3"), graph.DerivedFrom)
	edge(t, g, asset("a7"), asset("a5"), graph.DerivedFrom)
	edge(t, g, asset("a6"), graph.TagName("t1"), graph.UntaggedAs)
	edge(t, g, asset("a6"), graph.TagName("t2"), graph.UntaggedAs)
	edge(t, g, asset("a5"), graph.TagName("t1"), graph.UntaggedAs)
	edge(t, g, asset("a5"), graph.TagName("t2"), graph.UntaggedAs)
	return g
}

func TestTagInheritanceGrouping(t *testing.T) {
	g := inheritanceFixture(t)

	t.Run("direct tags", func(t *testing.T) {
		tags := TagsForAsset(g, assetIdx(t, g, "a1"))
		assert.Len(t, tags.Direct, 4)
		assert.Empty(t, tags.ViaHierarchy)
		assert.Empty(t, tags.ViaLineage)
	})

	t.Run("lineage inherits the lineage-passing tags", func(t *testing.T) {
		assert.ElementsMatch(t, []string{"t2", "t3"}, tagsOn(t, g, "a3"))
	})

	t.Run("hierarchy inherits the hierarchy-passing tags", func(t *testing.T) {
		assert.ElementsMatch(t, []string{"t1", "t3"}, tagsOn(t, g, "a4"))
	})

	t.Run("removal poisons the chain from the anchor down", func(t *testing.T) {
		assert.Equal(t, []string{"t3"}, tagsOn(t, g, "a6"))
		assert.Equal(t, []string{"t3"}, tagsOn(t, g, "a8"))
		assert.Equal(t, []string{"t3"}, tagsOn(t, g, "a5"))
		assert.Equal(t, []string{"t3"}, tagsOn(t, g, "a7"))
	})
}

// Removing an UntaggedAs edge can only grow the result set.
func TestTagInheritanceMonotonicity(t *testing.T) {
	with := inheritanceFixture(t)

	without := graph.New()
	addTag(t, without, "t1", true, false)
	addTag(t, without, "t2", false, true)
	addTag(t, without, "t3", true, true)
	addTag(t, without, "t4", false, false)
	for _, n := range []string{"a1", "a3", "a4", "a5", "a6", "a7", "a8"} {
		addAsset(t, without, n)
	}
	for _, tag := range []string{"t1", "t2", "t3", "t4"} {
		edge(t, without, asset("a1"), graph.TagName(tag), graph.TaggedAs)
	}
	edge(t, without, asset("a4"), asset("a1"), graph.ChildOf)
	edge(t, without, asset("a6"), asset("a4"), graph.ChildOf)
	edge(t, without, asset("a8"), asset("a6"), graph.ChildOf)
	edge(t, without, asset("a3"), asset("a1"), graph.DerivedFrom)
	edge(t, without, asset("a5"), asset("a3"), graph.DerivedFrom)
	edge(t, without, asset("a7"), asset("a5"), graph.DerivedFrom)
	// Same fixture, no removals.

	for _, n := range []string{"a1", "a3", "a4", "a5", "a6", "a7", "a8"} {
		poisoned := tagsOn(t, with, n)
		clean := tagsOn(t, without, n)
		assert.Subset(t, clean, poisoned, "asset %s", n)
	}
}

func TestAssetPathsForTag(t *testing.T) {
	g := inheritanceFixture(t)

	t1, ok := g.TagIndexOf(graph.TagName("t1"))
	require.True(t, ok)
	reach := AssetPathsForTag(g, t1)

	names := func(assets []graph.AssetIndex) []string {
		out := make([]string, 0, len(assets))
		for _, idx := range assets {
			out = append(out, g.AssetAt(idx).Name.PathSegments()[0])
		}
		return out
	}

	assert.Equal(t, []string{"a1"}, names(reach.Directly))
	// a4 inherits; a6 is poisoned and a8 sits behind it.
	assert.Equal(t, []string{"a4"}, names(reach.ViaHierarchy))
	assert.Empty(t, reach.ViaLineage)
	assert.ElementsMatch(t, []string{"a5", "a6"}, names(reach.RemovedFrom))

	t3, ok := g.TagIndexOf(graph.TagName("t3"))
	require.True(t, ok)
	reach3 := AssetPathsForTag(g, t3)
	assert.Equal(t, []string{"a1"}, names(reach3.Directly))
	assert.ElementsMatch(t, []string{"a4", "a6", "a8"}, names(reach3.ViaHierarchy))
	assert.ElementsMatch(t, []string{"a3", "a5", "a7"}, names(reach3.ViaLineage))
}
