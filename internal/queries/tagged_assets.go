package queries

import (
	"sort"

	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/traversal"
)

// TaggedAssets is the inverse of AssetTags: the assets one tag reaches,
// grouped by how it arrives, plus the assets it was explicitly removed
// from.
type TaggedAssets struct {
	Directly     []graph.AssetIndex
	ViaHierarchy []graph.AssetIndex
	ViaLineage   []graph.AssetIndex
	RemovedFrom  []graph.AssetIndex
}

// All unions the three reach groups into a dedup'd list.
func (t TaggedAssets) All() []graph.AssetIndex {
	seen := map[graph.AssetIndex]struct{}{}
	var out []graph.AssetIndex
	for _, group := range [][]graph.AssetIndex{t.Directly, t.ViaHierarchy, t.ViaLineage} {
		for _, a := range group {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// AssetPathsForTag returns which assets a tag reaches. The poison set is
// the tag's own RemovedFrom out-edges; any inheritance path passing through
// a poisoned asset is invalid, and the poisoned assets themselves are
// reported in RemovedFrom.
func AssetPathsForTag(g *graph.Graph, tag graph.TagIndex) TaggedAssets {
	source := tag.Idx()
	attrs := g.TagAt(tag)

	// The per-tag poison set: assets the tag is explicitly removed from.
	poison := map[graph.NodeIndex]struct{}{}
	for _, e := range g.Outgoing(source) {
		if e.Relation == graph.RemovedFrom {
			poison[e.To] = struct{}{}
		}
	}

	direct := traversal.Children(g, source, traversal.EdgeOneOf(graph.AppliedTo), traversal.NodeOfKind(graph.KindAsset))

	var hierarchy, lineage map[graph.NodeIndex][]traversal.Path
	if attrs.PassThroughHierarchy {
		hierarchy = traversal.PathsToDescendants(g, source, traversal.Spec{
			Edge:        traversal.EdgeOneOf(graph.AppliedTo, graph.ParentOf),
			Passthrough: traversal.NodeOfKind(graph.KindAsset),
			Target:      traversal.NodeOfKind(graph.KindAsset),
			MinDepth:    2,
		})
	}
	if attrs.PassThroughLineage {
		lineage = traversal.PathsToDescendants(g, source, traversal.Spec{
			Edge:        traversal.EdgeOneOf(graph.AppliedTo, graph.DerivedTo),
			Passthrough: traversal.NodeOfKind(graph.KindAsset),
			Target:      traversal.NodeOfKind(graph.KindAsset),
			MinDepth:    2,
		})
	}

	removed := make([]graph.NodeIndex, 0, len(poison))
	for idx := range poison {
		removed = append(removed, idx)
	}

	return TaggedAssets{
		Directly:     sortAssets(g, filterPoisoned(direct, poison)),
		ViaHierarchy: sortAssets(g, cleanTargets(hierarchy, poison)),
		ViaLineage:   sortAssets(g, cleanTargets(lineage, poison)),
		RemovedFrom:  sortAssets(g, removed),
	}
}

// cleanTargets keeps targets with at least one path avoiding the poison set.
func cleanTargets(paths map[graph.NodeIndex][]traversal.Path, poison map[graph.NodeIndex]struct{}) []graph.NodeIndex {
	var out []graph.NodeIndex
	for target, targetPaths := range paths {
		if _, hit := poison[target]; hit {
			continue
		}
		for _, p := range targetPaths {
			if pathAvoids(p, poison) {
				out = append(out, target)
				break
			}
		}
	}
	return out
}

// filterPoisoned drops directly poisoned targets.
func filterPoisoned(targets []graph.NodeIndex, poison map[graph.NodeIndex]struct{}) []graph.NodeIndex {
	var out []graph.NodeIndex
	for _, target := range targets {
		if _, hit := poison[target]; hit {
			continue
		}
		out = append(out, target)
	}
	return out
}

func sortAssets(g *graph.Graph, indices []graph.NodeIndex) []graph.AssetIndex {
	sort.Slice(indices, func(i, j int) bool {
		a, _ := g.NameOf(indices[i])
		b, _ := g.NameOf(indices[j])
		return a.String() < b.String()
	})
	out := make([]graph.AssetIndex, 0, len(indices))
	for _, idx := range indices {
		name, ok := g.NameOf(idx)
		if !ok {
			continue
		}
		typed, ok := g.AssetIndexOf(name)
		if !ok {
			continue
		}
		out = append(out, typed)
	}
	return out
}
