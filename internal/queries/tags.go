// Package queries answers derived questions against a built access graph:
// which tags reach an asset (and the inverse), what a user can effectively
// do, and what a set of default policies materializes to.
package queries

import (
	"sort"

	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/traversal"
)

// AssetTags is the tags reaching one asset, grouped by how they arrive.
// The three sets are disjoint in origin, not necessarily in membership: a
// tag can be both direct and inherited.
type AssetTags struct {
	Direct       []graph.TagIndex
	ViaHierarchy []graph.TagIndex
	ViaLineage   []graph.TagIndex
}

// All unions the three groups into a dedup'd list.
func (t AssetTags) All() []graph.TagIndex {
	seen := map[graph.TagIndex]struct{}{}
	var out []graph.TagIndex
	for _, group := range [][]graph.TagIndex{t.Direct, t.ViaHierarchy, t.ViaLineage} {
		for _, tag := range group {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// TagsForAsset returns the tags reaching an asset: applied directly,
// inherited through the asset hierarchy, and inherited through lineage.
//
// A tag stops inheriting at any asset it was explicitly removed from (a
// poison anchor): every candidate path is checked against the anchors for
// that same tag, and the tag survives only if at least one clean path
// remains.
func TagsForAsset(g *graph.Graph, asset graph.AssetIndex) AssetTags {
	source := asset.Idx()

	hierarchyPaths := pathsToTags(g, source, traversal.Spec{
		Edge: traversal.EdgeOneOf(graph.ChildOf, graph.TaggedAs),
		Target: func(n graph.Node) bool {
			tag, ok := graph.AsTag(n)
			return ok && tag.PassThroughHierarchy
		},
		// Depth two excludes directly tagged assets; those are handled below.
		MinDepth: 2,
	})

	lineagePaths := pathsToTags(g, source, traversal.Spec{
		Edge: traversal.EdgeOneOf(graph.DerivedFrom, graph.TaggedAs),
		Target: func(n graph.Node) bool {
			tag, ok := graph.AsTag(n)
			return ok && tag.PassThroughLineage
		},
		MinDepth: 2,
	})

	directPaths := pathsToTags(g, source, traversal.Spec{
		Edge:     traversal.EdgeOneOf(graph.TaggedAs),
		Target:   traversal.NodeOfKind(graph.KindTag),
		MinDepth: 1,
		MaxDepth: 1,
	})

	// Paths ending in an explicit removal. The tag is the last node on
	// each path; the penultimate node is the poison anchor the removal
	// hangs off.
	poisonPaths := pathsToTags(g, source, traversal.Spec{
		Edge:     traversal.EdgeOneOf(graph.ChildOf, graph.DerivedFrom, graph.UntaggedAs),
		Target:   traversal.NodeOfKind(graph.KindTag),
		MinDepth: 1,
	})
	poison := poisonAnchors(poisonPaths)

	return AssetTags{
		Direct:       sortTags(g, removePoisonedPaths(directPaths, poison)),
		ViaHierarchy: sortTags(g, removePoisonedPaths(hierarchyPaths, poison)),
		ViaLineage:   sortTags(g, removePoisonedPaths(lineagePaths, poison)),
	}
}

// pathsToTags walks through asset nodes only; tags terminate paths.
func pathsToTags(g *graph.Graph, source graph.NodeIndex, spec traversal.Spec) map[graph.NodeIndex][]traversal.Path {
	spec.Passthrough = traversal.NodeOfKind(graph.KindAsset)
	return traversal.PathsToDescendants(g, source, spec)
}

// poisonAnchors keys each tag to the assets it was explicitly removed
// from, taken as the penultimate node of each removal path.
func poisonAnchors(paths map[graph.NodeIndex][]traversal.Path) map[graph.NodeIndex]map[graph.NodeIndex]struct{} {
	out := map[graph.NodeIndex]map[graph.NodeIndex]struct{}{}
	for tag, tagPaths := range paths {
		anchors := map[graph.NodeIndex]struct{}{}
		for _, p := range tagPaths {
			if len(p) >= 2 {
				anchors[p[len(p)-2]] = struct{}{}
			}
		}
		out[tag] = anchors
	}
	return out
}

// removePoisonedPaths keeps a tag when at least one of its paths avoids
// every poison anchor recorded for that same tag.
func removePoisonedPaths(
	paths map[graph.NodeIndex][]traversal.Path,
	poison map[graph.NodeIndex]map[graph.NodeIndex]struct{},
) []graph.NodeIndex {
	var out []graph.NodeIndex
	for tag, tagPaths := range paths {
		anchors := poison[tag]
		for _, p := range tagPaths {
			if pathAvoids(p, anchors) {
				out = append(out, tag)
				break
			}
		}
	}
	return out
}

func pathAvoids(p traversal.Path, anchors map[graph.NodeIndex]struct{}) bool {
	if len(anchors) == 0 {
		return true
	}
	for _, idx := range p {
		if _, hit := anchors[idx]; hit {
			return false
		}
	}
	return true
}

func sortTags(g *graph.Graph, indices []graph.NodeIndex) []graph.TagIndex {
	sort.Slice(indices, func(i, j int) bool {
		a, _ := g.NameOf(indices[i])
		b, _ := g.NameOf(indices[j])
		return a.String() < b.String()
	})
	out := make([]graph.TagIndex, 0, len(indices))
	for _, idx := range indices {
		name, ok := g.NameOf(idx)
		if !ok {
			continue
		}
		typed, ok := g.TagIndexOf(name)
		if !ok {
			continue
		}
		out = append(out, typed)
	}
	return out
}
