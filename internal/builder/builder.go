// Package builder assembles the access graph from processed connector data.
//
// The build is two passes. Pass one inserts every node and accumulates
// every graph-independent edge into a dedup'd cache, flushing the cache
// only after all nodes from all connectors are in, so an edge whose far
// endpoint arrives from a later connector still resolves. Pass two
// materializes default-policy target edges, which require reading the
// pass-one graph: a default policy governs whichever existing assets match
// its root, matching path, and target type.
package builder

import (
	"sort"

	"github.com/jettylabs/jetty/internal/errors"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/logging"
	"github.com/jettylabs/jetty/internal/traversal"
	"github.com/jettylabs/jetty/internal/wildcard"
)

// Stats summarizes a build for progress reporting.
type Stats struct {
	Nodes int
	Edges int
}

// Build constructs the graph from every connector's processed data.
func Build(processed []graph.ProcessedConnectorData) (*graph.Graph, Stats, error) {
	g := graph.New()
	edgeCache := map[graph.JettyEdge]struct{}{}

	for _, pcd := range processed {
		if err := addRecords(g, edgeCache, pcd); err != nil {
			return nil, Stats{}, err
		}
	}

	if err := flushEdges(g, edgeCache); err != nil {
		return nil, Stats{}, err
	}

	if err := materializeDefaultPolicyEdges(g); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Nodes: g.NodeCount(), Edges: len(g.Edges())}
	logging.Info("built access graph", "nodes", stats.Nodes, "edges", stats.Edges)
	return g, stats, nil
}

func addRecords(g *graph.Graph, edgeCache map[graph.JettyEdge]struct{}, pcd graph.ProcessedConnectorData) error {
	var helpers []graph.NodeHelper
	for _, r := range pcd.Groups {
		helpers = append(helpers, r)
	}
	for _, r := range pcd.Users {
		helpers = append(helpers, r)
	}
	for _, r := range pcd.Assets {
		helpers = append(helpers, r)
	}
	for _, r := range pcd.AssetReferences {
		helpers = append(helpers, r)
	}
	for _, r := range pcd.Policies {
		helpers = append(helpers, r)
	}
	for _, r := range pcd.Tags {
		helpers = append(helpers, r)
	}
	for _, r := range pcd.DefaultPolicies {
		helpers = append(helpers, r)
	}

	for _, h := range helpers {
		if node := h.ToNode(); node != nil {
			if _, err := g.AddNode(node); err != nil {
				return err
			}
		}
		for _, e := range h.ToEdges() {
			edgeCache[e] = struct{}{}
		}
	}
	return nil
}

func flushEdges(g *graph.Graph, edgeCache map[graph.JettyEdge]struct{}) error {
	edges := make([]graph.JettyEdge, 0, len(edgeCache))
	for e := range edgeCache {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From.String() < b.From.String()
		}
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		return a.To.String() < b.To.String()
	})
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			return errors.MergeErrorf("couldn't add edge %s -%s-> %s to graph: %v", e.From, e.Relation, e.To, err)
		}
	}
	return nil
}

// materializeDefaultPolicyEdges is pass two: link every default policy to
// the existing assets matching its pattern.
func materializeDefaultPolicyEdges(g *graph.Graph) error {
	for _, dpIdx := range g.DefaultPolicyIndices() {
		dp := g.DefaultPolicyAt(dpIdx)
		targets, err := MatchingTargets(g, dp)
		if err != nil {
			return err
		}
		for _, target := range targets {
			name, _ := g.NameOf(target.Idx())
			if err := g.AddEdge(graph.JettyEdge{From: dp.Name, To: name, Relation: graph.Governs}); err != nil {
				return err
			}
		}
	}
	return nil
}

// MatchingTargets finds the assets a default policy governs: hierarchical
// descendants of its root whose relative position matches the wildcard
// path and whose type equals the target type.
func MatchingTargets(g *graph.Graph, dp *graph.DefaultPolicyAttributes) ([]graph.AssetIndex, error) {
	pattern, err := wildcard.Parse(dp.MatchingPath)
	if err != nil {
		return nil, errors.ValidationErrorf("default policy %s: %v", dp.Name, err)
	}

	rootIdx, ok := g.IndexOf(dp.Root)
	if !ok {
		return nil, errors.MergeErrorf("default policy %s: root asset %s not in graph", dp.Name, dp.Root)
	}
	rootSegments := dp.Root.PathSegments()

	descendants := traversal.Descendants(g, rootIdx, traversal.Spec{
		Edge:   traversal.EdgeOneOf(graph.ParentOf),
		Target: traversal.NodeOfKind(graph.KindAsset),
	})

	var out []graph.AssetIndex
	for _, idx := range descendants {
		name, ok := g.NameOf(idx)
		if !ok || name.Kind != graph.KindAsset {
			continue
		}
		if dp.TargetType != "" && name.AssetType != dp.TargetType {
			continue
		}
		segments := name.PathSegments()
		if len(segments) <= len(rootSegments) {
			continue
		}
		if !pattern.Matches(segments[len(rootSegments):]) {
			continue
		}
		typed, ok := g.AssetIndexOf(name)
		if !ok {
			continue
		}
		out = append(out, typed)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := g.NameOf(out[i].Idx())
		b, _ := g.NameOf(out[j].Idx())
		return a.String() < b.String()
	})
	return out, nil
}
