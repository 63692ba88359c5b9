package queries

import (
	"sort"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/traversal"
	"github.com/jettylabs/jetty/internal/wildcard"
)

// GrantKey addresses one materialized grant: a privilege set landing on an
// asset for a grantee.
type GrantKey struct {
	Asset   graph.NodeName
	Grantee graph.NodeName
}

// GrantMap is the flat form both regular policies and expanded defaults
// reduce to. An empty privilege set is meaningful: it pins a grant at
// "nothing" and blocks any default from applying there.
type GrantMap map[GrantKey]connectors.StringSet

// Priority orders materialized default policies: defaults rooted deeper in
// the hierarchy dominate, and at equal depth, literal path segments outrank
// "*", which outranks "**".
type Priority struct {
	RootDepth   int
	Specificity int
}

// Less orders ascending; the highest priority sorts last.
func (p Priority) Less(other Priority) bool {
	if p.RootDepth != other.RootDepth {
		return p.RootDepth < other.RootDepth
	}
	return p.Specificity < other.Specificity
}

// PriorityOf scores one default policy.
func PriorityOf(dp *graph.DefaultPolicyAttributes) Priority {
	pattern, err := wildcard.Parse(dp.MatchingPath)
	if err != nil {
		// Validation rejects illegal paths before anything queries them.
		return Priority{RootDepth: len(dp.Root.PathSegments())}
	}
	return Priority{
		RootDepth:   len(dp.Root.PathSegments()),
		Specificity: pattern.Specificity(),
	}
}

// PrioritizedDefaultPolicies groups the graph's default policies by
// priority, highest first.
func PrioritizedDefaultPolicies(g *graph.Graph) [][]graph.DefaultPolicyIndex {
	byPriority := map[Priority][]graph.DefaultPolicyIndex{}
	for _, idx := range g.DefaultPolicyIndices() {
		p := PriorityOf(g.DefaultPolicyAt(idx))
		byPriority[p] = append(byPriority[p], idx)
	}
	priorities := make([]Priority, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Slice(priorities, func(i, j int) bool { return priorities[j].Less(priorities[i]) })

	out := make([][]graph.DefaultPolicyIndex, 0, len(priorities))
	for _, p := range priorities {
		group := byPriority[p]
		sort.Slice(group, func(i, j int) bool {
			a, _ := g.NameOf(group[i].Idx())
			b, _ := g.NameOf(group[j].Idx())
			return a.String() < b.String()
		})
		out = append(out, group)
	}
	return out
}

// DefaultPolicySpec is a default policy independent of whether it lives in
// the graph or the config tree, for expansion against the graph's assets.
type DefaultPolicySpec struct {
	Root         graph.NodeName
	MatchingPath string
	TargetType   connectors.AssetType
	Grantee      graph.NodeName
	Privileges   connectors.StringSet
}

func (s DefaultPolicySpec) attributes() *graph.DefaultPolicyAttributes {
	return &graph.DefaultPolicyAttributes{
		Name:         graph.DefaultPolicyName(s.Root, s.MatchingPath, s.TargetType, s.Grantee),
		Privileges:   s.Privileges,
		Root:         s.Root,
		MatchingPath: s.MatchingPath,
		TargetType:   s.TargetType,
		Grantee:      s.Grantee,
	}
}

// ExpandDefaults materializes the graph's own default policies; see
// ExpandDefaultSpecs.
func ExpandDefaults(g *graph.Graph) GrantMap {
	var specs []DefaultPolicySpec
	for _, idx := range g.DefaultPolicyIndices() {
		dp := g.DefaultPolicyAt(idx)
		specs = append(specs, DefaultPolicySpec{
			Root:         dp.Root,
			MatchingPath: dp.MatchingPath,
			TargetType:   dp.TargetType,
			Grantee:      dp.Grantee,
			Privileges:   dp.Privileges,
		})
	}
	return ExpandDefaultSpecs(g, specs)
}

// ExpandDefaultSpecs materializes default policies onto their matching
// targets, composing priority groups from highest to lowest so that a
// more-specific default wins a contested (asset, grantee) cell. Within one
// priority group, privileges union.
func ExpandDefaultSpecs(g *graph.Graph, specs []DefaultPolicySpec) GrantMap {
	byPriority := map[Priority][]DefaultPolicySpec{}
	for _, s := range specs {
		p := PriorityOf(s.attributes())
		byPriority[p] = append(byPriority[p], s)
	}
	priorities := make([]Priority, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Slice(priorities, func(i, j int) bool { return priorities[j].Less(priorities[i]) })

	out := GrantMap{}
	for _, p := range priorities {
		grants := GrantMap{}
		for _, s := range byPriority[p] {
			for _, target := range matchingTargets(g, s.attributes()) {
				key := GrantKey{Asset: target, Grantee: s.Grantee}
				if existing, ok := grants[key]; ok {
					grants[key] = existing.Union(s.Privileges)
				} else {
					grants[key] = s.Privileges
				}
			}
		}
		out.mergeSkippingIfExists(grants)
	}
	return out
}

// mergeSkippingIfExists inserts lower-priority grants only where no
// higher-priority grant already claimed the cell.
func (m GrantMap) mergeSkippingIfExists(incoming GrantMap) {
	for key, privileges := range incoming {
		if _, taken := m[key]; taken {
			continue
		}
		m[key] = privileges
	}
}

// matchingTargets resolves a default policy's pattern against the graph:
// hierarchical descendants of the root whose relative path matches and
// whose type equals the target type.
func matchingTargets(g *graph.Graph, dp *graph.DefaultPolicyAttributes) []graph.NodeName {
	pattern, err := wildcard.Parse(dp.MatchingPath)
	if err != nil {
		return nil
	}
	rootIdx, ok := g.IndexOf(dp.Root)
	if !ok {
		return nil
	}
	rootSegments := dp.Root.PathSegments()

	var out []graph.NodeName
	descendants := traversal.Descendants(g, rootIdx, traversal.Spec{
		Edge:   traversal.EdgeOneOf(graph.ParentOf),
		Target: traversal.NodeOfKind(graph.KindAsset),
	})
	for _, idx := range descendants {
		name, ok := g.NameOf(idx)
		if !ok {
			continue
		}
		if dp.TargetType != "" && name.AssetType != dp.TargetType {
			continue
		}
		segments := name.PathSegments()
		if len(segments) <= len(rootSegments) {
			continue
		}
		if pattern.Matches(segments[len(rootSegments):]) {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// RegularGrants flattens the graph's regular policies into a GrantMap: for
// each policy, each governed asset crossed with each grantee.
func RegularGrants(g *graph.Graph) GrantMap {
	out := GrantMap{}
	for _, idx := range g.PolicyIndices() {
		policy := g.PolicyAt(idx)
		var assets, grantees []graph.NodeName
		for _, e := range g.Outgoing(idx.Idx()) {
			name, ok := g.NameOf(e.To)
			if !ok {
				continue
			}
			switch e.Relation {
			case graph.Governs:
				if name.Kind == graph.KindAsset {
					assets = append(assets, name)
				}
			case graph.GrantedTo:
				grantees = append(grantees, name)
			}
		}
		for _, asset := range assets {
			for _, grantee := range grantees {
				key := GrantKey{Asset: asset, Grantee: grantee}
				if existing, ok := out[key]; ok {
					out[key] = existing.Union(policy.Privileges)
				} else {
					out[key] = policy.Privileges
				}
			}
		}
	}
	return out
}

// Expand resolves the final grant state: a regular policy on a cell (even
// an empty one) overrides the default; otherwise the default applies.
// Cells resolving to no privileges are dropped.
func Expand(regular, defaults GrantMap) GrantMap {
	out := GrantMap{}
	for key, privileges := range regular {
		if len(privileges) > 0 {
			out[key] = privileges
		}
	}
	for key, privileges := range defaults {
		if _, pinned := regular[key]; pinned {
			continue
		}
		if len(privileges) > 0 {
			out[key] = privileges
		}
	}
	return out
}

// Compact is the inverse used when bootstrapping config from a live graph:
// regular grants identical to the resolved default are dropped (the
// default will reproduce them), and a default landing on a cell with no
// regular grant gets an empty grant inserted so the default doesn't
// manufacture access that doesn't exist on the platform. Lossless:
// Expand(Compact(regular, defaults), defaults) == Expand-normalized
// regular.
func Compact(regular, defaults GrantMap) GrantMap {
	out := GrantMap{}
	for key, privileges := range regular {
		if def, covered := defaults[key]; covered && def.Equal(privileges) {
			continue
		}
		out[key] = privileges
	}
	for key := range defaults {
		if _, exists := regular[key]; !exists {
			out[key] = connectors.StringSet{}
		}
	}
	return out
}
