package diff

import (
	"fmt"
	"sort"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/queries"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// configGrants flattens the config tree's regular policies into the same
// GrantMap shape the graph reduces to, so the two sides compare directly.
// Group grantees resolve through the groups file to their scoped canonical
// names.
func configGrants(tree *yamlconfig.Tree, resolver Resolver) (queries.GrantMap, map[queries.GrantKey]map[string]string, error) {
	grants := queries.GrantMap{}
	metadata := map[queries.GrantKey]map[string]string{}

	for _, id := range tree.SortedAssetIdentifiers() {
		doc := tree.Assets[id]
		asset, err := resolver.CualToAssetName(connectors.NewCual(id))
		if err != nil {
			return nil, nil, fmt.Errorf("asset %q: %w", id, err)
		}
		for _, p := range doc.Policies {
			grantees, err := resolveGrantees(tree, p.Users, p.Groups)
			if err != nil {
				return nil, nil, fmt.Errorf("asset %q: %w", id, err)
			}
			for _, grantee := range grantees {
				key := queries.GrantKey{Asset: asset, Grantee: grantee}
				privileges := connectors.NewStringSet(p.Privileges...)
				if existing, ok := grants[key]; ok {
					grants[key] = existing.Union(privileges)
				} else {
					grants[key] = privileges
				}
				if len(p.Metadata) > 0 {
					metadata[key] = p.Metadata
				}
			}
		}
	}
	return grants, metadata, nil
}

func resolveGrantees(tree *yamlconfig.Tree, users, groups []string) ([]graph.NodeName, error) {
	var out []graph.NodeName
	for _, u := range users {
		out = append(out, graph.UserName(u))
	}
	for _, g := range groups {
		entry, ok := tree.GroupNamed(g)
		if !ok {
			return nil, fmt.Errorf("policy references undeclared group %q", g)
		}
		out = append(out, graph.GroupName(entry.LocalName(entry.Connector), entry.Connector))
	}
	return out, nil
}

// configDefaultSpecs lifts the tree's default-policy entries into
// expansion specs.
func configDefaultSpecs(tree *yamlconfig.Tree, resolver Resolver) ([]queries.DefaultPolicySpec, error) {
	var specs []queries.DefaultPolicySpec
	for _, id := range tree.SortedAssetIdentifiers() {
		doc := tree.Assets[id]
		root, err := resolver.CualToAssetName(connectors.NewCual(id))
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", id, err)
		}
		for _, dp := range doc.DefaultPolicies {
			grantees, err := resolveGrantees(tree, dp.Users, dp.Groups)
			if err != nil {
				return nil, fmt.Errorf("asset %q: %w", id, err)
			}
			for _, grantee := range grantees {
				specs = append(specs, queries.DefaultPolicySpec{
					Root:         root,
					MatchingPath: dp.Path,
					TargetType:   connectors.AssetType(dp.TargetType),
					Grantee:      grantee,
					Privileges:   connectors.NewStringSet(dp.Privileges...),
				})
			}
		}
	}
	return specs, nil
}

// ComputePolicyDiffs compares the config's grant state against the
// graph's regular policies. The config side is the configured regular
// policies with configured defaults expanded over them, so a compacted
// config (regular grants folded into defaults at bootstrap) still diffs
// empty against an unchanged platform. A Modify carries the privilege
// differential, not the whole new state.
func ComputePolicyDiffs(g *graph.Graph, tree *yamlconfig.Tree, resolver Resolver) ([]PolicyDiff, error) {
	regular, metadata, err := configGrants(tree, resolver)
	if err != nil {
		return nil, err
	}
	specs, err := configDefaultSpecs(tree, resolver)
	if err != nil {
		return nil, err
	}
	config := queries.Expand(regular, queries.ExpandDefaultSpecs(g, specs))
	env := queries.RegularGrants(g)

	var out []PolicyDiff
	for key, configPrivileges := range config {
		envPrivileges, exists := env[key]
		if !exists {
			out = append(out, PolicyDiff{
				Asset: key.Asset, Grantee: key.Grantee, Kind: Add,
				AddedPrivileges: configPrivileges.Sorted(),
				Metadata:        metadata[key],
			})
			continue
		}
		delete(env, key)
		if configPrivileges.Equal(envPrivileges) {
			continue
		}
		d := PolicyDiff{Asset: key.Asset, Grantee: key.Grantee, Kind: Modify}
		for _, p := range configPrivileges.Sorted() {
			if !envPrivileges.Contains(p) {
				d.AddedPrivileges = append(d.AddedPrivileges, p)
			}
		}
		for _, p := range envPrivileges.Sorted() {
			if !configPrivileges.Contains(p) {
				d.RemovedPrivileges = append(d.RemovedPrivileges, p)
			}
		}
		out = append(out, d)
	}
	for key, envPrivileges := range env {
		out = append(out, PolicyDiff{
			Asset: key.Asset, Grantee: key.Grantee, Kind: Remove,
			RemovedPrivileges: envPrivileges.Sorted(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset.String() < out[j].Asset.String()
		}
		return out[i].Grantee.String() < out[j].Grantee.String()
	})
	return out, nil
}
