package diff

import (
	"fmt"
	"sort"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// defaultPolicyKey is the four-part pattern a default policy is addressed
// by.
type defaultPolicyKey struct {
	Root       graph.NodeName
	Path       string
	TargetType connectors.AssetType
	Grantee    graph.NodeName
}

type defaultPolicyState struct {
	Privileges       connectors.StringSet
	ConnectorManaged bool
	Metadata         map[string]string
}

// ComputeDefaultPolicyDiffs compares configured default policies against
// the graph's default-policy nodes.
func ComputeDefaultPolicyDiffs(g *graph.Graph, tree *yamlconfig.Tree, resolver Resolver) ([]DefaultPolicyDiff, error) {
	config := map[defaultPolicyKey]defaultPolicyState{}
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
				key := defaultPolicyKey{Root: root, Path: dp.Path, TargetType: connectors.AssetType(dp.TargetType), Grantee: grantee}
				config[key] = defaultPolicyState{
					Privileges:       connectors.NewStringSet(dp.Privileges...),
					ConnectorManaged: dp.ConnectorManaged,
					Metadata:         dp.Metadata,
				}
			}
		}
	}

	env := map[defaultPolicyKey]defaultPolicyState{}
	for _, idx := range g.DefaultPolicyIndices() {
		dp := g.DefaultPolicyAt(idx)
		key := defaultPolicyKey{Root: dp.Root, Path: dp.MatchingPath, TargetType: dp.TargetType, Grantee: dp.Grantee}
		env[key] = defaultPolicyState{Privileges: dp.Privileges, Metadata: dp.Metadata}
	}

	var out []DefaultPolicyDiff
	for key, configState := range config {
		envState, exists := env[key]
		if !exists {
			out = append(out, DefaultPolicyDiff{
				Root: key.Root, Path: key.Path, TargetType: key.TargetType, Grantee: key.Grantee,
				Kind:             Add,
				AddedPrivileges:  configState.Privileges.Sorted(),
				ConnectorManaged: configState.ConnectorManaged,
				Metadata:         configState.Metadata,
			})
			continue
		}
		delete(env, key)
		if configState.Privileges.Equal(envState.Privileges) {
			continue
		}
		d := DefaultPolicyDiff{
			Root: key.Root, Path: key.Path, TargetType: key.TargetType, Grantee: key.Grantee,
			Kind:             Modify,
			ConnectorManaged: configState.ConnectorManaged,
		}
		for _, p := range configState.Privileges.Sorted() {
			if !envState.Privileges.Contains(p) {
				d.AddedPrivileges = append(d.AddedPrivileges, p)
			}
		}
		for _, p := range envState.Privileges.Sorted() {
			if !configState.Privileges.Contains(p) {
				d.RemovedPrivileges = append(d.RemovedPrivileges, p)
			}
		}
		out = append(out, d)
	}
	for key, envState := range env {
		out = append(out, DefaultPolicyDiff{
			Root: key.Root, Path: key.Path, TargetType: key.TargetType, Grantee: key.Grantee,
			Kind:              Remove,
			RemovedPrivileges: envState.Privileges.Sorted(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Root != out[j].Root {
			return out[i].Root.String() < out[j].Root.String()
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Grantee.String() < out[j].Grantee.String()
	})
	return out, nil
}
