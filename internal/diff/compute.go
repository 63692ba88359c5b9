package diff

import (
	"sort"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/translator"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// Compute runs the three diffs in order. The identity diff is applied to
// the in-memory graph before the group and policy diffs run, since those
// depend on which user nodes exist. The caller's graph is mutated; the
// on-disk blob is untouched.
func Compute(g *graph.Graph, tr *translator.Translator, tree *yamlconfig.Tree) (GlobalDiffs, error) {
	identities := ComputeIdentityDiffs(g, tree, tr)
	if err := ApplyIdentityDiffs(g, tr, identities); err != nil {
		return GlobalDiffs{}, err
	}

	groups := ComputeGroupDiffs(g, tree)

	policies, err := ComputePolicyDiffs(g, tree, tr)
	if err != nil {
		return GlobalDiffs{}, err
	}
	defaults, err := ComputeDefaultPolicyDiffs(g, tree, tr)
	if err != nil {
		return GlobalDiffs{}, err
	}

	return GlobalDiffs{
		Identities:      identities,
		Groups:          groups,
		Policies:        policies,
		DefaultPolicies: defaults,
	}, nil
}

// SplitByConnector partitions the global diff into per-connector payloads.
// An identity diff is split binding-by-binding: each connector only sees
// the bindings that live on it.
func (d GlobalDiffs) SplitByConnector() map[connectors.Namespace]LocalDiffs {
	out := map[connectors.Namespace]LocalDiffs{}
	get := func(ns connectors.Namespace) LocalDiffs {
		if local, ok := out[ns]; ok {
			return local
		}
		return LocalDiffs{Connector: ns}
	}

	for _, id := range d.Identities {
		byNS := map[connectors.Namespace]IdentityDiff{}
		for _, b := range id.AddedBindings {
			entry, ok := byNS[b.Connector]
			if !ok {
				entry = IdentityDiff{User: id.User, Kind: id.Kind}
			}
			entry.AddedBindings = append(entry.AddedBindings, b)
			byNS[b.Connector] = entry
		}
		for _, b := range id.RemovedBindings {
			entry, ok := byNS[b.Connector]
			if !ok {
				entry = IdentityDiff{User: id.User, Kind: id.Kind}
			}
			entry.RemovedBindings = append(entry.RemovedBindings, b)
			byNS[b.Connector] = entry
		}
		for ns, entry := range byNS {
			local := get(ns)
			local.Users = append(local.Users, entry)
			out[ns] = local
		}
	}

	for _, gd := range d.Groups {
		ns := gd.Name.Origin
		local := get(ns)
		local.Groups = append(local.Groups, gd)
		out[ns] = local
	}
	for _, pd := range d.Policies {
		ns := pd.Asset.Connector
		local := get(ns)
		local.Policies = append(local.Policies, pd)
		out[ns] = local
	}
	for _, dpd := range d.DefaultPolicies {
		ns := dpd.Root.Connector
		local := get(ns)
		local.DefaultPolicies = append(local.DefaultPolicies, dpd)
		out[ns] = local
	}

	for ns, local := range out {
		sort.Slice(local.Users, func(i, j int) bool { return local.Users[i].User.String() < local.Users[j].User.String() })
		out[ns] = local
	}
	return out
}
