package diff

import (
	"sort"

	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/translator"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// bindingSet is one user's local identities across connectors.
type bindingSet map[ConnectorLocal]struct{}

func (s bindingSet) equal(other bindingSet) bool {
	if len(s) != len(other) {
		return false
	}
	for b := range s {
		if _, ok := other[b]; !ok {
			return false
		}
	}
	return true
}

func (s bindingSet) sorted() []ConnectorLocal {
	out := make([]ConnectorLocal, 0, len(s))
	for b := range s {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Connector != out[j].Connector {
			return out[i].Connector < out[j].Connector
		}
		return out[i].LocalName < out[j].LocalName
	})
	return out
}

// ComputeIdentityDiffs compares the users file's identity bindings against
// the graph's: which local accounts resolve to which canonical users.
func ComputeIdentityDiffs(g *graph.Graph, tree *yamlconfig.Tree, resolver Resolver) []IdentityDiff {
	config := map[graph.NodeName]bindingSet{}
	for _, u := range tree.Users {
		set := bindingSet{}
		for ns, local := range u.Identities {
			set[ConnectorLocal{Connector: ns, LocalName: local}] = struct{}{}
		}
		config[graph.UserName(u.Name)] = set
	}

	env := map[graph.NodeName]bindingSet{}
	for _, idx := range g.UserIndices() {
		user := g.UserAt(idx)
		set := bindingSet{}
		for _, ns := range user.Connectors.Sorted() {
			local, err := resolver.CanonicalToLocal(ns, user.Name)
			if err != nil {
				continue
			}
			set[ConnectorLocal{Connector: ns, LocalName: local}] = struct{}{}
		}
		env[user.Name] = set
	}

	var out []IdentityDiff
	for user, configBindings := range config {
		envBindings, exists := env[user]
		if !exists {
			out = append(out, IdentityDiff{User: user, Kind: Add, AddedBindings: configBindings.sorted()})
			continue
		}
		delete(env, user)
		if configBindings.equal(envBindings) {
			continue
		}
		d := IdentityDiff{User: user, Kind: Modify}
		for b := range configBindings {
			if _, ok := envBindings[b]; !ok {
				d.AddedBindings = append(d.AddedBindings, b)
			}
		}
		for b := range envBindings {
			if _, ok := configBindings[b]; !ok {
				d.RemovedBindings = append(d.RemovedBindings, b)
			}
		}
		sortBindings(d.AddedBindings)
		sortBindings(d.RemovedBindings)
		out = append(out, d)
	}
	for user, envBindings := range env {
		out = append(out, IdentityDiff{User: user, Kind: Remove, RemovedBindings: envBindings.sorted()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].User.String() < out[j].User.String() })
	return out
}

func sortBindings(bindings []ConnectorLocal) {
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Connector != bindings[j].Connector {
			return bindings[i].Connector < bindings[j].Connector
		}
		return bindings[i].LocalName < bindings[j].LocalName
	})
}

// ApplyIdentityDiffs mutates the in-memory graph and translator so the
// group and policy diffs computed afterwards see the configured identity
// assignments. Runs before either of those diffs.
func ApplyIdentityDiffs(g *graph.Graph, tr *translator.Translator, diffs []IdentityDiff) error {
	// Adds and modifies run before removes: a reassignment surfaces as an
	// add of the new user plus a remove of the old one, and the add's
	// rewiring must see the old node's edges intact.
	ordered := make([]IdentityDiff, 0, len(diffs))
	for _, d := range diffs {
		if d.Kind != Remove {
			ordered = append(ordered, d)
		}
	}
	for _, d := range diffs {
		if d.Kind == Remove {
			ordered = append(ordered, d)
		}
	}

	for _, d := range ordered {
		switch d.Kind {
		case Add, Modify:
			// Each added binding may point at a local account the graph
			// already resolves to somebody else; rewiring moves that
			// account's edges onto the configured user. A binding for an
			// account the graph has never seen resolves at the next fetch.
			for _, b := range d.AddedBindings {
				old, err := tr.LocalToCanonical(b.Connector, graph.KindUser, b.LocalName)
				if err != nil {
					continue
				}
				if old == d.User {
					continue
				}
				if err := tr.RewireUser(b.Connector, b.LocalName, old, d.User); err != nil {
					return err
				}
				if _, ok := g.IndexOf(old); ok {
					if err := g.RewireUser(old, d.User); err != nil {
						return err
					}
				}
			}
			if _, ok := g.IndexOf(d.User); !ok {
				set := graph.NewNamespaceSet()
				for _, b := range d.AddedBindings {
					set[b.Connector] = struct{}{}
				}
				if _, err := g.AddNode(&graph.UserAttributes{Name: d.User, Connectors: set}); err != nil {
					return err
				}
			}
		case Remove:
			// A rewire above may already have consumed the node.
			if _, ok := g.IndexOf(d.User); ok {
				if err := g.RemoveNode(d.User); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
