package diff

import (
	"sort"

	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

type memberSet map[graph.NodeName]struct{}

func (s memberSet) sorted() []graph.NodeName {
	out := make([]graph.NodeName, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ComputeGroupDiffs compares the groups file's hierarchy against the
// graph's group nodes and their membership edges.
func ComputeGroupDiffs(g *graph.Graph, tree *yamlconfig.Tree) []GroupDiff {
	config := map[graph.NodeName]memberSet{}
	for _, entry := range tree.Groups {
		name := graph.GroupName(entry.LocalName(entry.Connector), entry.Connector)
		members := memberSet{}
		for _, user := range entry.IncludesUsers {
			members[graph.UserName(user)] = struct{}{}
		}
		for _, child := range entry.IncludesGroups {
			childEntry, ok := tree.GroupNamed(child)
			if !ok {
				// Validation already failed the run; skip here.
				continue
			}
			members[graph.GroupName(childEntry.LocalName(childEntry.Connector), childEntry.Connector)] = struct{}{}
		}
		config[name] = members
	}

	env := map[graph.NodeName]memberSet{}
	for _, idx := range g.GroupIndices() {
		name := g.GroupAt(idx).Name
		members := memberSet{}
		for _, e := range g.Outgoing(idx.Idx()) {
			if e.Relation != graph.Includes {
				continue
			}
			if member, ok := g.NameOf(e.To); ok {
				members[member] = struct{}{}
			}
		}
		env[name] = members
	}

	var out []GroupDiff
	for name, configMembers := range config {
		envMembers, exists := env[name]
		if !exists {
			out = append(out, GroupDiff{Name: name, Kind: Add, AddedMembers: configMembers.sorted()})
			continue
		}
		delete(env, name)
		var added, removed []graph.NodeName
		for m := range configMembers {
			if _, ok := envMembers[m]; !ok {
				added = append(added, m)
			}
		}
		for m := range envMembers {
			if _, ok := configMembers[m]; !ok {
				removed = append(removed, m)
			}
		}
		if len(added) == 0 && len(removed) == 0 {
			continue
		}
		sort.Slice(added, func(i, j int) bool { return added[i].String() < added[j].String() })
		sort.Slice(removed, func(i, j int) bool { return removed[i].String() < removed[j].String() })
		out = append(out, GroupDiff{Name: name, Kind: Modify, AddedMembers: added, RemovedMembers: removed})
	}
	for name, envMembers := range env {
		out = append(out, GroupDiff{Name: name, Kind: Remove, RemovedMembers: envMembers.sorted()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name.String() < out[j].Name.String() })
	return out
}
