// Package yamlconfig holds Jetty's declarative configuration: one YAML
// document per asset in a directory tree mirroring the asset hierarchy,
// plus one groups file declaring the group hierarchy and one users file
// mapping canonical users to their per-connector local identities.
package yamlconfig

import (
	"sort"

	"github.com/jettylabs/jetty/internal/connectors"
)

// AssetDoc is one asset's YAML document.
type AssetDoc struct {
	// Identifier is the asset's CUAL.
	Identifier      string               `yaml:"identifier"`
	Policies        []PolicyEntry        `yaml:"policies,omitempty"`
	DefaultPolicies []DefaultPolicyEntry `yaml:"default_policies,omitempty"`

	// File and Line locate the document for error reporting. Never
	// serialized.
	File string `yaml:"-"`
	Line int    `yaml:"-"`
}

// PolicyEntry is one grant on the enclosing asset.
type PolicyEntry struct {
	Privileges []string          `yaml:"privileges,omitempty"`
	Users      []string          `yaml:"users,omitempty"`
	Groups     []string          `yaml:"groups,omitempty"`
	Metadata   map[string]string `yaml:"metadata,omitempty"`

	Line int `yaml:"-"`
}

// DefaultPolicyEntry is one default policy rooted at the enclosing asset.
type DefaultPolicyEntry struct {
	// Path is the wildcard matching path below the root asset.
	Path string `yaml:"path"`
	// TargetType is the asset type the default applies to.
	TargetType string            `yaml:"target_type"`
	Privileges []string          `yaml:"privileges,omitempty"`
	Users      []string          `yaml:"users,omitempty"`
	Groups     []string          `yaml:"groups,omitempty"`
	Metadata   map[string]string `yaml:"metadata,omitempty"`
	// ConnectorManaged marks defaults the platform itself maintains. The
	// flag is carried into the default-policy diff and shown in plan
	// output; no connector changes the requests it prepares because of it.
	ConnectorManaged bool `yaml:"connector_managed,omitempty"`

	Line int `yaml:"-"`
}

// GroupEntry declares one group in the groups file.
type GroupEntry struct {
	// Name is the Jetty-level group name.
	Name string `yaml:"name"`
	// Names overrides the local name per connector; a connector absent
	// from the map uses Name.
	Names map[connectors.Namespace]string `yaml:"names,omitempty"`
	// IncludesGroups and IncludesUsers declare membership.
	IncludesGroups []string `yaml:"member_groups,omitempty"`
	IncludesUsers  []string `yaml:"member_users,omitempty"`
	// Connector is the origin connector the group lives on.
	Connector connectors.Namespace `yaml:"connector"`

	Line int `yaml:"-"`
}

// LocalName resolves the group's name on one connector.
func (g GroupEntry) LocalName(ns connectors.Namespace) string {
	if local, ok := g.Names[ns]; ok {
		return local
	}
	return g.Name
}

// UserEntry maps one canonical user to their per-connector local identities.
type UserEntry struct {
	// Name is the canonical user name (an email whenever one is known).
	Name       string                          `yaml:"name"`
	Identities map[connectors.Namespace]string `yaml:"identities,omitempty"`

	Line int `yaml:"-"`
}

// Tree is the whole parsed configuration.
type Tree struct {
	// Assets is keyed by identifier (CUAL string).
	Assets map[string]AssetDoc
	Groups []GroupEntry
	Users  []UserEntry
}

// GroupNamed finds a declared group by Jetty-level name.
func (t *Tree) GroupNamed(name string) (GroupEntry, bool) {
	for _, g := range t.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupEntry{}, false
}

// UserNamed finds a declared user by canonical name.
func (t *Tree) UserNamed(name string) (UserEntry, bool) {
	for _, u := range t.Users {
		if u.Name == name {
			return u, true
		}
	}
	return UserEntry{}, false
}

// SortedAssetIdentifiers returns the asset keys in stable order.
func (t *Tree) SortedAssetIdentifiers() []string {
	out := make([]string, 0, len(t.Assets))
	for id := range t.Assets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Normalize sorts every list so that serialization and diffing are stable
// regardless of the order entries were written in.
func (t *Tree) Normalize() {
	for id, doc := range t.Assets {
		for i := range doc.Policies {
			sort.Strings(doc.Policies[i].Privileges)
			sort.Strings(doc.Policies[i].Users)
			sort.Strings(doc.Policies[i].Groups)
		}
		sort.Slice(doc.Policies, func(i, j int) bool { return policyKey(doc.Policies[i]) < policyKey(doc.Policies[j]) })
		for i := range doc.DefaultPolicies {
			sort.Strings(doc.DefaultPolicies[i].Privileges)
			sort.Strings(doc.DefaultPolicies[i].Users)
			sort.Strings(doc.DefaultPolicies[i].Groups)
		}
		sort.Slice(doc.DefaultPolicies, func(i, j int) bool {
			return defaultPolicyKey(doc.DefaultPolicies[i]) < defaultPolicyKey(doc.DefaultPolicies[j])
		})
		t.Assets[id] = doc
	}
	sort.Slice(t.Groups, func(i, j int) bool { return t.Groups[i].Name < t.Groups[j].Name })
	sort.Slice(t.Users, func(i, j int) bool { return t.Users[i].Name < t.Users[j].Name })
}

func policyKey(p PolicyEntry) string {
	key := ""
	for _, u := range p.Users {
		key += "u:" + u + ";"
	}
	for _, g := range p.Groups {
		key += "g:" + g + ";"
	}
	for _, pr := range p.Privileges {
		key += "p:" + pr + ";"
	}
	return key
}

func defaultPolicyKey(p DefaultPolicyEntry) string {
	key := p.Path + "#" + p.TargetType + "#"
	for _, u := range p.Users {
		key += "u:" + u + ";"
	}
	for _, g := range p.Groups {
		key += "g:" + g + ";"
	}
	return key
}
