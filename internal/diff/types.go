// Package diff computes the three diffs between the declarative config and
// the reconciled graph: user identities, groups, and policies plus default
// policies. Identity diffs are applied to the in-memory graph before the
// other two are computed, because those depend on which user nodes exist.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

// Kind says what happens to an entity.
type Kind int

const (
	// Add creates the entity.
	Add Kind = iota
	// Remove deletes the entity.
	Remove
	// Modify changes the entity, carrying only the differential so the
	// connector can issue minimal API calls.
	Modify
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Modify:
		return "modify"
	}
	return "unknown"
}

// Resolver is the slice of the translator the diff layer needs.
type Resolver interface {
	CualToAssetName(cual connectors.Cual) (graph.NodeName, error)
	CanonicalToLocal(ns connectors.Namespace, canonical graph.NodeName) (string, error)
}

// ConnectorLocal is one (connector, local name) identity binding.
type ConnectorLocal struct {
	Connector connectors.Namespace
	LocalName string
}

func (c ConnectorLocal) String() string {
	return fmt.Sprintf("%s: %s", c.Connector, c.LocalName)
}

// IdentityDiff is a change to one user's local-name bindings.
type IdentityDiff struct {
	User            graph.NodeName
	Kind            Kind
	AddedBindings   []ConnectorLocal
	RemovedBindings []ConnectorLocal
}

// GroupDiff is a change to one group's existence or membership. Member
// names are canonical.
type GroupDiff struct {
	Name           graph.NodeName
	Kind           Kind
	AddedMembers   []graph.NodeName
	RemovedMembers []graph.NodeName
}

// PolicyDiff is a change to the privileges one grantee holds on one asset.
type PolicyDiff struct {
	Asset             graph.NodeName
	Grantee           graph.NodeName
	Kind              Kind
	AddedPrivileges   []string
	RemovedPrivileges []string
	// Metadata rides along on Add only.
	Metadata map[string]string
}

// DefaultPolicyDiff is a change to one default-policy pattern.
type DefaultPolicyDiff struct {
	Root              graph.NodeName
	Path              string
	TargetType        connectors.AssetType
	Grantee           graph.NodeName
	Kind              Kind
	AddedPrivileges   []string
	RemovedPrivileges []string
	ConnectorManaged  bool
	Metadata          map[string]string
}

// GlobalDiffs is everything the planner partitions and the CLI prints.
type GlobalDiffs struct {
	Identities      []IdentityDiff
	Groups          []GroupDiff
	Policies        []PolicyDiff
	DefaultPolicies []DefaultPolicyDiff
}

// Empty reports whether there is nothing to do.
func (d GlobalDiffs) Empty() bool {
	return len(d.Identities) == 0 && len(d.Groups) == 0 && len(d.Policies) == 0 && len(d.DefaultPolicies) == 0
}

// LocalDiffs is the subset of a global diff that concerns one connector.
// This is the payload handed to that connector's planner.
type LocalDiffs struct {
	Connector       connectors.Namespace
	Users           []IdentityDiff
	Groups          []GroupDiff
	Policies        []PolicyDiff
	DefaultPolicies []DefaultPolicyDiff
}

// Empty reports whether the connector has nothing to do.
func (d LocalDiffs) Empty() bool {
	return len(d.Users) == 0 && len(d.Groups) == 0 && len(d.Policies) == 0 && len(d.DefaultPolicies) == 0
}

// ANSI colors for the plan rendering: additions green, removals red,
// modifications yellow, matching conventional diff output.
const (
	colorGreen  = "\x1b[32m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"
)

// Colorize switches the String renderings between colored and plain
// output; the CLI disables color when stdout isn't a terminal.
var Colorize = true

func paint(color, s string) string {
	if !Colorize {
		return s
	}
	return color + s + colorReset
}

func (d IdentityDiff) String() string {
	var b strings.Builder
	switch d.Kind {
	case Add:
		b.WriteString(paint(colorGreen, fmt.Sprintf("+ user: %s", d.User)) + "\n")
	case Remove:
		b.WriteString(paint(colorRed, fmt.Sprintf("- user: %s", d.User)) + "\n")
	case Modify:
		b.WriteString(paint(colorYellow, fmt.Sprintf("~ user: %s", d.User)) + "\n")
	}
	for _, binding := range d.AddedBindings {
		b.WriteString(paint(colorGreen, fmt.Sprintf("  + %s", binding)) + "\n")
	}
	for _, binding := range d.RemovedBindings {
		b.WriteString(paint(colorRed, fmt.Sprintf("  - %s", binding)) + "\n")
	}
	return b.String()
}

func (d GroupDiff) String() string {
	var b strings.Builder
	switch d.Kind {
	case Add:
		b.WriteString(paint(colorGreen, fmt.Sprintf("+ group: %s", d.Name)) + "\n")
	case Remove:
		b.WriteString(paint(colorRed, fmt.Sprintf("- group: %s", d.Name)) + "\n")
	case Modify:
		b.WriteString(paint(colorYellow, fmt.Sprintf("~ group: %s", d.Name)) + "\n")
	}
	for _, m := range d.AddedMembers {
		b.WriteString(paint(colorGreen, fmt.Sprintf("  + member: %s", m)) + "\n")
	}
	for _, m := range d.RemovedMembers {
		b.WriteString(paint(colorRed, fmt.Sprintf("  - member: %s", m)) + "\n")
	}
	return b.String()
}

func (d PolicyDiff) String() string {
	var b strings.Builder
	header := fmt.Sprintf("policy: %s -> %s", d.Asset, d.Grantee)
	switch d.Kind {
	case Add:
		b.WriteString(paint(colorGreen, "+ "+header) + "\n")
	case Remove:
		b.WriteString(paint(colorRed, "- "+header) + "\n")
	case Modify:
		b.WriteString(paint(colorYellow, "~ "+header) + "\n")
	}
	for _, p := range d.AddedPrivileges {
		b.WriteString(paint(colorGreen, fmt.Sprintf("    + %s", p)) + "\n")
	}
	for _, p := range d.RemovedPrivileges {
		b.WriteString(paint(colorRed, fmt.Sprintf("    - %s", p)) + "\n")
	}
	if len(d.Metadata) > 0 {
		keys := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("    metadata:\n")
		for _, k := range keys {
			b.WriteString(paint(colorGreen, fmt.Sprintf("      + %s: %s", k, d.Metadata[k])) + "\n")
		}
	}
	return b.String()
}

func (d DefaultPolicyDiff) String() string {
	var b strings.Builder
	header := fmt.Sprintf("default policy: %s %s (%s) -> %s", d.Root, d.Path, d.TargetType, d.Grantee)
	switch d.Kind {
	case Add:
		b.WriteString(paint(colorGreen, "+ "+header) + "\n")
	case Remove:
		b.WriteString(paint(colorRed, "- "+header) + "\n")
	case Modify:
		b.WriteString(paint(colorYellow, "~ "+header) + "\n")
	}
	b.WriteString(fmt.Sprintf("    connector-managed: %t\n", d.ConnectorManaged))
	for _, p := range d.AddedPrivileges {
		b.WriteString(paint(colorGreen, fmt.Sprintf("    + %s", p)) + "\n")
	}
	for _, p := range d.RemovedPrivileges {
		b.WriteString(paint(colorRed, fmt.Sprintf("    - %s", p)) + "\n")
	}
	return b.String()
}

// String renders the whole diff in a stable order.
func (d GlobalDiffs) String() string {
	var b strings.Builder
	for _, i := range d.Identities {
		b.WriteString(i.String())
	}
	for _, g := range d.Groups {
		b.WriteString(g.String())
	}
	for _, p := range d.Policies {
		b.WriteString(p.String())
	}
	for _, dp := range d.DefaultPolicies {
		b.WriteString(dp.String())
	}
	return b.String()
}
