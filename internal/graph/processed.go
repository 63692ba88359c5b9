package graph

import (
	"github.com/jettylabs/jetty/internal/connectors"
)

// NodeHelper is implemented by every processed record type: each record
// describes itself to the graph builder as at most one node plus its
// outgoing edges, without the builder knowing the record's concrete type.
type NodeHelper interface {
	// ToNode returns the node this record contributes, or nil for
	// reference-only records (assets owned by another connector).
	ToNode() Node
	// ToEdges returns the record's outgoing edges by canonical name.
	ToEdges() []JettyEdge
}

// ProcessedConnectorData is one connector's contribution after the
// translator has rewritten every local reference to a canonical name.
type ProcessedConnectorData struct {
	Connector       connectors.Namespace
	Groups          []ProcessedGroup
	Users           []ProcessedUser
	Assets          []ProcessedAsset
	AssetReferences []ProcessedAssetReference
	Tags            []ProcessedTag
	Policies        []ProcessedPolicy
	DefaultPolicies []ProcessedDefaultPolicy

	// EffectivePermissions is the connector's matrix keyed by canonical
	// names: user name -> asset name -> per-privilege permissions.
	EffectivePermissions map[NodeName]map[NodeName]connectors.EffectivePermissionSet
}

// ProcessedUser is a user record with canonical references.
type ProcessedUser struct {
	Name        NodeName
	Identifiers []connectors.UserIdentifier
	Metadata    map[string]string
	MemberOf    []NodeName
	GrantedBy   []NodeName
	Connector   connectors.Namespace
}

// ToNode implements NodeHelper.
func (u ProcessedUser) ToNode() Node {
	return &UserAttributes{
		Name:        u.Name,
		Identifiers: u.Identifiers,
		Metadata:    u.Metadata,
		Connectors:  NewNamespaceSet(u.Connector),
	}
}

// ToEdges implements NodeHelper.
func (u ProcessedUser) ToEdges() []JettyEdge {
	var edges []JettyEdge
	for _, g := range u.MemberOf {
		edges = append(edges, JettyEdge{From: u.Name, To: g, Relation: MemberOf})
	}
	for _, p := range u.GrantedBy {
		edges = append(edges, JettyEdge{From: u.Name, To: p, Relation: GrantedBy})
	}
	return edges
}

// ProcessedGroup is a group record with canonical references.
type ProcessedGroup struct {
	Name           NodeName
	Metadata       map[string]string
	MemberOf       []NodeName
	IncludesUsers  []NodeName
	IncludesGroups []NodeName
	GrantedBy      []NodeName
	Connector      connectors.Namespace
}

// ToNode implements NodeHelper.
func (g ProcessedGroup) ToNode() Node {
	return &GroupAttributes{
		Name:       g.Name,
		Metadata:   g.Metadata,
		Connectors: NewNamespaceSet(g.Connector),
	}
}

// ToEdges implements NodeHelper.
func (g ProcessedGroup) ToEdges() []JettyEdge {
	var edges []JettyEdge
	for _, parent := range g.MemberOf {
		edges = append(edges, JettyEdge{From: g.Name, To: parent, Relation: MemberOf})
	}
	for _, u := range g.IncludesUsers {
		edges = append(edges, JettyEdge{From: g.Name, To: u, Relation: Includes})
	}
	for _, child := range g.IncludesGroups {
		edges = append(edges, JettyEdge{From: g.Name, To: child, Relation: Includes})
	}
	for _, p := range g.GrantedBy {
		edges = append(edges, JettyEdge{From: g.Name, To: p, Relation: GrantedBy})
	}
	return edges
}

// ProcessedAsset is an asset record with canonical references.
type ProcessedAsset struct {
	Name        NodeName
	Cual        connectors.Cual
	AssetType   connectors.AssetType
	Metadata    map[string]string
	GovernedBy  []NodeName
	ChildOf     []NodeName
	ParentOf    []NodeName
	DerivedFrom []NodeName
	DerivedTo   []NodeName
	TaggedAs    []NodeName
	Connector   connectors.Namespace
}

// ToNode implements NodeHelper.
func (a ProcessedAsset) ToNode() Node {
	return &AssetAttributes{
		Name:       a.Name,
		Cual:       a.Cual,
		AssetType:  a.AssetType,
		Metadata:   a.Metadata,
		Connectors: NewNamespaceSet(a.Connector),
	}
}

// ToEdges implements NodeHelper.
func (a ProcessedAsset) ToEdges() []JettyEdge {
	return assetEdges(a.Name, a.GovernedBy, a.ChildOf, a.ParentOf, a.DerivedFrom, a.DerivedTo, a.TaggedAs)
}

// ProcessedAssetReference links to an asset owned by another connector. It
// contributes edges only.
type ProcessedAssetReference struct {
	Name        NodeName
	Metadata    map[string]string
	GovernedBy  []NodeName
	ChildOf     []NodeName
	ParentOf    []NodeName
	DerivedFrom []NodeName
	DerivedTo   []NodeName
	TaggedAs    []NodeName
	Connector   connectors.Namespace
}

// ToNode implements NodeHelper; reference records never contribute a node.
func (a ProcessedAssetReference) ToNode() Node { return nil }

// ToEdges implements NodeHelper.
func (a ProcessedAssetReference) ToEdges() []JettyEdge {
	return assetEdges(a.Name, a.GovernedBy, a.ChildOf, a.ParentOf, a.DerivedFrom, a.DerivedTo, a.TaggedAs)
}

func assetEdges(name NodeName, governedBy, childOf, parentOf, derivedFrom, derivedTo, taggedAs []NodeName) []JettyEdge {
	var edges []JettyEdge
	for _, p := range governedBy {
		edges = append(edges, JettyEdge{From: name, To: p, Relation: GovernedBy})
	}
	for _, parent := range childOf {
		edges = append(edges, JettyEdge{From: name, To: parent, Relation: ChildOf})
	}
	for _, child := range parentOf {
		edges = append(edges, JettyEdge{From: name, To: child, Relation: ParentOf})
	}
	for _, up := range derivedFrom {
		edges = append(edges, JettyEdge{From: name, To: up, Relation: DerivedFrom})
	}
	for _, down := range derivedTo {
		edges = append(edges, JettyEdge{From: name, To: down, Relation: DerivedTo})
	}
	for _, t := range taggedAs {
		edges = append(edges, JettyEdge{From: name, To: t, Relation: TaggedAs})
	}
	return edges
}

// ProcessedTag is a tag record with canonical references.
type ProcessedTag struct {
	Name                 NodeName
	Value                string
	Description          string
	PassThroughHierarchy bool
	PassThroughLineage   bool
	AppliedTo            []NodeName
	RemovedFrom          []NodeName
	GovernedBy           []NodeName
	Connector            connectors.Namespace
}

// ToNode implements NodeHelper.
func (t ProcessedTag) ToNode() Node {
	return &TagAttributes{
		Name:                 t.Name,
		Value:                t.Value,
		Description:          t.Description,
		PassThroughHierarchy: t.PassThroughHierarchy,
		PassThroughLineage:   t.PassThroughLineage,
		Connectors:           NewNamespaceSet(t.Connector),
	}
}

// ToEdges implements NodeHelper.
func (t ProcessedTag) ToEdges() []JettyEdge {
	var edges []JettyEdge
	for _, a := range t.AppliedTo {
		edges = append(edges, JettyEdge{From: t.Name, To: a, Relation: AppliedTo})
	}
	for _, a := range t.RemovedFrom {
		edges = append(edges, JettyEdge{From: t.Name, To: a, Relation: RemovedFrom})
	}
	for _, p := range t.GovernedBy {
		edges = append(edges, JettyEdge{From: t.Name, To: p, Relation: GovernedBy})
	}
	return edges
}

// ProcessedPolicy is a policy record with canonical references.
type ProcessedPolicy struct {
	Name                 NodeName
	Privileges           connectors.StringSet
	GovernsAssets        []NodeName
	GovernsTags          []NodeName
	GrantedToGroups      []NodeName
	GrantedToUsers       []NodeName
	PassThroughHierarchy bool
	PassThroughLineage   bool
	Connector            connectors.Namespace
}

// ToNode implements NodeHelper.
func (p ProcessedPolicy) ToNode() Node {
	return &PolicyAttributes{
		Name:                 p.Name,
		Privileges:           p.Privileges,
		PassThroughHierarchy: p.PassThroughHierarchy,
		PassThroughLineage:   p.PassThroughLineage,
		Connectors:           NewNamespaceSet(p.Connector),
	}
}

// ToEdges implements NodeHelper.
func (p ProcessedPolicy) ToEdges() []JettyEdge {
	var edges []JettyEdge
	for _, a := range p.GovernsAssets {
		edges = append(edges, JettyEdge{From: p.Name, To: a, Relation: Governs})
	}
	for _, t := range p.GovernsTags {
		edges = append(edges, JettyEdge{From: p.Name, To: t, Relation: Governs})
	}
	for _, g := range p.GrantedToGroups {
		edges = append(edges, JettyEdge{From: p.Name, To: g, Relation: GrantedTo})
	}
	for _, u := range p.GrantedToUsers {
		edges = append(edges, JettyEdge{From: p.Name, To: u, Relation: GrantedTo})
	}
	return edges
}

// ProcessedDefaultPolicy is a default-policy record with canonical
// references. Its node name is the four-part pattern; the edges to its
// matching targets depend on the rest of the graph and are materialized by
// the builder's second pass, not here.
type ProcessedDefaultPolicy struct {
	Name         NodeName
	Privileges   connectors.StringSet
	Root         NodeName
	MatchingPath string
	TargetType   connectors.AssetType
	Grantee      NodeName
	Metadata     map[string]string
	Connector    connectors.Namespace
}

// ToNode implements NodeHelper.
func (d ProcessedDefaultPolicy) ToNode() Node {
	return &DefaultPolicyAttributes{
		Name:         d.Name,
		Privileges:   d.Privileges,
		Root:         d.Root,
		MatchingPath: d.MatchingPath,
		TargetType:   d.TargetType,
		Grantee:      d.Grantee,
		Metadata:     d.Metadata,
		Connectors:   NewNamespaceSet(d.Connector),
	}
}

// ToEdges implements NodeHelper. Only the graph-independent edges: the root
// anchor and the grant. Target edges come from the builder's second pass.
func (d ProcessedDefaultPolicy) ToEdges() []JettyEdge {
	return []JettyEdge{
		{From: d.Root, To: d.Name, Relation: ProvidedDefaultForChildren},
		{From: d.Name, To: d.Grantee, Relation: GrantedTo},
	}
}
