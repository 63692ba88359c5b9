package graph

import "fmt"

// EdgeRelation is the closed enum of edge labels.
type EdgeRelation string

const (
	// MemberOf points from a user or group to a group containing it.
	MemberOf EdgeRelation = "member_of"
	// Includes is the pair of MemberOf.
	Includes EdgeRelation = "includes"
	// GrantedBy points from a user or group to a policy granting to it.
	GrantedBy EdgeRelation = "granted_by"
	// GrantedFrom points from a user or group to a default policy granting
	// to it.
	GrantedFrom EdgeRelation = "granted_from"
	// GrantedTo points from a policy or default policy to its grantee.
	GrantedTo EdgeRelation = "granted_to"
	// ChildOf points from an asset to its hierarchical parent.
	ChildOf EdgeRelation = "child_of"
	// ParentOf is the pair of ChildOf.
	ParentOf EdgeRelation = "parent_of"
	// DerivedFrom points from an asset to a lineage upstream asset.
	DerivedFrom EdgeRelation = "derived_from"
	// DerivedTo is the pair of DerivedFrom.
	DerivedTo EdgeRelation = "derived_to"
	// TaggedAs points from an asset to a tag applied to it.
	TaggedAs EdgeRelation = "tagged_as"
	// AppliedTo is the pair of TaggedAs.
	AppliedTo EdgeRelation = "applied_to"
	// UntaggedAs points from an asset to a tag explicitly removed from it.
	UntaggedAs EdgeRelation = "untagged_as"
	// RemovedFrom is the pair of UntaggedAs.
	RemovedFrom EdgeRelation = "removed_from"
	// GovernedBy points from an asset or tag to a policy or default policy
	// governing it.
	GovernedBy EdgeRelation = "governed_by"
	// Governs is the pair of GovernedBy.
	Governs EdgeRelation = "governs"
	// ProvidedDefaultForChildren anchors a default policy at its root asset.
	// It has no paired inverse; it is the one one-directional relation.
	ProvidedDefaultForChildren EdgeRelation = "provided_default_for_children"
)

// Paired returns the inverse relation for r and whether one exists.
// Adding an edge A --r--> B always also inserts B --Paired(r)--> A, so
// traversal code may rely on either direction being present.
//
// GrantedTo pairs back to GrantedBy; edge insertion substitutes GrantedFrom
// when the granting node is a default policy.
func (r EdgeRelation) Paired() (EdgeRelation, bool) {
	switch r {
	case MemberOf:
		return Includes, true
	case Includes:
		return MemberOf, true
	case GrantedBy, GrantedFrom:
		return GrantedTo, true
	case GrantedTo:
		return GrantedBy, true
	case ChildOf:
		return ParentOf, true
	case ParentOf:
		return ChildOf, true
	case DerivedFrom:
		return DerivedTo, true
	case DerivedTo:
		return DerivedFrom, true
	case TaggedAs:
		return AppliedTo, true
	case AppliedTo:
		return TaggedAs, true
	case UntaggedAs:
		return RemovedFrom, true
	case RemovedFrom:
		return UntaggedAs, true
	case GovernedBy:
		return Governs, true
	case Governs:
		return GovernedBy, true
	case ProvidedDefaultForChildren:
		return "", false
	}
	return "", false
}

// endpointRule is the set of node kinds legal at each end of a relation.
type endpointRule struct {
	from map[NodeKind]bool
	to   map[NodeKind]bool
}

func kinds(ks ...NodeKind) map[NodeKind]bool {
	m := make(map[NodeKind]bool, len(ks))
	for _, k := range ks {
		m[k] = true
	}
	return m
}

var endpointRules = map[EdgeRelation]endpointRule{
	MemberOf:                   {from: kinds(KindUser, KindGroup), to: kinds(KindGroup)},
	Includes:                   {from: kinds(KindGroup), to: kinds(KindUser, KindGroup)},
	GrantedBy:                  {from: kinds(KindUser, KindGroup), to: kinds(KindPolicy)},
	GrantedFrom:                {from: kinds(KindUser, KindGroup), to: kinds(KindDefaultPolicy)},
	GrantedTo:                  {from: kinds(KindPolicy, KindDefaultPolicy), to: kinds(KindUser, KindGroup)},
	ChildOf:                    {from: kinds(KindAsset), to: kinds(KindAsset)},
	ParentOf:                   {from: kinds(KindAsset), to: kinds(KindAsset)},
	DerivedFrom:                {from: kinds(KindAsset), to: kinds(KindAsset)},
	DerivedTo:                  {from: kinds(KindAsset), to: kinds(KindAsset)},
	TaggedAs:                   {from: kinds(KindAsset), to: kinds(KindTag)},
	AppliedTo:                  {from: kinds(KindTag), to: kinds(KindAsset)},
	UntaggedAs:                 {from: kinds(KindAsset), to: kinds(KindTag)},
	RemovedFrom:                {from: kinds(KindTag), to: kinds(KindAsset)},
	GovernedBy:                 {from: kinds(KindAsset, KindTag), to: kinds(KindPolicy, KindDefaultPolicy)},
	Governs:                    {from: kinds(KindPolicy, KindDefaultPolicy), to: kinds(KindAsset, KindTag)},
	ProvidedDefaultForChildren: {from: kinds(KindAsset), to: kinds(KindDefaultPolicy)},
}

// checkEndpoints enforces name-kind coherence for an edge.
func checkEndpoints(from, to NodeName, relation EdgeRelation) error {
	rule, ok := endpointRules[relation]
	if !ok {
		return fmt.Errorf("unknown edge relation %q", relation)
	}
	if !rule.from[from.Kind] {
		return fmt.Errorf("edge %s may not start at a %s node (%s)", relation, from.Kind, from)
	}
	if !rule.to[to.Kind] {
		return fmt.Errorf("edge %s may not end at a %s node (%s)", relation, to.Kind, to)
	}
	return nil
}

// JettyEdge is a directed labeled edge, identified by its endpoints' names
// and its relation. Used for accumulation and dedup before insertion.
type JettyEdge struct {
	From     NodeName     `json:"from"`
	To       NodeName     `json:"to"`
	Relation EdgeRelation `json:"relation"`
}
