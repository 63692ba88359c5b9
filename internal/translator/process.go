package translator

import (
	"fmt"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

// Process is the second pass: it rewrites every reference inside each
// frame's raw records to canonical names, producing the builder's input.
func (t *Translator) Process(frames []Frame) ([]graph.ProcessedConnectorData, error) {
	out := make([]graph.ProcessedConnectorData, 0, len(frames))
	for _, f := range frames {
		processed, err := t.processFrame(f)
		if err != nil {
			return nil, fmt.Errorf("processing connector %s: %w", f.Connector, err)
		}
		out = append(out, processed)
	}
	return out, nil
}

func (t *Translator) processFrame(f Frame) (graph.ProcessedConnectorData, error) {
	ns := f.Connector
	result := graph.ProcessedConnectorData{Connector: ns}

	for _, u := range f.Data.Users {
		pu, err := t.processUser(ns, u)
		if err != nil {
			return result, err
		}
		result.Users = append(result.Users, pu)
	}
	for _, g := range f.Data.Groups {
		pg, err := t.processGroup(ns, g)
		if err != nil {
			return result, err
		}
		result.Groups = append(result.Groups, pg)
	}
	for _, a := range f.Data.Assets {
		pa, err := t.processAsset(ns, a)
		if err != nil {
			return result, err
		}
		result.Assets = append(result.Assets, pa)
	}
	for _, r := range f.Data.AssetReferences {
		pr, err := t.processAssetReference(ns, r)
		if err != nil {
			return result, err
		}
		result.AssetReferences = append(result.AssetReferences, pr)
	}
	for _, tg := range f.Data.Tags {
		pt, err := t.processTag(ns, tg)
		if err != nil {
			return result, err
		}
		result.Tags = append(result.Tags, pt)
	}
	for _, p := range f.Data.Policies {
		pp, err := t.processPolicy(ns, p)
		if err != nil {
			return result, err
		}
		result.Policies = append(result.Policies, pp)
	}
	for _, d := range f.Data.DefaultPolicies {
		pd, err := t.processDefaultPolicy(ns, d)
		if err != nil {
			return result, err
		}
		result.DefaultPolicies = append(result.DefaultPolicies, pd)
	}

	matrix, err := t.processMatrix(ns, f.Data.EffectivePermissions)
	if err != nil {
		return result, err
	}
	result.EffectivePermissions = matrix
	return result, nil
}

func (t *Translator) processUser(ns connectors.Namespace, u connectors.RawUser) (graph.ProcessedUser, error) {
	name, err := t.LocalToCanonical(ns, graph.KindUser, u.Name)
	if err != nil {
		return graph.ProcessedUser{}, err
	}
	memberOf, err := t.mapRefs(ns, graph.KindGroup, u.MemberOf)
	if err != nil {
		return graph.ProcessedUser{}, err
	}
	grantedBy, err := t.mapRefs(ns, graph.KindPolicy, u.GrantedBy)
	if err != nil {
		return graph.ProcessedUser{}, err
	}
	return graph.ProcessedUser{
		Name:        name,
		Identifiers: u.Identifiers,
		Metadata:    u.Metadata,
		MemberOf:    memberOf,
		GrantedBy:   grantedBy,
		Connector:   ns,
	}, nil
}

func (t *Translator) processGroup(ns connectors.Namespace, g connectors.RawGroup) (graph.ProcessedGroup, error) {
	name, err := t.LocalToCanonical(ns, graph.KindGroup, g.Name)
	if err != nil {
		return graph.ProcessedGroup{}, err
	}
	memberOf, err := t.mapRefs(ns, graph.KindGroup, g.MemberOf)
	if err != nil {
		return graph.ProcessedGroup{}, err
	}
	includesUsers, err := t.mapRefs(ns, graph.KindUser, g.IncludesUsers)
	if err != nil {
		return graph.ProcessedGroup{}, err
	}
	includesGroups, err := t.mapRefs(ns, graph.KindGroup, g.IncludesGroups)
	if err != nil {
		return graph.ProcessedGroup{}, err
	}
	grantedBy, err := t.mapRefs(ns, graph.KindPolicy, g.GrantedBy)
	if err != nil {
		return graph.ProcessedGroup{}, err
	}
	return graph.ProcessedGroup{
		Name:           name,
		Metadata:       g.Metadata,
		MemberOf:       memberOf,
		IncludesUsers:  includesUsers,
		IncludesGroups: includesGroups,
		GrantedBy:      grantedBy,
		Connector:      ns,
	}, nil
}

func (t *Translator) processAsset(ns connectors.Namespace, a connectors.RawAsset) (graph.ProcessedAsset, error) {
	name, err := t.CualToAssetName(a.Cual)
	if err != nil {
		return graph.ProcessedAsset{}, err
	}
	governedBy, err := t.mapRefs(ns, graph.KindPolicy, a.GovernedBy)
	if err != nil {
		return graph.ProcessedAsset{}, err
	}
	childOf, err := t.mapCualRefs(a.ChildOf)
	if err != nil {
		return graph.ProcessedAsset{}, err
	}
	parentOf, err := t.mapCualRefs(a.ParentOf)
	if err != nil {
		return graph.ProcessedAsset{}, err
	}
	derivedFrom, err := t.mapCualRefs(a.DerivedFrom)
	if err != nil {
		return graph.ProcessedAsset{}, err
	}
	derivedTo, err := t.mapCualRefs(a.DerivedTo)
	if err != nil {
		return graph.ProcessedAsset{}, err
	}
	return graph.ProcessedAsset{
		Name:        name,
		Cual:        a.Cual,
		AssetType:   a.AssetType,
		Metadata:    a.Metadata,
		GovernedBy:  governedBy,
		ChildOf:     childOf,
		ParentOf:    parentOf,
		DerivedFrom: derivedFrom,
		DerivedTo:   derivedTo,
		TaggedAs:    tagRefs(a.TaggedAs),
		Connector:   ns,
	}, nil
}

func (t *Translator) processAssetReference(ns connectors.Namespace, r connectors.RawAssetReference) (graph.ProcessedAssetReference, error) {
	name, err := t.CualToAssetName(r.Cual)
	if err != nil {
		return graph.ProcessedAssetReference{}, err
	}
	governedBy, err := t.mapRefs(ns, graph.KindPolicy, r.GovernedBy)
	if err != nil {
		return graph.ProcessedAssetReference{}, err
	}
	childOf, err := t.mapCualRefs(r.ChildOf)
	if err != nil {
		return graph.ProcessedAssetReference{}, err
	}
	parentOf, err := t.mapCualRefs(r.ParentOf)
	if err != nil {
		return graph.ProcessedAssetReference{}, err
	}
	derivedFrom, err := t.mapCualRefs(r.DerivedFrom)
	if err != nil {
		return graph.ProcessedAssetReference{}, err
	}
	derivedTo, err := t.mapCualRefs(r.DerivedTo)
	if err != nil {
		return graph.ProcessedAssetReference{}, err
	}
	return graph.ProcessedAssetReference{
		Name:        name,
		Metadata:    r.Metadata,
		GovernedBy:  governedBy,
		ChildOf:     childOf,
		ParentOf:    parentOf,
		DerivedFrom: derivedFrom,
		DerivedTo:   derivedTo,
		TaggedAs:    tagRefs(r.TaggedAs),
		Connector:   ns,
	}, nil
}

func (t *Translator) processTag(ns connectors.Namespace, tg connectors.RawTag) (graph.ProcessedTag, error) {
	appliedTo, err := t.mapCualRefs(tg.AppliedTo)
	if err != nil {
		return graph.ProcessedTag{}, err
	}
	removedFrom, err := t.mapCualRefs(tg.RemovedFrom)
	if err != nil {
		return graph.ProcessedTag{}, err
	}
	governedBy, err := t.mapRefs(ns, graph.KindPolicy, tg.GovernedBy)
	if err != nil {
		return graph.ProcessedTag{}, err
	}
	return graph.ProcessedTag{
		Name:                 graph.TagName(tg.Name),
		Value:                tg.Value,
		Description:          tg.Description,
		PassThroughHierarchy: tg.PassThroughHierarchy,
		PassThroughLineage:   tg.PassThroughLineage,
		AppliedTo:            appliedTo,
		RemovedFrom:          removedFrom,
		GovernedBy:           governedBy,
		Connector:            ns,
	}, nil
}

func (t *Translator) processPolicy(ns connectors.Namespace, p connectors.RawPolicy) (graph.ProcessedPolicy, error) {
	name, err := t.LocalToCanonical(ns, graph.KindPolicy, p.Name)
	if err != nil {
		return graph.ProcessedPolicy{}, err
	}
	governsAssets, err := t.mapCualRefs(p.GovernsAssets)
	if err != nil {
		return graph.ProcessedPolicy{}, err
	}
	grantedToGroups, err := t.mapRefs(ns, graph.KindGroup, p.GrantedToGroups)
	if err != nil {
		return graph.ProcessedPolicy{}, err
	}
	grantedToUsers, err := t.mapRefs(ns, graph.KindUser, p.GrantedToUsers)
	if err != nil {
		return graph.ProcessedPolicy{}, err
	}
	return graph.ProcessedPolicy{
		Name:                 name,
		Privileges:           p.Privileges,
		GovernsAssets:        governsAssets,
		GovernsTags:          tagRefs(p.GovernsTags),
		GrantedToGroups:      grantedToGroups,
		GrantedToUsers:       grantedToUsers,
		PassThroughHierarchy: p.PassThroughHierarchy,
		PassThroughLineage:   p.PassThroughLineage,
		Connector:            ns,
	}, nil
}

func (t *Translator) processDefaultPolicy(ns connectors.Namespace, d connectors.RawDefaultPolicy) (graph.ProcessedDefaultPolicy, error) {
	root, err := t.CualToAssetName(d.RootAsset)
	if err != nil {
		return graph.ProcessedDefaultPolicy{}, err
	}
	var grantee graph.NodeName
	switch d.Grantee.Kind {
	case connectors.GranteeUser:
		grantee, err = t.LocalToCanonical(ns, graph.KindUser, d.Grantee.Name)
	case connectors.GranteeGroup:
		grantee, err = t.LocalToCanonical(ns, graph.KindGroup, d.Grantee.Name)
	default:
		err = fmt.Errorf("unknown grantee kind %q", d.Grantee.Kind)
	}
	if err != nil {
		return graph.ProcessedDefaultPolicy{}, err
	}
	return graph.ProcessedDefaultPolicy{
		Name:         graph.DefaultPolicyName(root, d.WildcardPath, d.TargetType, grantee),
		Privileges:   d.Privileges,
		Root:         root,
		MatchingPath: d.WildcardPath,
		TargetType:   d.TargetType,
		Grantee:      grantee,
		Metadata:     d.Metadata,
		Connector:    ns,
	}, nil
}

func (t *Translator) processMatrix(ns connectors.Namespace, m connectors.EffectivePermissionMatrix) (map[graph.NodeName]map[graph.NodeName]connectors.EffectivePermissionSet, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[graph.NodeName]map[graph.NodeName]connectors.EffectivePermissionSet, len(m))
	for localUser, assets := range m {
		user, err := t.LocalToCanonical(ns, graph.KindUser, localUser)
		if err != nil {
			return nil, err
		}
		row := make(map[graph.NodeName]connectors.EffectivePermissionSet, len(assets))
		for cual, perms := range assets {
			assetName, err := t.CualToAssetName(cual)
			if err != nil {
				return nil, err
			}
			row[assetName] = perms
		}
		out[user] = row
	}
	return out, nil
}

// mapRefs translates a set of local references of one kind, sorted for
// deterministic edge emission.
func (t *Translator) mapRefs(ns connectors.Namespace, kind graph.NodeKind, refs connectors.StringSet) ([]graph.NodeName, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]graph.NodeName, 0, len(refs))
	for _, local := range refs.Sorted() {
		canonical, err := t.LocalToCanonical(ns, kind, local)
		if err != nil {
			return nil, err
		}
		out = append(out, canonical)
	}
	return out, nil
}

// mapCualRefs translates a set of CUAL strings into asset names.
func (t *Translator) mapCualRefs(refs connectors.StringSet) ([]graph.NodeName, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]graph.NodeName, 0, len(refs))
	for _, raw := range refs.Sorted() {
		name, err := t.CualToAssetName(connectors.NewCual(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// tagRefs lifts tag name strings; tags are global, no lookup needed.
func tagRefs(refs connectors.StringSet) []graph.NodeName {
	if len(refs) == 0 {
		return nil
	}
	out := make([]graph.NodeName, 0, len(refs))
	for _, name := range refs.Sorted() {
		out = append(out, graph.TagName(name))
	}
	return out
}
