package graph

import (
	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/errors"
)

// Node is the closed union of graph node types. The unexported method keeps
// the union closed to this package's six attribute structs; callers downcast
// with the As* helpers or a type switch.
type Node interface {
	// NodeName returns the node's canonical name.
	NodeName() NodeName
	// mergeWith combines another node of the same kind into a new node,
	// enforcing the merge-compatibility rules.
	mergeWith(other Node) (Node, error)
}

// MergeNodes combines two nodes carrying the same canonical name. Scalar
// attributes must match across contributors; set-valued attributes union;
// conflicting metadata keys are a merge error.
func MergeNodes(a, b Node) (Node, error) {
	if a.NodeName() != b.NodeName() {
		return nil, errors.MergeErrorf("unable to merge nodes with different names: %s, %s", a.NodeName(), b.NodeName())
	}
	return a.mergeWith(b)
}

// UserAttributes is a user node.
type UserAttributes struct {
	Name        NodeName                    `json:"name"`
	Identifiers []connectors.UserIdentifier `json:"identifiers,omitempty"`
	Metadata    map[string]string           `json:"metadata,omitempty"`
	Connectors  NamespaceSet                `json:"connectors"`
}

// NodeName implements Node.
func (a *UserAttributes) NodeName() NodeName { return a.Name }

func (a *UserAttributes) mergeWith(other Node) (Node, error) {
	b, ok := other.(*UserAttributes)
	if !ok {
		return nil, mergeKindError(a, other)
	}
	metadata, err := mergeMetadata(a.Name, a.Metadata, b.Metadata)
	if err != nil {
		return nil, err
	}
	return &UserAttributes{
		Name:        a.Name,
		Identifiers: unionIdentifiers(a.Identifiers, b.Identifiers),
		Metadata:    metadata,
		Connectors:  a.Connectors.Union(b.Connectors),
	}, nil
}

// GroupAttributes is a group node. Its name is scoped to the origin
// connector; groups are never unified across connectors.
type GroupAttributes struct {
	Name       NodeName          `json:"name"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Connectors NamespaceSet      `json:"connectors"`
}

// NodeName implements Node.
func (a *GroupAttributes) NodeName() NodeName { return a.Name }

func (a *GroupAttributes) mergeWith(other Node) (Node, error) {
	b, ok := other.(*GroupAttributes)
	if !ok {
		return nil, mergeKindError(a, other)
	}
	metadata, err := mergeMetadata(a.Name, a.Metadata, b.Metadata)
	if err != nil {
		return nil, err
	}
	return &GroupAttributes{
		Name:       a.Name,
		Metadata:   metadata,
		Connectors: a.Connectors.Union(b.Connectors),
	}, nil
}

// AssetAttributes is an asset node.
type AssetAttributes struct {
	Name       NodeName             `json:"name"`
	Cual       connectors.Cual      `json:"cual"`
	AssetType  connectors.AssetType `json:"asset_type,omitempty"`
	Metadata   map[string]string    `json:"metadata,omitempty"`
	Connectors NamespaceSet         `json:"connectors"`
}

// NodeName implements Node.
func (a *AssetAttributes) NodeName() NodeName { return a.Name }

func (a *AssetAttributes) mergeWith(other Node) (Node, error) {
	b, ok := other.(*AssetAttributes)
	if !ok {
		return nil, mergeKindError(a, other)
	}
	cual, err := mergeMatched(a.Name, "cual", a.Cual, b.Cual)
	if err != nil {
		return nil, err
	}
	assetType, err := mergeMatched(a.Name, "asset_type", a.AssetType, b.AssetType)
	if err != nil {
		return nil, err
	}
	metadata, err := mergeMetadata(a.Name, a.Metadata, b.Metadata)
	if err != nil {
		return nil, err
	}
	return &AssetAttributes{
		Name:       a.Name,
		Cual:       cual,
		AssetType:  assetType,
		Metadata:   metadata,
		Connectors: a.Connectors.Union(b.Connectors),
	}, nil
}

// TagAttributes is a tag node.
type TagAttributes struct {
	Name                 NodeName     `json:"name"`
	Value                string       `json:"value,omitempty"`
	Description          string       `json:"description,omitempty"`
	PassThroughHierarchy bool         `json:"pass_through_hierarchy"`
	PassThroughLineage   bool         `json:"pass_through_lineage"`
	Connectors           NamespaceSet `json:"connectors"`
}

// NodeName implements Node.
func (a *TagAttributes) NodeName() NodeName { return a.Name }

func (a *TagAttributes) mergeWith(other Node) (Node, error) {
	b, ok := other.(*TagAttributes)
	if !ok {
		return nil, mergeKindError(a, other)
	}
	value, err := mergeMatched(a.Name, "value", a.Value, b.Value)
	if err != nil {
		return nil, err
	}
	description, err := mergeMatched(a.Name, "description", a.Description, b.Description)
	if err != nil {
		return nil, err
	}
	hierarchy, err := mergeMatched(a.Name, "pass_through_hierarchy", a.PassThroughHierarchy, b.PassThroughHierarchy)
	if err != nil {
		return nil, err
	}
	lineage, err := mergeMatched(a.Name, "pass_through_lineage", a.PassThroughLineage, b.PassThroughLineage)
	if err != nil {
		return nil, err
	}
	return &TagAttributes{
		Name:                 a.Name,
		Value:                value,
		Description:          description,
		PassThroughHierarchy: hierarchy,
		PassThroughLineage:   lineage,
		Connectors:           a.Connectors.Union(b.Connectors),
	}, nil
}

// PolicyAttributes is a policy node.
type PolicyAttributes struct {
	Name                 NodeName             `json:"name"`
	Privileges           connectors.StringSet `json:"privileges,omitempty"`
	PassThroughHierarchy bool                 `json:"pass_through_hierarchy"`
	PassThroughLineage   bool                 `json:"pass_through_lineage"`
	Connectors           NamespaceSet         `json:"connectors"`
}

// NodeName implements Node.
func (a *PolicyAttributes) NodeName() NodeName { return a.Name }

func (a *PolicyAttributes) mergeWith(other Node) (Node, error) {
	b, ok := other.(*PolicyAttributes)
	if !ok {
		return nil, mergeKindError(a, other)
	}
	if !a.Privileges.Equal(b.Privileges) {
		return nil, fieldMismatchError(a.Name, "privileges", a.Privileges.Sorted(), b.Privileges.Sorted())
	}
	hierarchy, err := mergeMatched(a.Name, "pass_through_hierarchy", a.PassThroughHierarchy, b.PassThroughHierarchy)
	if err != nil {
		return nil, err
	}
	lineage, err := mergeMatched(a.Name, "pass_through_lineage", a.PassThroughLineage, b.PassThroughLineage)
	if err != nil {
		return nil, err
	}
	return &PolicyAttributes{
		Name:                 a.Name,
		Privileges:           a.Privileges,
		PassThroughHierarchy: hierarchy,
		PassThroughLineage:   lineage,
		Connectors:           a.Connectors.Union(b.Connectors),
	}, nil
}

// DefaultPolicyAttributes is a default (inherited) policy node: privileges
// attached to a {root, matching path, target type, grantee} pattern.
type DefaultPolicyAttributes struct {
	Name         NodeName             `json:"name"`
	Privileges   connectors.StringSet `json:"privileges,omitempty"`
	Root         NodeName             `json:"root"`
	MatchingPath string               `json:"matching_path"`
	TargetType   connectors.AssetType `json:"target_type,omitempty"`
	Grantee      NodeName             `json:"grantee"`
	Metadata     map[string]string    `json:"metadata,omitempty"`
	Connectors   NamespaceSet         `json:"connectors"`
}

// NodeName implements Node.
func (a *DefaultPolicyAttributes) NodeName() NodeName { return a.Name }

func (a *DefaultPolicyAttributes) mergeWith(other Node) (Node, error) {
	b, ok := other.(*DefaultPolicyAttributes)
	if !ok {
		return nil, mergeKindError(a, other)
	}
	if !a.Privileges.Equal(b.Privileges) {
		return nil, fieldMismatchError(a.Name, "privileges", a.Privileges.Sorted(), b.Privileges.Sorted())
	}
	metadata, err := mergeMetadata(a.Name, a.Metadata, b.Metadata)
	if err != nil {
		return nil, err
	}
	return &DefaultPolicyAttributes{
		Name:         a.Name,
		Privileges:   a.Privileges,
		Root:         a.Root,
		MatchingPath: a.MatchingPath,
		TargetType:   a.TargetType,
		Grantee:      a.Grantee,
		Metadata:     metadata,
		Connectors:   a.Connectors.Union(b.Connectors),
	}, nil
}

// AsUser downcasts; ok is false when the node is another kind.
func AsUser(n Node) (*UserAttributes, bool) { u, ok := n.(*UserAttributes); return u, ok }

// AsGroup downcasts; ok is false when the node is another kind.
func AsGroup(n Node) (*GroupAttributes, bool) { g, ok := n.(*GroupAttributes); return g, ok }

// AsAsset downcasts; ok is false when the node is another kind.
func AsAsset(n Node) (*AssetAttributes, bool) { a, ok := n.(*AssetAttributes); return a, ok }

// AsTag downcasts; ok is false when the node is another kind.
func AsTag(n Node) (*TagAttributes, bool) { t, ok := n.(*TagAttributes); return t, ok }

// AsPolicy downcasts; ok is false when the node is another kind.
func AsPolicy(n Node) (*PolicyAttributes, bool) { p, ok := n.(*PolicyAttributes); return p, ok }

// AsDefaultPolicy downcasts; ok is false when the node is another kind.
func AsDefaultPolicy(n Node) (*DefaultPolicyAttributes, bool) {
	d, ok := n.(*DefaultPolicyAttributes)
	return d, ok
}

func mergeKindError(a, b Node) error {
	return errors.MergeErrorf("unable to merge nodes of different kinds: %s, %s", a.NodeName().Kind, b.NodeName().Kind)
}

// mergeMatched enforces the scalar rule: both contributors must agree.
func mergeMatched[T comparable](name NodeName, field string, a, b T) (T, error) {
	if a != b {
		var zero T
		return zero, fieldMismatchError(name, field, a, b)
	}
	return a, nil
}

func fieldMismatchError(name NodeName, field string, a, b any) error {
	return errors.MergeErrorf("unable to merge %s: fields don't match on %s: %v, %v", name, field, a, b)
}

// mergeMetadata unions metadata maps; a key present on both sides with
// different values is a merge error.
func mergeMetadata(name NodeName, a, b map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; ok && existing != v {
			return nil, errors.MergeErrorf("unable to merge %s: conflicting metadata on key %q: %q, %q", name, k, existing, v)
		}
		out[k] = v
	}
	return out, nil
}

func unionIdentifiers(a, b []connectors.UserIdentifier) []connectors.UserIdentifier {
	seen := make(map[connectors.UserIdentifier]struct{}, len(a)+len(b))
	out := make([]connectors.UserIdentifier, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
