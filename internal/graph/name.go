// Package graph holds Jetty's access graph: a typed heterogeneous directed
// multigraph of users, groups, assets, tags, policies, and default policies,
// with paired edges and arena-backed integer indices.
package graph

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jettylabs/jetty/internal/connectors"
)

// NodeKind discriminates the node union.
type NodeKind string

const (
	KindUser          NodeKind = "user"
	KindGroup         NodeKind = "group"
	KindAsset         NodeKind = "asset"
	KindTag           NodeKind = "tag"
	KindPolicy        NodeKind = "policy"
	KindDefaultPolicy NodeKind = "default_policy"
)

// NodeName is the canonical, graph-internal identity of a node. It is
// distinct from any connector's local name: the translator owns the mapping
// between the two. NodeName is comparable and is used as a map key
// throughout.
//
// Which fields are populated depends on Kind:
//   - user: Name (an email when any connector supplied one, otherwise the
//     local name)
//   - group, policy: Name + Origin (scoped per connector, never unified)
//   - asset: Connector + AssetType + Path
//   - tag: Name
//   - default_policy: Root + MatchingPath + TargetType + Grantee
type NodeName struct {
	Kind      NodeKind             `json:"kind"`
	Name      string               `json:"name,omitempty"`
	Origin    connectors.Namespace `json:"origin,omitempty"`
	Connector connectors.Namespace `json:"connector,omitempty"`
	AssetType connectors.AssetType `json:"asset_type,omitempty"`
	// Path is the asset's hierarchy, segments URL-escaped and joined with
	// "/", top parent first.
	Path string `json:"path,omitempty"`
	// Root is the String() form of the root asset's name.
	Root         string               `json:"root,omitempty"`
	MatchingPath string               `json:"matching_path,omitempty"`
	TargetType   connectors.AssetType `json:"target_type,omitempty"`
	// Grantee is the String() form of the grantee's name.
	Grantee string `json:"grantee,omitempty"`
}

// UserName builds the canonical name for a user.
func UserName(name string) NodeName {
	return NodeName{Kind: KindUser, Name: name}
}

// GroupName builds the canonical, connector-scoped name for a group.
func GroupName(name string, origin connectors.Namespace) NodeName {
	return NodeName{Kind: KindGroup, Name: name, Origin: origin}
}

// PolicyName builds the canonical, connector-scoped name for a policy.
func PolicyName(name string, origin connectors.Namespace) NodeName {
	return NodeName{Kind: KindPolicy, Name: name, Origin: origin}
}

// TagName builds the canonical name for a tag.
func TagName(name string) NodeName {
	return NodeName{Kind: KindTag, Name: name}
}

// AssetName builds the canonical name for an asset from its owning
// connector, type, and hierarchy segments.
func AssetName(connector connectors.Namespace, assetType connectors.AssetType, path []string) NodeName {
	return NodeName{
		Kind:      KindAsset,
		Connector: connector,
		AssetType: assetType,
		Path:      JoinAssetPath(path),
	}
}

// DefaultPolicyName builds the canonical name for a default policy from its
// four-part pattern.
func DefaultPolicyName(root NodeName, matchingPath string, targetType connectors.AssetType, grantee NodeName) NodeName {
	return NodeName{
		Kind:         KindDefaultPolicy,
		Root:         root.String(),
		MatchingPath: matchingPath,
		TargetType:   targetType,
		Grantee:      grantee.String(),
	}
}

// JoinAssetPath joins decoded hierarchy segments into the stored path form.
func JoinAssetPath(segments []string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = escapeSegment(s)
	}
	return strings.Join(escaped, "/")
}

// PathSegments returns an asset name's decoded hierarchy segments.
func (n NodeName) PathSegments() []string {
	if n.Path == "" {
		return nil
	}
	parts := strings.Split(n.Path, "/")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = unescapeSegment(p)
	}
	return out
}

func escapeSegment(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, "/", "%2F")
}

func unescapeSegment(s string) string {
	s = strings.ReplaceAll(s, "%2F", "/")
	return strings.ReplaceAll(s, "%25", "%")
}

// String renders the composite canonical-name string. It is the input to
// UUID derivation, so its format is stable: changing it changes every node
// ID in every persisted graph.
func (n NodeName) String() string {
	var b strings.Builder
	b.WriteString(string(n.Kind))
	switch n.Kind {
	case KindUser, KindTag:
		b.WriteByte(':')
		b.WriteString(n.Name)
	case KindGroup, KindPolicy:
		b.WriteByte(':')
		b.WriteString(string(n.Origin))
		b.WriteString("::")
		b.WriteString(n.Name)
	case KindAsset:
		b.WriteByte(':')
		b.WriteString(string(n.Connector))
		b.WriteByte(':')
		b.WriteString(string(n.AssetType))
		b.WriteByte(':')
		b.WriteString(n.Path)
	case KindDefaultPolicy:
		b.WriteByte(':')
		b.WriteString(n.Root)
		b.WriteByte('#')
		b.WriteString(n.MatchingPath)
		b.WriteByte('#')
		b.WriteString(string(n.TargetType))
		b.WriteByte('#')
		b.WriteString(n.Grantee)
	}
	return b.String()
}

// namespaceJetty anchors deterministic node IDs. Fixed forever for the same
// reason String's format is.
var namespaceJetty = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("graph.jetty"))

// UUID derives the node's stable ID from the canonical-name string. Two
// names are equal exactly when their UUIDs are.
func (n NodeName) UUID() uuid.UUID {
	return uuid.NewSHA1(namespaceJetty, []byte(n.String()))
}

// IsZero reports whether the name is unset.
func (n NodeName) IsZero() bool { return n.Kind == "" }

// NamespaceSet tracks which connectors contributed to a node.
type NamespaceSet map[connectors.Namespace]struct{}

// NewNamespaceSet builds a set from its members.
func NewNamespaceSet(members ...connectors.Namespace) NamespaceSet {
	s := make(NamespaceSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s NamespaceSet) Contains(ns connectors.Namespace) bool {
	_, ok := s[ns]
	return ok
}

// Union returns a new set with the members of both.
func (s NamespaceSet) Union(other NamespaceSet) NamespaceSet {
	out := make(NamespaceSet, len(s)+len(other))
	for m := range s {
		out[m] = struct{}{}
	}
	for m := range other {
		out[m] = struct{}{}
	}
	return out
}

// Sorted returns members in lexicographic order.
func (s NamespaceSet) Sorted() []connectors.Namespace {
	out := make([]connectors.Namespace, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s NamespaceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes the set from an array.
func (s *NamespaceSet) UnmarshalJSON(data []byte) error {
	var members []connectors.Namespace
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	*s = NewNamespaceSet(members...)
	return nil
}
