package connectors

// ConnectorData is everything one connector contributes in a fetch: the raw
// authorization records for its platform, references to assets owned by
// other connectors, and the platform-resolved effective-permission matrix.
type ConnectorData struct {
	Groups          []RawGroup
	Users           []RawUser
	Assets          []RawAsset
	Tags            []RawTag
	Policies        []RawPolicy
	DefaultPolicies []RawDefaultPolicy

	// AssetReferences are links to assets this connector does not own
	// (cross-connector lineage, for example). They contribute edges but
	// never nodes.
	AssetReferences []RawAssetReference

	// EffectivePermissions maps local user name -> asset CUAL -> resolved
	// per-privilege permissions for this platform.
	EffectivePermissions EffectivePermissionMatrix

	// CualPrefix is the globally unique "scheme://host" prefix that matches
	// this connector's CUALs to its namespace.
	CualPrefix string
}

// RawGroup is group data as the connector sees it. All references are
// connector-local names; the translator rewrites them to canonical names.
type RawGroup struct {
	Name string
	// Metadata keys should be namespaced by the connector (e.g. "wh::owner").
	Metadata       map[string]string
	MemberOf       StringSet
	IncludesUsers  StringSet
	IncludesGroups StringSet
	GrantedBy      StringSet
}

// RawUser is user data as the connector sees it. Name is the connector's
// local name for the person; Identifiers carry anything that helps resolve
// the same person across platforms.
type RawUser struct {
	Name        string
	Identifiers []UserIdentifier
	Metadata    map[string]string
	MemberOf    StringSet
	GrantedBy   StringSet
}

// RawAsset is an asset owned by this connector.
type RawAsset struct {
	Cual      Cual
	Name      string
	AssetType AssetType
	Metadata  map[string]string
	// GovernedBy duplicates Policy.GovernsAssets; the graph dedups them.
	GovernedBy  StringSet
	ChildOf     StringSet
	ParentOf    StringSet
	DerivedFrom StringSet
	DerivedTo   StringSet
	TaggedAs    StringSet
}

// RawAssetReference is an asset owned by another connector that this
// connector links to. It contributes edges but no node of its own.
type RawAssetReference struct {
	Cual        Cual
	Metadata    map[string]string
	GovernedBy  StringSet
	ChildOf     StringSet
	ParentOf    StringSet
	DerivedFrom StringSet
	DerivedTo   StringSet
	TaggedAs    StringSet
}

// RawTag is a tag definition plus its direct applications and removals.
type RawTag struct {
	Name        string
	Value       string
	Description string
	// PassThroughHierarchy propagates the tag to hierarchical descendants
	// of tagged assets.
	PassThroughHierarchy bool
	// PassThroughLineage propagates the tag to lineage descendants.
	PassThroughLineage bool
	AppliedTo          StringSet
	RemovedFrom        StringSet
	GovernedBy         StringSet
}

// RawPolicy is a grant as the connector sees it.
type RawPolicy struct {
	Name                 string
	Privileges           StringSet
	GovernsAssets        StringSet
	GovernsTags          StringSet
	GrantedToGroups      StringSet
	GrantedToUsers       StringSet
	PassThroughHierarchy bool
	PassThroughLineage   bool
}

// GranteeKind distinguishes default-policy grantees.
type GranteeKind string

const (
	GranteeUser  GranteeKind = "user"
	GranteeGroup GranteeKind = "group"
)

// RawPolicyGrantee names the user or group a default policy grants to, by
// connector-local name.
type RawPolicyGrantee struct {
	Kind GranteeKind
	Name string
}

// RawDefaultPolicy is a policy attached to a (root asset, wildcard path,
// target type, grantee) pattern rather than to one asset. It materializes
// onto every matching descendant of the root.
type RawDefaultPolicy struct {
	Privileges StringSet
	// RootAsset is the CUAL of the asset the policy hangs off.
	RootAsset Cual
	// WildcardPath selects descendants: * matches one hierarchy segment,
	// ** matches any remaining segments and is only legal last.
	WildcardPath string
	TargetType   AssetType
	Grantee      RawPolicyGrantee
	Metadata     map[string]string
}
