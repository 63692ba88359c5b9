package graph

import "fmt"

// The typed index wrappers make node kind part of a handle's type, so a
// query like "tags for this asset" cannot be handed a user index. Each
// wraps the untyped arena index; obtain them through the typed lookups,
// which verify the kind once at the boundary.

// UserIndex is a handle to a user node.
type UserIndex struct{ i NodeIndex }

// GroupIndex is a handle to a group node.
type GroupIndex struct{ i NodeIndex }

// AssetIndex is a handle to an asset node.
type AssetIndex struct{ i NodeIndex }

// TagIndex is a handle to a tag node.
type TagIndex struct{ i NodeIndex }

// PolicyIndex is a handle to a policy node.
type PolicyIndex struct{ i NodeIndex }

// DefaultPolicyIndex is a handle to a default-policy node.
type DefaultPolicyIndex struct{ i NodeIndex }

// Idx unwraps to the untyped arena index.
func (x UserIndex) Idx() NodeIndex          { return x.i }
func (x GroupIndex) Idx() NodeIndex         { return x.i }
func (x AssetIndex) Idx() NodeIndex         { return x.i }
func (x TagIndex) Idx() NodeIndex           { return x.i }
func (x PolicyIndex) Idx() NodeIndex        { return x.i }
func (x DefaultPolicyIndex) Idx() NodeIndex { return x.i }

func (g *Graph) typedIndexOf(name NodeName, kind NodeKind) (NodeIndex, bool) {
	if name.Kind != kind {
		return 0, false
	}
	idx, ok := g.names[name]
	return idx, ok
}

// UserIndexOf resolves a user name to a typed handle.
func (g *Graph) UserIndexOf(name NodeName) (UserIndex, bool) {
	idx, ok := g.typedIndexOf(name, KindUser)
	return UserIndex{idx}, ok
}

// GroupIndexOf resolves a group name to a typed handle.
func (g *Graph) GroupIndexOf(name NodeName) (GroupIndex, bool) {
	idx, ok := g.typedIndexOf(name, KindGroup)
	return GroupIndex{idx}, ok
}

// AssetIndexOf resolves an asset name to a typed handle.
func (g *Graph) AssetIndexOf(name NodeName) (AssetIndex, bool) {
	idx, ok := g.typedIndexOf(name, KindAsset)
	return AssetIndex{idx}, ok
}

// TagIndexOf resolves a tag name to a typed handle.
func (g *Graph) TagIndexOf(name NodeName) (TagIndex, bool) {
	idx, ok := g.typedIndexOf(name, KindTag)
	return TagIndex{idx}, ok
}

// PolicyIndexOf resolves a policy name to a typed handle.
func (g *Graph) PolicyIndexOf(name NodeName) (PolicyIndex, bool) {
	idx, ok := g.typedIndexOf(name, KindPolicy)
	return PolicyIndex{idx}, ok
}

// DefaultPolicyIndexOf resolves a default-policy name to a typed handle.
func (g *Graph) DefaultPolicyIndexOf(name NodeName) (DefaultPolicyIndex, bool) {
	idx, ok := g.typedIndexOf(name, KindDefaultPolicy)
	return DefaultPolicyIndex{idx}, ok
}

// The At accessors panic on a stale handle: a typed index can only come
// from a typed lookup, so failure here is a programmer error, not input.

// UserAt returns the attributes behind a user handle.
func (g *Graph) UserAt(x UserIndex) *UserAttributes {
	u, ok := AsUser(g.Node(x.i))
	if !ok {
		panic(fmt.Sprintf("stale user index %d", x.i))
	}
	return u
}

// GroupAt returns the attributes behind a group handle.
func (g *Graph) GroupAt(x GroupIndex) *GroupAttributes {
	n, ok := AsGroup(g.Node(x.i))
	if !ok {
		panic(fmt.Sprintf("stale group index %d", x.i))
	}
	return n
}

// AssetAt returns the attributes behind an asset handle.
func (g *Graph) AssetAt(x AssetIndex) *AssetAttributes {
	n, ok := AsAsset(g.Node(x.i))
	if !ok {
		panic(fmt.Sprintf("stale asset index %d", x.i))
	}
	return n
}

// TagAt returns the attributes behind a tag handle.
func (g *Graph) TagAt(x TagIndex) *TagAttributes {
	n, ok := AsTag(g.Node(x.i))
	if !ok {
		panic(fmt.Sprintf("stale tag index %d", x.i))
	}
	return n
}

// PolicyAt returns the attributes behind a policy handle.
func (g *Graph) PolicyAt(x PolicyIndex) *PolicyAttributes {
	n, ok := AsPolicy(g.Node(x.i))
	if !ok {
		panic(fmt.Sprintf("stale policy index %d", x.i))
	}
	return n
}

// DefaultPolicyAt returns the attributes behind a default-policy handle.
func (g *Graph) DefaultPolicyAt(x DefaultPolicyIndex) *DefaultPolicyAttributes {
	n, ok := AsDefaultPolicy(g.Node(x.i))
	if !ok {
		panic(fmt.Sprintf("stale default-policy index %d", x.i))
	}
	return n
}

// UserIndices returns typed handles for every user node.
func (g *Graph) UserIndices() []UserIndex {
	var out []UserIndex
	for _, idx := range g.Indices() {
		if _, ok := AsUser(g.Node(idx)); ok {
			out = append(out, UserIndex{idx})
		}
	}
	return out
}

// GroupIndices returns typed handles for every group node.
func (g *Graph) GroupIndices() []GroupIndex {
	var out []GroupIndex
	for _, idx := range g.Indices() {
		if _, ok := AsGroup(g.Node(idx)); ok {
			out = append(out, GroupIndex{idx})
		}
	}
	return out
}

// AssetIndices returns typed handles for every asset node.
func (g *Graph) AssetIndices() []AssetIndex {
	var out []AssetIndex
	for _, idx := range g.Indices() {
		if _, ok := AsAsset(g.Node(idx)); ok {
			out = append(out, AssetIndex{idx})
		}
	}
	return out
}

// TagIndices returns typed handles for every tag node.
func (g *Graph) TagIndices() []TagIndex {
	var out []TagIndex
	for _, idx := range g.Indices() {
		if _, ok := AsTag(g.Node(idx)); ok {
			out = append(out, TagIndex{idx})
		}
	}
	return out
}

// PolicyIndices returns typed handles for every policy node.
func (g *Graph) PolicyIndices() []PolicyIndex {
	var out []PolicyIndex
	for _, idx := range g.Indices() {
		if _, ok := AsPolicy(g.Node(idx)); ok {
			out = append(out, PolicyIndex{idx})
		}
	}
	return out
}

// DefaultPolicyIndices returns typed handles for every default-policy node.
func (g *Graph) DefaultPolicyIndices() []DefaultPolicyIndex {
	var out []DefaultPolicyIndex
	for _, idx := range g.Indices() {
		if _, ok := AsDefaultPolicy(g.Node(idx)); ok {
			out = append(out, DefaultPolicyIndex{idx})
		}
	}
	return out
}
