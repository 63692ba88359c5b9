package queries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

func whAsset(segments ...string) graph.NodeName {
	return graph.AssetName("wh", "table", segments)
}

func addTypedAsset(t *testing.T, g *graph.Graph, assetType string, segments ...string) graph.NodeName {
	t.Helper()
	name := graph.AssetName("wh", connectors.AssetType(assetType), segments)
	_, err := g.AddNode(&graph.AssetAttributes{
		Name:       name,
		AssetType:  connectors.AssetType(assetType),
		Connectors: graph.NewNamespaceSet("wh"),
	})
	require.NoError(t, err)
	return name
}

func addDefaultPolicy(t *testing.T, g *graph.Graph, root graph.NodeName, path string, targetType string, grantee graph.NodeName, privileges ...string) graph.NodeName {
	t.Helper()
	name := graph.DefaultPolicyName(root, path, connectors.AssetType(targetType), grantee)
	_, err := g.AddNode(&graph.DefaultPolicyAttributes{
		Name:         name,
		Privileges:   connectors.NewStringSet(privileges...),
		Root:         root,
		MatchingPath: path,
		TargetType:   connectors.AssetType(targetType),
		Grantee:      grantee,
		Connectors:   graph.NewNamespaceSet("wh"),
	})
	require.NoError(t, err)
	return name
}

// Deeper-rooted default beats shallower: READ at /db/** loses to WRITE at
// /db/schema/** on /db/schema/t.
func TestDefaultPolicyPriority(t *testing.T) {
	g := graph.New()
	db := addTypedAsset(t, g, "database", "db")
	schema := addTypedAsset(t, g, "schema", "db", "schema")
	table := addTypedAsset(t, g, "table", "db", "schema", "t")
	edge(t, g, schema, db, graph.ChildOf)
	edge(t, g, table, schema, graph.ChildOf)

	analysts := graph.GroupName("analysts", "wh")
	_, err := g.AddNode(&graph.GroupAttributes{Name: analysts, Connectors: graph.NewNamespaceSet("wh")})
	require.NoError(t, err)

	addDefaultPolicy(t, g, db, "/**", "table", analysts, "READ")
	addDefaultPolicy(t, g, schema, "/**", "table", analysts, "WRITE")

	grants := ExpandDefaults(g)
	got, ok := grants[GrantKey{Asset: table, Grantee: analysts}]
	require.True(t, ok)
	assert.Equal(t, []string{"WRITE"}, got.Sorted())
}

// At equal root depth, literal segments beat "*", which beats "**".
func TestDefaultPolicySpecificityBreaksTies(t *testing.T) {
	g := graph.New()
	db := addTypedAsset(t, g, "database", "db")
	schema := addTypedAsset(t, g, "schema", "db", "s")
	table := addTypedAsset(t, g, "table", "db", "s", "t")
	edge(t, g, schema, db, graph.ChildOf)
	edge(t, g, table, schema, graph.ChildOf)

	analysts := graph.GroupName("analysts", "wh")
	_, err := g.AddNode(&graph.GroupAttributes{Name: analysts, Connectors: graph.NewNamespaceSet("wh")})
	require.NoError(t, err)

	addDefaultPolicy(t, g, db, "/**", "table", analysts, "READ")
	addDefaultPolicy(t, g, db, "s/t", "table", analysts, "WRITE")

	grants := ExpandDefaults(g)
	got := grants[GrantKey{Asset: table, Grantee: analysts}]
	assert.Equal(t, []string{"WRITE"}, got.Sorted())
}

func TestExpandRespectsPinnedGrants(t *testing.T) {
	analysts := graph.GroupName("analysts", "wh")
	table := whAsset("db", "s", "t")
	other := whAsset("db", "s", "u")

	regular := GrantMap{
		{Asset: table, Grantee: analysts}: connectors.StringSet{}, // pinned empty
	}
	defaults := GrantMap{
		{Asset: table, Grantee: analysts}: connectors.NewStringSet("READ"),
		{Asset: other, Grantee: analysts}: connectors.NewStringSet("READ"),
	}

	expanded := Expand(regular, defaults)
	_, tableGranted := expanded[GrantKey{Asset: table, Grantee: analysts}]
	assert.False(t, tableGranted, "empty regular grant must block the default")
	assert.Equal(t, []string{"READ"}, expanded[GrantKey{Asset: other, Grantee: analysts}].Sorted())
}

// Compaction must be lossless: compact then expand reproduces the original
// grant state.
func TestCompactionRoundTrip(t *testing.T) {
	analysts := graph.GroupName("analysts", "wh")
	covered := whAsset("db", "s", "t1") // identical to the default
	custom := whAsset("db", "s", "t2")  // differs from the default
	gap := whAsset("db", "s", "t3")     // default only, no regular grant
	outside := whAsset("db", "s", "t4") // regular only

	regular := GrantMap{
		{Asset: covered, Grantee: analysts}: connectors.NewStringSet("READ"),
		{Asset: custom, Grantee: analysts}:  connectors.NewStringSet("READ", "WRITE"),
		{Asset: outside, Grantee: analysts}: connectors.NewStringSet("OWN"),
	}
	defaults := GrantMap{
		{Asset: covered, Grantee: analysts}: connectors.NewStringSet("READ"),
		{Asset: custom, Grantee: analysts}:  connectors.NewStringSet("READ"),
		{Asset: gap, Grantee: analysts}:     connectors.NewStringSet("READ"),
	}

	compacted := Compact(regular, defaults)

	// The covered grant is gone (redundant), the gap is pinned empty.
	_, hasCovered := compacted[GrantKey{Asset: covered, Grantee: analysts}]
	assert.False(t, hasCovered)
	pinned, hasGap := compacted[GrantKey{Asset: gap, Grantee: analysts}]
	assert.True(t, hasGap)
	assert.Empty(t, pinned)

	assert.Equal(t, Expand(regular, defaults), Expand(compacted, defaults))
}

func TestPrioritizedPoliciesOrdering(t *testing.T) {
	g := graph.New()
	db := addTypedAsset(t, g, "database", "db")
	schema := addTypedAsset(t, g, "schema", "db", "s")
	edge(t, g, schema, db, graph.ChildOf)

	analysts := graph.GroupName("analysts", "wh")
	_, err := g.AddNode(&graph.GroupAttributes{Name: analysts, Connectors: graph.NewNamespaceSet("wh")})
	require.NoError(t, err)

	shallow := addDefaultPolicy(t, g, db, "/**", "table", analysts, "READ")
	deep := addDefaultPolicy(t, g, schema, "/**", "table", analysts, "WRITE")

	groups := PrioritizedDefaultPolicies(g)
	require.Len(t, groups, 2)

	first, _ := g.NameOf(groups[0][0].Idx())
	second, _ := g.NameOf(groups[1][0].Idx())
	assert.Equal(t, deep, first)
	assert.Equal(t, shallow, second)
}
