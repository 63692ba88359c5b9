package queries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

func permMatrixFixture(t *testing.T) (*graph.Graph, graph.UserIndex, graph.AssetIndex) {
	t.Helper()
	g := graph.New()
	_, err := g.AddNode(&graph.UserAttributes{Name: graph.UserName("alice@x"), Connectors: graph.NewNamespaceSet("wh")})
	require.NoError(t, err)
	_, err = g.AddNode(&graph.AssetAttributes{Name: whAsset("db", "t"), AssetType: "table", Connectors: graph.NewNamespaceSet("wh")})
	require.NoError(t, err)

	user, _ := g.UserIndexOf(graph.UserName("alice@x"))
	asset, _ := g.AssetIndexOf(whAsset("db", "t"))
	return g, user, asset
}

func TestMatrixMergePrecedence(t *testing.T) {
	g, user, asset := permMatrixFixture(t)
	alice := graph.UserName("alice@x")
	table := whAsset("db", "t")

	// Explicit grant, then ownership, then a site-role blanket: composed
	// lowest to highest precedence.
	explicit := PermissionMatrix{alice: {table: connectors.NewEffectivePermissionSet(
		connectors.NewEffectivePermission("SELECT", connectors.ModeAllow, "granted by reader"),
	)}}
	ownership := PermissionMatrix{alice: {table: connectors.NewEffectivePermissionSet(
		connectors.NewEffectivePermission("SELECT", connectors.ModeAllow, "owns parent schema"),
		connectors.NewEffectivePermission("INSERT", connectors.ModeAllow, "owns parent schema"),
	)}}
	blanket := PermissionMatrix{alice: {table: connectors.NewEffectivePermissionSet(
		connectors.NewEffectivePermission("SELECT", connectors.ModeDeny, "unlicensed site role"),
	)}}

	m := PermissionMatrix{}
	m.Merge(explicit)
	m.Merge(ownership)
	m.Merge(blanket)

	perms := m.PermissionsOn(g, user, asset)
	require.Len(t, perms, 2)

	// INSERT allow retains its reason; SELECT deny replaced both allows.
	assert.Equal(t, "INSERT", perms[0].Privilege)
	assert.Equal(t, connectors.ModeAllow, perms[0].Mode)
	assert.Equal(t, "SELECT", perms[1].Privilege)
	assert.Equal(t, connectors.ModeDeny, perms[1].Mode)
	assert.Equal(t, []string{"unlicensed site role"}, perms[1].Reasons)

	assert.False(t, m.AllowedOn(g, user, asset, "SELECT"))
	assert.True(t, m.AllowedOn(g, user, asset, "INSERT"))
}

func TestMatrixMergeConcatenatesAgreeingReasons(t *testing.T) {
	g, user, asset := permMatrixFixture(t)
	alice := graph.UserName("alice@x")
	table := whAsset("db", "t")

	first := PermissionMatrix{alice: {table: connectors.NewEffectivePermissionSet(
		connectors.NewEffectivePermission("SELECT", connectors.ModeAllow, "granted by reader"),
	)}}
	second := PermissionMatrix{alice: {table: connectors.NewEffectivePermissionSet(
		connectors.NewEffectivePermission("SELECT", connectors.ModeAllow, "project leader"),
	)}}

	m := PermissionMatrix{}
	m.Merge(first)
	m.Merge(second)

	perms := m.PermissionsOn(g, user, asset)
	require.Len(t, perms, 1)
	assert.Equal(t, []string{"granted by reader", "project leader"}, perms[0].Reasons)
}

func TestCombineMatrices(t *testing.T) {
	alice := graph.UserName("alice@x")
	whTable := whAsset("db", "t")
	biWorkbook := graph.AssetName("bi", "workbook", []string{"site", "wb"})

	processed := []graph.ProcessedConnectorData{
		{
			Connector: "wh",
			EffectivePermissions: map[graph.NodeName]map[graph.NodeName]connectors.EffectivePermissionSet{
				alice: {whTable: connectors.NewEffectivePermissionSet(
					connectors.NewEffectivePermission("SELECT", connectors.ModeAllow, "explicit"),
				)},
			},
		},
		{
			Connector: "bi",
			EffectivePermissions: map[graph.NodeName]map[graph.NodeName]connectors.EffectivePermissionSet{
				alice: {biWorkbook: connectors.NewEffectivePermissionSet(
					connectors.NewEffectivePermission("View", connectors.ModeAllow, "site role"),
				)},
			},
		},
	}

	m := CombineMatrices(processed)
	require.Len(t, m[alice], 2)
	assert.Equal(t, connectors.ModeAllow, m[alice][whTable]["SELECT"].Mode)
	assert.Equal(t, connectors.ModeAllow, m[alice][biWorkbook]["View"].Mode)
}
