package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/builder"
	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/diff"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/translator"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// fetchFixture is a small but complete environment: two users (one shared
// email), a group, a policy, an asset hierarchy, and a default policy.
func fetchFixture(t *testing.T) (*graph.Graph, *translator.Translator) {
	t.Helper()
	frames := []translator.Frame{{
		Connector: "wh",
		Data: connectors.ConnectorData{
			CualPrefix: "wh://a",
			Users: []connectors.RawUser{
				{Name: "ALICE", Identifiers: []connectors.UserIdentifier{connectors.Email("alice@x")}, MemberOf: connectors.NewStringSet("analysts")},
				{Name: "BOB"},
			},
			Groups: []connectors.RawGroup{{
				Name:          "analysts",
				IncludesUsers: connectors.NewStringSet("ALICE"),
			}},
			Policies: []connectors.RawPolicy{{
				Name:            "reader",
				Privileges:      connectors.NewStringSet("SELECT"),
				GovernsAssets:   connectors.NewStringSet("wh://a/db/s/t?type=table"),
				GrantedToGroups: connectors.NewStringSet("analysts"),
			}},
			Assets: []connectors.RawAsset{
				{Cual: connectors.NewCual("wh://a/db?type=database"), AssetType: "database"},
				{Cual: connectors.NewCual("wh://a/db/s?type=schema"), AssetType: "schema", ChildOf: connectors.NewStringSet("wh://a/db?type=database")},
				{Cual: connectors.NewCual("wh://a/db/s/t?type=table"), AssetType: "table", ChildOf: connectors.NewStringSet("wh://a/db/s?type=schema")},
			},
			DefaultPolicies: []connectors.RawDefaultPolicy{{
				Privileges:   connectors.NewStringSet("SELECT"),
				RootAsset:    connectors.NewCual("wh://a/db?type=database"),
				WildcardPath: "/**",
				TargetType:   "table",
				Grantee:      connectors.RawPolicyGrantee{Kind: connectors.GranteeGroup, Name: "analysts"},
			}},
		},
	}}

	tr, err := translator.New(frames)
	require.NoError(t, err)
	processed, err := tr.Process(frames)
	require.NoError(t, err)
	g, _, err := builder.Build(processed)
	require.NoError(t, err)
	return g, tr
}

func TestBootstrapTreeShape(t *testing.T) {
	g, tr := fetchFixture(t)

	tree, err := Tree(g, tr)
	require.NoError(t, err)

	require.Len(t, tree.Users, 2)
	alice, ok := tree.UserNamed("alice@x")
	require.True(t, ok)
	assert.Equal(t, "ALICE", alice.Identities["wh"])

	require.Len(t, tree.Groups, 1)
	assert.Equal(t, "analysts", tree.Groups[0].Name)
	assert.Equal(t, []string{"alice@x"}, tree.Groups[0].IncludesUsers)

	assert.Len(t, tree.Assets, 3)
	tableDoc := tree.Assets["wh://a/db/s/t?type=table"]
	// The reader grant is identical to the expanded default, so
	// compaction dropped it.
	assert.Empty(t, tableDoc.Policies)

	dbDoc := tree.Assets["wh://a/db?type=database"]
	require.Len(t, dbDoc.DefaultPolicies, 1)
	assert.Equal(t, "/**", dbDoc.DefaultPolicies[0].Path)
	assert.Equal(t, []string{"analysts"}, dbDoc.DefaultPolicies[0].Groups)
}

// The round trip: any built graph bootstraps to a tree that diffs empty
// against it.
func TestBootstrapDiffRoundTrip(t *testing.T) {
	g, tr := fetchFixture(t)

	tree, err := Tree(g, tr)
	require.NoError(t, err)

	diffs, err := diff.Compute(g, tr, tree)
	require.NoError(t, err)
	assert.True(t, diffs.Empty(), "expected empty diff, got:\n%s", diffs.String())
}

// The round trip survives serialization to disk and back.
func TestBootstrapWriteParseDiffRoundTrip(t *testing.T) {
	g, tr := fetchFixture(t)
	root := t.TempDir()

	tree, err := Tree(g, tr)
	require.NoError(t, err)
	require.NoError(t, yamlconfig.WriteTree(root, tree, AssetPathFor(tr)))

	parsed, err := yamlconfig.ParseTree(root)
	require.NoError(t, err)

	diffs, err := diff.Compute(g, tr, parsed)
	require.NoError(t, err)
	assert.True(t, diffs.Empty(), "expected empty diff, got:\n%s", diffs.String())
}
