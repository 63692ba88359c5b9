package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/builder"
	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/translator"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// envFixture builds a graph with one user, one group, and one granted
// table, plus the translator that produced it.
func envFixture(t *testing.T) (*graph.Graph, *translator.Translator) {
	t.Helper()
	frames := []translator.Frame{{
		Connector: "wh",
		Data: connectors.ConnectorData{
			CualPrefix: "wh://a",
			Users: []connectors.RawUser{{
				Name:        "ALICE",
				Identifiers: []connectors.UserIdentifier{connectors.Email("alice@x")},
			}},
			Groups: []connectors.RawGroup{{
				Name:          "analysts",
				IncludesUsers: connectors.NewStringSet("ALICE"),
			}},
			Policies: []connectors.RawPolicy{{
				Name:            "reader",
				Privileges:      connectors.NewStringSet("SELECT"),
				GovernsAssets:   connectors.NewStringSet("wh://a/db/t?type=table"),
				GrantedToGroups: connectors.NewStringSet("analysts"),
			}},
			Assets: []connectors.RawAsset{{
				Cual:      connectors.NewCual("wh://a/db/t?type=table"),
				AssetType: "table",
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

// matchingTree mirrors envFixture exactly; diffs against it are empty.
func matchingTree() *yamlconfig.Tree {
	tree := &yamlconfig.Tree{
		Assets: map[string]yamlconfig.AssetDoc{
			"wh://a/db/t?type=table": {
				Identifier: "wh://a/db/t?type=table",
				Policies: []yamlconfig.PolicyEntry{{
					Privileges: []string{"SELECT"},
					Groups:     []string{"analysts"},
				}},
			},
		},
		Groups: []yamlconfig.GroupEntry{{
			Name:          "analysts",
			Connector:     "wh",
			IncludesUsers: []string{"alice@x"},
		}},
		Users: []yamlconfig.UserEntry{{
			Name:       "alice@x",
			Identities: map[connectors.Namespace]string{"wh": "ALICE"},
		}},
	}
	tree.Normalize()
	return tree
}

func TestComputeEmptyOnMatchingConfig(t *testing.T) {
	g, tr := envFixture(t)
	diffs, err := Compute(g, tr, matchingTree())
	require.NoError(t, err)
	assert.True(t, diffs.Empty(), "unexpected diff:\n%s", diffs.String())
}

func TestComputePolicyModifyCarriesDifferential(t *testing.T) {
	g, tr := envFixture(t)
	tree := matchingTree()

	doc := tree.Assets["wh://a/db/t?type=table"]
	doc.Policies[0].Privileges = []string{"INSERT", "SELECT"}
	tree.Assets["wh://a/db/t?type=table"] = doc

	diffs, err := Compute(g, tr, tree)
	require.NoError(t, err)
	require.Len(t, diffs.Policies, 1)

	pd := diffs.Policies[0]
	assert.Equal(t, Modify, pd.Kind)
	assert.Equal(t, []string{"INSERT"}, pd.AddedPrivileges)
	assert.Empty(t, pd.RemovedPrivileges)
}

func TestComputeGroupAndPolicyAddRemove(t *testing.T) {
	g, tr := envFixture(t)
	tree := matchingTree()

	// A brand-new group granted on the table, and the old grant removed.
	tree.Groups = append(tree.Groups, yamlconfig.GroupEntry{Name: "writers", Connector: "wh"})
	doc := tree.Assets["wh://a/db/t?type=table"]
	doc.Policies = []yamlconfig.PolicyEntry{{
		Privileges: []string{"INSERT"},
		Groups:     []string{"writers"},
	}}
	tree.Assets["wh://a/db/t?type=table"] = doc

	diffs, err := Compute(g, tr, tree)
	require.NoError(t, err)

	require.Len(t, diffs.Groups, 1)
	assert.Equal(t, Add, diffs.Groups[0].Kind)
	assert.Equal(t, graph.GroupName("writers", "wh"), diffs.Groups[0].Name)

	require.Len(t, diffs.Policies, 2)
	kinds := map[Kind]int{}
	for _, pd := range diffs.Policies {
		kinds[pd.Kind]++
	}
	assert.Equal(t, 1, kinds[Add])
	assert.Equal(t, 1, kinds[Remove])
}

func TestIdentityDiffAppliedBeforeOtherDiffs(t *testing.T) {
	g, tr := envFixture(t)
	tree := matchingTree()

	// The config reassigns the wh-local ALICE account to a different
	// canonical person. Group membership in config references the new
	// name; without the identity diff applying first, the group diff
	// would report a bogus membership change.
	tree.Users[0].Name = "alice@corp"
	tree.Groups[0].IncludesUsers = []string{"alice@corp"}

	diffs, err := Compute(g, tr, tree)
	require.NoError(t, err)

	require.NotEmpty(t, diffs.Identities)
	assert.Empty(t, diffs.Groups, "group diff should see the rewired user:\n%s", diffs.String())

	// The graph was mutated in memory.
	_, oldExists := g.IndexOf(graph.UserName("alice@x"))
	assert.False(t, oldExists)
	_, newExists := g.IndexOf(graph.UserName("alice@corp"))
	assert.True(t, newExists)
}

func TestSplitByConnector(t *testing.T) {
	global := GlobalDiffs{
		Identities: []IdentityDiff{{
			User: graph.UserName("alice@x"),
			Kind: Modify,
			AddedBindings: []ConnectorLocal{
				{Connector: "wh", LocalName: "ALICE"},
				{Connector: "bi", LocalName: "alice.a"},
			},
		}},
		Groups: []GroupDiff{{Name: graph.GroupName("analysts", "wh"), Kind: Add}},
		Policies: []PolicyDiff{{
			Asset:   graph.AssetName("bi", "workbook", []string{"site", "wb"}),
			Grantee: graph.UserName("alice@x"),
			Kind:    Add,
		}},
	}

	split := global.SplitByConnector()
	require.Len(t, split, 2)

	wh := split["wh"]
	assert.Len(t, wh.Groups, 1)
	require.Len(t, wh.Users, 1)
	assert.Len(t, wh.Users[0].AddedBindings, 1)
	assert.Equal(t, connectors.Namespace("wh"), wh.Users[0].AddedBindings[0].Connector)

	bi := split["bi"]
	assert.Len(t, bi.Policies, 1)
	require.Len(t, bi.Users, 1)
	assert.Equal(t, "alice.a", bi.Users[0].AddedBindings[0].LocalName)
}
