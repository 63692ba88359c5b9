package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

func assetName(segments ...string) graph.NodeName {
	return graph.AssetName("wh", "table", segments)
}

func TestBuildResolvesCrossConnectorEdges(t *testing.T) {
	// The bi connector references a warehouse-owned asset; the node comes
	// from the warehouse frame, the edge from the bi frame.
	whTable := graph.ProcessedAsset{
		Name:      assetName("db", "t"),
		Cual:      connectors.NewCual("wh://a/db/t?type=table"),
		AssetType: "table",
		Connector: "wh",
	}
	biWorkbook := graph.ProcessedAsset{
		Name:        graph.AssetName("bi", "workbook", []string{"site", "wb"}),
		Cual:        connectors.NewCual("bi://s/site/wb?type=workbook"),
		AssetType:   "workbook",
		DerivedFrom: []graph.NodeName{assetName("db", "t")},
		Connector:   "bi",
	}

	g, stats, err := Build([]graph.ProcessedConnectorData{
		{Connector: "bi", Assets: []graph.ProcessedAsset{biWorkbook}},
		{Connector: "wh", Assets: []graph.ProcessedAsset{whTable}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Nodes)

	wbIdx, ok := g.IndexOf(biWorkbook.Name)
	require.True(t, ok)
	var derived []graph.NodeName
	for _, e := range g.Outgoing(wbIdx) {
		if e.Relation == graph.DerivedFrom {
			name, _ := g.NameOf(e.To)
			derived = append(derived, name)
		}
	}
	assert.Equal(t, []graph.NodeName{whTable.Name}, derived)

	// The pair exists too.
	tIdx, _ := g.IndexOf(whTable.Name)
	var derivedTo int
	for _, e := range g.Outgoing(tIdx) {
		if e.Relation == graph.DerivedTo {
			derivedTo++
		}
	}
	assert.Equal(t, 1, derivedTo)
}

func TestBuildMergesDuplicateContributions(t *testing.T) {
	user := graph.ProcessedUser{Name: graph.UserName("alice@x"), Connector: "wh"}
	sameUser := graph.ProcessedUser{Name: graph.UserName("alice@x"), Connector: "bi"}

	g, stats, err := Build([]graph.ProcessedConnectorData{
		{Connector: "wh", Users: []graph.ProcessedUser{user}},
		{Connector: "bi", Users: []graph.ProcessedUser{sameUser}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Nodes)

	idx, ok := g.UserIndexOf(graph.UserName("alice@x"))
	require.True(t, ok)
	u := g.UserAt(idx)
	assert.True(t, u.Connectors.Contains("wh"))
	assert.True(t, u.Connectors.Contains("bi"))
}

func TestBuildFailsOnDanglingEdge(t *testing.T) {
	asset := graph.ProcessedAsset{
		Name:      assetName("db", "t"),
		AssetType: "table",
		ChildOf:   []graph.NodeName{assetName("db")},
		Connector: "wh",
	}
	_, _, err := Build([]graph.ProcessedConnectorData{
		{Connector: "wh", Assets: []graph.ProcessedAsset{asset}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "couldn't add edge")
}

// defaultPolicyFixture: db -> schema -> {t1, t2}, one default policy rooted
// at db matching /** over tables.
func defaultPolicyFixture(t *testing.T) (*graph.Graph, graph.NodeName) {
	t.Helper()
	db := graph.ProcessedAsset{Name: graph.AssetName("wh", "database", []string{"db"}), AssetType: "database", Connector: "wh"}
	schema := graph.ProcessedAsset{
		Name: graph.AssetName("wh", "schema", []string{"db", "s"}), AssetType: "schema",
		ChildOf: []graph.NodeName{db.Name}, Connector: "wh",
	}
	t1 := graph.ProcessedAsset{
		Name: assetName("db", "s", "t1"), AssetType: "table",
		ChildOf: []graph.NodeName{schema.Name}, Connector: "wh",
	}
	t2 := graph.ProcessedAsset{
		Name: assetName("db", "s", "t2"), AssetType: "table",
		ChildOf: []graph.NodeName{schema.Name}, Connector: "wh",
	}
	grantee := graph.ProcessedGroup{Name: graph.GroupName("analysts", "wh"), Connector: "wh"}
	dp := graph.ProcessedDefaultPolicy{
		Name:         graph.DefaultPolicyName(db.Name, "/**", "table", grantee.Name),
		Privileges:   connectors.NewStringSet("SELECT"),
		Root:         db.Name,
		MatchingPath: "/**",
		TargetType:   "table",
		Grantee:      grantee.Name,
		Connector:    "wh",
	}

	g, _, err := Build([]graph.ProcessedConnectorData{{
		Connector:       "wh",
		Assets:          []graph.ProcessedAsset{db, schema, t1, t2},
		Groups:          []graph.ProcessedGroup{grantee},
		DefaultPolicies: []graph.ProcessedDefaultPolicy{dp},
	}})
	require.NoError(t, err)
	return g, dp.Name
}

func TestDefaultPolicyEdgeMaterialization(t *testing.T) {
	g, dpName := defaultPolicyFixture(t)

	dpIdx, ok := g.IndexOf(dpName)
	require.True(t, ok)

	var governs []graph.NodeName
	var grantedTo []graph.NodeName
	for _, e := range g.Outgoing(dpIdx) {
		name, _ := g.NameOf(e.To)
		switch e.Relation {
		case graph.Governs:
			governs = append(governs, name)
		case graph.GrantedTo:
			grantedTo = append(grantedTo, name)
		}
	}

	// Tables match /** under db; the schema has the wrong type.
	assert.ElementsMatch(t, []graph.NodeName{assetName("db", "s", "t1"), assetName("db", "s", "t2")}, governs)
	assert.Equal(t, []graph.NodeName{graph.GroupName("analysts", "wh")}, grantedTo)

	// The grantee's inverse is GrantedFrom, not GrantedBy.
	granteeIdx, _ := g.IndexOf(graph.GroupName("analysts", "wh"))
	var sawGrantedFrom bool
	for _, e := range g.Outgoing(granteeIdx) {
		if e.Relation == graph.GrantedFrom {
			sawGrantedFrom = true
		}
		assert.NotEqual(t, graph.GrantedBy, e.Relation)
	}
	assert.True(t, sawGrantedFrom)

	// Root anchor edge exists.
	rootIdx, _ := g.IndexOf(graph.AssetName("wh", "database", []string{"db"}))
	var anchored bool
	for _, e := range g.Outgoing(rootIdx) {
		if e.Relation == graph.ProvidedDefaultForChildren {
			anchored = true
		}
	}
	assert.True(t, anchored)
}

func TestBuildTwiceEqualsBuildOnce(t *testing.T) {
	data := func() []graph.ProcessedConnectorData {
		return []graph.ProcessedConnectorData{{
			Connector: "wh",
			Users:     []graph.ProcessedUser{{Name: graph.UserName("alice@x"), Connector: "wh"}},
			Groups: []graph.ProcessedGroup{{
				Name:          graph.GroupName("analysts", "wh"),
				IncludesUsers: []graph.NodeName{graph.UserName("alice@x")},
				Connector:     "wh",
			}},
		}}
	}

	g1, _, err := Build(data())
	require.NoError(t, err)
	g2, _, err := Build(append(data(), data()...))
	require.NoError(t, err)

	b1, err := g1.MarshalBlob()
	require.NoError(t, err)
	b2, err := g2.MarshalBlob()
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}
