package fetch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/errors"
	"github.com/jettylabs/jetty/internal/graph"
)

type stubFetcher struct {
	ns   connectors.Namespace
	data connectors.ConnectorData
	err  error
}

func (s stubFetcher) Namespace() connectors.Namespace { return s.ns }
func (s stubFetcher) Fetch(ctx context.Context) (connectors.ConnectorData, error) {
	return s.data, s.err
}

func TestRunBuildsGraphFromAllConnectors(t *testing.T) {
	wh := stubFetcher{ns: "wh", data: connectors.ConnectorData{
		CualPrefix: "wh://a",
		Users: []connectors.RawUser{{
			Name:        "ALICE",
			Identifiers: []connectors.UserIdentifier{connectors.Email("alice@x")},
		}},
		Assets: []connectors.RawAsset{{
			Cual:      connectors.NewCual("wh://a/db/t?type=table"),
			AssetType: "table",
		}},
	}}
	bi := stubFetcher{ns: "bi", data: connectors.ConnectorData{
		CualPrefix: "bi://s",
		Users: []connectors.RawUser{{
			Name:        "alice.a",
			Identifiers: []connectors.UserIdentifier{connectors.Email("alice@x")},
		}},
	}}

	c := NewCoordinator([]Fetcher{wh, bi}, nil)
	result, err := c.Run(context.Background())
	require.NoError(t, err)

	// The shared email resolves to one user node contributed by both.
	idx, ok := result.Graph.UserIndexOf(graph.UserName("alice@x"))
	require.True(t, ok)
	user := result.Graph.UserAt(idx)
	assert.True(t, user.Connectors.Contains("wh"))
	assert.True(t, user.Connectors.Contains("bi"))
	assert.Equal(t, 2, result.Stats.Nodes)
}

func TestRunFailsWhenAnyConnectorFails(t *testing.T) {
	ok := stubFetcher{ns: "wh", data: connectors.ConnectorData{CualPrefix: "wh://a"}}
	broken := stubFetcher{ns: "bi", err: fmt.Errorf("api unreachable")}

	c := NewCoordinator([]Fetcher{ok, broken}, nil)
	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeTransport, errors.GetType(err))
}
