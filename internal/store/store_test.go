package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

func TestSaveAndLoadGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jetty.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	g := graph.New()
	_, err = g.AddNode(&graph.UserAttributes{Name: graph.UserName("alice@x"), Connectors: graph.NewNamespaceSet("wh")})
	require.NoError(t, err)

	meta := Metadata{
		FetchedAt:  time.Now().UTC().Truncate(time.Second),
		Connectors: []connectors.Namespace{"wh"},
		Prefixes:   map[connectors.Namespace]string{"wh": "wh://a"},
	}
	require.NoError(t, s.SaveGraph(g, meta))

	loaded, gotMeta, ok, err := s.LoadGraph()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, loaded.NodeCount())
	assert.Equal(t, meta.FetchedAt, gotMeta.FetchedAt)
	assert.Equal(t, "wh://a", gotMeta.Prefixes["wh"])
}

func TestLoadBeforeFirstFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jetty.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, _, ok, err := s.LoadGraph()
	require.NoError(t, err)
	assert.False(t, ok)
}
