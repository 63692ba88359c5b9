package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/yamlconfig"
)

func TestReconcileCreatesAndDeletesAssetDocs(t *testing.T) {
	g, tr := fetchFixture(t)
	root := t.TempDir()

	tree, err := Tree(g, tr)
	require.NoError(t, err)
	require.NoError(t, yamlconfig.WriteTree(root, tree, AssetPathFor(tr)))

	// Simulate drift: one doc for an asset the graph doesn't have, one
	// graph asset whose doc was deleted by hand.
	stale := filepath.Join(root, yamlconfig.AssetsDirName, "wh", "db", "gone.yaml")
	require.NoError(t, os.WriteFile(stale, []byte("identifier: \"wh://a/db/gone?type=table\"\n"), 0o644))
	deleted := filepath.Join(root, yamlconfig.AssetsDirName, "wh", "db", "s", "t.yaml")
	require.NoError(t, os.Remove(deleted))

	created, removed, err := Reconcile(root, g, tr)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(deleted)
	assert.NoError(t, err)

	// A second reconcile is a no-op.
	created, removed, err = Reconcile(root, g, tr)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Zero(t, removed)
}
