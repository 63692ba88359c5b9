package bootstrap

import (
	"os"
	"path/filepath"

	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/translator"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// Reconcile drifts the asset documents toward the freshly fetched graph:
// an asset with no document gets an empty one created, and a document
// whose asset no longer exists is deleted. Only assets drift
// automatically; users and groups referenced by policies stay a
// validation concern.
func Reconcile(root string, g *graph.Graph, tr *translator.Translator) (created, removed int, err error) {
	tree, err := yamlconfig.ParseTree(root)
	if err != nil {
		return 0, 0, err
	}

	pathFor := AssetPathFor(tr)

	// Documents for assets the graph no longer has.
	live := map[string]bool{}
	for _, idx := range g.AssetIndices() {
		cual, err := tr.AssetNameToCual(g.AssetAt(idx).Name)
		if err != nil {
			return created, removed, err
		}
		live[cual.URI()] = true
	}
	for id, doc := range tree.Assets {
		if live[id] {
			continue
		}
		if doc.File != "" {
			if err := os.Remove(doc.File); err != nil && !os.IsNotExist(err) {
				return created, removed, err
			}
		}
		removed++
	}

	// Assets with no document yet.
	for id := range live {
		if _, ok := tree.Assets[id]; ok {
			continue
		}
		rel, err := pathFor(id)
		if err != nil {
			return created, removed, err
		}
		path := filepath.Join(root, yamlconfig.AssetsDirName, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return created, removed, err
		}
		data := []byte("identifier: \"" + id + "\"\n")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return created, removed, err
		}
		created++
	}

	return created, removed, nil
}
