package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jettylabs/jetty/internal/bootstrap"
	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/fetch"
	"github.com/jettylabs/jetty/internal/store"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Pull authorization metadata from every connector and rebuild the graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Fetch.Timeout)
		defer cancel()

		coordinator := fetch.NewCoordinator(rt.fetchers, logger)
		result, err := coordinator.Run(ctx)
		if err != nil {
			return err
		}

		meta := store.Metadata{
			FetchedAt: time.Now().UTC(),
			Prefixes:  map[connectors.Namespace]string{},
			Stats: map[string]int{
				"nodes": result.Stats.Nodes,
				"edges": result.Stats.Edges,
			},
		}
		for _, pcd := range result.Processed {
			meta.Connectors = append(meta.Connectors, pcd.Connector)
		}
		state := result.Translator.ExportState()
		for ns, prefix := range state.Prefixes {
			meta.Prefixes[ns] = prefix
		}

		if err := rt.store.SaveGraph(result.Graph, meta); err != nil {
			return err
		}
		if err := rt.store.SaveTranslator(state); err != nil {
			return err
		}

		// First run: write the bootstrap config tree so there is something
		// to edit and diff against. Later runs only drift the per-asset
		// documents toward the fresh graph.
		if _, statErr := os.Stat(cfg.ConfigTree.Root); os.IsNotExist(statErr) {
			logger.WithField("root", cfg.ConfigTree.Root).Info("Writing bootstrap configuration")
			tree, err := bootstrap.Tree(result.Graph, result.Translator)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.ConfigTree.Root, 0o755); err != nil {
				return err
			}
			if err := yamlconfig.WriteTree(cfg.ConfigTree.Root, tree, bootstrap.AssetPathFor(result.Translator)); err != nil {
				return err
			}
		} else {
			created, removed, err := bootstrap.Reconcile(cfg.ConfigTree.Root, result.Graph, result.Translator)
			if err != nil {
				return err
			}
			if created > 0 || removed > 0 {
				logger.WithFields(map[string]interface{}{
					"created": created,
					"removed": removed,
				}).Info("Reconciled asset documents with the fetched graph")
			}
		}

		logger.WithFields(map[string]interface{}{
			"nodes":    result.Stats.Nodes,
			"edges":    result.Stats.Edges,
			"duration": result.Duration.Round(time.Millisecond).String(),
		}).Info("Fetch complete")
		return nil
	},
}
