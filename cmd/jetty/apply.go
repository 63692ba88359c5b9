package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Converge the platforms to the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		global, planner, _, err := computeDiffs(rt)
		if err != nil {
			return err
		}
		if global.Empty() {
			fmt.Println("No changes. The platforms match the configuration.")
			return nil
		}

		summary, err := planner.Apply(cmd.Context(), global)
		if err != nil {
			return err
		}

		for _, cs := range summary.Connectors {
			fmt.Printf("connector %s: %d succeeded, %d failed\n", cs.Connector, cs.Succeeded, cs.Failed)
			for _, r := range cs.Results {
				if r.Err != nil {
					fmt.Printf("  failed: %s: %v\n", r.Description, r.Err)
				}
			}
		}
		if failed := summary.FailedCount(); failed > 0 {
			// The stored graph is now stale where requests landed; the
			// next fetch re-reads platform state and plans the repair.
			return fmt.Errorf("%d requests failed; run `jetty fetch` and `jetty plan` to see the remaining drift", failed)
		}
		fmt.Println("Apply complete. Run `jetty fetch` to refresh the graph.")
		return nil
	},
}
