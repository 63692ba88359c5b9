package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jettylabs/jetty/internal/diff"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/plan"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what apply would change, without changing anything",
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

		diff.Colorize = term.IsTerminal(int(os.Stdout.Fd()))
		fmt.Print(global.String())
		fmt.Println()
		for _, line := range planner.Plan(global) {
			fmt.Println(line)
		}
		// Diffs are not an error; only validation failures exit non-zero.
		return nil
	},
}

// computeDiffs loads the stored graph and translator, parses and validates
// the config tree, and runs the diff pipeline. Shared by plan and apply.
func computeDiffs(rt *runtime) (diff.GlobalDiffs, *plan.Planner, *graph.Graph, error) {
	g, _, ok, err := rt.store.LoadGraph()
	if err != nil {
		return diff.GlobalDiffs{}, nil, nil, err
	}
	if !ok {
		return diff.GlobalDiffs{}, nil, nil, fmt.Errorf("no graph found; run `jetty fetch` first")
	}
	tr, ok, err := rt.store.LoadTranslator()
	if err != nil {
		return diff.GlobalDiffs{}, nil, nil, err
	}
	if !ok {
		return diff.GlobalDiffs{}, nil, nil, fmt.Errorf("no translator state found; run `jetty fetch` first")
	}

	tree, err := yamlconfig.ParseTree(cfg.ConfigTree.Root)
	if err != nil {
		return diff.GlobalDiffs{}, nil, nil, err
	}

	validator := yamlconfig.NewValidator(g, rt.manifests, tr.CualToAssetName)
	if result := validator.Validate(tree); !result.Valid {
		return diff.GlobalDiffs{}, nil, nil, result.Err()
	}

	global, err := diff.Compute(g, tr, tree)
	if err != nil {
		return diff.GlobalDiffs{}, nil, nil, err
	}

	planner := plan.NewPlanner(rt.appliers, cfg.Apply.MaxConcurrentRequests)
	return global, planner, g, nil
}
