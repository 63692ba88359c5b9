package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jettylabs/jetty/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a Jetty project skeleton",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		projectDir := filepath.Join(dir, ".jetty")
		if _, err := os.Stat(filepath.Join(projectDir, "config.yaml")); err == nil {
			return fmt.Errorf("%s already contains a Jetty project", dir)
		}
		if err := os.MkdirAll(projectDir, 0o755); err != nil {
			return err
		}

		defaults := config.Default()
		defaults.Storage.GraphBlobPath = filepath.Join(projectDir, "graph.db")
		defaults.ConfigTree.Root = filepath.Join(dir, "config")
		defaults.ConfigTree.GroupsFile = filepath.Join(dir, "config", "groups.yaml")
		defaults.ConfigTree.UsersFile = filepath.Join(dir, "config", "users.yaml")
		if err := defaults.Save(filepath.Join(projectDir, "config.yaml")); err != nil {
			return err
		}

		fmt.Printf("Initialized Jetty project in %s\n", projectDir)
		fmt.Println("Next steps:")
		fmt.Println("  1. enable connectors in .jetty/config.yaml")
		fmt.Println("  2. jetty configure <connector>   # store each connector's secret")
		fmt.Println("  3. jetty fetch                   # build the graph and bootstrap config/")
		return nil
	},
}
