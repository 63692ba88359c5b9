package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jettylabs/jetty/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure <connector>",
	Short: "Store a connector's secret in the OS keychain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace := args[0]
		creds := config.NewCredentialStore(filepath.Join(filepath.Dir(cfg.Storage.GraphBlobPath), "credentials.yaml"))

		if err := creds.PromptAndSet(namespace); err != nil {
			return err
		}
		where := "OS keychain"
		if !creds.IsKeyringAvailable() {
			where = "fallback credentials file"
		}
		fmt.Printf("Stored secret for %q in the %s.\n", namespace, where)
		return nil
	},
}
