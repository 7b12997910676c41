package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var catalogMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create catalog tables and indexes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "catalog migrate")
		}

		fmt.Println("catalog schema up to date")
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogMigrateCmd)
}
