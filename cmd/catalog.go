package main

import (
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the boundary catalog",
	Long:  "Import, inspect, and migrate the pre-projected boundary catalog that render passes read from.",
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
