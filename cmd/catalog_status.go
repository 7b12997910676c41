package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var catalogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog load status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		status, err := store.Status(ctx)
		if err != nil {
			return eris.Wrap(err, "catalog status")
		}

		if len(status) == 0 {
			fmt.Println("No boundaries loaded yet")
			return nil
		}

		fmt.Printf("%-10s %-6s %-6s %10s %12s %s\n",
			"Level", "State", "Year", "Rows", "Duration", "Loaded At")
		fmt.Println(strings.Repeat("-", 64))

		for _, s := range status {
			fmt.Printf("%-10s %-6s %-6d %10d %10dms %s\n",
				s.Level, s.StateFIPS, s.Year,
				s.RowCount, s.DurationMs, s.LoadedAt.Format("2006-01-02 15:04"))
		}

		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogStatusCmd)
}
