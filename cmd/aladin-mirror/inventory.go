package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory [file]",
	Short: "List the GRIB messages of an artifact (default: the latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInventory,
}

func init() {
	rootCmd.AddCommand(inventoryCmd)
}

func runInventory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck // nothing was written

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		latest, err := a.store.Latest()
		if err != nil {
			return err
		}
		path = latest.Path
	}

	lines, err := a.wgrib2.Inventory(cmd.Context(), path)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return err
		}
	}
	return nil
}
