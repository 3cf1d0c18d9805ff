// Command aladin-mirror mirrors the latest ALADIN model run as a single
// cropped, regridded GRIB artifact and serves it over HTTP.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aladin-mirror",
	Short: "Mirror the latest ALADIN run as one regional GRIB artifact",
	Long: `aladin-mirror discovers the newest ALADIN run in the CHMI open-data archive,
downloads the configured variables, crops and regrids them, merges them into
one artifact and publishes it under a run-stamped name and a latest alias.

Configuration is read from the environment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
