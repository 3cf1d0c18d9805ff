package main

import (
	"github.com/couchcryptid/aladin-mirror/internal/pipeline"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove old working run directories",
	Long:  `Keep only the RETENTION_COUNT most recently used run directories under WORK_DIR.`,
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck // nothing was written

	removed := pipeline.NewSweeper(pipeline.OSRunDirFS{}, a.metrics, a.logger).Sweep(a.cfg.WorkDir, a.cfg.RetentionCount)
	for _, p := range removed {
		cmd.Println("removed", p)
	}
	return nil
}
