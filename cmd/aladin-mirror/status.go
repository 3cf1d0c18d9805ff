package main

import (
	"encoding/json"
	"errors"

	"github.com/couchcryptid/aladin-mirror/internal/adapter/filestore"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the published artifacts as JSON",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	Latest    *filestore.Entry  `json:"latest"`
	Artifacts []filestore.Entry `json:"artifacts"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck // nothing was written

	entries, err := a.store.List()
	if err != nil {
		return err
	}
	report := statusReport{Artifacts: entries}
	if report.Artifacts == nil {
		report.Artifacts = []filestore.Entry{}
	}
	latest, err := a.store.Latest()
	switch {
	case err == nil:
		report.Latest = &latest
	case !errors.Is(err, filestore.ErrNotReady):
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
