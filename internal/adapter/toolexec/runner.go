// Package toolexec wraps the external command-line tools the pipeline relies
// on: wgrib2 for subsetting, regridding and merging GRIB2 files, and bzip2
// for decompressing downloads.
package toolexec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
)

// maxOutputInError caps how much tool output is embedded in an error.
const maxOutputInError = 2048

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Run executes name with args. A non-zero exit is reported as
// domain.ErrToolFailed with the tool's output attached.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%w: %s: %w: %s", domain.ErrToolFailed, name, err, truncate(out))
	}
	return out, nil
}

func truncate(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputInError {
		return s[:maxOutputInError] + "..."
	}
	return s
}
