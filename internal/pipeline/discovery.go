package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
)

// Lister reads the remote archive's run directories.
type Lister interface {
	List(ctx context.Context, dir string) ([]string, error)
	FileURL(dir, name string) string
}

// Discovery finds the most recent run across the candidate run directories.
type Discovery struct {
	lister Lister
	naming domain.ArchiveNaming
	logger *slog.Logger
}

// NewDiscovery creates a Discovery matching entries named by naming.
func NewDiscovery(lister Lister, naming domain.ArchiveNaming, logger *slog.Logger) *Discovery {
	return &Discovery{lister: lister, naming: naming, logger: logger}
}

// FindLatestRun lists every directory in dirs and returns the run with the
// greatest timestamp, together with the listing of the directory it came
// from. Unreachable directories are logged and skipped. When two
// directories report the same timestamp the one listed first in dirs wins.
func (d *Discovery) FindLatestRun(ctx context.Context, dirs []string) (domain.Run, []string, error) {
	var (
		latest  domain.Run
		listing []string
	)

	for _, dir := range dirs {
		entries, err := d.lister.List(ctx, dir)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Run{}, nil, ctx.Err()
			}
			d.logger.Warn("run directory unreachable, skipping", "dir", dir, "error", err)
			continue
		}

		for _, entry := range entries {
			ts, _, ok := d.naming.Parse(entry)
			if !ok {
				continue
			}
			if latest.Timestamp == "" || ts.After(latest.Timestamp) {
				latest = domain.Run{Dir: dir, Timestamp: ts}
				listing = entries
			}
		}
	}

	if latest.Timestamp == "" {
		return domain.Run{}, nil, fmt.Errorf("%w (checked %v)", domain.ErrNoRunFound, dirs)
	}
	return latest, listing, nil
}
