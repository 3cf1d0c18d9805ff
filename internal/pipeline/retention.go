package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/couchcryptid/aladin-mirror/internal/observability"
)

// DefaultRetention is the number of working run directories kept.
const DefaultRetention = 3

// RunDir is a run-scoped working directory.
type RunDir struct {
	Path    string
	ModTime time.Time
}

// RunDirFS is the filesystem capability the sweeper needs.
type RunDirFS interface {
	ListRunDirs(root string) ([]RunDir, error)
	RemoveAll(path string) error
}

// OSRunDirFS implements RunDirFS on the local filesystem.
type OSRunDirFS struct{}

// ListRunDirs returns the run_* directories directly under root.
func (OSRunDirFS) ListRunDirs(root string) ([]RunDir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	dirs := make([]RunDir, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), domain.RunDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		dirs = append(dirs, RunDir{Path: filepath.Join(root, e.Name()), ModTime: info.ModTime()})
	}
	return dirs, nil
}

// RemoveAll deletes path recursively.
func (OSRunDirFS) RemoveAll(path string) error { return os.RemoveAll(path) }

// ExpiredRunDirs returns the directories beyond the keep most recently
// modified ones. Equal modification times order by path, descending.
func ExpiredRunDirs(dirs []RunDir, keep int) []RunDir {
	if keep < 0 {
		keep = 0
	}
	sorted := make([]RunDir, len(dirs))
	copy(sorted, dirs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ModTime.Equal(sorted[j].ModTime) {
			return sorted[i].ModTime.After(sorted[j].ModTime)
		}
		return sorted[i].Path > sorted[j].Path
	})
	if len(sorted) <= keep {
		return nil
	}
	return sorted[keep:]
}

// Sweeper bounds the working directory to the most recent runs.
type Sweeper struct {
	fs      RunDirFS
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewSweeper creates a Sweeper over fs.
func NewSweeper(fs RunDirFS, metrics *observability.Metrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{fs: fs, metrics: metrics, logger: logger}
}

// Sweep removes all but the keep most recently modified run directories in
// workDir. It is best-effort: failures are logged and the remaining
// directories are still processed. It returns the paths it removed.
func (s *Sweeper) Sweep(workDir string, keep int) []string {
	if keep <= 0 {
		keep = DefaultRetention
	}

	dirs, err := s.fs.ListRunDirs(workDir)
	if err != nil {
		s.logger.Warn("list working directories failed", "dir", workDir, "error", err)
		return nil
	}

	var removed []string
	for _, d := range ExpiredRunDirs(dirs, keep) {
		if err := s.fs.RemoveAll(d.Path); err != nil {
			s.logger.Warn("remove old run directory failed", "path", d.Path, "error", err)
			s.metrics.RetentionRemovals.WithLabelValues("error").Inc()
			continue
		}
		s.logger.Info("removed old run directory", "path", d.Path)
		s.metrics.RetentionRemovals.WithLabelValues("removed").Inc()
		removed = append(removed, d.Path)
	}
	return removed
}
