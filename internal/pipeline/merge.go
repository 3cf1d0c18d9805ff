package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
)

// Inventorier is implemented by tools that can list the messages of a
// GRIB file.
type Inventorier interface {
	Inventory(ctx context.Context, path string) ([]string, error)
}

// Merger combines the transformed files of a run into one artifact.
type Merger struct {
	tool   GridTool
	naming domain.ArtifactNaming
	logger *slog.Logger
}

// NewMerger creates a Merger writing artifacts named by naming.
func NewMerger(tool GridTool, naming domain.ArtifactNaming, logger *slog.Logger) *Merger {
	return &Merger{tool: tool, naming: naming, logger: logger}
}

// Merge writes files, in the given order, into a single artifact under dir.
// A previous artifact for the same run is overwritten.
func (m *Merger) Merge(ctx context.Context, run domain.Run, files []domain.TransformedFile, dir string) (domain.RunArtifact, error) {
	if len(files) == 0 {
		return domain.RunArtifact{}, domain.ErrNoInputFiles
	}

	inputs := make([]string, len(files))
	vars := make([]domain.Variable, len(files))
	for i, f := range files {
		inputs[i] = f.Path
		vars[i] = f.Source.Variable
	}

	out := filepath.Join(dir, m.naming.Stamped(run.Timestamp))
	m.logger.Info("merging", "files", len(inputs), "output", out)

	if err := m.tool.Merge(ctx, inputs, out); err != nil {
		return domain.RunArtifact{}, fmt.Errorf("%w: %w", domain.ErrMergeFailed, err)
	}
	if err := nonEmptyFile(out); err != nil {
		return domain.RunArtifact{}, fmt.Errorf("%w: %w", domain.ErrMergeFailed, err)
	}
	m.logInventory(ctx, out)
	return domain.RunArtifact{Run: run, Path: out, Variables: vars}, nil
}

// logInventory logs the merged file's message list at debug level. A failed
// inventory never fails the merge.
func (m *Merger) logInventory(ctx context.Context, path string) {
	inv, ok := m.tool.(Inventorier)
	if !ok || !m.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	lines, err := inv.Inventory(ctx, path)
	if err != nil {
		m.logger.Warn("inventory failed", "file", filepath.Base(path), "error", err)
		return
	}
	m.logger.Debug("merged artifact inventory",
		"file", filepath.Base(path),
		"messages", len(lines),
		"inventory", lines,
	)
}
