package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/couchcryptid/aladin-mirror/internal/observability"
)

// GridTool is the external geospatial capability. Implementations write
// their result to out and report a non-zero tool exit as an error.
type GridTool interface {
	SubsetRemap(ctx context.Context, in, out string, grid domain.Grid) error
	Remap(ctx context.Context, in, out string, grid domain.Grid) error
	Subset(ctx context.Context, in, out string, bbox domain.BBox) error
	Merge(ctx context.Context, inputs []string, out string) error
}

// Transformer crops and regrids source files onto the target grid.
type Transformer struct {
	tool    GridTool
	grid    domain.Grid
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewTransformer creates a Transformer for grid.
func NewTransformer(tool GridTool, grid domain.Grid, metrics *observability.Metrics, logger *slog.Logger) *Transformer {
	return &Transformer{tool: tool, grid: grid, metrics: metrics, logger: logger}
}

// Transform runs the combined subset+remap. If that fails or leaves an empty
// file, it falls back to remap into a temporary file followed by a subset of
// that file. The temporary file never outlives the call.
func (t *Transformer) Transform(ctx context.Context, src domain.SourceFile, dirs domain.WorkDirs) (domain.TransformedFile, error) {
	base := src.Base()
	out := filepath.Join(dirs.Transform, base+".latlon.grb2")

	primaryErr := t.tool.SubsetRemap(ctx, src.LocalPath, out, t.grid)
	if primaryErr == nil {
		primaryErr = nonEmptyFile(out)
	}
	if primaryErr == nil {
		t.metrics.Transforms.WithLabelValues("primary").Inc()
		return domain.TransformedFile{Source: src, Path: out}, nil
	}
	if ctx.Err() != nil {
		return domain.TransformedFile{}, ctx.Err()
	}

	t.logger.Warn("combined transform failed, trying remap then subset",
		"file", base,
		"error", primaryErr,
	)

	tmp := filepath.Join(dirs.Subset, base+".remap.tmp.grb2")
	fallbackErr := t.fallback(ctx, src.LocalPath, tmp, out)
	if fallbackErr != nil {
		t.metrics.Transforms.WithLabelValues("failed").Inc()
		return domain.TransformedFile{}, &domain.TransformError{
			File:  base,
			Cause: errors.Join(primaryErr, fallbackErr),
		}
	}

	t.metrics.Transforms.WithLabelValues("fallback").Inc()
	return domain.TransformedFile{Source: src, Path: out}, nil
}

func (t *Transformer) fallback(ctx context.Context, in, tmp, out string) error {
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("remove temporary remap output", "path", tmp, "error", err)
		}
	}()

	if err := t.tool.Remap(ctx, in, tmp, t.grid); err != nil {
		return fmt.Errorf("remap: %w", err)
	}
	if err := nonEmptyFile(tmp); err != nil {
		return fmt.Errorf("remap: %w", err)
	}
	if err := t.tool.Subset(ctx, tmp, out, t.grid.BBox); err != nil {
		return fmt.Errorf("subset: %w", err)
	}
	if err := nonEmptyFile(out); err != nil {
		return fmt.Errorf("subset: %w", err)
	}
	return nil
}
