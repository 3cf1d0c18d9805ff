package toolexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
)

// Wgrib2 implements pipeline.GridTool on top of the wgrib2 binary.
type Wgrib2 struct {
	bin    string
	runner Runner
	logger *slog.Logger
}

// NewWgrib2 creates a Wgrib2 tool. A nil runner uses ExecRunner.
func NewWgrib2(bin string, runner Runner, logger *slog.Logger) *Wgrib2 {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Wgrib2{bin: bin, runner: runner, logger: logger}
}

// SubsetRemap crops and regrids in one pass: the target lat/lon grid only
// covers the bounding box, so interpolating onto it is also the subset.
func (w *Wgrib2) SubsetRemap(ctx context.Context, in, out string, grid domain.Grid) error {
	args := append([]string{in, "-set_grib_type", "same", "-new_grid_winds", "earth"}, newGridArgs(grid)...)
	return w.run(ctx, append(args, out)...)
}

// Remap regrids with nearest-neighbour interpolation.
func (w *Wgrib2) Remap(ctx context.Context, in, out string, grid domain.Grid) error {
	args := append([]string{in, "-new_grid_winds", "earth", "-new_grid_interpolation", "neighbor"}, newGridArgs(grid)...)
	return w.run(ctx, append(args, out)...)
}

// Subset crops to bbox without changing the grid.
func (w *Wgrib2) Subset(ctx context.Context, in, out string, bbox domain.BBox) error {
	return w.run(ctx, in, "-small_grib",
		formatFloat(bbox.West)+":"+formatFloat(bbox.East),
		formatFloat(bbox.South)+":"+formatFloat(bbox.North),
		out,
	)
}

// Merge concatenates the GRIB messages of inputs, in order, into out.
func (w *Wgrib2) Merge(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return domain.ErrNoInputFiles
	}
	if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset merge output: %w", err)
	}
	for _, in := range inputs {
		if err := w.run(ctx, in, "-append", "-grib", out); err != nil {
			return err
		}
	}
	return nil
}

// Inventory returns the short inventory of path, one line per GRIB message.
func (w *Wgrib2) Inventory(ctx context.Context, path string) ([]string, error) {
	w.logger.Debug("running wgrib2", "args", []string{path, "-s"})
	out, err := w.runner.Run(ctx, w.bin, path, "-s")
	if err != nil {
		return nil, err
	}
	var lines []string
	for line := range strings.Lines(string(out)) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (w *Wgrib2) run(ctx context.Context, args ...string) error {
	w.logger.Debug("running wgrib2", "args", args)
	_, err := w.runner.Run(ctx, w.bin, args...)
	return err
}

// newGridArgs renders "-new_grid latlon lon0:nlon:dlon lat0:nlat:dlat".
func newGridArgs(g domain.Grid) []string {
	return []string{
		"-new_grid", "latlon",
		formatFloat(g.BBox.West) + ":" + strconv.Itoa(g.NX()) + ":" + formatFloat(g.DX),
		formatFloat(g.BBox.South) + ":" + strconv.Itoa(g.NY()) + ":" + formatFloat(g.DY),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
