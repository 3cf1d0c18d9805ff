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

// Downloader streams a remote file to dest.
type Downloader interface {
	Download(ctx context.Context, url, dest string) (int64, error)
}

// Decompressor replaces a compressed file with its decompressed form and
// returns the new path.
type Decompressor interface {
	Decompress(ctx context.Context, path string) (string, error)
}

// Fetcher makes source files ready on disk, skipping any work a previous
// invocation already completed.
type Fetcher struct {
	lister       Lister
	downloader   Downloader
	decompressor Decompressor
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewFetcher creates a Fetcher. lister supplies download URLs.
func NewFetcher(lister Lister, downloader Downloader, decompressor Decompressor, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		lister:       lister,
		downloader:   downloader,
		decompressor: decompressor,
		metrics:      metrics,
		logger:       logger,
	}
}

// Fetch returns src marked ready. Skip rules, in order: the decompressed
// target exists (no network I/O); the raw download exists (decompress only);
// otherwise download, then decompress if compressed. A decompressed target
// that still sits next to its compressed download may be truncated, so it is
// rebuilt from the download.
func (f *Fetcher) Fetch(ctx context.Context, run domain.Run, src domain.SourceFile) (domain.SourceFile, error) {
	raw := filepath.Join(filepath.Dir(src.LocalPath), src.RemoteName)
	compressed := domain.IsCompressed(src.RemoteName)

	finalExists := fileExists(src.LocalPath)
	rawExists := compressed && fileExists(raw)

	switch {
	case finalExists && !rawExists:
		f.logger.Debug("source file already present", "file", src.Base())
		f.metrics.Downloads.WithLabelValues("skipped").Inc()
		src.Decompressed = true
		return src, nil
	case rawExists:
		// A leftover compressed file means an earlier decompression did not
		// finish; redo it without touching the network.
		f.logger.Info("download already present, skipping", "file", src.RemoteName)
		f.metrics.Downloads.WithLabelValues("skipped").Inc()
	default:
		url := f.lister.FileURL(run.Dir, src.RemoteName)
		if _, err := f.downloader.Download(ctx, url, raw); err != nil {
			f.metrics.Downloads.WithLabelValues("failed").Inc()
			return src, err
		}
		f.metrics.Downloads.WithLabelValues("downloaded").Inc()
	}

	if compressed {
		f.logger.Info("decompressing", "file", src.RemoteName)
		path, err := f.decompressor.Decompress(ctx, raw)
		if err != nil {
			if !errors.Is(err, domain.ErrDecompressFailed) {
				err = fmt.Errorf("%w: %w", domain.ErrDecompressFailed, err)
			}
			return src, err
		}
		src.LocalPath = path
	}

	if !fileExists(src.LocalPath) {
		return src, fmt.Errorf("source file %s missing after fetch", src.LocalPath)
	}
	src.Decompressed = true
	return src, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// nonEmptyFile reports an error unless path is a regular file with content.
func nonEmptyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmptyOutput, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrEmptyOutput, path)
	}
	return nil
}
