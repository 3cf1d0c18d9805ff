package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/couchcryptid/aladin-mirror/internal/observability"
)

// PartSuffix marks an incomplete download.
const PartSuffix = ".part"

// progressStep is the byte interval between progress log lines when the
// remote does not announce a Content-Length.
const progressStep = 16 << 20

// Downloader streams remote files to disk. Interrupted transfers are kept as
// "{dest}.part" and resumed with a Range request on the next attempt.
// It implements pipeline.Downloader.
type Downloader struct {
	httpClient      *http.Client
	transferTimeout time.Duration
	metrics         *observability.Metrics
	logger          *slog.Logger
}

// NewDownloader creates a Downloader. transferTimeout bounds each attempt.
func NewDownloader(httpClient *http.Client, transferTimeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Downloader {
	return &Downloader{
		httpClient:      httpClient,
		transferTimeout: transferTimeout,
		metrics:         metrics,
		logger:          logger,
	}
}

// Download fetches url into dest and returns the number of bytes received
// in this attempt. dest only appears once the body was read completely.
func (d *Downloader) Download(ctx context.Context, url, dest string) (int64, error) {
	if d.transferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.transferTimeout)
		defer cancel()
	}

	part := dest + PartSuffix
	var offset int64
	if info, err := os.Stat(part); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &domain.DownloadError{URL: url, Err: err}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, &domain.DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		flags |= os.O_APPEND
		d.logger.Info("resuming download", "file", filepath.Base(dest), "offset", offset)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Server ignored the range (or there was none): start over.
		flags |= os.O_TRUNC
		offset = 0
	default:
		if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
			if offset > 0 && rangeComplete(resp.Header.Get("Content-Range"), offset) {
				// The previous attempt received everything but stopped before the rename.
				if err := os.Rename(part, dest); err != nil {
					return 0, fmt.Errorf("finalize %s: %w", dest, err)
				}
				d.logger.Info("download already complete", "file", filepath.Base(dest), "bytes", offset)
				return 0, nil
			}
			_ = os.Remove(part)
		}
		return 0, &domain.DownloadError{Status: resp.StatusCode, URL: url}
	}

	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", part, err)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	pw := &progressWriter{
		name:    filepath.Base(dest),
		written: offset,
		total:   total,
		logger:  d.logger,
		counter: d.metrics,
	}
	d.logger.Info("downloading", "file", pw.name, "size_mb", megabytes(total))

	n, copyErr := io.Copy(io.MultiWriter(f, pw), resp.Body)
	syncErr := f.Sync()
	closeErr := f.Close()
	if copyErr != nil {
		return n, &domain.DownloadError{URL: url, Err: copyErr}
	}
	if err := errors.Join(syncErr, closeErr); err != nil {
		return n, fmt.Errorf("write %s: %w", part, err)
	}
	if total >= 0 && pw.written != total {
		return n, &domain.DownloadError{URL: url, Err: fmt.Errorf("short body: got %d of %d bytes", pw.written, total)}
	}

	if err := os.Rename(part, dest); err != nil {
		return n, fmt.Errorf("finalize %s: %w", dest, err)
	}
	d.logger.Info("download complete", "file", pw.name, "bytes", pw.written)
	return n, nil
}

// rangeComplete reports whether an unsatisfied-range Content-Range
// ("bytes */N") announces a size equal to what is already on disk.
func rangeComplete(contentRange string, have int64) bool {
	size, ok := strings.CutPrefix(contentRange, "bytes */")
	if !ok {
		return false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	return err == nil && n == have
}

// progressWriter reports cumulative bytes written. It logs at every 10% when
// the size is known, otherwise every progressStep bytes.
type progressWriter struct {
	name     string
	written  int64
	total    int64
	lastMark int64
	logger   *slog.Logger
	counter  *observability.Metrics
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.counter != nil {
		p.counter.BytesDownloaded.Add(float64(len(b)))
	}

	var mark int64
	if p.total > 0 {
		mark = p.written * 10 / p.total
	} else {
		mark = p.written / progressStep
	}
	if mark > p.lastMark {
		p.lastMark = mark
		attrs := []any{"file", p.name, "downloaded_mb", megabytes(p.written)}
		if p.total > 0 {
			attrs = append(attrs, "percent", float64(p.written)*100/float64(p.total), "total_mb", megabytes(p.total))
		}
		p.logger.Info("download progress", attrs...)
	}
	return len(b), nil
}

func megabytes(n int64) float64 {
	if n < 0 {
		return 0
	}
	return float64(n) / 1024 / 1024
}
