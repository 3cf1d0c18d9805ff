package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/couchcryptid/aladin-mirror/internal/observability"
)

var payload = bytes.Repeat([]byte("GRIB0123456789"), 4096)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDownloader(t *testing.T) (*Downloader, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	client := NewHTTPClient(5 * time.Second)
	t.Cleanup(client.CloseIdleConnections)
	return NewDownloader(client, 10*time.Second, m, discardLogger()), m
}

// rangeServer serves payload with Range support and records the Range headers it saw.
type rangeServer struct {
	mu     sync.Mutex
	ranges []string
}

func (s *rangeServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.ranges = append(s.ranges, r.Header.Get("Range"))
	s.mu.Unlock()
	http.ServeContent(w, r, "file.grb", time.Time{}, bytes.NewReader(payload))
}

func TestDownload_Fresh(t *testing.T) {
	rs := &rangeServer{}
	srv := httptest.NewServer(http.HandlerFunc(rs.handler))
	defer srv.Close()

	d, m := testDownloader(t)
	dest := filepath.Join(t.TempDir(), "file.grb")

	n, err := d.Download(context.Background(), srv.URL+"/06/file.grb", dest)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), n)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.NoFileExists(t, dest+PartSuffix)
	assert.Equal(t, []string{""}, rs.ranges)
	assert.Equal(t, float64(len(payload)), testutil.ToFloat64(m.BytesDownloaded))
}

func TestDownload_ResumesPartialFile(t *testing.T) {
	rs := &rangeServer{}
	srv := httptest.NewServer(http.HandlerFunc(rs.handler))
	defer srv.Close()

	d, _ := testDownloader(t)
	dest := filepath.Join(t.TempDir(), "file.grb")
	half := len(payload) / 2
	require.NoError(t, os.WriteFile(dest+PartSuffix, payload[:half], 0o644))

	n, err := d.Download(context.Background(), srv.URL+"/file.grb", dest)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)-half), n)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, []string{"bytes=" + strconv.Itoa(half) + "-"}, rs.ranges)
}

func TestDownload_RestartsWhenRangeIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	d, _ := testDownloader(t)
	dest := filepath.Join(t.TempDir(), "file.grb")
	require.NoError(t, os.WriteFile(dest+PartSuffix, []byte("stale-bytes"), 0o644))

	_, err := d.Download(context.Background(), srv.URL+"/file.grb", dest)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDownload_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d, _ := testDownloader(t)
	dest := filepath.Join(t.TempDir(), "file.grb")

	_, err := d.Download(context.Background(), srv.URL+"/missing.grb", dest)
	require.Error(t, err)

	var derr *domain.DownloadError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, http.StatusNotFound, derr.Status)
	assert.Equal(t, srv.URL+"/missing.grb", derr.URL)
	assert.NoFileExists(t, dest)
}

func TestDownload_TruncatedBodyKeepsPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload[:100])
	}))
	defer srv.Close()

	d, _ := testDownloader(t)
	dest := filepath.Join(t.TempDir(), "file.grb")

	_, err := d.Download(context.Background(), srv.URL+"/file.grb", dest)
	require.Error(t, err)

	var derr *domain.DownloadError
	assert.True(t, errors.As(err, &derr))
	assert.NoFileExists(t, dest)
	assert.FileExists(t, dest+PartSuffix)
}

func TestDownload_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/file.grb"
	srv.Close()

	d, _ := testDownloader(t)
	_, err := d.Download(context.Background(), url, filepath.Join(t.TempDir(), "file.grb"))

	var derr *domain.DownloadError
	require.True(t, errors.As(err, &derr))
	assert.Zero(t, derr.Status)
	assert.Error(t, derr.Err)
}

func TestDownload_CompletePartOn416(t *testing.T) {
	rs := &rangeServer{}
	srv := httptest.NewServer(http.HandlerFunc(rs.handler))
	defer srv.Close()

	d, _ := testDownloader(t)
	dest := filepath.Join(t.TempDir(), "file.grb")
	require.NoError(t, os.WriteFile(dest+PartSuffix, payload, 0o644))

	n, err := d.Download(context.Background(), srv.URL+"/file.grb", dest)
	require.NoError(t, err)

	assert.Zero(t, n)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.NoFileExists(t, dest+PartSuffix)
	assert.Equal(t, []string{"bytes=" + strconv.Itoa(len(payload)) + "-"}, rs.ranges)
}

func TestDownload_OversizedPartOn416IsDiscarded(t *testing.T) {
	rs := &rangeServer{}
	srv := httptest.NewServer(http.HandlerFunc(rs.handler))
	defer srv.Close()

	d, _ := testDownloader(t)
	dest := filepath.Join(t.TempDir(), "file.grb")
	require.NoError(t, os.WriteFile(dest+PartSuffix, append(payload, "extra"...), 0o644))

	_, err := d.Download(context.Background(), srv.URL+"/file.grb", dest)

	var derr *domain.DownloadError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, derr.Status)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+PartSuffix)
}

func TestRangeComplete(t *testing.T) {
	tests := []struct {
		header string
		have   int64
		want   bool
	}{
		{"bytes */100", 100, true},
		{"bytes */100", 99, false},
		{"bytes 0-99/100", 100, false},
		{"", 100, false},
		{"bytes */abc", 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, rangeComplete(tt.header, tt.have))
		})
	}
}
