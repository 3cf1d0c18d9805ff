package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/couchcryptid/aladin-mirror/internal/observability"
)

// --- fakes ---

type fakeLister struct {
	listings map[string][]string
	errs     map[string]error
	calls    atomic.Int64
}

func (f *fakeLister) List(_ context.Context, dir string) ([]string, error) {
	f.calls.Add(1)
	if err, ok := f.errs[dir]; ok {
		return nil, err
	}
	return f.listings[dir], nil
}

func (f *fakeLister) FileURL(dir, name string) string {
	return "http://archive.test/" + dir + "/" + name
}

type fakeDownloader struct {
	mu    sync.Mutex
	urls  []string
	fail  map[string]bool // by remote file name
	calls atomic.Int64
}

func (f *fakeDownloader) Download(_ context.Context, url, dest string) (int64, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()

	if f.fail[filepath.Base(url)] {
		return 0, &domain.DownloadError{Status: 404, URL: url}
	}
	payload := []byte("grib:" + filepath.Base(dest))
	if err := os.WriteFile(dest, payload, 0o644); err != nil {
		return 0, err
	}
	return int64(len(payload)), nil
}

type fakeDecompressor struct {
	calls atomic.Int64
	err   error
}

func (f *fakeDecompressor) Decompress(_ context.Context, path string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	out := domain.DecompressedName(path)
	if err := os.Rename(path, out); err != nil {
		return "", err
	}
	return out, nil
}

// fakeTool writes deterministic payloads so merge order can be checked.
type fakeTool struct {
	mu            sync.Mutex
	failPrimary   map[string]bool // by input base name
	emptyPrimary  map[string]bool
	failRemap     map[string]bool
	failSubset    map[string]bool // by remap output base name
	failMerge     bool
	failInventory bool
	inventoried   []string
	primaryCalls  int
	remapCalls    int
	subsetCalls   int
	mergeInputs   []string
	remapOutputs  []string
	concurrent    atomic.Int64
	maxConcurrent atomic.Int64
}

func (f *fakeTool) enter() func() {
	n := f.concurrent.Add(1)
	for {
		m := f.maxConcurrent.Load()
		if n <= m || f.maxConcurrent.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { f.concurrent.Add(-1) }
}

func (f *fakeTool) SubsetRemap(_ context.Context, in, out string, _ domain.Grid) error {
	defer f.enter()()
	f.mu.Lock()
	f.primaryCalls++
	f.mu.Unlock()

	base := filepath.Base(in)
	if f.failPrimary[base] {
		return fmt.Errorf("%w: wgrib2: exit status 1", domain.ErrToolFailed)
	}
	if f.emptyPrimary[base] {
		return os.WriteFile(out, nil, 0o644)
	}
	return os.WriteFile(out, []byte("["+base+"]"), 0o644)
}

func (f *fakeTool) Remap(_ context.Context, in, out string, _ domain.Grid) error {
	f.mu.Lock()
	f.remapCalls++
	f.remapOutputs = append(f.remapOutputs, out)
	f.mu.Unlock()

	base := filepath.Base(in)
	if f.failRemap[base] {
		return fmt.Errorf("%w: wgrib2: exit status 2", domain.ErrToolFailed)
	}
	return os.WriteFile(out, []byte("["+base+"]"), 0o644)
}

func (f *fakeTool) Subset(_ context.Context, in, out string, _ domain.BBox) error {
	f.mu.Lock()
	f.subsetCalls++
	f.mu.Unlock()

	if f.failSubset[filepath.Base(in)] {
		return fmt.Errorf("%w: wgrib2: exit status 1", domain.ErrToolFailed)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func (f *fakeTool) Merge(_ context.Context, inputs []string, out string) error {
	f.mu.Lock()
	f.mergeInputs = append([]string(nil), inputs...)
	f.mu.Unlock()

	if f.failMerge {
		return fmt.Errorf("%w: wgrib2: exit status 8", domain.ErrToolFailed)
	}
	if len(inputs) == 0 {
		return domain.ErrNoInputFiles
	}
	var b strings.Builder
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		b.Write(data)
	}
	return os.WriteFile(out, []byte(b.String()), 0o644)
}

// Inventory reports one line per bracketed payload in path.
func (f *fakeTool) Inventory(_ context.Context, path string) ([]string, error) {
	f.mu.Lock()
	f.inventoried = append(f.inventoried, path)
	f.mu.Unlock()

	if f.failInventory {
		return nil, fmt.Errorf("%w: wgrib2: exit status 8", domain.ErrToolFailed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for i, part := range strings.Split(strings.TrimSuffix(string(data), "]"), "]") {
		lines = append(lines, fmt.Sprintf("%d:%s", i+1, strings.TrimPrefix(part, "[")))
	}
	return lines, nil
}

type recordingHook struct {
	name      string
	err       error
	published []domain.PublishedArtifact
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) AfterPublish(_ context.Context, a domain.PublishedArtifact) error {
	h.published = append(h.published, a)
	return h.err
}

var errBoom = errors.New("boom")

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testVariables() []domain.Variable {
	return []domain.Variable{
		{Code: "MSLPRESSURE", Name: "MSLP"},
		{Code: "CLSWIND_DIREC", Name: "WDIR10"},
		{Code: "CLSTEMPERATURE", Name: "T2m"},
	}
}

func testGrid() domain.Grid {
	return domain.Grid{
		BBox: domain.BBox{West: 13, East: 17.5, South: 42.5, North: 44.5},
		DX:   0.02,
		DY:   0.02,
	}
}

func archiveName(ts, code string) string {
	return "ALADLAMB4opendata_" + ts + "_" + code + ".grb.bz2"
}
