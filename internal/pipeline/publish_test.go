package pipeline_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/couchcryptid/aladin-mirror/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNaming = domain.NewArtifactNaming("aladin_adriacenter", "grb2")

func mergedArtifact(t *testing.T, dir string, ts domain.Timestamp, payload string) domain.RunArtifact {
	t.Helper()
	path := filepath.Join(dir, "merged_"+string(ts))
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
	return domain.RunArtifact{
		Run:       domain.Run{Dir: "06", Timestamp: ts},
		Path:      path,
		Variables: testVariables(),
	}
}

func TestPublish_StampedAndAlias(t *testing.T) {
	work, out := t.TempDir(), filepath.Join(t.TempDir(), "data")
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC))
	p := pipeline.NewFilePublisher(out, testNaming, clock, slog.Default())

	pub, err := p.Publish(context.Background(), mergedArtifact(t, work, "2026101506", "payload"))
	require.NoError(t, err)

	assert.Equal(t, "aladin_adriacenter_2026101506.grb2", pub.Name)
	assert.Equal(t, int64(len("payload")), pub.Size)
	assert.True(t, clock.Now().Equal(pub.PublishedAt))

	target, err := os.Readlink(filepath.Join(out, "aladin_adriacenter_latest.grb2"))
	require.NoError(t, err)
	assert.Equal(t, "aladin_adriacenter_2026101506.grb2", target)

	data, err := os.ReadFile(pub.AliasPath)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.NoFileExists(t, pub.StampedPath+".tmp")
}

func TestPublish_RepointsAlias(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	p := pipeline.NewFilePublisher(out, testNaming, clockwork.NewFakeClock(), slog.Default())

	_, err := p.Publish(context.Background(), mergedArtifact(t, work, "2026101500", "old"))
	require.NoError(t, err)
	pub, err := p.Publish(context.Background(), mergedArtifact(t, work, "2026101506", "new"))
	require.NoError(t, err)

	data, err := os.ReadFile(pub.AliasPath)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.FileExists(t, filepath.Join(out, "aladin_adriacenter_2026101500.grb2"), "previous stamped file is kept")
}

func TestPublish_FailureLeavesAlias(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	p := pipeline.NewFilePublisher(out, testNaming, clockwork.NewFakeClock(), slog.Default())

	first, err := p.Publish(context.Background(), mergedArtifact(t, work, "2026101500", "old"))
	require.NoError(t, err)

	missing := domain.RunArtifact{
		Run:  domain.Run{Dir: "06", Timestamp: "2026101506"},
		Path: filepath.Join(work, "does-not-exist"),
	}
	_, err = p.Publish(context.Background(), missing)
	require.ErrorIs(t, err, domain.ErrPublishFailed)
	assert.True(t, domain.IsFatal(err))

	target, err := os.Readlink(first.AliasPath)
	require.NoError(t, err)
	assert.Equal(t, first.Name, target)
	assert.NoFileExists(t, filepath.Join(out, "aladin_adriacenter_2026101506.grb2"))
	assert.NoFileExists(t, filepath.Join(out, "aladin_adriacenter_2026101506.grb2.tmp"))
}

// Readers racing a sequence of publications must always see a complete
// artifact through the alias.
func TestPublish_ConcurrentReaders(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	p := pipeline.NewFilePublisher(out, testNaming, clockwork.NewFakeClock(), slog.Default())

	payload := func(i int) string { return fmt.Sprintf("artifact-%02d-%s", i, string(make([]byte, 4096))) }
	valid := make(map[string]bool)
	for i := 0; i < 20; i++ {
		valid[payload(i)] = true
	}

	_, err := p.Publish(context.Background(), mergedArtifact(t, work, "2026101500", payload(0)))
	require.NoError(t, err)
	alias := filepath.Join(out, testNaming.Alias())

	var (
		stop  atomic.Bool
		bad   atomic.Int64
		reads atomic.Int64
		wg    sync.WaitGroup
	)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				data, err := os.ReadFile(alias)
				if err != nil || !valid[string(data)] {
					bad.Add(1)
				}
				reads.Add(1)
			}
		}()
	}

	for i := 1; i < 20; i++ {
		ts := domain.Timestamp(fmt.Sprintf("20261015%02d", i))
		_, err := p.Publish(context.Background(), mergedArtifact(t, work, ts, payload(i)))
		require.NoError(t, err)
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, bad.Load(), "readers observed a missing or partial artifact")
	assert.Positive(t, reads.Load())
}
