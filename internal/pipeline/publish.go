package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Publisher makes a merged artifact visible to consumers.
type Publisher interface {
	Publish(ctx context.Context, artifact domain.RunArtifact) (domain.PublishedArtifact, error)
}

// PublishHook is notified after a successful publication. Hook errors are
// logged by the orchestrator and never fail the run.
type PublishHook interface {
	Name() string
	AfterPublish(ctx context.Context, artifact domain.PublishedArtifact) error
}

// FilePublisher publishes artifacts into a local output directory under a
// run-stamped name and repoints the latest alias at it.
type FilePublisher struct {
	dir    string
	naming domain.ArtifactNaming
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewFilePublisher creates a FilePublisher writing into dir.
func NewFilePublisher(dir string, naming domain.ArtifactNaming, clock clockwork.Clock, logger *slog.Logger) *FilePublisher {
	return &FilePublisher{dir: dir, naming: naming, clock: clock, logger: logger}
}

// Publish copies the artifact to a temporary name, syncs it, and renames it
// onto the stamped name. The alias is then replaced by renaming a fresh
// symlink over it, so readers see either the previous or the new target.
// On any error the previous alias is left untouched.
func (p *FilePublisher) Publish(ctx context.Context, artifact domain.RunArtifact) (domain.PublishedArtifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.PublishedArtifact{}, err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return domain.PublishedArtifact{}, fmt.Errorf("%w: create output dir: %w", domain.ErrPublishFailed, err)
	}

	name := p.naming.Stamped(artifact.Run.Timestamp)
	stamped := filepath.Join(p.dir, name)
	tmp := stamped + ".tmp"

	size, err := copyFileSync(artifact.Path, tmp)
	if err != nil {
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup of partial copy
		return domain.PublishedArtifact{}, fmt.Errorf("%w: copy %s: %w", domain.ErrPublishFailed, artifact.Path, err)
	}
	if err := os.Rename(tmp, stamped); err != nil {
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup of partial copy
		return domain.PublishedArtifact{}, fmt.Errorf("%w: rename %s: %w", domain.ErrPublishFailed, name, err)
	}

	alias := filepath.Join(p.dir, p.naming.Alias())
	if err := repointSymlink(name, alias); err != nil {
		return domain.PublishedArtifact{}, fmt.Errorf("%w: repoint alias: %w", domain.ErrPublishFailed, err)
	}
	syncDir(p.dir)

	p.logger.Info("artifact published", "name", name, "alias", p.naming.Alias(), "size", size)

	return domain.PublishedArtifact{
		Run:         artifact.Run,
		Name:        name,
		StampedPath: stamped,
		AliasPath:   alias,
		Size:        size,
		Variables:   artifact.Variables,
		PublishedAt: p.clock.Now().UTC(),
	}, nil
}

func copyFileSync(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}

// repointSymlink atomically makes link point at target.
func repointSymlink(target, link string) error {
	tmp := link + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp) //nolint:errcheck // leftover symlink is replaced next time
		return err
	}
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	d.Sync() //nolint:errcheck // not supported on every platform
}
