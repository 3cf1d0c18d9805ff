package toolexec

import (
	"context"
	"fmt"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
)

// Bzip2 decompresses downloads in place. It implements pipeline.Decompressor.
type Bzip2 struct {
	bin    string
	runner Runner
}

// NewBzip2 creates a Bzip2 decompressor. A nil runner uses ExecRunner.
func NewBzip2(bin string, runner Runner) *Bzip2 {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Bzip2{bin: bin, runner: runner}
}

// Decompress replaces path with its decompressed form and returns the new
// path. The compressed file is removed by the tool on success.
func (b *Bzip2) Decompress(ctx context.Context, path string) (string, error) {
	if _, err := b.runner.Run(ctx, b.bin, "-df", path); err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrDecompressFailed, path, err)
	}
	return domain.DecompressedName(path), nil
}
