package domain

import (
	"errors"
	"fmt"
)

// Fatal pipeline conditions.
var (
	ErrNoRunFound    = errors.New("no run found in any run directory")
	ErrNoInputFiles  = errors.New("no input files")
	ErrMergeFailed   = errors.New("merge failed")
	ErrPublishFailed = errors.New("publish failed")
)

// Per-file conditions; the orchestrator records and skips these.
var (
	ErrDecompressFailed = errors.New("decompress failed")
	ErrToolFailed       = errors.New("external tool failed")
	ErrEmptyOutput      = errors.New("external tool produced empty output")
)

// DownloadError reports a failed remote fetch. Status is zero for transport
// errors.
type DownloadError struct {
	Status int
	URL    string
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// TransformError reports a file whose primary and fallback transforms both failed.
type TransformError struct {
	File  string
	Cause error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.File, e.Cause)
}

func (e *TransformError) Unwrap() error { return e.Cause }

// IsFatal reports whether err aborts a pipeline run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoRunFound) ||
		errors.Is(err, ErrNoInputFiles) ||
		errors.Is(err, ErrMergeFailed) ||
		errors.Is(err, ErrPublishFailed)
}
