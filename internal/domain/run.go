package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Timestamp identifies a model run within a run directory. Ordering is
// lexicographic over a fixed-width digit string.
type Timestamp string

// Valid reports whether t is a non-empty string of ASCII digits.
func (t Timestamp) Valid() bool {
	if t == "" {
		return false
	}
	for i := 0; i < len(t); i++ {
		if t[i] < '0' || t[i] > '9' {
			return false
		}
	}
	return true
}

// Compare returns -1, 0 or +1 depending on whether t sorts before, equal to,
// or after o.
func (t Timestamp) Compare(o Timestamp) int {
	return strings.Compare(string(t), string(o))
}

// After reports whether t is strictly more recent than o.
func (t Timestamp) After(o Timestamp) bool { return t.Compare(o) > 0 }

func (t Timestamp) String() string { return string(t) }

// Run identifies one model execution cycle.
type Run struct {
	Dir       string    `json:"run_dir"`
	Timestamp Timestamp `json:"timestamp"`
}

func (r Run) String() string { return fmt.Sprintf("%s/%s", r.Dir, r.Timestamp) }

// Variable maps a source-side variable code to the canonical name used
// downstream. The configured list is ordered and never mutated at runtime.
type Variable struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// SourceFile is one remote file resolved for a variable of a run.
type SourceFile struct {
	Variable   Variable
	RemoteName string
	LocalPath  string // final on-disk path once ready (decompressed when applicable)
	// Decompressed is set once the payload has been fully written and, if the
	// remote file was compressed, decompressed.
	Decompressed bool
}

// Ready reports whether the file's payload can be consumed.
func (s SourceFile) Ready() bool { return s.Decompressed }

// Base returns the local file name without directory.
func (s SourceFile) Base() string { return filepath.Base(s.LocalPath) }

// TransformedFile is the subset+remapped output of one SourceFile.
type TransformedFile struct {
	Source SourceFile
	Path   string
}

// RunArtifact is the merged output of a run, before publication.
type RunArtifact struct {
	Run       Run
	Path      string
	Variables []Variable
}

// PublishedArtifact describes a successfully published run.
type PublishedArtifact struct {
	Run         Run        `json:"run"`
	Name        string     `json:"name"`
	StampedPath string     `json:"-"`
	AliasPath   string     `json:"-"`
	Size        int64      `json:"size"`
	Variables   []Variable `json:"variables"`
	PublishedAt time.Time  `json:"published_at"`
}

// WorkDirs are the scratch directories of one run.
type WorkDirs struct {
	Root      string
	Source    string
	Subset    string
	Transform string
	Processed string
}

// RunDirPrefix prefixes every run-scoped working directory.
const RunDirPrefix = "run_"

// NewWorkDirs lays out the working tree of run under workDir.
func NewWorkDirs(workDir string, run Run) WorkDirs {
	root := filepath.Join(workDir, RunDirPrefix+string(run.Timestamp))
	return WorkDirs{
		Root:      root,
		Source:    filepath.Join(root, "source"),
		Subset:    filepath.Join(root, "subset"),
		Transform: filepath.Join(root, "transform"),
		Processed: filepath.Join(root, "processed"),
	}
}

// All returns every stage directory.
func (w WorkDirs) All() []string {
	return []string{w.Source, w.Subset, w.Transform, w.Processed}
}

// BBox is a geographic bounding box in degrees.
type BBox struct {
	West  float64
	East  float64
	South float64
	North float64
}

// Validate checks that the box is non-empty and inside valid coordinate ranges.
func (b BBox) Validate() error {
	if b.West >= b.East {
		return fmt.Errorf("bbox west %.4f must be less than east %.4f", b.West, b.East)
	}
	if b.South >= b.North {
		return fmt.Errorf("bbox south %.4f must be less than north %.4f", b.South, b.North)
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("bbox latitude out of range [%.4f, %.4f]", b.South, b.North)
	}
	if b.West < -180 || b.East > 360 {
		return fmt.Errorf("bbox longitude out of range [%.4f, %.4f]", b.West, b.East)
	}
	return nil
}

// Grid is a regular lat/lon target grid anchored at the south-west corner of
// its bounding box.
type Grid struct {
	BBox BBox
	DX   float64
	DY   float64
}

// NX returns the number of grid columns covering the box.
func (g Grid) NX() int { return int((g.BBox.East-g.BBox.West)/g.DX+1e-9) + 1 }

// NY returns the number of grid rows covering the box.
func (g Grid) NY() int { return int((g.BBox.North-g.BBox.South)/g.DY+1e-9) + 1 }
