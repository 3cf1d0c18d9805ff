package domain

import (
	"regexp"
	"strings"
)

// CompressedExt marks a remote payload that must be decompressed after download.
const CompressedExt = ".bz2"

// ArchiveNaming recognises "{prefix}_{timestamp}_{code}[.ext...]" entries in
// a remote run directory listing.
type ArchiveNaming struct {
	Prefix string
	re     *regexp.Regexp
}

// NewArchiveNaming compiles the entry pattern for prefix.
func NewArchiveNaming(prefix string) ArchiveNaming {
	return ArchiveNaming{
		Prefix: prefix,
		re:     regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)_([^.]+)(\..*)?$`),
	}
}

// Parse extracts the timestamp and variable code from a listing entry.
func (a ArchiveNaming) Parse(name string) (Timestamp, string, bool) {
	if a.re == nil {
		return "", "", false
	}
	m := a.re.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return Timestamp(m[1]), m[2], true
}

// IsCompressed reports whether a remote name carries the compressed extension.
func IsCompressed(name string) bool { return strings.HasSuffix(name, CompressedExt) }

// DecompressedName strips the compressed extension, if any.
func DecompressedName(name string) string { return strings.TrimSuffix(name, CompressedExt) }

// ArtifactNaming builds the published file names.
type ArtifactNaming struct {
	Prefix string
	Ext    string
	re     *regexp.Regexp
}

// NewArtifactNaming returns the naming scheme for prefix and ext (without dot).
func NewArtifactNaming(prefix, ext string) ArtifactNaming {
	return ArtifactNaming{
		Prefix: prefix,
		Ext:    ext,
		re:     regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)\.` + regexp.QuoteMeta(ext) + `$`),
	}
}

// Stamped returns the run-stamped artifact name.
func (n ArtifactNaming) Stamped(ts Timestamp) string {
	return n.Prefix + "_" + string(ts) + "." + n.Ext
}

// Alias returns the latest alias name.
func (n ArtifactNaming) Alias() string {
	return n.Prefix + "_latest." + n.Ext
}

// ParseStamped returns the timestamp of a stamped artifact name. The alias
// and any other name do not match.
func (n ArtifactNaming) ParseStamped(name string) (Timestamp, bool) {
	if n.re == nil {
		return "", false
	}
	m := n.re.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return Timestamp(m[1]), true
}
