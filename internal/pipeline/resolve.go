package pipeline

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
)

// Resolve picks, for each variable in order, the first listing entry that
// contains both the run timestamp and the variable code. An entry satisfies
// at most one variable. Variables without a match are logged and omitted.
// Local paths are placed under sourceDir.
func Resolve(run domain.Run, listing []string, variables []domain.Variable, sourceDir string, logger *slog.Logger) []domain.SourceFile {
	ts := string(run.Timestamp)
	claimed := make(map[string]bool, len(variables))
	files := make([]domain.SourceFile, 0, len(variables))

	for _, v := range variables {
		match := ""
		for _, entry := range listing {
			if claimed[entry] {
				continue
			}
			if strings.Contains(entry, ts) && strings.Contains(entry, v.Code) {
				match = entry
				break
			}
		}
		if match == "" {
			logger.Warn("no source file for variable", "code", v.Code, "name", v.Name, "timestamp", ts)
			continue
		}

		claimed[match] = true
		files = append(files, domain.SourceFile{
			Variable:   v,
			RemoteName: match,
			LocalPath:  filepath.Join(sourceDir, domain.DecompressedName(match)),
		})
	}
	return files
}
