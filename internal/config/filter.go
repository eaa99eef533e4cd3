package config

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"

	"c4ghfs/internal/vfs"
)

// BuildExcludeFilter compiles gitignore-style patterns into a filter that
// reports whether a root-relative path is hidden. Blank patterns and
// comments are skipped; nil is returned when nothing remains.
func BuildExcludeFilter(patterns []string) vfs.ExcludeFunc {
	var lines []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		lines = append(lines, p)
	}
	if len(lines) == 0 {
		return nil
	}

	gi := ignore.CompileIgnoreLines(lines...)
	log.Debugf("[Config] Excluding %d pattern(s): %v", len(lines), lines)

	return func(relPath string, isDir bool) bool {
		checkPath := relPath
		if isDir {
			checkPath = relPath + "/"
		}
		return gi.MatchesPath(checkPath)
	}
}
