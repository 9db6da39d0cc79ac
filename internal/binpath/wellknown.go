package binpath

import (
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// wellKnownPatterns are installation layouts used by distribution packages,
// the PGDG repositories, source builds, and Homebrew.
var wellKnownPatterns = []string{
	"/usr/lib/postgresql/*/bin",
	"/usr/pgsql-*/bin",
	"/usr/local/pgsql/bin",
	"/opt/homebrew/opt/postgresql*/bin",
	"/usr/local/opt/postgresql*/bin",
	"/usr/local/bin",
	"/usr/bin",
}

var versionRe = regexp.MustCompile(`\d+(\.\d+)*`)

// DefaultSearchDirs expands the well-known installation layouts that exist
// on this machine. Versioned directories matched by one pattern are ordered
// newest first.
func DefaultSearchDirs() []string {
	var dirs []string
	for _, pattern := range wellKnownPatterns {
		if !strings.ContainsRune(pattern, '*') {
			dirs = append(dirs, pattern)
			continue
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		SortNewestFirst(matches)
		dirs = append(dirs, matches...)
	}
	return dirs
}

// SortNewestFirst orders paths by the first dotted version number they
// contain, highest first. Paths without a version sort last, in lexical
// order.
func SortNewestFirst(paths []string) {
	slices.SortStableFunc(paths, func(a, b string) int {
		va, vb := versionOf(a), versionOf(b)
		if c := compareVersions(vb, va); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}

func versionOf(path string) []int {
	m := versionRe.FindString(path)
	if m == "" {
		return nil
	}
	parts := strings.Split(m, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		out = append(out, n)
	}
	return out
}

func compareVersions(a, b []int) int {
	for i := range max(len(a), len(b)) {
		var x, y int
		if i < len(a) {
			x = a[i]
		} else {
			x = -1
		}
		if i < len(b) {
			y = b[i]
		} else {
			y = -1
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}
