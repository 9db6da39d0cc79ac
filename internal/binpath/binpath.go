package binpath

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/giantswarm/pgtestenv/internal/fileutil"
	"github.com/giantswarm/pgtestenv/internal/sentinel"
)

// HomeEnv names the environment variable pointing at a PostgreSQL
// installation directory.
const HomeEnv = "POSTGRES_HOME"

// InitDBName is the file name of the cluster-initialization tool.
const InitDBName = "initdb"

// ServerNames lists accepted server executable names in preference order.
var ServerNames = []string{"postgres", "postmaster"}

// ErrBinaryNotFound is the kind of error returned when a required
// executable cannot be located.
const ErrBinaryNotFound = sentinel.Error("binary not found")

// NotFoundError reports which executable could not be located and every
// directory that was searched.
type NotFoundError struct {
	Name     string
	Searched []string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s not found", ErrBinaryNotFound, e.Name)
	if len(e.Searched) > 0 {
		b.WriteString("; searched: ")
		b.WriteString(strings.Join(e.Searched, ", "))
	}
	fmt.Fprintf(&b, "; install the PostgreSQL server binaries or set %s to the installation directory", HomeEnv)
	return b.String()
}

func (e *NotFoundError) Unwrap() error { return ErrBinaryNotFound }

// Config controls the search. Zero values mean "read from the environment"
// for Home and PathEnv and "use DefaultSearchDirs" for WellKnown.
type Config struct {
	// InitDB and Server are explicit executable paths that bypass the search.
	InitDB string
	Server string

	Home      string
	PathEnv   string
	WellKnown []string

	// NoEnv stops empty Home and PathEnv from being read from the
	// environment.
	NoEnv bool
}

// Binaries holds the resolved absolute executable paths.
type Binaries struct {
	InitDB string
	Server string
}

// Resolve locates initdb and the server executable. Both must be found; the
// first missing one is reported as a *NotFoundError.
func Resolve(cfg Config) (Binaries, error) {
	dirs := SearchDirs(cfg)

	initdb, err := find(cfg.InitDB, []string{InitDBName}, dirs)
	if err != nil {
		return Binaries{}, err
	}
	server, err := find(cfg.Server, ServerNames, dirs)
	if err != nil {
		return Binaries{}, err
	}
	return Binaries{InitDB: initdb, Server: server}, nil
}

// SearchDirs returns the ordered, de-duplicated list of directories Resolve
// inspects for cfg.
func SearchDirs(cfg Config) []string {
	home, pathEnv := cfg.Home, cfg.PathEnv
	if !cfg.NoEnv {
		if home == "" {
			home = os.Getenv(HomeEnv)
		}
		if pathEnv == "" {
			pathEnv = os.Getenv("PATH")
		}
	}

	var dirs []string
	if home != "" {
		dirs = append(dirs, filepath.Join(home, "bin"), home)
	}
	dirs = append(dirs, filepath.SplitList(pathEnv)...)
	wellKnown := cfg.WellKnown
	if wellKnown == nil {
		wellKnown = DefaultSearchDirs()
	}
	dirs = append(dirs, wellKnown...)

	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		if d == "" {
			// An empty PATH element means the current directory.
			d = "."
		}
		d = filepath.Clean(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// find returns override when set, otherwise the first executable named one
// of names in dirs. For each directory all names are tried before moving on,
// so a postmaster in $POSTGRES_HOME beats a postgres later on PATH.
func find(override string, names, dirs []string) (string, error) {
	label := strings.Join(names, " or ")
	if override != "" {
		if fileutil.IsExecutable(override) {
			return absolute(override), nil
		}
		return "", &NotFoundError{Name: label, Searched: []string{override}}
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if fileutil.IsExecutable(candidate) {
				return absolute(candidate), nil
			}
		}
	}
	return "", &NotFoundError{Name: label, Searched: slices.Clone(dirs)}
}

func absolute(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
