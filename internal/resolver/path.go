// Package resolver implements C2 (symbol resolution through the dynamic
// linker's next definition) and C3 (the libc file-lookup rules used by
// exec*p and execvP).
package resolver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rizsotto/Bear-sub001/internal/bearerr"
)

// DefaultPath is consulted when PATH is absent from the environment,
// mirroring the platform default path list (the _CS_PATH equivalent
// confstr would return on a POSIX system).
const DefaultPath = "/usr/bin:/bin"

// FromCurrentDirectory implements spec.md §4.3's first entry point:
// returns file unchanged if absolute, otherwise joins it with cwd.
func FromCurrentDirectory(file, cwd string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(cwd, file)
}

// FromPath implements spec.md §4.3's second entry point. If file contains
// a slash it is resolved relative to cwd (exactly like libc's execvp);
// otherwise each colon-separated entry of envp["PATH"] is tried in order,
// an empty entry meaning cwd. The first entry containing an executable
// regular file wins.
func FromPath(file, cwd string, envp map[string]string) (string, error) {
	if strings.ContainsRune(file, '/') {
		return fromCandidate(FromCurrentDirectory(file, cwd))
	}

	path, ok := envp["PATH"]
	if !ok {
		path = DefaultPath
	}
	return FromSearchPath(file, cwd, path)
}

// FromSearchPath implements spec.md §4.3's third entry point: the same
// algorithm as FromPath but against a caller-supplied path list instead
// of envp["PATH"]. execvP on BSD-derived platforms takes such a list
// directly.
//
// An empty searchPath is a single cwd-only entry, per spec.md §4.3: "an
// empty PATH resolves to cwd." Substituting DefaultPath here would
// collapse that case into "PATH absent," which is a different entry
// point's behavior (FromPath's lookup-miss branch) and not this
// function's to decide.
func FromSearchPath(file, cwd, searchPath string) (string, error) {
	entries := []string{searchPath}
	if searchPath != "" {
		entries = strings.Split(searchPath, ":")
	}

	var lastErr error = &bearerr.Resolution{File: file, Kind: "ENOENT"}
	for _, entry := range entries {
		dir := entry
		if dir == "" {
			dir = cwd
		}
		candidate := filepath.Join(dir, file)
		resolved, err := fromCandidate(candidate)
		if err == nil {
			return resolved, nil
		}
		// EACCES (found but not executable) takes precedence over a
		// later ENOENT, matching libc's behavior of reporting the most
		// specific failure it encountered along the search.
		if isAccessErr(err) {
			lastErr = err
		}
	}
	return "", lastErr
}

func fromCandidate(path string) (string, error) {
	if len(path) >= 4096 {
		return "", &bearerr.Resolution{File: path, Kind: "ENAMETOOLONG"}
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", &bearerr.Resolution{File: path, Kind: "ENOENT"}
	}
	if info.IsDir() {
		return "", &bearerr.Resolution{File: path, Kind: "EACCES"}
	}
	if info.Mode()&0o111 == 0 {
		return "", &bearerr.Resolution{File: path, Kind: "EACCES"}
	}
	return path, nil
}

func isAccessErr(err error) bool {
	var r *bearerr.Resolution
	if e, ok := err.(*bearerr.Resolution); ok {
		r = e
	}
	return r != nil && r.Kind == "EACCES"
}
