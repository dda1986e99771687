// Package fsutil provides helpers for locating resources inside fs.FS roots.
package fsutil

import (
	"io/fs"
	"strings"
)

// Normalize converts a URI-style path to the unrooted form io/fs requires.
// "/a/b" becomes "a/b" and the empty or root path becomes ".".
func Normalize(path string) string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "."
	}
	return path
}

// Exists reports whether path names a regular file inside fsys.
func Exists(fsys fs.FS, path string) bool {
	info, err := fs.Stat(fsys, Normalize(path))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
