// Package discover enumerates input files under a directory tree.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultPattern matches the input files of both passes.
const DefaultPattern = "*.json"

// Files walks root recursively and returns the absolute path of every regular
// file whose base name matches pattern (filepath.Match syntax).
//
// Order is walk order: lexical within each directory, depth-first. Files are
// not opened, so a malformed ".json" file is still returned.
//
// A root that is a symlink to a directory is followed. Returned paths stay
// under the root as given, not the link target. Symlinks below root are not
// followed.
//
// Errors:
//   - root missing, unreadable, or not a directory.
//   - any directory below root that cannot be read.
//   - pattern is malformed (filepath.ErrBadPattern).
func Files(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("discover: pattern %q: %w", pattern, err)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("discover: %s: %w", root, err)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("discover: %s: not a directory", abs)
	}
	walkRoot, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	var out []string
	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		rel, err := filepath.Rel(walkRoot, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.Join(abs, rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	return out, nil
}
