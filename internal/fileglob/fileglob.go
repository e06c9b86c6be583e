// Package fileglob expands a task's input/output glob patterns against
// a project root, feeding
// file content hashing (C1) and output archival (C3).
//
// Grounded on the original internal/globby (doublestar pattern matching
// over an include/exclude set), generalized from globby's afero.IOFS
// walk to a karrick/godirwalk-backed walk, since moon's project trees are
// walked far more often (once per RunTask hash, not once per run).
package fileglob

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// Walk lists every regular file under root, relative to root, using
// slash-separated paths regardless of OS. Directories named .git or
// node_modules are not descended into.
func Walk(root string) ([]string, error) {
	var out []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path == root {
				return nil
			}
			name := de.Name()
			if de.IsDir() && (name == ".git" || name == "node_modules") {
				return filepath.SkipDir
			}
			if de.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			out = append(out, filepath.ToSlash(rel))
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			if os.IsNotExist(err) {
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "fileglob: walk %s", root)
	}
	sort.Strings(out)
	return out, nil
}

// Expand returns every file under root matching at least one of include
// and none of exclude, both doublestar patterns (e.g. "src/**/*.ts").
// Patterns are evaluated relative to root. A root that doesn't exist
// yields an empty, non-error result.
func Expand(root string, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		return nil, nil
	}

	files, err := Walk(root)
	if err != nil {
		return nil, err
	}

	var result []string
	for _, rel := range files {
		if !matchesAny(include, rel) {
			continue
		}
		if matchesAny(exclude, rel) {
			continue
		}
		result = append(result, rel)
	}
	return result, nil
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		p = filepath.ToSlash(strings.TrimPrefix(p, "./"))
		ok, err := doublestar.Match(p, rel)
		if err == nil && ok {
			return true
		}
	}
	return false
}
