// Package archive implements the archiver (C3): packing a set of files
// rooted under a workspace anchor into outputs/<digest>.tar.gz, and
// restoring one back onto disk.
//
// Grounded on the original internal/cacheitem (Create/AddFile/Restore),
// generalized from cacheitem's zstd-or-not tar wrapping to the single
// codec used here: plain gzip over stdlib archive/tar. The
// entry-name validation in checkName below is adapted from cacheitem's
// restore.go, since the safety properties it enforces (no absolute
// paths, no ".."-escapes, no embedded backslashes) are format-agnostic.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	errMalformedEntryName = errors.New("archive: entry name is malformed or escapes the anchor")
	errUnsupportedType    = errors.New("archive: unsupported tar entry type")
)

// zeroTime pins every entry's timestamps so two archives of identical
// content produce byte-identical tar streams (modulo gzip's own header,
// which we also zero below).
var zeroTime = time.Unix(0, 0)

// Warnf is called when Pack skips a missing source instead of failing —
// missing sources are skipped with a warning, not an error. Callers that
// want these surfaced through the event bus/logger
// should replace it; the default is silent.
var Warnf = func(format string, args ...interface{}) {}

// Pack writes a tar.gz archive to destPath containing every path in
// files, each given relative to anchor. If prefix is non-empty, every
// entry's internal name is written as "<prefix>/<entry>". Sources that
// don't exist are skipped with a call to Warnf rather than failing the
// whole pack.
func Pack(destPath, anchor string, files []string, prefix string) (err error) {
	if mkErr := os.MkdirAll(filepath.Dir(destPath), 0o755); mkErr != nil {
		return fmt.Errorf("archive: mkdir: %w", mkErr)
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", destPath, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	gz, _ := gzip.NewWriterLevel(out, gzip.BestSpeed)
	gz.ModTime = zeroTime
	defer func() {
		if cerr := gz.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	tw := tar.NewWriter(gz)
	defer func() {
		if cerr := tw.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	for _, rel := range sorted {
		sourcePath := filepath.Join(anchor, rel)
		if _, statErr := os.Lstat(sourcePath); statErr != nil {
			if os.IsNotExist(statErr) {
				Warnf("archive: skipping missing source %q", rel)
				continue
			}
			return fmt.Errorf("archive: lstat %s: %w", sourcePath, statErr)
		}

		entryName := filepath.ToSlash(rel)
		if prefix != "" {
			entryName = path.Join(prefix, entryName)
		}
		if err := addEntry(tw, sourcePath, rel, entryName); err != nil {
			return err
		}
	}
	return nil
}

func addEntry(tw *tar.Writer, sourcePath, rel, entryName string) error {
	if wellFormed, _ := checkName(filepath.ToSlash(rel)); !wellFormed {
		return fmt.Errorf("%w: %q", errMalformedEntryName, rel)
	}

	info, err := os.Lstat(sourcePath)
	if err != nil {
		return fmt.Errorf("archive: lstat %s: %w", sourcePath, err)
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		link, err = os.Readlink(sourcePath)
		if err != nil {
			return fmt.Errorf("archive: readlink %s: %w", sourcePath, err)
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("archive: header for %s: %w", rel, err)
	}
	header.Name = entryName
	if info.IsDir() && !strings.HasSuffix(header.Name, "/") {
		header.Name += "/"
	}

	if header.Typeflag != tar.TypeReg && header.Typeflag != tar.TypeDir && header.Typeflag != tar.TypeSymlink {
		return fmt.Errorf("%w: %s", errUnsupportedType, rel)
	}

	header.Uid, header.Gid = 0, 0
	header.AccessTime, header.ModTime, header.ChangeTime = zeroTime, zeroTime, zeroTime

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("archive: write header for %s: %w", rel, err)
	}

	if header.Typeflag == tar.TypeReg && header.Size > 0 {
		f, err := os.Open(sourcePath)
		if err != nil {
			return fmt.Errorf("archive: open %s: %w", sourcePath, err)
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("archive: copy %s: %w", sourcePath, err)
		}
	}

	return nil
}

// Unpack extracts srcPath's tar.gz contents under anchor, returning the
// list of anchored paths it restored. If stripPrefix is non-empty and an
// entry's name begins with "<stripPrefix>/", that leading segment is
// removed before the entry is written. Parent directories are created
// eagerly.
func Unpack(srcPath, anchor, stripPrefix string) ([]string, error) {
	return unpack(srcPath, anchor, stripPrefix, nil)
}

// TreeDiffer lets UnpackWithDiff skip rewriting entries that already
// match the destination tree, and clean up files the archive doesn't
// mention.
type TreeDiffer interface {
	// Matches reports whether the file at the given anchored path
	// already has the given size and content, and so can be skipped.
	Matches(anchoredPath string, size int64, header *tar.Header) bool
	// UntrackedFiles returns anchored paths present on disk under
	// anchor that were not visited during the unpack, for deletion.
	UntrackedFiles(anchor string, visited map[string]bool) []string
}

// UnpackWithDiff is Unpack's streaming variant: entries matched by differ
// are not rewritten, and files under anchor that the archive didn't
// mention are deleted afterward.
func UnpackWithDiff(differ TreeDiffer, srcPath, anchor, stripPrefix string) ([]string, error) {
	restored, err := unpack(srcPath, anchor, stripPrefix, differ)
	if err != nil {
		return restored, err
	}

	visited := make(map[string]bool, len(restored))
	for _, p := range restored {
		visited[p] = true
	}
	for _, stale := range differ.UntrackedFiles(anchor, visited) {
		os.Remove(filepath.Join(anchor, filepath.FromSlash(stale)))
	}
	return restored, nil
}

func unpack(srcPath, anchor, stripPrefix string, differ TreeDiffer) ([]string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("archive: gzip reader: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(anchor, 0o755); err != nil {
		return nil, fmt.Errorf("archive: mkdir anchor: %w", err)
	}

	tr := tar.NewReader(gz)
	var restored []string

	stripSegment := strings.TrimSuffix(stripPrefix, "/")

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, fmt.Errorf("archive: read entry: %w", err)
		}

		name, err := canonicalEntryName(header.Name)
		if err != nil {
			return restored, err
		}

		if stripSegment != "" {
			if rest := strings.TrimPrefix(name, stripSegment+"/"); rest != name {
				name = rest
			} else if name == stripSegment {
				continue
			}
		}

		dest := filepath.Join(anchor, filepath.FromSlash(name))

		if differ != nil && header.Typeflag == tar.TypeReg && differ.Matches(name, header.Size, header) {
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return restored, err
			}
			restored = append(restored, name)
			continue
		}

		if err := restoreEntry(tr, header, dest); err != nil {
			return restored, fmt.Errorf("archive: restore %s: %w", name, err)
		}
		restored = append(restored, name)
	}

	return restored, nil
}

func restoreEntry(tr *tar.Reader, header *tar.Header, dest string) error {
	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, 0o755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode))
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, tr)
		return err
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		os.Remove(dest)
		return os.Symlink(header.Linkname, dest)
	default:
		return fmt.Errorf("%w: %s", errUnsupportedType, header.Name)
	}
}

// canonicalEntryName validates and trims a tar entry name down to a
// clean, slash-separated relative path.
func canonicalEntryName(name string) (string, error) {
	wellFormed, windowsSafe := checkName(name)
	if !wellFormed || !windowsSafe {
		return "", fmt.Errorf("%w: %q", errMalformedEntryName, name)
	}
	return strings.TrimSuffix(name, "/"), nil
}

// checkName reports whether name is a well-formed, non-escaping relative
// unix path, and whether it's additionally safe to restore on Windows
// (no embedded backslashes). Adapted from cacheitem's restore-time name
// check.
func checkName(name string) (wellFormed bool, windowsSafe bool) {
	if len(name) == 0 {
		return false, false
	}

	wellFormed = true
	windowsSafe = true

	if name == "." || name == ".." {
		wellFormed = false
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") {
		wellFormed = false
	}
	if strings.HasSuffix(name, "/.") || strings.HasSuffix(name, "/..") {
		wellFormed = false
	}
	if strings.Contains(name, "//") || strings.Contains(name, "/./") || strings.Contains(name, "/../") {
		wellFormed = false
	}
	if strings.ContainsRune(name, '\\') {
		windowsSafe = false
	}

	return wellFormed, windowsSafe
}
