package cacheengine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/moonrepo/moon/internal/archive"
	"github.com/moonrepo/moon/internal/hashing"
	"github.com/moonrepo/moon/internal/statestore"
)

const cacheDirTagContents = "Signature: 8a477f597d28d172789f06886806bc55\n" +
	"# This file is a cache directory tag created by moon.\n" +
	"# For information about cache directory tags see https://bford.info/cachedir/\n"

// RemoteStore is the optional blob-store collaborator: a transport-
// agnostic read/write interface over presigned URLs. The engine never
// speaks to it directly over the network; it
// only asks whether an artifact exists and, if so, downloads it to a
// local path, or uploads a local path under a digest.
type RemoteStore interface {
	// HasArtifact reports whether digest is available remotely.
	HasArtifact(digest string) (bool, error)
	// DownloadArtifact fetches digest's archive to destPath.
	DownloadArtifact(digest, destPath string) error
	// UploadArtifact pushes the archive at srcPath under digest.
	UploadArtifact(digest, srcPath string) error
}

// Engine is the cache engine (C4): it owns the hash engine, state store
// and archiver and gates all three behind Mode.
type Engine struct {
	mode     Mode
	cacheDir string
	hashes   *hashing.Store
	states   *statestore.Store
	remote   RemoteStore
	log      hclog.Logger

	taggedOnce bool
}

// New constructs an Engine rooted at cacheDir (typically
// "<workspace>/.moon/cache"). remote may be nil.
func New(cacheDir string, mode Mode, remote RemoteStore, log hclog.Logger) *Engine {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Engine{
		mode:     mode,
		cacheDir: cacheDir,
		hashes:   hashing.NewStore(cacheDir),
		states:   statestore.NewStore(cacheDir),
		remote:   remote,
		log:      log.Named("cacheengine"),
	}
}

// Mode returns the engine's current mode.
func (e *Engine) Mode() Mode { return e.mode }

// SetMode overrides the engine's mode after construction (e.g. from a
// CLI flag parsed after New).
func (e *Engine) SetMode(m Mode) { e.mode = m }

// Hashes returns the underlying hash manifest store.
func (e *Engine) Hashes() *hashing.Store { return e.hashes }

// States returns the underlying state store.
func (e *Engine) States() *statestore.Store { return e.states }

// Remote returns the configured remote store collaborator, or nil.
func (e *Engine) Remote() RemoteStore { return e.remote }

// EnsureCacheDirTag writes CACHEDIR.TAG on first use, per the cachedir
// spec at https://bford.info/cachedir/. Safe to call repeatedly; only
// the first call in this process does any I/O.
func (e *Engine) EnsureCacheDirTag() error {
	if e.taggedOnce {
		return nil
	}
	e.taggedOnce = true

	if err := os.MkdirAll(e.cacheDir, 0o755); err != nil {
		return errors.Wrap(err, "cacheengine: mkdir cache dir")
	}
	tagPath := filepath.Join(e.cacheDir, "CACHEDIR.TAG")
	if _, err := os.Stat(tagPath); err == nil {
		return nil
	}
	return errors.Wrap(
		os.WriteFile(tagPath, []byte(cacheDirTagContents), 0o644),
		"cacheengine: write CACHEDIR.TAG",
	)
}

// LocksDir returns the directory named locks live under.
func (e *Engine) LocksDir() string {
	return filepath.Join(e.cacheDir, "locks")
}

// FileLock is a held inter-process lock obtained from CreateLock. Callers
// must call Unlock when done, typically via defer.
type FileLock struct {
	flock *flock.Flock
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	return l.flock.Unlock()
}

// CreateLock acquires a blocking inter-process file lock on
// .moon/cache/locks/<name>.lock. Used around writers of the same digest
// so no two concurrent processes write the same archive path.
func (e *Engine) CreateLock(name string) (*FileLock, error) {
	if err := os.MkdirAll(e.LocksDir(), 0o755); err != nil {
		return nil, errors.Wrap(err, "cacheengine: mkdir locks dir")
	}
	path := filepath.Join(e.LocksDir(), name+".lock")
	fl := flock.New(path)
	if err := fl.Lock(); err != nil {
		return nil, errors.Wrapf(err, "cacheengine: lock %s", name)
	}
	return &FileLock{flock: fl}, nil
}

// TryCreateLock is CreateLock's non-blocking variant: it reports false,
// with a nil lock and error, when another holder already has the lock.
func (e *Engine) TryCreateLock(name string) (*FileLock, bool, error) {
	if err := os.MkdirAll(e.LocksDir(), 0o755); err != nil {
		return nil, false, errors.Wrap(err, "cacheengine: mkdir locks dir")
	}
	path := filepath.Join(e.LocksDir(), name+".lock")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, false, errors.Wrapf(err, "cacheengine: try-lock %s", name)
	}
	if !ok {
		return nil, false, nil
	}
	return &FileLock{flock: fl}, true, nil
}

// changeState records the single-content hash used by ExecuteIfChanged.
type changeState struct {
	LastHash string `json:"lastHash"`
}

func (e *Engine) changeStatePath(key string) string {
	return filepath.Join(e.cacheDir, "states", "changes", key+".json")
}

// ExecuteIfChanged hashes data, compares it with the stored last_hash for
// key, and if different runs op and, when the mode is writable, persists
// the new hash. Returns whether op ran.
func (e *Engine) ExecuteIfChanged(key string, data interface{}, op func() error) (bool, error) {
	digest, err := e.hashes.SaveManifestWithoutHasher(key, data)
	if err != nil {
		return false, errors.Wrap(err, "cacheengine: hash change-detection data")
	}

	var prev changeState
	err = statestore.ReadJSON(e.changeStatePath(key), &prev)
	if err != nil && !os.IsNotExist(err) {
		return false, errors.Wrap(err, "cacheengine: read change state")
	}

	if prev.LastHash == digest {
		return false, nil
	}

	if err := op(); err != nil {
		return false, err
	}

	if !e.mode.IsWritable() {
		return true, nil
	}

	if err := statestore.WriteJSON(e.changeStatePath(key), changeState{LastHash: digest}); err != nil {
		return true, errors.Wrap(err, "cacheengine: persist change state")
	}
	return true, nil
}

// CleanResult reports what CleanStale removed.
type CleanResult struct {
	FilesDeleted int
	BytesSaved   int64
}

// CleanStale removes files under hashes/ and outputs/ (and, if all is
// true, states/ and temp/ too) whose mtime is older than lifetime.
func (e *Engine) CleanStale(lifetime time.Duration, all bool) (CleanResult, error) {
	cutoff := time.Now().Add(-lifetime)
	dirs := []string{e.hashes.HashesDir(), e.hashes.OutputsDir()}
	if all {
		dirs = append(dirs, filepath.Join(e.cacheDir, "states"), filepath.Join(e.cacheDir, "temp"))
	}

	var result CleanResult
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return result, errors.Wrapf(err, "cacheengine: read %s", dir)
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			size := info.Size()
			if removeErr := os.RemoveAll(path); removeErr != nil {
				e.log.Warn("failed to remove stale cache file", "path", path, "error", removeErr)
				continue
			}
			result.FilesDeleted++
			result.BytesSaved += size
		}
	}
	return result, nil
}

// FetchLocal reports whether a local archive exists for digest and, if
// so, hydrates it into anchor via the archiver. It never touches the
// remote store.
func (e *Engine) FetchLocal(digest, anchor string) (hydrated bool, restored []string, err error) {
	if !e.mode.IsReadable() {
		return false, nil, nil
	}
	path := e.hashes.GetArchivePath(digest)
	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return false, nil, nil
		}
		return false, nil, errors.Wrap(statErr, "cacheengine: stat archive")
	}

	lock, err := e.CreateLock(digest)
	if err != nil {
		return false, nil, err
	}
	defer lock.Unlock()

	restored, err = archive.Unpack(path, anchor, "")
	if err != nil {
		return false, nil, errors.Wrap(err, "cacheengine: unpack archive")
	}
	return true, restored, nil
}

// FetchRemote reports whether digest is available from the remote store
// and, if so, downloads it to the local archive path and hydrates it.
func (e *Engine) FetchRemote(digest, anchor string) (hydrated bool, restored []string, err error) {
	if !e.mode.IsReadable() || e.remote == nil {
		return false, nil, nil
	}
	has, err := e.remote.HasArtifact(digest)
	if err != nil {
		e.log.Warn("remote cache probe failed, falling back to local path", "digest", digest, "error", err)
		return false, nil, nil
	}
	if !has {
		return false, nil, nil
	}

	path := e.hashes.GetArchivePath(digest)
	lock, err := e.CreateLock(digest)
	if err != nil {
		return false, nil, err
	}
	defer lock.Unlock()

	if err := e.remote.DownloadArtifact(digest, path); err != nil {
		e.log.Warn("remote cache download failed, falling back to local execution", "digest", digest, "error", err)
		return false, nil, nil
	}

	restored, err = archive.Unpack(path, anchor, "")
	if err != nil {
		return false, nil, errors.Wrap(err, "cacheengine: unpack downloaded archive")
	}
	return true, restored, nil
}

// StoreOutputs packs files under anchor into digest's archive and, if a
// remote store is configured, uploads it. A no-op when the mode forbids
// writes.
func (e *Engine) StoreOutputs(digest, anchor string, files []string) error {
	if !e.mode.IsWritable() {
		return nil
	}

	lock, err := e.CreateLock(digest)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	path := e.hashes.GetArchivePath(digest)
	if err := archive.Pack(path, anchor, files, ""); err != nil {
		return errors.Wrap(err, "cacheengine: pack outputs")
	}

	if e.remote != nil {
		if err := e.remote.UploadArtifact(digest, path); err != nil {
			e.log.Warn("remote cache upload failed", "digest", digest, "error", err)
		}
	}
	return nil
}
