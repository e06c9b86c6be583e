// Package statestore implements the state store (C2): durable JSON
// records of workspace/project/task state under .moon/cache, written with
// the same temp-file-then-rename atomicity a cache.WriteCacheMetaFile
// helper would use.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// AtomicWriteFile writes data to path by first writing to a sibling temp
// file and renaming it into place, so a reader never observes a partial
// write. The temp file carries a random suffix so concurrent writers to
// the same path never collide on the intermediate name.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("statestore: mkdir %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("statestore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statestore: rename into place: %w", err)
	}
	return nil
}

// WriteJSON marshals v as indented JSON and atomically writes it to path.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal %s: %w", path, err)
	}
	return AtomicWriteFile(path, data, 0o644)
}

// ReadJSON reads and unmarshals the JSON document at path into v. It
// returns os.ErrNotExist (wrapped) when the file doesn't exist, so
// callers can distinguish "no prior state" from a decode failure.
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("statestore: decode %s: %w", path, err)
	}
	return nil
}

// Store roots the state store's layout at a .moon/cache directory, and
// names the conventional record paths this store uses.
type Store struct {
	cacheDir string
}

// NewStore returns a Store rooted at cacheDir.
func NewStore(cacheDir string) *Store {
	return &Store{cacheDir: cacheDir}
}

// ProjectSnapshotPath returns the path of a project's dependency-graph
// snapshot record.
func (s *Store) ProjectSnapshotPath(projectID string) string {
	return filepath.Join(s.cacheDir, "states", "projects", projectID, "snapshot.json")
}

// ToolchainDepsPath returns the path recording the last-installed
// dependency manifest digest for a runtime's workspace-level install.
func (s *Store) ToolchainDepsPath(runtimeKey string) string {
	return filepath.Join(s.cacheDir, "states", fmt.Sprintf("deps-%s.json", runtimeKey))
}

// LastRunPath returns the path recording the last execution record for a
// project-scoped task target.
func (s *Store) LastRunPath(projectID, taskID string) string {
	return filepath.Join(s.cacheDir, "states", "targets", projectID, taskID, "lastRun.json")
}

// ProjectsBuildDataPath returns the path of the aggregate
// projects-build-data.json record used to detect workspace-wide
// structural changes between runs.
func (s *Store) ProjectsBuildDataPath() string {
	return filepath.Join(s.cacheDir, "states", "projects-build-data.json")
}

// ProjectSnapshot is the durable record of a project's resolved
// dependency-graph position, used to detect when SyncProject must rerun.
type ProjectSnapshot struct {
	ProjectID    string            `json:"projectId"`
	Dependencies []string          `json:"dependencies"`
	Tags         []string          `json:"tags"`
	FileHashes   map[string]string `json:"fileHashes"`
}

// LoadProjectSnapshot reads a project's snapshot record, returning
// (zero, false, nil) when none exists yet.
func (s *Store) LoadProjectSnapshot(projectID string) (ProjectSnapshot, bool, error) {
	var snap ProjectSnapshot
	err := ReadJSON(s.ProjectSnapshotPath(projectID), &snap)
	if os.IsNotExist(err) {
		return ProjectSnapshot{}, false, nil
	}
	if err != nil {
		return ProjectSnapshot{}, false, err
	}
	return snap, true, nil
}

// SaveProjectSnapshot persists a project's snapshot record.
func (s *Store) SaveProjectSnapshot(snap ProjectSnapshot) error {
	return WriteJSON(s.ProjectSnapshotPath(snap.ProjectID), snap)
}

// LastRun is the durable record of a RunTask action's most recent
// execution, used by the task runner to decide whether an unchanged hash
// still has a cache hit available locally before consulting the cache
// engine's manifest store.
type LastRun struct {
	Target   string `json:"target"`
	Hash     string `json:"hash"`
	Status   string `json:"status"`
	ExitCode int    `json:"exitCode"`
}

// LoadLastRun reads a target's last-run record, returning (zero, false,
// nil) when none exists yet.
func (s *Store) LoadLastRun(projectID, taskID string) (LastRun, bool, error) {
	var lr LastRun
	err := ReadJSON(s.LastRunPath(projectID, taskID), &lr)
	if os.IsNotExist(err) {
		return LastRun{}, false, nil
	}
	if err != nil {
		return LastRun{}, false, err
	}
	return lr, true, nil
}

// SaveLastRun persists a target's last-run record.
func (s *Store) SaveLastRun(projectID, taskID string, lr LastRun) error {
	return WriteJSON(s.LastRunPath(projectID, taskID), lr)
}
