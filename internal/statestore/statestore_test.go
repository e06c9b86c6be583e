package statestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "record.json")

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	in := record{Name: "app", Count: 3}
	require.NoError(t, WriteJSON(path, in))

	var out record
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)
}

func TestReadJSONMissingFile(t *testing.T) {
	dir := t.TempDir()
	var out map[string]string
	err := ReadJSON(filepath.Join(dir, "missing.json"), &out)
	assert.Error(t, err)
}

func TestProjectSnapshotRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	_, ok, err := s.LoadProjectSnapshot("app")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := ProjectSnapshot{ProjectID: "app", Dependencies: []string{"lib"}, Tags: []string{"frontend"}}
	require.NoError(t, s.SaveProjectSnapshot(snap))

	loaded, ok, err := s.LoadProjectSnapshot("app")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, loaded)
}

func TestLastRunRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	lr := LastRun{Target: "app:build", Hash: "abc123", Status: "passed", ExitCode: 0}
	require.NoError(t, s.SaveLastRun("app", "build", lr))

	loaded, ok, err := s.LoadLastRun("app", "build")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, lr, loaded)
}
