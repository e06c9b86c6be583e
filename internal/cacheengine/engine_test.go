package cacheengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCacheDirTagWritesOnce(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, ModeReadWrite, nil, nil)

	require.NoError(t, e.EnsureCacheDirTag())
	tagPath := filepath.Join(dir, "CACHEDIR.TAG")
	info, err := os.Stat(tagPath)
	require.NoError(t, err)
	firstModTime := info.ModTime()

	require.NoError(t, e.EnsureCacheDirTag())
	info2, err := os.Stat(tagPath)
	require.NoError(t, err)
	assert.Equal(t, firstModTime, info2.ModTime())
}

func TestExecuteIfChangedRunsOnlyWhenDataChanges(t *testing.T) {
	e := New(t.TempDir(), ModeReadWrite, nil, nil)

	runs := 0
	op := func() error { runs++; return nil }

	ran, err := e.ExecuteIfChanged("node:deps", map[string]string{"lockHash": "a"}, op)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, runs)

	ran, err = e.ExecuteIfChanged("node:deps", map[string]string{"lockHash": "a"}, op)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, runs, "op must not rerun when data is unchanged")

	ran, err = e.ExecuteIfChanged("node:deps", map[string]string{"lockHash": "b"}, op)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, runs)
}

func TestCleanStaleRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, ModeReadWrite, nil, nil)

	require.NoError(t, os.MkdirAll(e.Hashes().HashesDir(), 0o755))
	stalePath := filepath.Join(e.Hashes().HashesDir(), "stale.json")
	require.NoError(t, os.WriteFile(stalePath, []byte("{}"), 0o644))

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stalePath, old, old))

	result, err := e.CleanStale(24*time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesDeleted)

	_, statErr := os.Stat(stalePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchLocalMissReturnsFalse(t *testing.T) {
	e := New(t.TempDir(), ModeReadWrite, nil, nil)
	hydrated, _, err := e.FetchLocal("deadbeef", t.TempDir())
	require.NoError(t, err)
	assert.False(t, hydrated)
}

func TestStoreAndFetchLocalRoundTrip(t *testing.T) {
	anchor := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(anchor, "out.txt"), []byte("ok"), 0o644))

	e := New(t.TempDir(), ModeReadWrite, nil, nil)
	digest := "feedface"
	require.NoError(t, e.StoreOutputs(digest, anchor, []string{"out.txt"}))

	dest := t.TempDir()
	hydrated, restored, err := e.FetchLocal(digest, dest)
	require.NoError(t, err)
	assert.True(t, hydrated)
	assert.Contains(t, restored, "out.txt")
}
