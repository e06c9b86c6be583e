package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/cacheengine"
	"github.com/moonrepo/moon/internal/pipeline"
)

func TestSyncWorkspaceHandlerWritesCacheDirTag(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	engine := cacheengine.New(cacheDir, cacheengine.ModeReadWrite, nil, nil)

	h := &SyncWorkspaceHandler{Cache: engine}
	a := action.NewAction(action.NewSyncWorkspace(), false)
	pctx := pipeline.NewContext(t.TempDir(), cacheDir)

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)

	_, statErr := os.Stat(filepath.Join(cacheDir, "CACHEDIR.TAG"))
	assert.NoError(t, statErr)
}
