package fileglob

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestExpandMatchesDoubleStarIncludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/index.ts")
	writeFile(t, root, "src/nested/util.ts")
	writeFile(t, root, "README.md")

	files, err := Expand(root, []string{"src/**/*.ts"}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"src/index.ts", "src/nested/util.ts"}, files)
}

func TestExpandAppliesExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/index.ts")
	writeFile(t, root, "src/index.test.ts")

	files, err := Expand(root, []string{"src/**/*.ts"}, []string{"**/*.test.ts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/index.ts"}, files)
}

func TestExpandMissingRootIsEmpty(t *testing.T) {
	files, err := Expand(filepath.Join(t.TempDir(), "missing"), []string{"**/*"}, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWalkSkipsNodeModulesAndGit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "node_modules/pkg/index.js")
	writeFile(t, root, ".git/HEAD")
	writeFile(t, root, "src/main.go")

	files, err := Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.go"}, files)
}
