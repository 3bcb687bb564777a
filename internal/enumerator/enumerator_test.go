package enumerator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitxfer/blit/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestEnumerateSuppressesRootAndWalksDepthFirst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "b")

	entries, err := Enumerate(root, NewFilter(), Options{})
	require.NoError(t, err)

	var relPaths []string
	for _, e := range entries {
		relPaths = append(relPaths, e.RelPath)
		assert.NotEqual(t, ".", e.RelPath)
	}
	assert.Contains(t, relPaths, "a.txt")
	assert.Contains(t, relPaths, "sub")
	assert.Contains(t, relPaths, "sub/b.txt")
}

func TestEnumeratePrunesExcludedDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), "k")
	writeFile(t, filepath.Join(root, "node_modules", "dep.txt"), "d")

	filter := NewFilter()
	filter.ExcludeDirGlobs = []string{"node_modules"}

	entries, err := Enumerate(root, filter, Options{})
	require.NoError(t, err)

	for _, e := range entries {
		assert.NotContains(t, e.RelPath, "node_modules")
	}
}

func TestEnumerateDropsFilesFailingSizeFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "small.txt"), "x")
	writeFile(t, filepath.Join(root, "big.txt"), "this is a longer file content")

	filter := NewFilter()
	filter.MinSize = 10

	entries, err := Enumerate(root, filter, Options{})
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		if e.Kind == model.KindFile {
			names = append(names, e.RelPath)
		}
	}
	assert.NotContains(t, names, "small.txt")
	assert.Contains(t, names, "big.txt")
}

func TestEnumerateSkipsSymlinksByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "real.txt"), "r")
	linkPath := filepath.Join(root, "link.txt")
	if err := os.Symlink(filepath.Join(root, "real.txt"), linkPath); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	entries, err := Enumerate(root, NewFilter(), Options{})
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, model.KindSymlink, e.Kind)
	}

	entries, err = Enumerate(root, NewFilter(), Options{IncludeSymlinks: true})
	require.NoError(t, err)
	var sawSymlink bool
	for _, e := range entries {
		if e.Kind == model.KindSymlink {
			sawSymlink = true
		}
	}
	assert.True(t, sawSymlink)
}

func TestSortByPathLength(t *testing.T) {
	entries := []model.Entry{
		{RelPath: "aaaa/bbbb.txt"},
		{RelPath: "a.txt"},
		{RelPath: "ab.txt"},
	}
	SortByPathLength(entries)
	assert.Equal(t, "a.txt", entries[0].RelPath)
	assert.Equal(t, "ab.txt", entries[1].RelPath)
	assert.Equal(t, "aaaa/bbbb.txt", entries[2].RelPath)
}
