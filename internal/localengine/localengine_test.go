package localengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitxfer/blit/internal/model"
)

func TestMakeDirsCreatesShallowestFirst(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, MakeDirs(root, []string{"a/b/c", "a", "a/b"}))

	for _, rel := range []string{"a", "a/b", "a/b/c"} {
		info, err := os.Stat(filepath.Join(root, rel))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestBuildDeletePlanOrdersDirsDeepestFirst(t *testing.T) {
	source := map[string]bool{"keep.txt": true}
	dest := []model.Entry{
		{RelPath: "keep.txt", Kind: model.KindFile},
		{RelPath: "stale.txt", Kind: model.KindFile},
		{RelPath: "old", Kind: model.KindDirectory},
		{RelPath: "old/nested", Kind: model.KindDirectory},
	}

	plan := BuildDeletePlan(source, dest)
	assert.Equal(t, []string{"stale.txt"}, plan.Files)
	require.Len(t, plan.Dirs, 2)
	assert.Equal(t, "old/nested", plan.Dirs[0])
	assert.Equal(t, "old", plan.Dirs[1])
}

func TestEngineRunCopiesPlanTasks(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("world!"), 0o644))

	eng := New(Config{SourceRoot: src, DestRoot: dst, Concurrency: 2})
	plan := model.Plan{Tasks: []model.TransferTask{
		{Kind: model.TaskLarge, Paths: []string{"a.txt"}, Bytes: 5},
		{Kind: model.TaskLarge, Paths: []string{"b.txt"}, Bytes: 6},
	}}

	res, err := eng.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.EqualValues(t, 2, res.CopiedFiles)
	assert.EqualValues(t, 11, res.CopiedBytes)

	gotA, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(gotA))
}

func TestEngineDeleteEntriesRemovesFilesThenDirs(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "old/nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("x"), 0o644))

	eng := New(Config{DestRoot: dst})
	plan := DeletePlan{Files: []string{"stale.txt"}, Dirs: []string{"old/nested", "old"}}
	require.NoError(t, eng.DeleteEntries(plan))

	_, err := os.Stat(filepath.Join(dst, "stale.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "old"))
	assert.True(t, os.IsNotExist(err))
}
