package manifestdiff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitxfer/blit/internal/model"
)

func TestCompareEmptyManifests(t *testing.T) {
	diff := Compare(nil, nil, false)
	assert.Empty(t, diff.Comparisons)
	assert.Zero(t, diff.BytesToTransfer)
	assert.Empty(t, diff.FilesToDelete)
}

func TestCompareAllNewFiles(t *testing.T) {
	source := []model.FileHeader{{RelPath: "a.txt", Size: 10}, {RelPath: "b.txt", Size: 20}}
	diff := Compare(source, nil, false)
	require.Len(t, diff.Comparisons, 2)
	for _, c := range diff.Comparisons {
		assert.Equal(t, model.StatusNew, c.Status)
	}
	assert.EqualValues(t, 30, diff.BytesToTransfer)
}

func TestCompareUnchangedFiles(t *testing.T) {
	h := model.FileHeader{RelPath: "a.txt", Size: 10, MTime: 100}
	diff := Compare([]model.FileHeader{h}, []model.FileHeader{h}, false)
	require.Len(t, diff.Comparisons, 1)
	assert.Equal(t, model.StatusUnchanged, diff.Comparisons[0].Status)
	assert.Zero(t, diff.BytesToTransfer)
}

func TestCompareModifiedBySize(t *testing.T) {
	src := model.FileHeader{RelPath: "a.txt", Size: 20, MTime: 100}
	tgt := model.FileHeader{RelPath: "a.txt", Size: 10, MTime: 100}
	diff := Compare([]model.FileHeader{src}, []model.FileHeader{tgt}, false)
	assert.Equal(t, model.StatusModified, diff.Comparisons[0].Status)
	assert.EqualValues(t, 20, diff.BytesToTransfer)
}

func TestCompareModifiedByMTime(t *testing.T) {
	src := model.FileHeader{RelPath: "a.txt", Size: 10, MTime: 200}
	tgt := model.FileHeader{RelPath: "a.txt", Size: 10, MTime: 100}
	diff := Compare([]model.FileHeader{src}, []model.FileHeader{tgt}, false)
	assert.Equal(t, model.StatusModified, diff.Comparisons[0].Status)
}

func TestCompareTargetNewerIsUnchanged(t *testing.T) {
	src := model.FileHeader{RelPath: "a.txt", Size: 10, MTime: 100}
	tgt := model.FileHeader{RelPath: "a.txt", Size: 10, MTime: 200}
	diff := Compare([]model.FileHeader{src}, []model.FileHeader{tgt}, false)
	assert.Equal(t, model.StatusUnchanged, diff.Comparisons[0].Status)
}

func TestCompareDeletionsForMirror(t *testing.T) {
	source := []model.FileHeader{{RelPath: "a.txt", Size: 10}}
	target := []model.FileHeader{{RelPath: "a.txt", Size: 10}, {RelPath: "stale.txt", Size: 5}}

	diff := Compare(source, target, true)
	assert.Equal(t, []string{"stale.txt"}, diff.FilesToDelete)

	diffNoMirror := Compare(source, target, false)
	assert.Empty(t, diffNoMirror.FilesToDelete)
}

func TestCompareMixedScenario(t *testing.T) {
	source := []model.FileHeader{
		{RelPath: "new.txt", Size: 5},
		{RelPath: "same.txt", Size: 5, MTime: 100},
		{RelPath: "changed.txt", Size: 8, MTime: 100},
	}
	target := []model.FileHeader{
		{RelPath: "same.txt", Size: 5, MTime: 100},
		{RelPath: "changed.txt", Size: 5, MTime: 100},
		{RelPath: "gone.txt", Size: 1},
	}

	diff := Compare(source, target, true)
	byPath := map[string]model.FileStatus{}
	for _, c := range diff.Comparisons {
		byPath[c.RelPath] = c.Status
	}
	assert.Equal(t, model.StatusNew, byPath["new.txt"])
	assert.Equal(t, model.StatusUnchanged, byPath["same.txt"])
	assert.Equal(t, model.StatusModified, byPath["changed.txt"])
	assert.Equal(t, []string{"gone.txt"}, diff.FilesToDelete)
	assert.EqualValues(t, 5+8, diff.BytesToTransfer)
}

func TestContentEqualDetectsSingleByteDifference(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")

	size := 3 * 1024 * 1024
	dataA := make([]byte, size)
	for i := range dataA {
		dataA[i] = byte('A' + i/(1024*1024))
	}
	dataB := append([]byte(nil), dataA...)
	dataB[len(dataB)-1] = 'Z'

	require.NoError(t, os.WriteFile(a, dataA, 0o644))
	require.NoError(t, os.WriteFile(b, dataB, 0o644))

	equal, err := ContentEqual(a, b, int64(size))
	require.NoError(t, err)
	assert.False(t, equal)

	require.NoError(t, os.WriteFile(b, dataA, 0o644))
	equal, err = ContentEqual(a, b, int64(size))
	require.NoError(t, err)
	assert.True(t, equal)
}
