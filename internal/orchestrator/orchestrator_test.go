package orchestrator

import (
	"context"
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

// TestRunTinyMirrorUsesFastPath implements scenario A of §8: three tiny
// files mirrored into a fresh destination take the tiny-manifest fast path.
func TestRunTinyMirrorUsesFastPath(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	writeFile(t, filepath.Join(source, "a.txt"), "one")
	writeFile(t, filepath.Join(source, "b.txt"), "two")
	writeFile(t, filepath.Join(source, "c.txt"), "three")

	run := &Run{
		SourceRoot: source,
		DestRoot:   dest,
		Mode:       ModeMirror,
		Options:    model.Options{PerfHistory: false, Workers: 2},
	}

	summary, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tiny_manifest", summary.FastPath)
	assert.Equal(t, 3, summary.CopiedFiles)
	assert.EqualValues(t, 11, summary.TotalBytes)

	for name, want := range map[string]string{"a.txt": "one", "b.txt": "two", "c.txt": "three"} {
		got, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

// TestRunStreamingCopyExceedsFastPathThreshold implements scenario B of §8:
// 32 files push the run past the tiny-manifest file-count ceiling.
func TestRunStreamingCopyExceedsFastPathThreshold(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	for i := 0; i < 32; i++ {
		writeFile(t, filepath.Join(source, fileName(i)), payload(i))
	}

	run := &Run{
		SourceRoot: source,
		DestRoot:   dest,
		Mode:       ModeCopy,
		Options:    model.Options{PerfHistory: false, Workers: 4},
	}

	summary, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.FastPath)
	assert.Equal(t, 32, summary.CopiedFiles)
	assert.Greater(t, summary.TarShardTasks, 0)
}

func TestRunMirrorDeletesStaleDestinationEntries(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	writeFile(t, filepath.Join(source, "keep.txt"), "keep")
	writeFile(t, filepath.Join(dest, "stale.txt"), "stale")

	run := &Run{SourceRoot: source, DestRoot: dest, Mode: ModeMirror, Options: model.Options{}}
	summary, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DeletedFiles)

	_, err = os.Stat(filepath.Join(dest, "stale.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunDryRunWritesNothing(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	writeFile(t, filepath.Join(source, "a.txt"), "one")

	run := &Run{SourceRoot: source, DestRoot: dest, Mode: ModeCopy, Options: model.Options{DryRun: true}}
	summary, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 0, summary.CopiedFiles)

	_, err = os.Stat(filepath.Join(dest, "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func fileName(i int) string { return "file-" + itoa(i) + ".txt" }
func payload(i int) string  { return "payload-" + itoa(i) }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
