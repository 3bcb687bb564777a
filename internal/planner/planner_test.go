package planner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blitxfer/blit/internal/model"
)

func fileEntry(rel string, size int64) model.Entry {
	return model.Entry{RelPath: rel, Kind: model.KindFile, Size: size}
}

// TestBuildEveryFileAppearsExactlyOnce checks invariant 1 of §8.
func TestBuildEveryFileAppearsExactlyOnce(t *testing.T) {
	var files []model.Entry
	for i := 0; i < 50; i++ {
		files = append(files, fileEntry(fmt.Sprintf("small-%02d.txt", i), 1024))
	}
	for i := 0; i < 5; i++ {
		files = append(files, fileEntry(fmt.Sprintf("medium-%d.bin", i), 10<<20))
	}
	files = append(files, fileEntry("large.bin", 300<<20))

	plan := Build(Input{Files: files})

	seen := map[string]int{}
	for _, task := range plan.Tasks {
		for _, p := range task.Paths {
			seen[p]++
		}
	}
	assert.Len(t, seen, len(files))
	for _, count := range seen {
		assert.Equal(t, 1, count)
	}
}

// TestBuildTarShardRespectsBudgets checks invariant 2 of §8.
func TestBuildTarShardRespectsBudgets(t *testing.T) {
	var files []model.Entry
	for i := 0; i < 40; i++ {
		files = append(files, fileEntry(fmt.Sprintf("f-%02d.txt", i), 100<<10))
	}
	plan := Build(Input{Files: files})

	for _, task := range plan.Tasks {
		if task.Kind != model.TaskTarShard {
			continue
		}
		assert.LessOrEqual(t, task.Bytes, int64(float64(8<<20)*1.25))
		assert.LessOrEqual(t, len(task.Paths), 256)
	}
}

func TestBuildForcesTarShardsAboveThreshold(t *testing.T) {
	var files []model.Entry
	for i := 0; i < 32; i++ {
		files = append(files, fileEntry(fmt.Sprintf("file-%d.txt", i), 900<<10))
	}
	plan := Build(Input{Files: files})

	var shardTasks int
	for _, task := range plan.Tasks {
		if task.Kind == model.TaskTarShard {
			shardTasks++
		}
	}
	assert.Greater(t, shardTasks, 0)
}

func TestBuildRawBundlePerFileWhenFewLargeSmallFiles(t *testing.T) {
	files := []model.Entry{
		fileEntry("a.txt", 900<<10),
		fileEntry("b.txt", 900<<10),
	}
	plan := Build(Input{Files: files})
	for _, task := range plan.Tasks {
		assert.Equal(t, model.TaskRawBundle, task.Kind)
		assert.Len(t, task.Paths, 1)
	}
}

func TestBuildLargeFilesAreIndividualTasks(t *testing.T) {
	files := []model.Entry{fileEntry("big1.bin", 300<<20), fileEntry("big2.bin", 400<<20)}
	plan := Build(Input{Files: files})
	var largeCount int
	for _, task := range plan.Tasks {
		if task.Kind == model.TaskLarge {
			largeCount++
			assert.Len(t, task.Paths, 1)
		}
	}
	assert.Equal(t, 2, largeCount)
}

func TestBuildChunkSizeSelection(t *testing.T) {
	small := Build(Input{Files: []model.Entry{fileEntry("a.txt", 1 << 20)}})
	assert.Equal(t, 16<<20, small.ChunkSize)

	mostlyLarge := Build(Input{Files: []model.Entry{
		fileEntry("big.bin", 300 << 20),
		fileEntry("tiny.txt", 1024),
	}})
	assert.Equal(t, 32<<20, mostlyLarge.ChunkSize)
}

func TestBuildInterleavesTaskStreams(t *testing.T) {
	files := []model.Entry{
		fileEntry("large1.bin", 300 << 20),
		fileEntry("large2.bin", 300 << 20),
	}
	for i := 0; i < 2; i++ {
		files = append(files, fileEntry(fmt.Sprintf("medium-%d.bin", i), 10<<20))
	}
	files = append(files, fileEntry("only-small.txt", 1024))

	plan := Build(Input{Files: files})
	requireNonEmpty(t, plan.Tasks)
	// First task should be a Large task per the round-robin order (large, small, medium).
	assert.Equal(t, model.TaskLarge, plan.Tasks[0].Kind)
}

func requireNonEmpty(t *testing.T, tasks []model.TransferTask) {
	t.Helper()
	assert.NotEmpty(t, tasks)
}
