// Package planner classifies file entries into size classes, packs small
// files into tar shards, bundles medium files, schedules large files
// individually, interleaves the resulting tasks, and chooses an I/O chunk
// size (spec §4.2). Grounded line-for-line on original_source's
// transfer_plan.rs build_plan.
package planner

import (
	"sort"

	"github.com/blitxfer/blit/internal/model"
)

const (
	smallThreshold  = 1 << 20        // 1 MiB
	mediumThreshold = 256 << 20      // 256 MiB

	smallTarByteTarget8  = 8 << 20
	smallTarByteTarget32 = 32 << 20
	smallTarByteTarget64 = 64 << 20

	smallTarBytes768 = 768 << 20
	smallTarBytes256 = 256 << 20

	forceTarSmallCount   = 32
	forceTarAvgSizeLimit = 128 << 10 // 128 KiB

	mediumBundleTargetDefault = 128 << 20
	mediumBundleTargetLarge   = 256 << 20
	mediumBundleOverrun       = 1.25
	mediumTotalThreshold      = 1_000_000_000 // > 1 GB switches the bundle target

	chunkSizeSmall = 16 << 20
	chunkSizeLarge = 32 << 20
	chunkSizeTotalThreshold = 1_000_000_000 // > 1 GB
)

// Input is what the planner consumes: file entries plus the force_tar flag
// of §4.2. Only KindFile entries should be passed in.
type Input struct {
	Files    []model.Entry
	ForceTar bool
}

// Build implements §4.2 in full: classification, shard-vs-raw decision,
// shard/bundle budgets, interleaving, and chunk size selection.
func Build(in Input) model.Plan {
	var small, medium, large []model.Entry
	var smallBytes, mediumBytes, largeBytes int64

	for _, f := range in.Files {
		switch {
		case f.Size < smallThreshold:
			small = append(small, f)
			smallBytes += f.Size
		case f.Size < mediumThreshold:
			medium = append(medium, f)
			mediumBytes += f.Size
		default:
			large = append(large, f)
			largeBytes += f.Size
		}
	}

	sort.SliceStable(small, func(i, j int) bool {
		return len(small[i].RelPath) < len(small[j].RelPath)
	})

	totalBytes := smallBytes + mediumBytes + largeBytes

	smallTasks := buildSmallTasks(small, smallBytes, in.ForceTar)
	mediumTasks := buildMediumTasks(medium, totalBytes)
	largeTasks := buildLargeTasks(large)

	tasks := interleave(largeTasks, smallTasks, mediumTasks)

	chunkSize := chunkSizeSmall
	if totalBytes > chunkSizeTotalThreshold {
		chunkSize = chunkSizeLarge
	} else if totalBytes > 0 && largeBytes*2 >= totalBytes {
		chunkSize = chunkSizeLarge
	}

	return model.Plan{Tasks: tasks, ChunkSize: chunkSize}
}

// useTarShards implements the shard-vs-raw decision of §4.2.
func useTarShards(small []model.Entry, smallBytes int64, forceTar bool) bool {
	if forceTar {
		return true
	}
	if len(small) >= forceTarSmallCount {
		return true
	}
	if len(small) == 0 {
		return false
	}
	avg := smallBytes / int64(len(small))
	return avg <= forceTarAvgSizeLimit
}

// shardBudget implements the byte/count target table of §4.2. The byte
// target scales with total small-file bytes; the count target scales with
// small-file count, independent of bytes.
func shardBudget(smallBytes int64, smallCount int) (byteTarget int64, countTarget int) {
	switch {
	case smallBytes >= smallTarBytes768:
		byteTarget = smallTarByteTarget64
	case smallBytes >= smallTarBytes256:
		byteTarget = smallTarByteTarget32
	default:
		byteTarget = smallTarByteTarget8
	}

	switch {
	case smallCount >= 2048:
		countTarget = 2048
	case smallCount >= 1024:
		countTarget = 1024
	default:
		countTarget = 256
	}
	return byteTarget, countTarget
}

func buildSmallTasks(small []model.Entry, smallBytes int64, forceTar bool) []model.TransferTask {
	if len(small) == 0 {
		return nil
	}
	if !useTarShards(small, smallBytes, forceTar) {
		tasks := make([]model.TransferTask, 0, len(small))
		for _, f := range small {
			tasks = append(tasks, model.TransferTask{
				Kind:  model.TaskRawBundle,
				Paths: []string{f.RelPath},
				Bytes: f.Size,
			})
		}
		return tasks
	}

	byteTarget, countTarget := shardBudget(smallBytes, len(small))
	maxBytes := int64(float64(byteTarget) * mediumBundleOverrun)

	var tasks []model.TransferTask
	var cur []string
	var curBytes int64

	flush := func() {
		if len(cur) == 0 {
			return
		}
		tasks = append(tasks, model.TransferTask{Kind: model.TaskTarShard, Paths: cur, Bytes: curBytes})
		cur = nil
		curBytes = 0
	}

	for _, f := range small {
		if len(cur) > 0 && (curBytes+f.Size > maxBytes || len(cur) >= countTarget) {
			flush()
		}
		cur = append(cur, f.RelPath)
		curBytes += f.Size
		if curBytes >= byteTarget || len(cur) >= countTarget {
			flush()
		}
	}
	flush()

	return tasks
}

func buildMediumTasks(medium []model.Entry, totalBytes int64) []model.TransferTask {
	if len(medium) == 0 {
		return nil
	}
	target := int64(mediumBundleTargetDefault)
	if totalBytes > mediumTotalThreshold {
		target = mediumBundleTargetLarge
	}
	maxBytes := int64(float64(target) * mediumBundleOverrun)

	var tasks []model.TransferTask
	var cur []string
	var curBytes int64

	flush := func() {
		if len(cur) == 0 {
			return
		}
		tasks = append(tasks, model.TransferTask{Kind: model.TaskRawBundle, Paths: cur, Bytes: curBytes})
		cur = nil
		curBytes = 0
	}

	for _, f := range medium {
		if len(cur) > 0 && curBytes+f.Size > maxBytes {
			flush()
		}
		cur = append(cur, f.RelPath)
		curBytes += f.Size
		if curBytes >= target {
			flush()
		}
	}
	flush()

	return tasks
}

func buildLargeTasks(large []model.Entry) []model.TransferTask {
	if len(large) == 0 {
		return nil
	}
	tasks := make([]model.TransferTask, 0, len(large))
	for _, f := range large {
		tasks = append(tasks, model.TransferTask{Kind: model.TaskLarge, Paths: []string{f.RelPath}, Bytes: f.Size})
	}
	return tasks
}

// interleave round-robins large, small, medium tasks until each stream is
// exhausted, per §4.2's interleaving rule.
func interleave(large, small, medium []model.TransferTask) []model.TransferTask {
	total := len(large) + len(small) + len(medium)
	if total == 0 {
		return nil
	}
	tasks := make([]model.TransferTask, 0, total)
	li, si, mi := 0, 0, 0
	for li < len(large) || si < len(small) || mi < len(medium) {
		if li < len(large) {
			tasks = append(tasks, large[li])
			li++
		}
		if si < len(small) {
			tasks = append(tasks, small[si])
			si++
		}
		if mi < len(medium) {
			tasks = append(tasks, medium[mi])
			mi++
		}
	}
	return tasks
}
