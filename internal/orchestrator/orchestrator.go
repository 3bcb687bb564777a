// Package orchestrator is the public entry point for a transfer: it owns
// the fast-path decision, the change-tracker short-circuit, timing, summary
// assembly and performance-history emission described in spec §4.9-§4.12,
// grounded on original_source's orchestrator/{planner,history,options,summary}.rs.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blitxfer/blit/internal/changejournal"
	"github.com/blitxfer/blit/internal/enumerator"
	"github.com/blitxfer/blit/internal/localengine"
	"github.com/blitxfer/blit/internal/manifestdiff"
	"github.com/blitxfer/blit/internal/model"
	"github.com/blitxfer/blit/internal/perf"
	"github.com/blitxfer/blit/internal/planner"
)

// tinyManifestPlannerMS and tinyManifestFileCount implement §4.11's fast
// path threshold.
const (
	tinyManifestPlannerMS = 2.0
	tinyManifestFileCount = 16
)

// Mode is a transfer policy: additive copy, destination-mirroring, or move
// (mirror plus source removal).
type Mode string

const (
	ModeCopy   Mode = "copy"
	ModeMirror Mode = "mirror"
	ModeMove   Mode = "move"
)

// Run executes one transfer between two local roots end to end: journal
// probe, enumeration, plan, copy, optional delete/move, and performance
// bookkeeping.
type Run struct {
	SourceRoot string
	DestRoot   string
	Mode       Mode
	Options    model.Options
	SourceFS   string // profile-key tag, e.g. "ext4", "apfs", "ntfs"; caller-supplied
	DestFS     string

	Tracker   *changejournal.Tracker
	Predictor *perf.Predictor
	Log       *logrus.Logger
}

func (r *Run) logger() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}

// Execute runs the transfer and returns its summary.
func (r *Run) Execute(ctx context.Context) (model.Summary, error) {
	start := time.Now()
	log := r.logger()

	if r.Tracker != nil && r.Mode == ModeCopy && !r.Options.Checksum {
		token, err := r.Tracker.Probe(r.SourceRoot)
		if err != nil {
			log.WithError(err).Warn("change journal probe failed, continuing without short-circuit")
		} else if token.State == model.ChangeNoChanges {
			return model.Summary{FastPath: "journal-skip", DryRun: r.Options.DryRun}, nil
		}
	}

	sourceEntries, err := enumerator.Enumerate(r.SourceRoot, enumerator.NewFilter(), enumerator.Options{
		FollowSymlinks:  false,
		IncludeSymlinks: r.Options.IncludeSymlinks,
	})
	if err != nil {
		return model.Summary{}, fmt.Errorf("orchestrator: enumerating source: %w", err)
	}

	var files []model.Entry
	for _, e := range sourceEntries {
		if e.Kind == model.KindFile {
			files = append(files, e)
		}
	}

	profileKey := model.ProfileKey{
		SourceFS:      r.SourceFS,
		DestFS:        r.DestFS,
		Mode:          string(r.Mode),
		SkipUnchanged: r.Options.SkipUnchanged,
		Checksum:      r.Options.Checksum,
	}

	plannerStart := time.Now()
	estimatedMS := 0.0
	if r.Predictor != nil {
		estimatedMS = r.Predictor.PredictMS(profileKey, len(files), totalBytes(files))
	}

	fastPath := ""
	var plan model.Plan
	if estimatedMS <= tinyManifestPlannerMS && len(files) < tinyManifestFileCount {
		fastPath = "tiny_manifest"
		plan = tinyManifestPlan(files)
	} else {
		plan = planner.Build(planner.Input{Files: files, ForceTar: r.Options.ForceTar})
	}
	plannerMS := float64(time.Since(plannerStart).Microseconds()) / 1000.0

	summary := model.Summary{PlannedFiles: len(files), FastPath: fastPath, DryRun: r.Options.DryRun}
	summarizePlan(&summary, plan)

	if r.Options.DryRun {
		summary.Duration = time.Since(start).Seconds()
		return summary, nil
	}

	engineCfg := localengine.Config{
		SourceRoot:    r.SourceRoot,
		DestRoot:      r.DestRoot,
		Concurrency:   int64(workerCount(r.Options)),
		SkipUnchanged: r.Options.SkipUnchanged,
		Checksum:      r.Options.Checksum,
	}
	eng := localengine.New(engineCfg)

	transferStart := time.Now()
	result, err := eng.Run(ctx, plan)
	if err != nil {
		return summary, fmt.Errorf("orchestrator: transfer: %w", err)
	}
	summary.CopiedFiles = int(result.CopiedFiles)
	summary.TotalBytes = uint64(result.CopiedBytes)
	for _, ferr := range result.Errors {
		summary.Errors = append(summary.Errors, model.PathError{Message: ferr.Error()})
	}

	if r.Mode == ModeMirror || r.Mode == ModeMove {
		deleted, err := r.applyDeletions(eng, files)
		if err != nil {
			return summary, fmt.Errorf("orchestrator: applying deletions: %w", err)
		}
		summary.DeletedFiles = deleted.Files
		summary.DeletedDirs = deleted.Dirs
	}

	if r.Mode == ModeMove {
		if err := r.removeSource(files); err != nil {
			return summary, fmt.Errorf("orchestrator: removing source after move: %w", err)
		}
	}

	transferMS := float64(time.Since(transferStart).Milliseconds())
	summary.Duration = time.Since(start).Seconds()

	if r.Tracker != nil {
		if token, err := r.Tracker.Probe(r.SourceRoot); err == nil {
			_ = r.Tracker.RefreshAndPersist([]model.ProbeToken{token})
		}
	}

	r.recordPerformance(profileKey, summary, fastPath, plannerMS, transferMS)

	return summary, nil
}

func (r *Run) recordPerformance(key model.ProfileKey, summary model.Summary, fastPath string, plannerMS, transferMS float64) {
	if !r.Options.PerfHistory {
		return
	}
	rec := model.PerformanceRecord{
		Mode:             string(r.Mode),
		SourceFS:         r.SourceFS,
		DestFS:           r.DestFS,
		FileCount:        summary.CopiedFiles,
		TotalBytes:       summary.TotalBytes,
		DryRun:           r.Options.DryRun,
		PreserveSymlinks: r.Options.PreserveSymlinks,
		IncludeSymlinks:  r.Options.IncludeSymlinks,
		SkipUnchanged:    r.Options.SkipUnchanged,
		Checksum:         r.Options.Checksum,
		Workers:          workerCount(r.Options),
		FastPath:         fastPath,
		PlannerMS:        plannerMS,
		TransferMS:       transferMS,
		DeletedFiles:     summary.DeletedFiles,
		DeletedDirs:      summary.DeletedDirs,
	}
	if err := perf.AppendRecord(rec); err != nil {
		r.logger().WithError(err).Warn("failed to append performance history")
	}
	if r.Predictor != nil {
		key.FastPath = fastPath
		r.Predictor.Observe(key, summary.CopiedFiles, summary.TotalBytes, plannerMS)
		if err := r.Predictor.Save(); err != nil {
			r.logger().WithError(err).Warn("failed to persist predictor state")
		}
	}
}

func (r *Run) applyDeletions(eng *localengine.Engine, sourceFiles []model.Entry) (localengine.DeletePlan, error) {
	destEntries, err := enumerator.Enumerate(r.DestRoot, enumerator.NewFilter(), enumerator.Options{IncludeSymlinks: true})
	if err != nil {
		return localengine.DeletePlan{}, err
	}
	sourceRel := make(map[string]bool, len(sourceFiles))
	for _, f := range sourceFiles {
		sourceRel[f.RelPath] = true
		for _, ancestor := range localengine.Ancestors(f.RelPath) {
			sourceRel[ancestor] = true
		}
	}
	plan := localengine.BuildDeletePlan(sourceRel, destEntries)
	if err := eng.DeleteEntries(plan); err != nil {
		return plan, err
	}
	return plan, nil
}

func (r *Run) removeSource(files []model.Entry) error {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.AbsPath)
	}
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func totalBytes(files []model.Entry) uint64 {
	var total uint64
	for _, f := range files {
		total += uint64(f.Size)
	}
	return total
}

func workerCount(opts model.Options) int {
	if opts.DebugMode {
		return 1
	}
	if opts.Workers > 0 {
		return opts.Workers
	}
	return runtime.NumCPU()
}

// tinyManifestPlan builds a single-batch plan bypassing the interleaving
// planner entirely, the fast path §4.11 describes.
func tinyManifestPlan(files []model.Entry) model.Plan {
	paths := make([]string, 0, len(files))
	var bytes int64
	for _, f := range files {
		paths = append(paths, f.RelPath)
		bytes += f.Size
	}
	if len(paths) == 0 {
		return model.Plan{ChunkSize: 16 << 20}
	}
	return model.Plan{
		Tasks:     []model.TransferTask{{Kind: model.TaskRawBundle, Paths: paths, Bytes: bytes}},
		ChunkSize: 16 << 20,
	}
}

func summarizePlan(summary *model.Summary, plan model.Plan) {
	for _, t := range plan.Tasks {
		switch t.Kind {
		case model.TaskTarShard:
			summary.TarShardTasks++
			summary.TarShardFiles += len(t.Paths)
			summary.TarShardBytes += uint64(t.Bytes)
		case model.TaskRawBundle:
			summary.RawBundleTasks++
			summary.RawBundleFiles += len(t.Paths)
			summary.RawBundleBytes += uint64(t.Bytes)
		case model.TaskLarge:
			summary.LargeTasks++
			summary.LargeBytes += uint64(t.Bytes)
		}
	}
}

// ContentEqualFallback exposes manifestdiff.ContentEqual for callers that
// need a direct checksum comparison outside of a full Run.
func ContentEqualFallback(src, dst string, size int64) (bool, error) {
	return manifestdiff.ContentEqual(src, dst, size)
}
