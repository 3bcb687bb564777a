// Package model holds the data types shared across blit's planner, transfer
// engine, change journal and predictor. Nothing in here performs I/O.
package model

import "fmt"

// EntryKind tags the three things an Enumerator can yield.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
	KindSymlink
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Entry is one node discovered while walking a tree.
type Entry struct {
	AbsPath      string
	RelPath      string // forward-slash separated, relative to the enumeration root
	Kind         EntryKind
	Size         int64 // valid for KindFile only
	ModTime      int64 // unix seconds
	Mode         uint32
	SymlinkTo    string // best-effort, valid for KindSymlink only
}

// FileHeader is the wire form of a manifest entry (§3, §4.7).
type FileHeader struct {
	RelPath string `json:"path"`
	Size    uint64 `json:"size"`
	MTime   int64  `json:"mtime"` // seconds, may be negative
	Mode    uint32 `json:"mode"`
}

// TaskKind tags a TransferTask variant.
type TaskKind int

const (
	TaskTarShard TaskKind = iota
	TaskRawBundle
	TaskLarge
)

func (k TaskKind) String() string {
	switch k {
	case TaskTarShard:
		return "tar_shard"
	case TaskRawBundle:
		return "raw_bundle"
	case TaskLarge:
		return "large"
	default:
		return "unknown"
	}
}

// TransferTask is one unit of work handed to a worker.
//
// Kind == TaskLarge implies len(Paths) == 1; the other two kinds carry one
// or more relative paths. No relative path appears in more than one task
// across a Plan.
type TransferTask struct {
	Kind  TaskKind
	Paths []string
	Bytes int64 // sum of the sizes of the files in Paths
}

// Plan is the ordered output of the planner: an interleaved task list plus
// the chunk size chosen for streaming copies.
type Plan struct {
	Tasks     []TransferTask
	ChunkSize int
}

// FileStatus tags a FileComparison.
type FileStatus int

const (
	StatusNew FileStatus = iota
	StatusModified
	StatusUnchanged
)

func (s FileStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusModified:
		return "modified"
	case StatusUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// FileComparison is one entry of a ManifestDiff.
type FileComparison struct {
	RelPath string
	Status  FileStatus
	Size    uint64
}

// ManifestDiff is the result of comparing a source and target header list
// (§4.5).
type ManifestDiff struct {
	Comparisons     []FileComparison
	BytesToTransfer uint64
	FilesToDelete   []string // populated only in mirror mode
}

// FilesToTransfer returns the relative paths whose status is New or
// Modified, in comparison order.
func (d *ManifestDiff) FilesToTransfer() []string {
	out := make([]string, 0, len(d.Comparisons))
	for _, c := range d.Comparisons {
		if c.Status == StatusNew || c.Status == StatusModified {
			out = append(out, c.RelPath)
		}
	}
	return out
}

// ChangeState is the result of a change-journal probe (§3, §4.6).
type ChangeState int

const (
	ChangeUnsupported ChangeState = iota
	ChangeUnknown
	ChangeNoChanges
	ChangeChanges
)

func (s ChangeState) String() string {
	switch s {
	case ChangeUnsupported:
		return "unsupported"
	case ChangeUnknown:
		return "unknown"
	case ChangeNoChanges:
		return "no_changes"
	case ChangeChanges:
		return "changes"
	default:
		return "unknown"
	}
}

// SnapshotOS tags which OS-specific shape a StoredSnapshot carries.
type SnapshotOS int

const (
	SnapshotNone SnapshotOS = iota
	SnapshotWindows
	SnapshotMacOS
	SnapshotLinux
)

// StoredSnapshot is the tagged per-OS change indicator of §3.
//
// Only the fields relevant to OS are populated; the rest are zero. JSON tags
// keep the on-disk cache file stable across the three shapes.
type StoredSnapshot struct {
	OS SnapshotOS `json:"os"`

	// Windows
	Volume   string `json:"volume,omitempty"`
	JournalID uint64 `json:"journal_id,omitempty"`
	NextUSN   int64  `json:"next_usn,omitempty"`

	// macOS
	FSID      string `json:"fsid,omitempty"`
	EventID   uint64 `json:"event_id,omitempty"`

	// Linux
	Device    uint64 `json:"device,omitempty"`
	Inode     uint64 `json:"inode,omitempty"`
	CtimeSec  int64  `json:"ctime_sec,omitempty"`
	CtimeNsec int64  `json:"ctime_nsec,omitempty"`

	// Common to all three
	RootMTime int64 `json:"root_mtime"`
}

// StoredRecord pairs a snapshot with the time it was recorded.
type StoredRecord struct {
	Snapshot      StoredSnapshot `json:"snapshot"`
	RecordedAtMS  int64          `json:"recorded_at_epoch_ms"`
}

// ProbeToken is what Change journal hands back from a probe, and what the
// orchestrator passes back in to refresh-and-persist at end of run.
type ProbeToken struct {
	Key           string
	CanonicalPath string
	Snapshot      StoredSnapshot
	State         ChangeState
}

// Options captures every orchestrator setting consumed per §6.
type Options struct {
	Mirror           bool
	DryRun           bool
	SkipUnchanged    bool
	Checksum         bool
	PreserveSymlinks bool
	IncludeSymlinks  bool
	Workers          int
	ForceTar         bool
	DebugMode        bool
	PerfHistory      bool
}

// ProfileKey partitions predictor history (§3, GLOSSARY).
type ProfileKey struct {
	SourceFS      string
	DestFS        string
	Mode          string // "copy" | "mirror" | "move"
	FastPath      string // "" when none
	SkipUnchanged bool
	Checksum      bool
}

// String renders a ProfileKey as a stable map key for the predictor state
// file's JSON object.
func (k ProfileKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%t|%t", k.SourceFS, k.DestFS, k.Mode, k.FastPath, k.SkipUnchanged, k.Checksum)
}

// PredictorCoefficients is the per-profile linear model of §4.11.
type PredictorCoefficients struct {
	Alpha float64 `json:"alpha"` // ms per file
	Beta  float64 `json:"beta"`  // ms per MiB
	Gamma float64 `json:"gamma"` // ms constant
}

// PerformanceRecord is one line of the performance history log (§3, §6).
type PerformanceRecord struct {
	Mode             string  `json:"mode"`
	SourceFS         string  `json:"source_fs"`
	DestFS           string  `json:"dest_fs"`
	FileCount        int     `json:"file_count"`
	TotalBytes       uint64  `json:"total_bytes"`
	DryRun           bool    `json:"dry_run"`
	PreserveSymlinks bool    `json:"preserve_symlinks"`
	IncludeSymlinks  bool    `json:"include_symlinks"`
	SkipUnchanged    bool    `json:"skip_unchanged"`
	Checksum         bool    `json:"checksum"`
	Workers          int     `json:"workers"`
	FastPath         string  `json:"fast_path,omitempty"`
	PlannerMS        float64 `json:"planner_ms"`
	TransferMS       float64 `json:"transfer_ms"`
	DeletedFiles     int     `json:"deleted_files"`
	DeletedDirs      int     `json:"deleted_dirs"`
	EpochMS          int64   `json:"epoch_ms"`
}

// Summary is the orchestrator's public result for one run (§7).
type Summary struct {
	PlannedFiles   int
	CopiedFiles    int
	TotalBytes     uint64
	DeletedFiles   int
	DeletedDirs    int
	DryRun         bool
	Duration       float64 // seconds
	TarShardTasks  int
	TarShardFiles  int
	TarShardBytes  uint64
	RawBundleTasks int
	RawBundleFiles int
	RawBundleBytes uint64
	LargeTasks     int
	LargeBytes     uint64
	FastPath       string
	UsedDataPlane  bool
	Errors         []PathError
}

// PathError is one per-file fatal failure recorded in a Summary.
type PathError struct {
	RelPath  string `json:"path"`
	Category string `json:"category"`
	Message  string `json:"message"`
}
