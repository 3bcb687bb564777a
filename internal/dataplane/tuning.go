package dataplane

// Tuning holds the adaptive defaults applied to a remote transfer before any
// warmup measurement is available, grounded on remote/tuning.rs and
// auto_tune/mod.rs of the original implementation.
type Tuning struct {
	ChunkBytes      int
	InitialStreams  int
	MaxStreams      int
	TCPBufferBytes  int // 0 means "leave the OS default"
	PrefetchRecords int // 0 means "no explicit prefetch"
}

// DetermineTuning picks chunk size and stream counts from the estimated
// total transfer size alone, the pre-warmup heuristic the reference
// implementation falls back to when no bandwidth probe has run yet.
func DetermineTuning(totalBytes uint64) Tuning {
	const (
		gib = 1 << 30
		mib = 1 << 20
	)

	var chunkBytes int
	switch {
	case totalBytes >= 8*gib:
		chunkBytes = 64 * mib
	case totalBytes >= 512*mib:
		chunkBytes = 32 * mib
	default:
		chunkBytes = 16 * mib
	}

	var initial, max int
	switch {
	case totalBytes >= 32*gib:
		initial, max = 24, 32
	case totalBytes >= 8*gib:
		initial, max = 16, 24
	case totalBytes >= 2*gib:
		initial, max = 12, 16
	case totalBytes >= 512*mib:
		initial, max = 8, 12
	case totalBytes >= 128*mib:
		initial, max = 6, 10
	default:
		initial, max = 4, 8
	}

	t := Tuning{ChunkBytes: chunkBytes, InitialStreams: initial, MaxStreams: max}

	switch {
	case totalBytes >= 8*gib:
		t.TCPBufferBytes = 8 * mib
		t.PrefetchRecords = 32
	case totalBytes >= 512*mib:
		t.TCPBufferBytes = 4 * mib
		t.PrefetchRecords = 16
	}

	return t
}

// ApplyWarmup refines InitialStreams from a measured warmup bandwidth, the
// stream-count side of determine_tuning in the reference implementation.
// MaxStreams and ChunkBytes are left untouched; callers that measured a
// better chunk size during warmup should set ChunkBytes themselves.
func (t Tuning) ApplyWarmup(warmupGbps float64) Tuning {
	switch {
	case warmupGbps > 8.0:
		t.InitialStreams = 6
	case warmupGbps > 3.0:
		t.InitialStreams = 4
	default:
		t.InitialStreams = 2
	}
	if t.InitialStreams > t.MaxStreams {
		t.MaxStreams = t.InitialStreams
	}
	return t
}
