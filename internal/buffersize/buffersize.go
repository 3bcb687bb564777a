// Package buffersize implements spec §4.3: choosing a per-file I/O buffer
// from file size, transport kind, and free memory.
//
// Memory is sampled through gopsutil (github.com/shirou/gopsutil/v3), the
// same library the teacher's go.mod carries directly, mirroring
// original_source's buffer.rs which reads free memory via the Rust
// `sysinfo` crate.
package buffersize

import (
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
)

const (
	minBuffer = 8 * 1024          // 8 KiB floor
	maxBuffer = 16 * 1024 * 1024  // 16 MiB cap
	smallFileFloor = 1 * 1024 * 1024 // 1 MiB floor for files < 10 MiB

	tenMiB     = 10 * 1024 * 1024
	hundredMiB = 100 * 1024 * 1024
	localBase  = 4 * 1024 * 1024
	networkBase = 8 * 1024 * 1024
	rampSpan   = 900 * 1024 * 1024 // ramp span beyond 100 MiB toward the cap

	fallbackMemory = 512 * 1024 * 1024
)

var (
	memOnce      sync.Once
	cachedFreeBytes uint64
)

// freeMemory returns the process-lifetime-cached free memory reading,
// falling back to 512 MiB when the OS reports zero (matches §4.3's "a zero
// reading falls back to 512 MiB").
func freeMemory() uint64 {
	memOnce.Do(func() {
		v, err := mem.VirtualMemory()
		if err != nil || v == nil || v.Available == 0 {
			cachedFreeBytes = fallbackMemory
			return
		}
		cachedFreeBytes = v.Available
	})
	return cachedFreeBytes
}

// Sizer picks per-file buffer sizes. The zero value is usable; tests
// construct a Sizer with an injected memory reading via WithMemory.
type Sizer struct {
	freeBytes uint64 // 0 means "use the process-cached reading"
}

// New returns a Sizer backed by the process-wide cached memory reading.
func New() *Sizer { return &Sizer{} }

// WithMemory returns a Sizer that reports a fixed free-memory value instead
// of sampling the OS, for deterministic tests.
func WithMemory(freeBytes uint64) *Sizer { return &Sizer{freeBytes: freeBytes} }

func (s *Sizer) free() uint64 {
	if s.freeBytes != 0 {
		return s.freeBytes
	}
	return freeMemory()
}

// Calculate implements the rules of §4.3.
func (s *Sizer) Calculate(fileSize int64, isNetwork bool) int {
	if fileSize < 0 {
		fileSize = 0
	}

	var size int64
	switch {
	case fileSize < tenMiB:
		size = smallFileFloor
	case fileSize <= hundredMiB:
		if isNetwork {
			size = networkBase
		} else {
			size = localBase
		}
	default:
		base := int64(localBase)
		if isNetwork {
			base = networkBase
		}
		over := fileSize - hundredMiB
		ramp := float64(over) / float64(rampSpan)
		if ramp > 1 {
			ramp = 1
		}
		size = base + int64(ramp*float64(maxBuffer-base))
	}

	if size > maxBuffer {
		size = maxBuffer
	}

	memCap := int64(float64(s.free()) * 0.10)
	if memCap > 0 && size > memCap {
		size = memCap
	}
	if size < minBuffer {
		size = minBuffer
	}
	return int(size)
}
