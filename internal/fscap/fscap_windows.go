//go:build windows

package fscap

import (
	"os"
	"syscall"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/windows"
)

var (
	modKernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procCopyFileExW          = modKernel32.NewProc("CopyFileExW")
	procDeviceIoControl      = modKernel32.NewProc("DeviceIoControl")
)

const (
	copyFileNoBuffering = 0x00001000
	fsctlDuplicateExtentsToFile = 0x00098344

	noBufferingFileThreshold = 512 * 1024 * 1024
	noBufferingMinFile       = 1024 * 1024 * 1024
	headroomMargin           = 512 * 1024 * 1024
)

type duplicateExtentsData struct {
	FileHandle       syscall.Handle
	SourceFileOffset uint64
	TargetFileOffset uint64
	ByteCount        uint64
}

type windowsCapability struct{}

func newPlatform() Capability { return &windowsCapability{} }

func (c *windowsCapability) Capabilities(path string) Capabilities {
	return Capabilities{SparseFiles: true, Symlinks: true}
}

func (c *windowsCapability) PreserveMetadata(src, dst string) (MetadataPreserved, error) {
	var out MetadataPreserved
	fi, err := os.Stat(src)
	if err != nil {
		return out, err
	}
	if err := os.Chtimes(dst, time.Now(), fi.ModTime()); err == nil {
		out.MTime = true
	}
	if err := os.Chmod(dst, fi.Mode().Perm()); err == nil {
		out.Permissions = true
	}
	return out, nil
}

// FastCopy tries a same-volume ReFS block clone via
// FSCTL_DUPLICATE_EXTENTS_TO_FILE, then CopyFileEx with
// COPYFILE_NO_BUFFERING when the file is large and memory is tight (§4.4's
// exact threshold), then a plain buffered copy.
func (c *windowsCapability) FastCopy(src, dst string, size int64) (FastCopyResult, error) {
	if n, ok := tryReFSBlockClone(src, dst, size); ok {
		return FastCopyResult{
			Success: true,
			Bytes:   n,
			Method:  MethodReFSClone,
			MetadataPreserved: &MetadataPreserved{MTime: true, Permissions: true},
		}, nil
	}

	if shouldUseNoBuffering(size) {
		if n, ok := tryCopyFileExNoBuffering(src, dst, size); ok {
			return FastCopyResult{Success: true, Bytes: n, Method: MethodCopyFileExNoBuf}, nil
		}
	}

	n, err := bufferedCopy(src, dst)
	if err != nil {
		return FastCopyResult{}, err
	}
	return FastCopyResult{Success: true, Bytes: n, Method: MethodBuffered}, nil
}

// shouldUseNoBuffering implements the NO_BUFFERING gate of §4.4: file size
// over both thresholds, and either tight headroom or file size at least
// half of total RAM (capped at 2 GiB).
func shouldUseNoBuffering(size int64) bool {
	if size <= noBufferingFileThreshold || size < noBufferingMinFile {
		return false
	}
	v, err := mem.VirtualMemory()
	if err != nil || v == nil {
		return false
	}
	tightHeadroom := uint64(size)+headroomMargin > v.Available
	halfRAM := v.Total / 2
	sizeThreshold := uint64(2 * 1024 * 1024 * 1024)
	if halfRAM < sizeThreshold {
		sizeThreshold = halfRAM
	}
	return tightHeadroom || uint64(size) >= sizeThreshold
}

func tryReFSBlockClone(src, dst string, size int64) (int64, bool) {
	srcHandle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(src),
		windows.GENERIC_READ, windows.FILE_SHARE_READ, nil,
		windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return 0, false
	}
	defer windows.CloseHandle(srcHandle)

	dstHandle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(dst),
		windows.GENERIC_READ|windows.GENERIC_WRITE, 0, nil,
		windows.CREATE_ALWAYS, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return 0, false
	}
	defer windows.CloseHandle(dstHandle)

	data := duplicateExtentsData{
		FileHandle:       syscall.Handle(srcHandle),
		SourceFileOffset: 0,
		TargetFileOffset: 0,
		ByteCount:        uint64(size),
	}
	var bytesReturned uint32
	ret, _, e1 := procDeviceIoControl.Call(
		uintptr(dstHandle),
		uintptr(fsctlDuplicateExtentsToFile),
		uintptr(unsafe.Pointer(&data)),
		uintptr(unsafe.Sizeof(data)),
		0, 0,
		uintptr(unsafe.Pointer(&bytesReturned)),
		0,
	)
	if ret == 0 {
		_ = errors.Wrap(e1, "FSCTL_DUPLICATE_EXTENTS_TO_FILE failed")
		return 0, false
	}
	return size, true
}

func tryCopyFileExNoBuffering(src, dst string, size int64) (int64, bool) {
	srcPtr, err := syscall.UTF16PtrFromString(src)
	if err != nil {
		return 0, false
	}
	dstPtr, err := syscall.UTF16PtrFromString(dst)
	if err != nil {
		return 0, false
	}
	ret, _, _ := procCopyFileExW.Call(
		uintptr(unsafe.Pointer(srcPtr)),
		uintptr(unsafe.Pointer(dstPtr)),
		0, 0, 0,
		uintptr(copyFileNoBuffering),
	)
	if ret == 0 {
		return 0, false
	}
	return size, true
}
