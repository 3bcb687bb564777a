//go:build linux

package fscap

import (
	"io"
	"os"
	"syscall"

	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"
)

type linuxCapability struct{}

func newPlatform() Capability { return &linuxCapability{} }

func (c *linuxCapability) Capabilities(path string) Capabilities {
	caps := Capabilities{SparseFiles: true, Symlinks: true, Sendfile: true, CopyFileRange: true}
	if _, err := xattr.List(path); err == nil {
		caps.Xattrs = true
	}
	return caps
}

func (c *linuxCapability) PreserveMetadata(src, dst string) (MetadataPreserved, error) {
	var out MetadataPreserved
	fi, err := os.Stat(src)
	if err != nil {
		return out, err
	}

	if err := os.Chmod(dst, fi.Mode().Perm()); err == nil {
		out.Permissions = true
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if ok {
		atime := unix.NsecToTimespec(st.Atim.Nano())
		mtime := unix.NsecToTimespec(st.Mtim.Nano())
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, dst, []unix.Timespec{atime, mtime}, 0); err == nil {
			out.MTime = true
		}
		if err := os.Chown(dst, int(st.Uid), int(st.Gid)); err == nil {
			out.OwnerGroup = true
		}
	}

	if names, err := xattr.List(src); err == nil {
		ok := true
		for _, name := range names {
			val, err := xattr.Get(src, name)
			if err != nil {
				ok = false
				continue
			}
			if err := xattr.Set(dst, name, val); err != nil {
				ok = false
			}
		}
		out.Xattrs = ok
	}

	return out, nil
}

func (c *linuxCapability) FastCopy(src, dst string, size int64) (FastCopyResult, error) {
	sf, err := os.Open(src)
	if err != nil {
		return FastCopyResult{}, err
	}
	defer sf.Close()

	df, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return FastCopyResult{}, err
	}
	defer df.Close()

	if n, ok := tryCopyFileRange(sf, df, size); ok {
		return FastCopyResult{Success: true, Bytes: n, Method: MethodCopyFileRange}, nil
	}
	if n, ok := trySendfile(sf, df, size); ok {
		return FastCopyResult{Success: true, Bytes: n, Method: MethodSendfile}, nil
	}
	if n, ok := trySparseCopy(sf, df, size); ok {
		return FastCopyResult{Success: true, Bytes: n, Method: MethodSparse}, nil
	}

	n, err := bufferedCopy(src, dst)
	if err != nil {
		return FastCopyResult{}, err
	}
	return FastCopyResult{Success: true, Bytes: n, Method: MethodBuffered}, nil
}

// tryCopyFileRange invokes the copy_file_range(2) syscall directly, the
// first primitive in Linux's chain per §4.4.
func tryCopyFileRange(sf, df *os.File, size int64) (int64, bool) {
	var total int64
	remain := size
	for remain > 0 {
		n, err := unix.CopyFileRange(int(sf.Fd()), nil, int(df.Fd()), nil, int(remain), 0)
		if err != nil {
			if total == 0 {
				return 0, false
			}
			return total, false
		}
		if n == 0 {
			break
		}
		total += int64(n)
		remain -= int64(n)
	}
	return total, remain == 0
}

func trySendfile(sf, df *os.File, size int64) (int64, bool) {
	if _, err := sf.Seek(0, io.SeekStart); err != nil {
		return 0, false
	}
	var total int64
	remain := size
	for remain > 0 {
		n, err := unix.Sendfile(int(df.Fd()), int(sf.Fd()), nil, int(remain))
		if err != nil {
			if total == 0 {
				return 0, false
			}
			return total, false
		}
		if n == 0 {
			break
		}
		total += int64(n)
		remain -= int64(n)
	}
	return total, remain == 0
}

// trySparseCopy preserves holes by seeking over runs of zero bytes detected
// via SEEK_HOLE/SEEK_DATA, falling back to a dense buffered copy if the
// filesystem does not support hole-seeking.
func trySparseCopy(sf, df *os.File, size int64) (int64, bool) {
	if _, err := unix.Seek(int(sf.Fd()), 0, unix.SEEK_DATA); err != nil {
		return 0, false
	}
	if _, err := sf.Seek(0, io.SeekStart); err != nil {
		return 0, false
	}
	if err := df.Truncate(size); err != nil {
		return 0, false
	}

	buf := make([]byte, 1<<20)
	var off int64
	for off < size {
		dataStart, err := unix.Seek(int(sf.Fd()), off, unix.SEEK_DATA)
		if err != nil {
			// no more data; remaining range is a hole, already sparse via Truncate
			break
		}
		holeEnd, err := unix.Seek(int(sf.Fd()), dataStart, unix.SEEK_HOLE)
		if err != nil {
			holeEnd = size
		}
		if _, err := sf.Seek(dataStart, io.SeekStart); err != nil {
			return 0, false
		}
		if _, err := df.Seek(dataStart, io.SeekStart); err != nil {
			return 0, false
		}
		remain := holeEnd - dataStart
		for remain > 0 {
			chunk := int64(len(buf))
			if remain < chunk {
				chunk = remain
			}
			n, err := sf.Read(buf[:chunk])
			if n > 0 {
				if _, werr := df.Write(buf[:n]); werr != nil {
					return 0, false
				}
			}
			if err != nil && err != io.EOF {
				return 0, false
			}
			remain -= int64(n)
			if err == io.EOF {
				break
			}
		}
		off = holeEnd
	}
	return size, true
}
