package fscap

import (
	"io"
	"os"
	"time"

	"github.com/pkg/xattr"
)

// bufferedCopy is the final fallback stage of every OS's fast-copy chain
// (§4.4): a plain read/write loop, always expected to succeed barring a
// real I/O error.
func bufferedCopy(src, dst string) (int64, error) {
	sf, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer sf.Close()

	df, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer df.Close()

	buf := make([]byte, 1<<20)
	return io.CopyBuffer(df, sf, buf)
}

// newGenericUnixCapability backs OSes with no dedicated clone/splice
// primitive (macOS built without cgo, the BSDs): xattr preservation via
// github.com/pkg/xattr still applies, but FastCopy only ever runs the
// buffered stage.
type genericUnixCapability struct{}

func newGenericUnixCapability() Capability { return &genericUnixCapability{} }

func (c *genericUnixCapability) Capabilities(path string) Capabilities {
	return Capabilities{SparseFiles: false, Symlinks: true}
}

func (c *genericUnixCapability) PreserveMetadata(src, dst string) (MetadataPreserved, error) {
	return preserveMetadataPortable(src, dst)
}

func (c *genericUnixCapability) FastCopy(src, dst string, size int64) (FastCopyResult, error) {
	n, err := bufferedCopy(src, dst)
	if err != nil {
		return FastCopyResult{}, err
	}
	return FastCopyResult{Success: true, Bytes: n, Method: MethodBuffered}, nil
}

// preserveMetadataPortable uses only os.Chtimes/os.Chmod plus best-effort
// xattr copying, for platforms with no richer metadata primitive wired in.
func preserveMetadataPortable(src, dst string) (MetadataPreserved, error) {
	var out MetadataPreserved
	fi, err := os.Stat(src)
	if err != nil {
		return out, err
	}
	if err := os.Chmod(dst, fi.Mode().Perm()); err == nil {
		out.Permissions = true
	}
	if err := os.Chtimes(dst, time.Now(), fi.ModTime()); err == nil {
		out.MTime = true
	}
	if names, err := xattr.List(src); err == nil && len(names) > 0 {
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
