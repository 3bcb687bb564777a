// Package fscap abstracts the per-OS filesystem capabilities of spec §4.4:
// metadata preservation, feature probing, and a fast-copy primitive chain
// (clonefile, copy_file_range, sendfile, ReFS block clone, ...), one
// implementation selected per OS at build time, matching the per-file
// variants in the teacher's backend/local package (xattr.go,
// preallocate_unix.go, preallocate_windows.go, clone_darwin.go) and
// original_source's fs_capability/{unix,macos}.rs.
package fscap

// MetadataPreserved reports which parts of file metadata a preservation
// attempt actually carried over; every field is best-effort.
type MetadataPreserved struct {
	MTime       bool
	Permissions bool
	Xattrs      bool
	ACLs        bool
	OwnerGroup  bool
}

// Capabilities reports feature flags detected for the filesystem underlying
// a given path.
type Capabilities struct {
	SparseFiles     bool
	Symlinks        bool
	Xattrs          bool
	ACLs            bool
	Sendfile        bool
	CopyFileRange   bool
}

// FastCopyMethod names which primitive a fast copy actually used.
type FastCopyMethod string

const (
	MethodCopyFileRange FastCopyMethod = "copy_file_range"
	MethodSendfile      FastCopyMethod = "sendfile"
	MethodSparse        FastCopyMethod = "sparse_copy"
	MethodBuffered      FastCopyMethod = "buffered"
	MethodCloneFile     FastCopyMethod = "clonefile"
	MethodFCopyFile     FastCopyMethod = "fcopyfile"
	MethodReFSClone     FastCopyMethod = "refs_block_clone"
	MethodCopyFileExNoBuf FastCopyMethod = "copyfileex_no_buffering"
)

// FastCopyResult is the outcome of an attempted fast copy.
type FastCopyResult struct {
	Success bool
	Bytes   int64
	Method  FastCopyMethod
	// MetadataPreserved is populated when Method intrinsically preserves
	// metadata (ReFS block clone, fcopyfile, clonefile): callers must skip
	// the explicit PreserveMetadata step per §4.4.
	MetadataPreserved *MetadataPreserved
}

// Capability is the interface every OS-specific implementation satisfies.
type Capability interface {
	// PreserveMetadata copies mtime, permissions, xattrs, ACLs and
	// owner/group from src to dst, best-effort, and reports what took.
	PreserveMetadata(src, dst string) (MetadataPreserved, error)

	// Capabilities probes feature flags for the filesystem containing path.
	Capabilities(path string) Capabilities

	// FastCopy attempts the OS's chain of zero-copy primitives in order,
	// returning the first one that reports success; when none apply, the
	// implementation finishes with its own buffered copy and reports that
	// method instead.
	FastCopy(src, dst string, size int64) (FastCopyResult, error)
}

// New returns the Capability implementation selected for the running OS.
// Declared per-file with a build tag (fscap_linux.go, fscap_darwin.go,
// fscap_windows.go, fscap_other.go).
func New() Capability {
	return newPlatform()
}
