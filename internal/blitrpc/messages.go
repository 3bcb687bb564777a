// Package blitrpc implements the control plane of spec §4.7 / §6 as a
// genuine streaming gRPC service (google.golang.org/grpc, an indirect
// dependency of the teacher's go.mod, promoted to direct use here since
// original_source's push/pull client is itself built on tonic, Rust's gRPC
// library — the same transport, re-expressed in Go).
//
// protoc is not available in this environment, so the wire messages below
// are plain Go structs encoded with encoding/gob through a custom
// grpc.Codec (see codec.go), and the service descriptor in service.go is
// hand-written the way protoc-gen-go-grpc would otherwise generate it. See
// DESIGN.md for the rationale.
package blitrpc

// InitPush is the first request message of a Push stream (§4.7).
type InitPush struct {
	Module      string
	DestPath    string
	Mirror      bool
	ForceGRPC   bool
}

// FileHeader mirrors model.FileHeader on the wire.
type FileHeader struct {
	RelPath string
	Size    uint64
	MTime   int64
	Mode    uint32
}

// ManifestComplete signals the end of the manifest header stream.
type ManifestComplete struct{}

// FileData carries inline payload bytes, used only when the data plane was
// not negotiated (§4.7's fallback rule).
type FileData struct {
	RelPath string
	Offset  uint64
	Data    []byte
	EOF     bool
}

// MirrorDeletions carries the destination-relative paths to remove, sent
// after ManifestComplete in mirror mode.
type MirrorDeletions struct {
	Paths []string
}

// ClientPushRequest is the request envelope of the Push stream. Exactly one
// field is non-nil per message, matching a protobuf oneof without requiring
// protoc: gob happily skips nil pointer fields.
type ClientPushRequest struct {
	Init             *InitPush
	Header           *FileHeader
	ManifestComplete *ManifestComplete
	Data             *FileData
	Deletions        *MirrorDeletions
}

// Accept is the server's first response: negotiation results (§4.7).
type Accept struct {
	ModuleResolved      string
	DataPlaneHost       string
	DataPlanePort       uint32 // 0 means "no data plane, use inline fallback"
	NegotiationToken    string // base64
}

// NeedHeaders names which offered headers the server wants transferred.
type NeedHeaders struct {
	RelPaths []string
}

// Progress reports incremental counters.
type Progress struct {
	Files uint64
	Bytes uint64
}

// Complete carries the final run summary.
type Complete struct {
	CopiedFiles  uint64
	TotalBytes   uint64
	DeletedFiles uint64
	DeletedDirs  uint64
	UsedDataPlane bool
	Errors       []string
}

// ServerPushResponse is the response envelope of the Push stream.
type ServerPushResponse struct {
	Accept      *Accept
	NeedHeaders *NeedHeaders
	Progress    *Progress
	Complete    *Complete
}

// PullRequest is the unary request that begins a Pull stream (§6).
type PullRequest struct {
	Module    string
	Path      string
	ForceGRPC bool
}

// PullChunk is one frame of a Pull response stream: either a header or a
// data chunk, interleaved per file.
type PullChunk struct {
	Header *FileHeader
	Data   *FileData
}
