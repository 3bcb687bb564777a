package daemon

import (
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blitxfer/blit/internal/blitrpc"
	"github.com/blitxfer/blit/internal/dataplane"
	"github.com/blitxfer/blit/internal/enumerator"
	"github.com/blitxfer/blit/internal/fscap"
	"github.com/blitxfer/blit/internal/manifestdiff"
	"github.com/blitxfer/blit/internal/model"
)

// Server implements blitrpc.BlitServer against a set of configured modules.
type Server struct {
	cfg  Config
	log  *logrus.Logger
	cap  fscap.Capability
	host string // advertised data-plane host, usually the bind address

	mu     sync.Mutex
	tokens map[string]net.Listener // negotiation token -> its data-plane listener, until claimed
}

// NewServer builds a Server from a loaded Config. host is what the daemon
// advertises to clients as the data-plane address (may differ from
// BindAddress behind NAT).
func NewServer(cfg Config, host string, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{cfg: cfg, log: log, cap: fscap.New(), host: host, tokens: make(map[string]net.Listener)}
}

// Push implements the bidirectional control-plane RPC of §4.7.
func (s *Server) Push(stream blitrpc.PushServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if first.Init == nil {
		return fmt.Errorf("daemon: Push stream must begin with InitPush")
	}
	init := first.Init

	module, err := s.cfg.resolveModule(init.Module)
	if err != nil {
		return err
	}
	if module.ReadOnly {
		return fmt.Errorf("daemon: module %q is read-only", init.Module)
	}

	destSub, err := blitrpc.SanitizeRelativePath(emptyAsDot(init.DestPath))
	if err != nil {
		return err
	}
	destRoot := filepath.Join(module.Path, destSub)
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return fmt.Errorf("daemon: preparing destination %s: %w", destRoot, err)
	}

	session := &pushSession{server: s, destRoot: destRoot, mirror: init.Mirror}

	var listener net.Listener
	var token string
	var port uint32
	if init.ForceGRPC {
		s.log.WithField("module", init.Module).Info("gRPC fallback: force-grpc requested, skipping data plane")
	} else {
		listener, token, port, err = s.openDataPlane()
		if err != nil {
			s.log.WithError(err).Warn("gRPC fallback: failed to open data plane, falling back to inline transfer")
		} else {
			go session.acceptDataPlane(listener, token)
		}
	}

	if err := stream.Send(&blitrpc.ServerPushResponse{Accept: &blitrpc.Accept{
		ModuleResolved:   init.Module,
		DataPlaneHost:    s.host,
		DataPlanePort:    port,
		NegotiationToken: token,
	}}); err != nil {
		return err
	}

	var headers []model.FileHeader
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch {
		case req.Header != nil:
			headers = append(headers, model.FileHeader{
				RelPath: req.Header.RelPath,
				Size:    req.Header.Size,
				MTime:   req.Header.MTime,
				Mode:    req.Header.Mode,
			})
		case req.Data != nil:
			if err := session.writeInline(*req.Data); err != nil {
				return err
			}
		case req.Deletions != nil:
			session.deletions = req.Deletions.Paths
		case req.ManifestComplete != nil:
			needed, err := session.negotiateHeaders(headers)
			if err != nil {
				return err
			}
			if err := stream.Send(&blitrpc.ServerPushResponse{NeedHeaders: &blitrpc.NeedHeaders{RelPaths: needed}}); err != nil {
				return err
			}
		}
	}

	session.waitDataPlane()

	if session.mirror {
		if err := session.applyDeletions(); err != nil {
			return err
		}
	}

	return stream.Send(&blitrpc.ServerPushResponse{Complete: &blitrpc.Complete{
		CopiedFiles:   session.copiedFiles,
		TotalBytes:    session.copiedBytes,
		DeletedFiles:  uint64(len(session.deletions)),
		UsedDataPlane: session.usedDataPlane,
	}})
}

// Pull implements the server-streaming control-plane RPC of §6: the server
// walks the requested path and interleaves FileHeader/FileData frames with
// no data-plane negotiation.
func (s *Server) Pull(req *blitrpc.PullRequest, stream blitrpc.PullServer) error {
	module, err := s.cfg.resolveModule(req.Module)
	if err != nil {
		return err
	}
	rel, err := blitrpc.SanitizeRelativePath(emptyAsDot(req.Path))
	if err != nil {
		return err
	}
	root := filepath.Join(module.Path, rel)

	var totalBytes uint64
	if err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			totalBytes += uint64(info.Size())
		}
		return nil
	}); err != nil {
		return err
	}
	chunkBytes := dataplane.DetermineTuning(totalBytes).ChunkBytes

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(module.Path, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		header := &blitrpc.FileHeader{
			RelPath: relPath,
			Size:    uint64(info.Size()),
			MTime:   info.ModTime().Unix(),
			Mode:    uint32(info.Mode().Perm()),
		}
		if err := stream.Send(&blitrpc.PullChunk{Header: header}); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		buf := make([]byte, chunkBytes)
		var offset uint64
		for {
			n, rerr := f.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if err := stream.Send(&blitrpc.PullChunk{Data: &blitrpc.FileData{
					RelPath: relPath,
					Offset:  offset,
					Data:    chunk,
					EOF:     rerr == io.EOF,
				}}); err != nil {
					return err
				}
				offset += uint64(n)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return rerr
			}
		}
		return nil
	})
}

func (s *Server) openDataPlane() (net.Listener, string, uint32, error) {
	ln, err := net.Listen("tcp", s.host+":0")
	if err != nil {
		return nil, "", 0, err
	}
	token := base64.StdEncoding.EncodeToString([]byte(uuid.New().String()))
	port := ln.Addr().(*net.TCPAddr).Port
	return ln, token, uint32(port), nil
}

func emptyAsDot(p string) string {
	if p == "" {
		return "."
	}
	return p
}

// pushSession tracks per-Push-stream state shared between the control-plane
// goroutine and the data-plane acceptor goroutine.
type pushSession struct {
	server   *Server
	destRoot string
	mirror   bool

	mu        sync.Mutex
	deletions []string

	copiedFiles   uint64
	copiedBytes   uint64
	usedDataPlane bool

	done chan struct{}
}

// negotiateHeaders implements §4.9 step 5: diff the offered headers against
// the destination tree and return which relative paths the client must
// still transfer. Absent or stat-failed destination entries are treated as
// not present, so a fresh destination tree asks for every header.
func (s *pushSession) negotiateHeaders(offered []model.FileHeader) ([]string, error) {
	destEntries, err := enumerator.Enumerate(s.destRoot, enumerator.NewFilter(), enumerator.Options{})
	if err != nil {
		return nil, fmt.Errorf("daemon: enumerating destination %s: %w", s.destRoot, err)
	}

	destHeaders := make([]model.FileHeader, 0, len(destEntries))
	for _, e := range destEntries {
		if e.Kind != model.KindFile {
			continue
		}
		destHeaders = append(destHeaders, model.FileHeader{
			RelPath: e.RelPath,
			Size:    uint64(e.Size),
			MTime:   e.ModTime,
			Mode:    e.Mode,
		})
	}

	diff := manifestdiff.Compare(offered, destHeaders, s.mirror)
	return diff.FilesToTransfer(), nil
}

func (s *pushSession) writeInline(data blitrpc.FileData) error {
	rel, err := blitrpc.SanitizeRelativePath(data.RelPath)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.destRoot, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE
	if data.Offset == 0 {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(dst, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(data.Data, int64(data.Offset)); err != nil {
		return err
	}

	s.mu.Lock()
	s.copiedBytes += uint64(len(data.Data))
	if data.EOF {
		s.copiedFiles++
	}
	s.mu.Unlock()
	return nil
}

func (s *pushSession) acceptDataPlane(ln net.Listener, expectedToken string) {
	defer ln.Close()
	conn, err := ln.Accept()
	if err != nil {
		return
	}

	tokenBuf := make([]byte, len(expectedToken))
	if _, err := io.ReadFull(conn, tokenBuf); err != nil || string(tokenBuf) != expectedToken {
		conn.Close()
		return
	}

	s.mu.Lock()
	s.usedDataPlane = true
	s.done = make(chan struct{})
	s.mu.Unlock()
	defer close(s.done)

	sess := dataplane.Accept(conn)
	defer sess.Close()

	for {
		rec, err := sess.ReadRecord()
		if err != nil {
			return
		}
		switch rec.Tag {
		case dataplane.RecordEnd:
			return
		case dataplane.RecordFile:
			if err := s.writeDataPlaneFile(rec.File); err != nil {
				return
			}
		case dataplane.RecordTarShard:
			s.writeDataPlaneTarShard(rec.TarShard)
		}
	}
}

func (s *pushSession) writeDataPlaneFile(rec *dataplane.FileRecord) error {
	rel, err := blitrpc.SanitizeRelativePath(rec.RelPath)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.destRoot, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.Copy(f, rec.Data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.copiedFiles++
	s.copiedBytes += uint64(n)
	s.mu.Unlock()
	return nil
}

// writeDataPlaneTarShard treats a shard's payload as the members' bytes
// concatenated in header order and splits it by each member's declared
// size; it does not parse a tar archive.
func (s *pushSession) writeDataPlaneTarShard(rec *dataplane.TarShardRecord) {
	var offset int
	for _, h := range rec.Headers {
		size := int(h.Size)
		if offset+size > len(rec.Data) {
			return
		}
		rel, err := blitrpc.SanitizeRelativePath(h.RelPath)
		if err != nil {
			offset += size
			continue
		}
		dst := filepath.Join(s.destRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err == nil {
			if err := os.WriteFile(dst, rec.Data[offset:offset+size], os.FileMode(h.Mode)|0o600); err == nil {
				s.mu.Lock()
				s.copiedFiles++
				s.copiedBytes += uint64(size)
				s.mu.Unlock()
			}
		}
		offset += size
	}
}

func (s *pushSession) waitDataPlane() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(60 * time.Second):
	}
}

func (s *pushSession) applyDeletions() error {
	for _, rel := range s.deletions {
		clean, err := blitrpc.SanitizeRelativePath(rel)
		if err != nil {
			continue
		}
		_ = os.Remove(filepath.Join(s.destRoot, filepath.FromSlash(clean)))
	}
	return nil
}
