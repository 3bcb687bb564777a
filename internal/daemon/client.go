package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"google.golang.org/grpc"

	"github.com/blitxfer/blit/internal/blitrpc"
	"github.com/blitxfer/blit/internal/dataplane"
	"github.com/blitxfer/blit/internal/enumerator"
	"github.com/blitxfer/blit/internal/localengine"
	"github.com/blitxfer/blit/internal/model"
)

// Dial connects to a blit daemon at addr using the gob control-plane codec.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.Dial(addr, grpc.WithInsecure(), blitrpc.DialOption()) //nolint:staticcheck
}

// PushTree streams every file under sourceRoot into module/destPath on a
// remote daemon, following the control-plane handshake of §4.7: Init,
// Accept, every file header, ManifestComplete, the server's NeedHeaders,
// then the data of the needed files (via the negotiated data plane when
// offered, otherwise inline), then Complete. No MirrorDeletions frame is
// sent: with mirror set, a push adds or updates remote files and removes
// none.
func PushTree(ctx context.Context, cc *grpc.ClientConn, module, destPath, sourceRoot string, mirror bool) (*blitrpc.Complete, error) {
	return pushTree(ctx, cc, blitrpc.InitPush{
		Module:   module,
		DestPath: destPath,
		Mirror:   mirror,
	}, sourceRoot)
}

// pushTree drives the handshake of §4.7 given a fully-populated InitPush,
// the shared core PushTree and the ForceGRPC test path both call into.
func pushTree(ctx context.Context, cc *grpc.ClientConn, init blitrpc.InitPush, sourceRoot string) (*blitrpc.Complete, error) {
	mirror := init.Mirror
	client := blitrpc.NewClient(cc)
	stream, err := client.Push(ctx)
	if err != nil {
		return nil, err
	}

	if err := stream.Send(&blitrpc.ClientPushRequest{Init: &init}); err != nil {
		return nil, err
	}

	resp, err := stream.Recv()
	if err != nil {
		return nil, err
	}
	if resp.Accept == nil {
		return nil, fmt.Errorf("daemon: expected Accept, got %+v", resp)
	}
	accept := resp.Accept

	entries, err := enumerator.Enumerate(sourceRoot, enumerator.NewFilter(), enumerator.Options{})
	if err != nil {
		return nil, fmt.Errorf("daemon: enumerating %s: %w", sourceRoot, err)
	}

	headers := make([]blitrpc.FileHeader, 0, len(entries))
	var totalBytes uint64
	for _, e := range entries {
		if e.Kind != model.KindFile {
			continue
		}
		headers = append(headers, blitrpc.FileHeader{RelPath: e.RelPath, Size: uint64(e.Size), MTime: e.ModTime, Mode: e.Mode})
		totalBytes += uint64(e.Size)
	}
	tuning := dataplane.DetermineTuning(totalBytes)

	var dataSession *dataplane.Session
	if accept.DataPlanePort != 0 {
		tokenBytes := []byte(accept.NegotiationToken)
		dataSession, err = dataplane.Dial(accept.DataPlaneHost, accept.DataPlanePort, tokenBytes)
		if err != nil {
			return nil, fmt.Errorf("daemon: connecting to data plane: %w", err)
		}
		dataSession.SetChunkSize(tuning.ChunkBytes)
		defer dataSession.Close()
	}

	// Offer every header first (§4.9 step 4), then wait for the server's
	// NeedHeaders response (step 5) before transferring any bytes, so an
	// already-current destination costs nothing but the header exchange.
	for _, header := range headers {
		if err := stream.Send(&blitrpc.ClientPushRequest{Header: &header}); err != nil {
			return nil, err
		}
	}
	if err := stream.Send(&blitrpc.ClientPushRequest{ManifestComplete: &blitrpc.ManifestComplete{}}); err != nil {
		return nil, err
	}

	needed := make(map[string]bool)
	for {
		resp, err := stream.Recv()
		if err != nil {
			return nil, err
		}
		if resp.NeedHeaders != nil {
			for _, p := range resp.NeedHeaders.RelPaths {
				needed[p] = true
			}
			break
		}
	}

	src := localFileSource{root: sourceRoot}
	for _, header := range headers {
		if !needed[header.RelPath] {
			continue
		}
		if dataSession != nil {
			if err := dataSession.SendFile(src, toModelHeader(header)); err != nil {
				return nil, err
			}
			continue
		}
		if err := sendInline(stream, src, header, tuning.ChunkBytes); err != nil {
			return nil, err
		}
	}

	if dataSession != nil {
		if err := dataSession.Finish(); err != nil {
			return nil, err
		}
	}

	if mirror {
		// A caller with access to the destination's manifest would
		// populate this; without a remote directory listing this
		// implementation sends no deletions, matching a push that
		// only ever adds or updates files.
	}

	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			return nil, err
		}
		if resp.Complete != nil {
			return resp.Complete, nil
		}
	}
}

type localFileSource struct{ root string }

func (s localFileSource) Open(rel string) (io.ReadCloser, int64, error) {
	path := filepath.Join(s.root, filepath.FromSlash(rel))
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func sendInline(stream blitrpc.PushClient, src localFileSource, header blitrpc.FileHeader, chunkBytes int) error {
	rc, _, err := src.Open(header.RelPath)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, chunkBytes)
	var offset uint64
	for {
		n, rerr := rc.Read(buf)
		if n > 0 || rerr == io.EOF {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := stream.Send(&blitrpc.ClientPushRequest{Data: &blitrpc.FileData{
				RelPath: header.RelPath,
				Offset:  offset,
				Data:    chunk,
				EOF:     rerr == io.EOF,
			}}); err != nil {
				return err
			}
			offset += uint64(n)
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func toModelHeader(h blitrpc.FileHeader) model.FileHeader {
	return model.FileHeader{RelPath: h.RelPath, Size: h.Size, MTime: h.MTime, Mode: h.Mode}
}

// PullTree requests path from module on a remote daemon and writes every
// returned file under destRoot. When mirror is set, any destination entry
// not present in the pulled set is removed afterward, using the same
// deepest-first deletion ordering a local mirror run applies.
func PullTree(ctx context.Context, cc *grpc.ClientConn, module, path, destRoot string, mirror bool) error {
	client := blitrpc.NewClient(cc)
	stream, err := client.Pull(ctx, &blitrpc.PullRequest{Module: module, Path: path})
	if err != nil {
		return err
	}

	pulled := make(map[string]bool)
	var current *os.File
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			if current != nil {
				current.Close()
			}
			break
		}
		if err != nil {
			return err
		}

		if chunk.Header != nil {
			if current != nil {
				current.Close()
			}
			rel, serr := blitrpc.SanitizeRelativePath(chunk.Header.RelPath)
			if serr != nil {
				return serr
			}
			pulled[rel] = true
			dst := filepath.Join(destRoot, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			current, err = os.Create(dst)
			if err != nil {
				return err
			}
			continue
		}

		if chunk.Data != nil && current != nil {
			if _, err := current.WriteAt(chunk.Data.Data, int64(chunk.Data.Offset)); err != nil {
				return err
			}
			if chunk.Data.EOF {
				current.Close()
				current = nil
			}
		}
	}

	if !mirror {
		return nil
	}

	destEntries, err := enumerator.Enumerate(destRoot, enumerator.NewFilter(), enumerator.Options{})
	if err != nil {
		return fmt.Errorf("daemon: enumerating destination %s: %w", destRoot, err)
	}
	for rel := range pulled {
		for _, ancestor := range localengine.Ancestors(rel) {
			pulled[ancestor] = true
		}
	}
	plan := localengine.BuildDeletePlan(pulled, destEntries)
	eng := localengine.New(localengine.Config{DestRoot: destRoot})
	return eng.DeleteEntries(plan)
}
