package daemon

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/blitxfer/blit/internal/blitrpc"
)

// startTestServer brings up a real gRPC server over the gob codec on a
// loopback port exporting a single module rooted at modulePath, the
// integration-test analogue of running blitd against a throwaway config.
func startTestServer(t *testing.T, modulePath string, log *logrus.Logger) (addr string, stop func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := Config{
		Modules: map[string]ModuleConfig{
			"data": {Path: modulePath},
		},
	}
	srv := NewServer(cfg, "127.0.0.1", log)
	grpcSrv := grpc.NewServer(blitrpc.ServerOption())
	blitrpc.RegisterBlitServer(grpcSrv, srv)

	go grpcSrv.Serve(ln)

	return ln.Addr().String(), func() { grpcSrv.Stop() }
}

func dialTest(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	cc, err := Dial(addr)
	require.NoError(t, err)
	return cc
}

// TestPullTreePartialFileMatchesSource covers spec §8 scenario C: a
// destination file already holds the first two thirds of the source's
// bytes, and a plain (non-mirror) pull must still land the complete,
// byte-identical file.
func TestPullTreePartialFileMatchesSource(t *testing.T) {
	moduleRoot := t.TempDir()
	want := bytes.Repeat([]byte{'A'}, 1<<20)
	want = append(want, bytes.Repeat([]byte{'B'}, 1<<20)...)
	want = append(want, bytes.Repeat([]byte{'C'}, 1<<20)...)
	require.NoError(t, os.WriteFile(filepath.Join(moduleRoot, "big.bin"), want, 0o644))

	log, _ := test.NewNullLogger()
	addr, stop := startTestServer(t, moduleRoot, log)
	defer stop()

	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "big.bin"), want[:2<<20], 0o644))

	cc := dialTest(t, addr)
	defer cc.Close()

	require.NoError(t, PullTree(context.Background(), cc, "data", "", dest, false))

	got, err := os.ReadFile(filepath.Join(dest, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestPushTreeForceGRPCFallsBackToInline covers spec §8 scenario D: a push
// with ForceGRPC set never opens a data-plane listener, logs a detectable
// fallback marker, and still lands the file's bytes correctly via the
// inline control-plane path.
func TestPushTreeForceGRPCFallsBackToInline(t *testing.T) {
	moduleRoot := t.TempDir()
	log, hook := test.NewNullLogger()
	addr, stop := startTestServer(t, moduleRoot, log)
	defer stop()

	source := t.TempDir()
	content := []byte("force grpc fallback payload")
	require.NoError(t, os.WriteFile(filepath.Join(source, "note.txt"), content, 0o644))

	cc := dialTest(t, addr)
	defer cc.Close()

	complete, err := pushTreeForceGRPC(context.Background(), cc, "data", "", source)
	require.NoError(t, err)
	assert.EqualValues(t, 1, complete.CopiedFiles)
	assert.False(t, complete.UsedDataPlane)

	got, err := os.ReadFile(filepath.Join(moduleRoot, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	var sawFallback bool
	for _, entry := range hook.AllEntries() {
		if bytes.Contains([]byte(entry.Message), []byte("gRPC fallback")) {
			sawFallback = true
			break
		}
	}
	assert.True(t, sawFallback, "expected a gRPC fallback log marker")
}

// TestPullTreeMirrorPurgesStaleDestinationEntries covers spec §8 scenario
// F: a mirror pull must remove destination entries the server no longer
// has, in addition to writing what it does have.
func TestPullTreeMirrorPurgesStaleDestinationEntries(t *testing.T) {
	moduleRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(moduleRoot, "server.txt"), []byte("from-server"), 0o644))

	log, _ := test.NewNullLogger()
	addr, stop := startTestServer(t, moduleRoot, log)
	defer stop()

	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "server.txt"), []byte("stale-local-copy"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "extra.txt"), []byte("stale"), 0o644))

	cc := dialTest(t, addr)
	defer cc.Close()

	require.NoError(t, PullTree(context.Background(), cc, "data", "", dest, true))

	got, err := os.ReadFile(filepath.Join(dest, "server.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("from-server"), got)

	_, err = os.Stat(filepath.Join(dest, "extra.txt"))
	assert.True(t, os.IsNotExist(err), "extra.txt should have been purged by the mirror pull")
}

// pushTreeForceGRPC drives the same handshake as PushTree but sets
// InitPush.ForceGRPC, exercising the server's gRPC-fallback branch without
// duplicating the whole client loop inline in the test.
func pushTreeForceGRPC(ctx context.Context, cc *grpc.ClientConn, module, destPath, sourceRoot string) (*blitrpc.Complete, error) {
	return pushTree(ctx, cc, blitrpc.InitPush{
		Module:    module,
		DestPath:  destPath,
		ForceGRPC: true,
	}, sourceRoot)
}
