package dataplane

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitxfer/blit/internal/model"
)

type memSource struct{ data map[string][]byte }

func (m memSource) Open(rel string) (io.ReadCloser, int64, error) {
	b := m.data[rel]
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func pipe(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		serverCh <- c
	}()

	client, err = net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	server = <-serverCh
	return client, server
}

func TestSendAndReadFileRecordRoundTrips(t *testing.T) {
	clientConn, serverConn := pipe(t)
	defer clientConn.Close()
	defer serverConn.Close()

	client := Accept(clientConn)
	server := Accept(serverConn)

	src := memSource{data: map[string][]byte{"a.txt": []byte("hello world")}}
	header := model.FileHeader{RelPath: "a.txt", Size: uint64(len("hello world"))}

	done := make(chan error, 1)
	go func() {
		if err := client.SendFile(src, header); err != nil {
			done <- err
			return
		}
		done <- client.Finish()
	}()

	rec, err := server.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, RecordFile, rec.Tag)
	require.NotNil(t, rec.File)
	assert.Equal(t, "a.txt", rec.File.RelPath)

	body, err := io.ReadAll(rec.File.Data)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))

	end, err := server.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, RecordEnd, end.Tag)

	require.NoError(t, <-done)
}

func TestSendAndReadTarShardRecordRoundTrips(t *testing.T) {
	clientConn, serverConn := pipe(t)
	defer clientConn.Close()
	defer serverConn.Close()

	client := Accept(clientConn)
	server := Accept(serverConn)

	headers := []model.FileHeader{
		{RelPath: "a.txt", Size: 3, Mode: 0o644},
		{RelPath: "b.txt", Size: 4, Mode: 0o644},
	}
	payload := []byte("fake-tar-bytes")

	done := make(chan error, 1)
	go func() {
		if err := client.SendTarShard(headers, payload); err != nil {
			done <- err
			return
		}
		done <- client.Finish()
	}()

	rec, err := server.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, RecordTarShard, rec.Tag)
	require.NotNil(t, rec.TarShard)
	require.Len(t, rec.TarShard.Headers, 2)
	assert.Equal(t, "a.txt", rec.TarShard.Headers[0].RelPath)
	assert.Equal(t, payload, rec.TarShard.Data)

	require.NoError(t, <-done)
}

func TestDetermineTuningScalesWithSize(t *testing.T) {
	small := DetermineTuning(10 * 1024 * 1024)
	assert.Equal(t, 16*1024*1024, small.ChunkBytes)
	assert.Equal(t, 4, small.InitialStreams)

	huge := DetermineTuning(16 * (1 << 30))
	assert.Equal(t, 64*1024*1024, huge.ChunkBytes)
	assert.Equal(t, 16, huge.InitialStreams)
	assert.Equal(t, 8*1024*1024, huge.TCPBufferBytes)
}

func TestApplyWarmupOverridesInitialStreams(t *testing.T) {
	base := DetermineTuning(10 * 1024 * 1024)
	tuned := base.ApplyWarmup(9.0)
	assert.Equal(t, 6, tuned.InitialStreams)
}
