// Package dataplane implements the raw TCP data plane of §4.8: a framed
// stream of file and tar-shard records, opened once the control plane has
// negotiated a host, port and token. Every record begins with a one-byte
// tag, all integers are big-endian, and the stream ends with a single
// terminator byte.
package dataplane

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/blitxfer/blit/internal/model"
)

const (
	RecordFile     byte = 0x00
	RecordTarShard byte = 0x01
	RecordEnd      byte = 0xFF
)

// defaultChunkBytes is the SendFile copy-loop buffer size used until a
// caller replaces it with SetChunkSize, typically from DetermineTuning.
const defaultChunkBytes = 64 * 1024

// Session wraps a connected TCP socket with the buffered read/write sides
// the record framing needs.
type Session struct {
	conn      net.Conn
	w         *bufio.Writer
	r         *bufio.Reader
	chunkSize int
}

// Dial connects to host:port and writes the negotiation token as the first
// bytes on the wire, the handshake the control plane's Accept message
// promises the server will expect.
func Dial(host string, port uint32, token []byte) (*Session, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dataplane: connecting to %s:%d: %w", host, port, err)
	}
	s := &Session{conn: conn, w: bufio.NewWriterSize(conn, 64*1024), r: bufio.NewReaderSize(conn, 64*1024), chunkSize: defaultChunkBytes}
	if _, err := s.w.Write(token); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dataplane: writing negotiation token: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dataplane: flushing negotiation token: %w", err)
	}
	return s, nil
}

// Accept wraps an already-accepted server-side connection after the caller
// has read and verified the negotiation token prefix.
func Accept(conn net.Conn) *Session {
	return &Session{conn: conn, w: bufio.NewWriterSize(conn, 64*1024), r: bufio.NewReaderSize(conn, 64*1024), chunkSize: defaultChunkBytes}
}

func (s *Session) Close() error { return s.conn.Close() }

// SetChunkSize sets the SendFile copy-loop buffer to n bytes, the hook
// callers use to apply DetermineTuning's ChunkBytes once the transfer's
// total size is known. n <= 0 is ignored.
func (s *Session) SetChunkSize(n int) {
	if n > 0 {
		s.chunkSize = n
	}
}

func writeU32(w *bufio.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU64(w *bufio.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r *bufio.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r *bufio.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// FileSource supplies the bytes of a file named by its relative path, the
// caller-side equivalent of opening source_root.join(rel) in the reference
// implementation.
type FileSource interface {
	Open(relPath string) (io.ReadCloser, int64, error)
}

// SendFile writes one RecordFile frame: tag, path length, path, size, then
// the file's bytes. header.Size must match what FileSource reports; a
// mismatch is treated as the source having changed underfoot and aborts the
// whole session, matching §3's rule that a size mismatch is a hard failure.
func (s *Session) SendFile(src FileSource, header model.FileHeader) error {
	pathBytes := []byte(header.RelPath)
	if len(pathBytes) > int(^uint32(0)) {
		return fmt.Errorf("dataplane: relative path too long: %s", header.RelPath)
	}

	if err := s.w.WriteByte(RecordFile); err != nil {
		return err
	}
	if err := writeU32(s.w, uint32(len(pathBytes))); err != nil {
		return err
	}
	if _, err := s.w.Write(pathBytes); err != nil {
		return err
	}

	rc, size, err := src.Open(header.RelPath)
	if err != nil {
		return fmt.Errorf("dataplane: opening %s: %w", header.RelPath, err)
	}
	defer rc.Close()

	if uint64(size) != header.Size {
		return fmt.Errorf("dataplane: source file %s changed size (expected %d, found %d)", header.RelPath, header.Size, size)
	}
	if err := writeU64(s.w, uint64(size)); err != nil {
		return err
	}

	remaining := size
	buf := make([]byte, s.chunkSize)
	for remaining > 0 {
		n, err := rc.Read(buf)
		if n > 0 {
			if _, werr := s.w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("dataplane: sending %s: %w", header.RelPath, werr)
			}
			remaining -= int64(n)
		}
		if err != nil {
			if err == io.EOF {
				if remaining > 0 {
					return fmt.Errorf("dataplane: unexpected EOF reading %s (%d bytes remaining)", header.RelPath, remaining)
				}
				break
			}
			return fmt.Errorf("dataplane: reading %s: %w", header.RelPath, err)
		}
	}
	return nil
}

// SendTarShard writes one RecordTarShard frame: tag, header count, each
// header's (path length, path, size, mtime, mode), then the shard's byte
// length and payload. The payload is supplied by the caller and written
// as-is, so this package stays transport-only.
func (s *Session) SendTarShard(headers []model.FileHeader, data []byte) error {
	if err := s.w.WriteByte(RecordTarShard); err != nil {
		return err
	}
	if err := writeU32(s.w, uint32(len(headers))); err != nil {
		return err
	}
	for _, h := range headers {
		relBytes := []byte(h.RelPath)
		if len(relBytes) > int(^uint32(0)) {
			return fmt.Errorf("dataplane: relative path too long: %s", h.RelPath)
		}
		if err := writeU32(s.w, uint32(len(relBytes))); err != nil {
			return err
		}
		if _, err := s.w.Write(relBytes); err != nil {
			return err
		}
		if err := writeU64(s.w, h.Size); err != nil {
			return err
		}
		if err := writeU64(s.w, uint64(h.MTime)); err != nil {
			return err
		}
		if err := writeU32(s.w, uint32(h.Mode)); err != nil {
			return err
		}
	}
	if err := writeU64(s.w, uint64(len(data))); err != nil {
		return err
	}
	_, err := s.w.Write(data)
	return err
}

// Finish writes the RecordEnd terminator and flushes the socket buffer.
func (s *Session) Finish() error {
	if err := s.w.WriteByte(RecordEnd); err != nil {
		return err
	}
	return s.w.Flush()
}

// Flush pushes any buffered record bytes to the socket without terminating
// the session, useful between records in a long-running transfer.
func (s *Session) Flush() error { return s.w.Flush() }

// TarShardHeader mirrors the wire-level per-file header inside a tar shard
// record.
type TarShardHeader struct {
	RelPath string
	Size    uint64
	MTime   int64
	Mode    uint32
}

// Record is the decoded form of one frame read off the wire.
type Record struct {
	Tag        byte
	File       *FileRecord
	TarShard   *TarShardRecord
}

type FileRecord struct {
	RelPath string
	Size    uint64
	Data    io.Reader // bounded to exactly Size bytes
}

type TarShardRecord struct {
	Headers []TarShardHeader
	Data    []byte
}

// ReadRecord decodes the next frame. Callers must fully drain FileRecord.Data
// before calling ReadRecord again, since both share the session's buffered
// reader.
func (s *Session) ReadRecord() (*Record, error) {
	tag, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case RecordEnd:
		return &Record{Tag: tag}, nil
	case RecordFile:
		pathLen, err := readU32(s.r)
		if err != nil {
			return nil, err
		}
		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(s.r, pathBytes); err != nil {
			return nil, err
		}
		size, err := readU64(s.r)
		if err != nil {
			return nil, err
		}
		return &Record{Tag: tag, File: &FileRecord{
			RelPath: string(pathBytes),
			Size:    size,
			Data:    io.LimitReader(s.r, int64(size)),
		}}, nil
	case RecordTarShard:
		count, err := readU32(s.r)
		if err != nil {
			return nil, err
		}
		headers := make([]TarShardHeader, 0, count)
		for i := uint32(0); i < count; i++ {
			pathLen, err := readU32(s.r)
			if err != nil {
				return nil, err
			}
			pathBytes := make([]byte, pathLen)
			if _, err := io.ReadFull(s.r, pathBytes); err != nil {
				return nil, err
			}
			size, err := readU64(s.r)
			if err != nil {
				return nil, err
			}
			mtime, err := readU64(s.r)
			if err != nil {
				return nil, err
			}
			mode, err := readU32(s.r)
			if err != nil {
				return nil, err
			}
			headers = append(headers, TarShardHeader{RelPath: string(pathBytes), Size: size, MTime: int64(mtime), Mode: mode})
		}
		dataLen, err := readU64(s.r)
		if err != nil {
			return nil, err
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(s.r, data); err != nil {
			return nil, err
		}
		return &Record{Tag: tag, TarShard: &TarShardRecord{Headers: headers, Data: data}}, nil
	default:
		return nil, fmt.Errorf("dataplane: unknown record tag 0x%02x", tag)
	}
}
