package vfs

import (
	"fmt"
	"io"
	"math/rand"
)

const readerChunk = 32 * 1024

// contentReader generates a file's bytes on the fly from a seeded PRNG.
// Memory use is one chunk regardless of the declared size, so a listing
// that advertises a multi-gigabyte archive can still be downloaded without
// materializing it.
type contentReader struct {
	rng       *rand.Rand
	remaining int64
	buf       []byte
	closed    bool
}

// Open returns a chunked byte stream for the file at p, sized to the
// entry's declared size. Directories and missing paths yield ErrNotFound.
func (f *FS) Open(p string) (io.ReadCloser, error) {
	entry, err := f.Stat(p)
	if err != nil {
		return nil, err
	}
	if entry.IsDir {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return f.OpenSized(p, entry.Size), nil
}

// OpenSized returns a deterministic byte stream of exactly size bytes for
// the given path. Used directly for session-created files whose declared
// size is not part of the derived tree.
func (f *FS) OpenSized(p string, size int64) io.ReadCloser {
	return &contentReader{
		rng:       f.rng(Clean(p) + "\x00content"),
		remaining: size,
		buf:       make([]byte, readerChunk),
	}
}

func (r *contentReader) Read(p []byte) (int, error) {
	if r.closed || r.remaining <= 0 {
		return 0, io.EOF
	}
	n := len(p)
	if int64(n) > r.remaining {
		n = int(r.remaining)
	}
	if n > len(r.buf) {
		n = len(r.buf)
	}
	r.rng.Read(r.buf[:n])
	copy(p, r.buf[:n])
	r.remaining -= int64(n)
	return n, nil
}

func (r *contentReader) Close() error {
	r.closed = true
	return nil
}
