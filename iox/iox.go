// Package iox provides I/O helpers for resource cleanup and transfer
// accounting.
package iox

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"sync/atomic"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Flush) where errors are unactionable:
//
//	defer iox.DiscardErr(w.Flush)
func DiscardErr(fn func() error) { _ = fn() }

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// CountingReader counts bytes read through it. Count may be called from
// another goroutine while reads are in progress. Seeking repositions the
// count, so a transport that rewinds the body reports progress from the
// new offset.
type CountingReader struct {
	r io.Reader
	n atomic.Int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// Seek implements io.Seeker when the wrapped reader does.
func (c *CountingReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := c.r.(io.Seeker)
	if !ok {
		return 0, errors.New("iox: underlying reader is not seekable")
	}
	pos, err := s.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	c.n.Store(pos)
	return pos, nil
}

// Count returns the number of bytes read so far.
func (c *CountingReader) Count() int64 {
	return c.n.Load()
}
