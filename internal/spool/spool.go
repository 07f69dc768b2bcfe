// Package spool stages in-flight transfers on local disk. Uploads are
// drained here chunk by chunk under the caller's deadline before anything
// touches the remote transport, so size and time limits behave the same
// regardless of which transport is active.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const chunkSize = 1 << 20 // 1 MiB reads from the inbound source

var (
	// ErrSizeLimit is returned when an upload would exceed the active
	// transport's size ceiling. The offending chunk is never written.
	ErrSizeLimit = errors.New("file exceeds transport size limit")

	// ErrDeadline is returned when the transfer budget runs out mid-stream.
	ErrDeadline = errors.New("transfer deadline exceeded")
)

// Controller spools inbound byte streams into temporary files.
type Controller struct {
	dir string
}

// New creates a spool controller rooted at dir.
func New(dir string) (*Controller, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &Controller{dir: dir}, nil
}

// Dir returns the spool directory.
func (c *Controller) Dir() string { return c.dir }

// TempPath returns a fresh path inside the spool directory for transports
// that write downloads themselves.
func (c *Controller) TempPath() string {
	return filepath.Join(c.dir, uuid.NewString()+".spool")
}

type readResult struct {
	buf []byte
	err error
}

// Spool drains r into a temporary file. Each chunk read is bounded by the
// remaining time on ctx, not a fixed per-chunk timeout, so a slow but steady
// sender is fine while the overall ceiling still holds. If limit is > 0 and
// the accumulated size would exceed it, the transfer aborts with ErrSizeLimit
// before the offending chunk is written. The partial file is removed on every
// failure path.
func (c *Controller) Spool(ctx context.Context, r io.Reader, limit int64) (path string, total int64, err error) {
	f, err := os.Create(c.TempPath())
	if err != nil {
		return "", 0, fmt.Errorf("failed to create spool file: %w", err)
	}
	path = f.Name()
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()

	chunks := make(chan readResult)
	ack := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, chunkSize)
		for {
			n, rerr := r.Read(buf)
			select {
			case chunks <- readResult{buf: buf[:n], err: rerr}:
			case <-done:
				return
			}
			if rerr != nil {
				return
			}
			// Wait for the consumer before reusing buf.
			select {
			case <-ack:
			case <-done:
				return
			}
		}
	}()

	for {
		var res readResult
		select {
		case res = <-chunks:
		case <-ctx.Done():
			return "", total, fmt.Errorf("%w after %d bytes", ErrDeadline, total)
		}

		if len(res.buf) > 0 {
			if limit > 0 && total+int64(len(res.buf)) > limit {
				return "", total, fmt.Errorf("%w (limit %d bytes)", ErrSizeLimit, limit)
			}
			if _, werr := f.Write(res.buf); werr != nil {
				return "", total, fmt.Errorf("failed to write spool file: %w", werr)
			}
			total += int64(len(res.buf))
		}

		if res.err == io.EOF {
			if serr := f.Sync(); serr != nil {
				return "", total, fmt.Errorf("failed to finalize spool file: %w", serr)
			}
			return path, total, nil
		}
		if res.err != nil {
			return "", total, fmt.Errorf("failed to read upload stream after %d bytes: %w", total, res.err)
		}

		select {
		case ack <- struct{}{}:
		case <-ctx.Done():
			return "", total, fmt.Errorf("%w after %d bytes", ErrDeadline, total)
		}
	}
}

// OpenRemoving opens a spooled file for reading; closing the returned reader
// deletes the file. Used to hand downloads to HTTP responses without leaking
// spool entries.
func OpenRemoving(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spooled file: %w", err)
	}
	return &removeOnClose{File: f}, nil
}

type removeOnClose struct {
	*os.File
}

func (r *removeOnClose) Close() error {
	err := r.File.Close()
	if rerr := os.Remove(r.File.Name()); rerr != nil && !os.IsNotExist(rerr) && err == nil {
		err = rerr
	}
	return err
}

// Sweep removes spool entries older than maxAge. Entries still in flight are
// younger than any sane maxAge; the server runs this periodically to catch
// files orphaned by crashes.
func (c *Controller) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".spool" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
