// Package archive records link traffic to capture files and ships finished
// captures to object storage.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"example.com/gflink/internal/common"
	"example.com/gflink/internal/protocol"
)

var ErrClosed = errors.New("recorder closed")

// Recorder is a link.Handler that appends every frame it receives to a
// capture file. The file reads back with protocol.NewReader.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	buf    []byte
	frames int64
	bytes  int64
	err    error
}

// CaptureName names a capture started at t.
func CaptureName(t time.Time) string {
	return "capture-" + t.UTC().Format("20060102T150405Z") + ".gfl"
}

// NewRecorder creates a capture file in dir named after now.
func NewRecorder(dir string, now time.Time) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture dir: %w", err)
	}
	path := filepath.Join(dir, CaptureName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Recorder{f: f, path: path}, nil
}

// HandleFrame appends raw unchanged, so the capture holds the bytes the peer
// sent even where decoding folded unknown header values.
func (r *Recorder) HandleFrame(_ protocol.Package, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write(raw)
}

// HandlePackage packs pkg and appends it. It serves frames that did not come
// off the wire. The first write error is kept and returned by Close; later
// frames are dropped.
func (r *Recorder) HandlePackage(pkg protocol.Package) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil || r.err != nil {
		return
	}
	var err error
	r.buf, err = protocol.AppendPack(r.buf[:0], pkg)
	if err != nil {
		common.Logf("capture %s: %s: %v", r.path, pkg.Header, err)
		return
	}
	r.write(r.buf)
}

// write must be called with r.mu held.
func (r *Recorder) write(frame []byte) {
	if r.f == nil || r.err != nil {
		return
	}
	n, err := r.f.Write(frame)
	r.bytes += int64(n)
	if err != nil {
		r.err = err
		common.Logf("capture %s: write: %v", r.path, err)
		return
	}
	r.frames++
}

func (r *Recorder) Path() string { return r.path }

// Stats returns the frames and bytes written so far.
func (r *Recorder) Stats() (frames, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames, r.bytes
}

// Close flushes and closes the capture file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ErrClosed
	}
	err := r.f.Sync()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	r.f = nil
	if r.err != nil {
		return r.err
	}
	return err
}
