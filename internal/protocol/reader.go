package protocol

import (
	"bytes"
	"errors"
	"io"
	"os"

	"example.com/gflink/internal/common"
)

const (
	defaultResyncWindow = 64 * 1024
	minBlockSize        = 1 << 20
)

// ErrNoSync is returned when no frame magic is found within the resync
// window.
var ErrNoSync = errors.New("frame magic B0 3B 7E not found within resync window")

// FrameIndex locates one frame, or one rejected frame, in a capture.
type FrameIndex struct {
	Offset int64        `json:"offset"`
	Size   int          `json:"size"`
	Header Header       `json:"header"`
	Pairs  int          `json:"pairs"`
	Status UnpackStatus `json:"status"`
}

// CaptureIndex accumulates what a Reader has seen.
type CaptureIndex struct {
	Frames  []FrameIndex `json:"frames"`
	Rejects []FrameIndex `json:"rejects"`
	Resyncs int          `json:"resyncs"`
	Skipped int64        `json:"skippedBytes"`
}

// blockSource serves windows of a file from a reusable read buffer.
type blockSource struct {
	file     *os.File
	size     int64
	buf      []byte
	bufStart int64
	bufLen   int
}

func newBlockSource(f *os.File, size int64) *blockSource {
	return &blockSource{file: f, size: size, buf: make([]byte, minBlockSize)}
}

// slice returns up to length bytes at offset. The view is only valid until
// the next call.
func (bs *blockSource) slice(offset int64, length int) ([]byte, error) {
	if bs.file == nil {
		return nil, io.EOF
	}
	if offset >= bs.size {
		return nil, io.EOF
	}
	if rem := bs.size - offset; int64(length) > rem {
		length = int(rem)
	}
	if offset >= bs.bufStart && offset+int64(length) <= bs.bufStart+int64(bs.bufLen) {
		start := int(offset - bs.bufStart)
		return bs.buf[start : start+length], nil
	}
	if length > len(bs.buf) {
		bs.buf = make([]byte, length)
	}
	toRead := len(bs.buf)
	if rem := bs.size - offset; int64(toRead) > rem {
		toRead = int(rem)
	}
	n, err := bs.file.ReadAt(bs.buf[:toRead], offset)
	if err != nil && !errors.Is(err, io.EOF) {
		bs.bufLen = 0
		return nil, err
	}
	bs.bufStart = offset
	bs.bufLen = n
	if n < length {
		length = n
	}
	return bs.buf[:length], nil
}

func (bs *blockSource) Close() error {
	if bs.file == nil {
		return nil
	}
	err := bs.file.Close()
	bs.file = nil
	bs.buf = nil
	return err
}

// Reader iterates the frames of a capture file: back-to-back frames as
// written by Pack, possibly with garbage or damaged frames in between.
type Reader struct {
	source       *blockSource
	size         int64
	offset       int64
	resyncWindow int

	metrics *common.Metrics
	index   CaptureIndex
}

// NewReader opens the capture at path.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		source:       newBlockSource(f, info.Size()),
		size:         info.Size(),
		resyncWindow: defaultResyncWindow,
	}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if r.source == nil {
		return nil
	}
	err := r.source.Close()
	r.source = nil
	return err
}

// SetMetrics attaches a metrics recorder to the reader.
func (r *Reader) SetMetrics(m *common.Metrics) {
	r.metrics = m
	if r.metrics != nil {
		r.metrics.SetTotalBytes(r.size)
	}
}

// Index returns a copy of the accumulated capture index.
func (r *Reader) Index() CaptureIndex {
	out := CaptureIndex{
		Frames:  make([]FrameIndex, len(r.index.Frames)),
		Rejects: make([]FrameIndex, len(r.index.Rejects)),
		Resyncs: r.index.Resyncs,
		Skipped: r.index.Skipped,
	}
	copy(out.Frames, r.index.Frames)
	copy(out.Rejects, r.index.Rejects)
	return out
}

// Next returns the next valid frame. Damaged frames are recorded in the
// index and skipped by resynchronising on the frame magic. It returns io.EOF
// at the end of the capture.
func (r *Reader) Next() (Package, FrameIndex, error) {
	if r.source == nil {
		return Package{}, FrameIndex{}, io.EOF
	}
	for {
		if r.offset >= r.size {
			return Package{}, FrameIndex{}, io.EOF
		}
		view, err := r.source.slice(r.offset, MaxFrameSize)
		if err != nil {
			return Package{}, FrameIndex{}, err
		}
		pkg, next, status := Unpack(view, 0)
		if status != StatusSuccess {
			r.reject(status)
			if err := r.resync(status.String()); err != nil {
				return Package{}, FrameIndex{}, err
			}
			continue
		}
		idx := FrameIndex{
			Offset: r.offset,
			Size:   next,
			Header: pkg.Header,
			Pairs:  len(pkg.Pairs),
			Status: status,
		}
		r.index.Frames = append(r.index.Frames, idx)
		if r.metrics != nil {
			r.metrics.AddFrame(int64(next), len(pkg.Pairs))
		}
		r.offset += int64(next)
		return pkg, idx, nil
	}
}

func (r *Reader) reject(status UnpackStatus) {
	idx := FrameIndex{Offset: r.offset, Status: status, Header: Header{Source: SourceUnknown, Type: TypeUnknown}}
	if status == StatusWrongCRC {
		// magic and size were fine; keep what the header claimed
		if view, err := r.source.slice(r.offset, HeaderSize); err == nil && len(view) == HeaderSize {
			idx.Size = int(view[3]) | int(view[4])<<8
			idx.Header.Source = ParseDataSource(view[5])
			idx.Header.Type = ParseDataType(view[6])
		}
	}
	r.index.Rejects = append(r.index.Rejects, idx)
	if r.metrics != nil {
		r.metrics.IncReject(status.String())
	}
}

// resync advances the offset to the next frame magic after the current
// offset, searching at most resyncWindow bytes.
func (r *Reader) resync(reason string) error {
	common.Logf("resync at offset %d: %s", r.offset, reason)
	r.index.Resyncs++
	if r.metrics != nil {
		r.metrics.IncResync()
	}
	orig := r.offset
	start := r.offset + 1
	if start >= r.size {
		r.skipTo(orig, r.size)
		return io.EOF
	}
	window, err := r.source.slice(start, r.resyncWindow)
	if err != nil {
		return err
	}
	if i := bytes.Index(window, Magic[:]); i >= 0 {
		r.skipTo(orig, start+int64(i))
		common.Logf("resync successful, new offset %d", r.offset)
		return nil
	}
	// keep the last two bytes so a magic split across windows is found
	end := start + int64(len(window))
	if end >= r.size {
		r.skipTo(orig, r.size)
		return io.EOF
	}
	r.skipTo(orig, end-int64(len(Magic)-1))
	return ErrNoSync
}

func (r *Reader) skipTo(orig, offset int64) {
	r.offset = offset
	if offset > orig {
		r.index.Skipped += offset - orig
		if r.metrics != nil {
			r.metrics.AddBytes(offset - orig)
		}
	}
}

// ScanFile reads every frame of the capture at path and returns its index.
func ScanFile(path string) (CaptureIndex, error) {
	r, err := NewReader(path)
	if err != nil {
		return CaptureIndex{}, err
	}
	defer r.Close()
	for {
		_, _, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Index(), nil
		}
		if errors.Is(err, ErrNoSync) {
			continue
		}
		if err != nil {
			return r.Index(), err
		}
	}
}
