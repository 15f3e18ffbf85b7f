package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	HeaderSize   = 15
	PairSize     = 3
	CRCSize      = 4
	MinFrameSize = HeaderSize + CRCSize
	// MaxFrameSize is exclusive: a frame must be smaller than this.
	MaxFrameSize = 65535

	// MaxPairs is the largest payload that still packs.
	MaxPairs = (MaxFrameSize - 1 - MinFrameSize) / PairSize
)

// Magic starts every frame.
var Magic = [3]byte{0xB0, 0x3B, 0x7E}

// crcTable is CRC-32/ISO-HDLC (reflected 0xEDB88320), built once.
var crcTable = crc32.MakeTable(crc32.IEEE)

var (
	ErrFrameTooLarge     = errors.New("frame exceeds 65534 bytes")
	ErrSmallPackage      = errors.New("buffer shorter than frame")
	ErrWrongHeaderID     = errors.New("frame magic B0 3B 7E not found")
	ErrWrongCRC          = errors.New("frame CRC mismatch")
	ErrUnknownDataSource = errors.New("unknown data source")
	ErrUnknownDataType   = errors.New("unknown data type")
	ErrUnpack            = errors.New("unpack failed")
)

// UnpackStatus classifies the outcome of Unpack.
type UnpackStatus uint8

const (
	StatusUnknownError UnpackStatus = iota
	StatusSuccess
	StatusWrongCRC
	StatusWrongHeaderID
	StatusUnknownDataSource
	StatusUnknownDataType
	StatusSmallPackageSize
)

var statusNames = [...]string{
	StatusUnknownError:      "UnknownError",
	StatusSuccess:           "Success",
	StatusWrongCRC:          "WrongCrc",
	StatusWrongHeaderID:     "WrongHeaderId",
	StatusUnknownDataSource: "UnknownDataSource",
	StatusUnknownDataType:   "UnknownDataType",
	StatusSmallPackageSize:  "SmallPackageSize",
}

func (s UnpackStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("UnpackStatus(%d)", uint8(s))
}

func (s UnpackStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Err returns nil for StatusSuccess and a sentinel error otherwise.
func (s UnpackStatus) Err() error {
	switch s {
	case StatusSuccess:
		return nil
	case StatusWrongCRC:
		return ErrWrongCRC
	case StatusWrongHeaderID:
		return ErrWrongHeaderID
	case StatusUnknownDataSource:
		return ErrUnknownDataSource
	case StatusUnknownDataType:
		return ErrUnknownDataType
	case StatusSmallPackageSize:
		return ErrSmallPackage
	}
	return ErrUnpack
}

// Checksum computes the frame CRC over b.
func Checksum(b []byte) uint32 {
	return crc32.Checksum(b, crcTable)
}

// FrameSize returns the encoded size of a frame carrying n pairs.
func FrameSize(n int) int {
	return HeaderSize + PairSize*n + CRCSize
}

// Pack encodes p into a new buffer.
func Pack(p Package) ([]byte, error) {
	return AppendPack(nil, p)
}

// AppendPack encodes p and appends it to dst. On error dst is returned
// unchanged.
func AppendPack(dst []byte, p Package) ([]byte, error) {
	size := FrameSize(len(p.Pairs))
	if size >= MaxFrameSize {
		return dst, fmt.Errorf("%d pairs: %w", len(p.Pairs), ErrFrameTooLarge)
	}
	start := len(dst)
	dst = append(dst, make([]byte, size)...)
	frame := dst[start:]

	copy(frame[0:3], Magic[:])
	binary.LittleEndian.PutUint16(frame[3:5], uint16(size))
	frame[5] = byte(p.Header.Source)
	frame[6] = byte(p.Header.Type)
	binary.LittleEndian.PutUint32(frame[7:11], p.Header.BoardNumber)
	// bytes 11..14 are reserved and stay zero

	off := HeaderSize
	for _, pr := range p.Pairs {
		frame[off] = byte(pr.Key)
		binary.LittleEndian.PutUint16(frame[off+1:off+3], pr.Value)
		off += PairSize
	}
	binary.LittleEndian.PutUint32(frame[size-CRCSize:], Checksum(frame[:size-CRCSize]))
	return dst, nil
}

// Unpack decodes the frame starting at buf[offset:]. On success next is the
// offset just past the frame, so back-to-back frames can be read by feeding
// next back in. On any failure next is len(buf) and the returned Package has
// an unknown header. Unpack does not retain buf.
func Unpack(buf []byte, offset int) (p Package, next int, status UnpackStatus) {
	fail := func(s UnpackStatus) (Package, int, UnpackStatus) {
		return Package{Header: Header{Source: SourceUnknown, Type: TypeUnknown}}, len(buf), s
	}
	if offset < 0 || offset > len(buf) || len(buf)-offset < MinFrameSize {
		return fail(StatusSmallPackageSize)
	}
	b := buf[offset:]
	if b[0] != Magic[0] || b[1] != Magic[1] || b[2] != Magic[2] {
		return fail(StatusWrongHeaderID)
	}
	size := int(binary.LittleEndian.Uint16(b[3:5]))
	if size > len(b) || size < MinFrameSize {
		return fail(StatusSmallPackageSize)
	}
	want := binary.LittleEndian.Uint32(b[size-CRCSize : size])
	if Checksum(b[:size-CRCSize]) != want {
		return fail(StatusWrongCRC)
	}

	p.Header = Header{
		Source:      ParseDataSource(b[5]),
		Type:        ParseDataType(b[6]),
		BoardNumber: binary.LittleEndian.Uint32(b[7:11]),
	}
	n := (size - MinFrameSize) / PairSize
	p.Pairs = make([]Pair, n)
	for i := range p.Pairs {
		at := HeaderSize + i*PairSize
		p.Pairs[i] = Pair{Key: DataKey(b[at]), Value: binary.LittleEndian.Uint16(b[at+1 : at+3])}
	}
	return p, offset + size, StatusSuccess
}

// UnpackAll decodes consecutive frames from buf. Scanning stops at the first
// failure, whose status is returned with the frames decoded before it.
// A fully consumed buffer reports StatusSuccess.
func UnpackAll(buf []byte) ([]Package, UnpackStatus) {
	var out []Package
	for off := 0; off < len(buf); {
		p, next, st := Unpack(buf, off)
		if st != StatusSuccess {
			return out, st
		}
		out = append(out, p)
		off = next
	}
	return out, StatusSuccess
}
