package tiff

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Info is the metadata recovered from a container by ReadInfo.
type Info struct {
	ByteOrder      string
	Version        uint16
	Width          int
	Height         int
	BitsPerSample  uint16
	XDPI           uint32
	YDPI           uint32
	StripOffset    uint32
	StripByteCount uint32
	Entries        []Entry
}

// ReadInfo parses the header and first directory of a little-endian TIFF.
// Only the tags written by Encode are interpreted; others are kept in
// Entries untouched.
func ReadInfo(r io.ReaderAt, size int64) (Info, error) {
	var hdr [headerSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if string(hdr[:2]) != byteOrderLE {
		return Info{}, fmt.Errorf("%w: byte order %q", ErrInvalidHeader, hdr[:2])
	}
	le := binary.LittleEndian
	info := Info{
		ByteOrder: byteOrderLE,
		Version:   le.Uint16(hdr[2:]),
	}
	if info.Version != version {
		return Info{}, fmt.Errorf("%w: version %d", ErrInvalidHeader, info.Version)
	}

	ifd := int64(le.Uint32(hdr[4:]))
	var cnt [2]byte
	if _, err := r.ReadAt(cnt[:], ifd); err != nil {
		return Info{}, fmt.Errorf("read entry count at %d: %w", ifd, err)
	}
	n := int(le.Uint16(cnt[:]))
	if ifd+2+int64(n)*entrySize > size {
		return Info{}, fmt.Errorf("%w: directory of %d entries overruns file", ErrInvalidHeader, n)
	}
	raw := make([]byte, n*entrySize)
	if _, err := r.ReadAt(raw, ifd+2); err != nil {
		return Info{}, fmt.Errorf("read directory: %w", err)
	}

	info.Entries = make([]Entry, n)
	for i := range info.Entries {
		b := raw[i*entrySize:]
		e := Entry{
			Tag:   le.Uint16(b[0:]),
			Type:  le.Uint16(b[2:]),
			Count: le.Uint32(b[4:]),
			Value: le.Uint32(b[8:]),
		}
		if e.Type == TypeShort {
			e.Value &= 0xFFFF
		}
		info.Entries[i] = e

		var err error
		switch e.Tag {
		case TagImageWidth:
			info.Width = int(e.Value)
		case TagImageLength:
			info.Height = int(e.Value)
		case TagBitsPerSample:
			info.BitsPerSample = uint16(e.Value)
		case TagStripOffsets:
			info.StripOffset = e.Value
		case TagStripByteCounts:
			info.StripByteCount = e.Value
		case TagXResolution:
			info.XDPI, err = readRational(r, e)
		case TagYResolution:
			info.YDPI, err = readRational(r, e)
		}
		if err != nil {
			return Info{}, err
		}
	}

	if int64(info.StripOffset)+int64(info.StripByteCount) > size {
		return Info{}, fmt.Errorf("%w: strip [%d,+%d) beyond %d bytes", ErrInvalidHeader, info.StripOffset, info.StripByteCount, size)
	}
	return info, nil
}

func readRational(r io.ReaderAt, e Entry) (uint32, error) {
	if e.Type != TypeRational {
		return 0, fmt.Errorf("%w: tag %d has type %d, want RATIONAL", ErrInvalidHeader, e.Tag, e.Type)
	}
	var b [rationalSz]byte
	if _, err := r.ReadAt(b[:], int64(e.Value)); err != nil {
		return 0, fmt.Errorf("read rational for tag %d: %w", e.Tag, err)
	}
	num := binary.LittleEndian.Uint32(b[0:])
	den := binary.LittleEndian.Uint32(b[4:])
	if den == 0 {
		return 0, fmt.Errorf("%w: tag %d has zero denominator", ErrInvalidHeader, e.Tag)
	}
	return num / den, nil
}
