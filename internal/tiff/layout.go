// Package tiff writes and reads the single-strip, uncompressed, 8-bit
// grayscale little-endian TIFF subset produced by the renderer.
package tiff

import (
	"errors"
	"math"
	"strconv"
)

const (
	byteOrderLE = "II"
	version     = 42

	headerSize = 8
	entrySize  = 12
	numEntries = 13
	rationalSz = 8

	// DefaultDPI is used by WriteFile when the descriptor leaves DPI unset.
	DefaultDPI = 96
)

// Field types used by the directory.
const (
	TypeShort    uint16 = 3
	TypeLong     uint16 = 4
	TypeRational uint16 = 5
)

// Tags written to the directory, in the order they are emitted.
const (
	TagImageWidth      uint16 = 256
	TagImageLength     uint16 = 257
	TagBitsPerSample   uint16 = 258
	TagCompression     uint16 = 259
	TagPhotometric     uint16 = 262
	TagStripOffsets    uint16 = 273
	TagSamplesPerPixel uint16 = 277
	TagRowsPerStrip    uint16 = 278
	TagStripByteCounts uint16 = 279
	TagXResolution     uint16 = 282
	TagYResolution     uint16 = 283
	TagResolutionUnit  uint16 = 296
	TagSampleFormat    uint16 = 339
)

var (
	// ErrInvalidHeader is returned by ReadInfo for anything that is not a
	// little-endian classic TIFF.
	ErrInvalidHeader = errors.New("tiff: invalid header")
	// ErrTooLarge is returned when the payload does not fit a 32-bit offset.
	ErrTooLarge = errors.New("tiff: image too large for 32-bit offsets")
)

// Descriptor names an output file and the metadata written into it.
type Descriptor struct {
	Width  int
	Height int
	DPI    uint32
	Path   string
}

// Entry is one 12-byte directory record. SHORT values occupy the low half
// of Value, which is the same byte layout as writing Value little-endian.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Value uint32
}

// Layout holds the byte offsets of every region in the file.
type Layout struct {
	IFDOffset     uint32
	NextIFDOffset uint32
	XResOffset    uint32
	YResOffset    uint32
	PixelOffset   uint32
	PixelBytes    uint32
	FileSize      int64
}

// ComputeLayout returns the offsets for a width x height image.
func ComputeLayout(width, height int) (Layout, error) {
	if width < 0 || height < 0 {
		return Layout{}, errors.New("tiff: negative width or height")
	}
	ifd := uint32(headerSize)
	next := ifd + 2 + numEntries*entrySize
	xres := align4(next + 4)
	yres := xres + rationalSz
	pix := yres + rationalSz

	n := int64(width) * int64(height)
	if width > 0 && int64(height) > math.MaxInt64/int64(width) || n > math.MaxUint32-int64(pix) {
		return Layout{}, ErrTooLarge
	}
	return Layout{
		IFDOffset:     ifd,
		NextIFDOffset: next,
		XResOffset:    xres,
		YResOffset:    yres,
		PixelOffset:   pix,
		PixelBytes:    uint32(n),
		FileSize:      int64(pix) + n,
	}, nil
}

func align4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// entries builds the directory for the given layout, tag-ascending.
func entries(width, height int, l Layout) []Entry {
	return []Entry{
		{TagImageWidth, TypeLong, 1, uint32(width)},
		{TagImageLength, TypeLong, 1, uint32(height)},
		{TagBitsPerSample, TypeShort, 1, 8},
		{TagCompression, TypeShort, 1, 1},
		{TagPhotometric, TypeShort, 1, 1},
		{TagStripOffsets, TypeLong, 1, l.PixelOffset},
		{TagSamplesPerPixel, TypeShort, 1, 1},
		{TagRowsPerStrip, TypeLong, 1, uint32(height)},
		{TagStripByteCounts, TypeLong, 1, l.PixelBytes},
		{TagXResolution, TypeRational, 1, l.XResOffset},
		{TagYResolution, TypeRational, 1, l.YResOffset},
		{TagResolutionUnit, TypeShort, 1, 1},
		{TagSampleFormat, TypeShort, 1, 1},
	}
}

var tagNames = map[uint16]string{
	TagImageWidth:      "ImageWidth",
	TagImageLength:     "ImageLength",
	TagBitsPerSample:   "BitsPerSample",
	TagCompression:     "Compression",
	TagPhotometric:     "PhotometricInterpretation",
	TagStripOffsets:    "StripOffsets",
	TagSamplesPerPixel: "SamplesPerPixel",
	TagRowsPerStrip:    "RowsPerStrip",
	TagStripByteCounts: "StripByteCounts",
	TagXResolution:     "XResolution",
	TagYResolution:     "YResolution",
	TagResolutionUnit:  "ResolutionUnit",
	TagSampleFormat:    "SampleFormat",
}

// TagName returns the name of a known tag, or "Tag(n)".
func TagName(tag uint16) string {
	if name, ok := tagNames[tag]; ok {
		return name
	}
	return "Tag(" + strconv.Itoa(int(tag)) + ")"
}

// TypeName returns the name of a field type, or "Type(n)".
func TypeName(typ uint16) string {
	switch typ {
	case TypeShort:
		return "SHORT"
	case TypeLong:
		return "LONG"
	case TypeRational:
		return "RATIONAL"
	default:
		return "Type(" + strconv.Itoa(int(typ)) + ")"
	}
}
