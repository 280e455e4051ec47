package tiff

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
)

// headerWriter appends little-endian values to a byte slice.
type headerWriter struct {
	buf []byte
}

func (w *headerWriter) u16(v uint16) {
	w.buf = append(w.buf, byte(v), byte(v>>8))
}

func (w *headerWriter) u32(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (w *headerWriter) pad(to uint32) {
	for uint32(len(w.buf)) < to {
		w.buf = append(w.buf, 0)
	}
}

// Header returns every byte of the file that precedes the pixel payload.
func Header(width, height int, dpi uint32) ([]byte, error) {
	l, err := ComputeLayout(width, height)
	if err != nil {
		return nil, err
	}

	w := &headerWriter{buf: make([]byte, 0, l.PixelOffset)}
	w.buf = append(w.buf, byteOrderLE...)
	w.u16(version)
	w.u32(l.IFDOffset)

	es := entries(width, height, l)
	w.u16(uint16(len(es)))
	for _, e := range es {
		w.u16(e.Tag)
		w.u16(e.Type)
		w.u32(e.Count)
		w.u32(e.Value)
	}
	w.u32(0)

	w.pad(l.XResOffset)
	w.u32(dpi)
	w.u32(1)
	w.u32(dpi)
	w.u32(1)
	return w.buf, nil
}

// Encode writes img as a single-strip grayscale TIFF to w. Rows are taken
// from img.Bounds(), so sub-images encode correctly.
func Encode(w io.Writer, img *image.Gray, dpi uint32) error {
	b := img.Bounds()
	hdr, err := Header(b.Dx(), b.Dy(), dpi)
	if err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := w.Write(img.Pix[off : off+b.Dx()]); err != nil {
			return fmt.Errorf("write row %d: %w", y-b.Min.Y, err)
		}
	}
	return nil
}

// WriteFile encodes img to d.Path. If any write fails the partial file is
// removed. d.Width and d.Height must match img when they are set.
func WriteFile(d Descriptor, img *image.Gray) (err error) {
	b := img.Bounds()
	if (d.Width != 0 || d.Height != 0) && (d.Width != b.Dx() || d.Height != b.Dy()) {
		return fmt.Errorf("tiff: descriptor %dx%d does not match image %dx%d", d.Width, d.Height, b.Dx(), b.Dy())
	}
	if _, err := ComputeLayout(b.Dx(), b.Dy()); err != nil {
		return err
	}
	dpi := d.DPI
	if dpi == 0 {
		dpi = DefaultDPI
	}

	f, err := os.Create(d.Path)
	if err != nil {
		return fmt.Errorf("create %s: %w", d.Path, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(d.Path)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := Encode(bw, img, dpi); err != nil {
		return fmt.Errorf("encode %s: %w", d.Path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", d.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", d.Path, err)
	}
	return nil
}
