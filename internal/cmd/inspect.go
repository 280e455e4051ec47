package cmd

import (
	"fmt"
	"image"
	"io"
	"os"

	"github.com/spf13/cobra"
	xtiff "golang.org/x/image/tiff"

	"github.com/MeKo-Tech/noysway/internal/tiff"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.tif>",
	Short: "Print the header and directory of a TIFF file",
	Long: `Print the byte order, version, directory entries and resolution of a
TIFF file. With --decode the pixels are also decoded and summarized.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().Bool("decode", false, "Decode the pixels and print min, max and mean intensity")
}

func runInspect(cmd *cobra.Command, args []string) error {
	decode, err := cmd.Flags().GetBool("decode")
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", args[0], err)
	}

	info, err := tiff.ReadInfo(f, st.Size())
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	printInfo(out, args[0], st.Size(), info)

	if !decode {
		return nil
	}
	if info.Width == 0 || info.Height == 0 {
		fmt.Fprintln(out, "Pixels:      none")
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	img, err := xtiff.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", args[0], err)
	}
	lo, hi, mean := intensityStats(img)
	fmt.Fprintf(out, "Pixels:      min %d, max %d, mean %.2f\n", lo, hi, mean)
	return nil
}

func printInfo(w io.Writer, name string, size int64, info tiff.Info) {
	fmt.Fprintf(w, "File:        %s (%d bytes)\n", name, size)
	fmt.Fprintf(w, "Byte order:  %s\n", info.ByteOrder)
	fmt.Fprintf(w, "Version:     %d\n", info.Version)
	fmt.Fprintf(w, "Size:        %dx%d, %d bits per sample\n", info.Width, info.Height, info.BitsPerSample)
	fmt.Fprintf(w, "Resolution:  %d x %d dpi\n", info.XDPI, info.YDPI)
	fmt.Fprintf(w, "Strip:       offset %d, %d bytes\n", info.StripOffset, info.StripByteCount)
	fmt.Fprintf(w, "Entries:     %d\n", len(info.Entries))
	for _, e := range info.Entries {
		fmt.Fprintf(w, "  %5d %-26s %-8s count=%d value=%d\n",
			e.Tag, tiff.TagName(e.Tag), tiff.TypeName(e.Type), e.Count, e.Value)
	}
}

// intensityStats returns the min, max and mean gray level of img.
func intensityStats(img image.Image) (lo, hi uint8, mean float64) {
	b := img.Bounds()
	lo = 255
	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			v := uint8(r >> 8)
			lo = min(lo, v)
			hi = max(hi, v)
			sum += uint64(v)
		}
	}
	return lo, hi, float64(sum) / float64(b.Dx()*b.Dy())
}
