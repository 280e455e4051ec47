package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noysway/internal/noise"
	"github.com/MeKo-Tech/noysway/internal/pipeline"
	"github.com/MeKo-Tech/noysway/internal/tiff"
)

var generateCmd = &cobra.Command{
	Use:   "generate <octaves> <persistence> <base-frequency> <base-amplitude>",
	Short: "Render a noise image into a TIFF file",
	Long: `Render multi-octave gradient noise into an 8-bit grayscale TIFF.

Each octave doubles the frequency of the previous one and scales its
amplitude by the persistence. The composite is normalized by the sum of
amplitudes and quantized to 0..255.`,
	Example: `  noysway generate 8 0.5 0.01 1
  noysway generate 4 0.75 0.005 0.5 --width 512 --height 256 --output clouds.tif`,
	Args: cobra.ExactArgs(4),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().Int("width", 1024, "Image width in pixels")
	generateCmd.Flags().Int("height", 1024, "Image height in pixels")
	generateCmd.Flags().Uint32("dpi", tiff.DefaultDPI, "Resolution recorded in the file (dots per inch)")
	generateCmd.Flags().StringP("output", "o", "example.tif", "Output file path")
	generateCmd.Flags().Float64("depth", 0, "Third noise coordinate shared by every pixel")
	generateCmd.Flags().Float32("smooth", 0, "Gaussian blur sigma applied after rendering (0 disables)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"generate.width", "width"},
		{"generate.height", "height"},
		{"generate.dpi", "dpi"},
		{"generate.output", "output"},
		{"generate.depth", "depth"},
		{"generate.smooth", "smooth"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, generateCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	octaves, err := parseOctaveArgs(args)
	if err != nil {
		return err
	}
	if err := octaves.Validate(); err != nil {
		return err
	}

	if logger == nil {
		initLogging()
	}

	req := pipeline.Request{
		Output: tiff.Descriptor{
			Width:  viper.GetInt("generate.width"),
			Height: viper.GetInt("generate.height"),
			DPI:    viper.GetUint32("generate.dpi"),
			Path:   viper.GetString("generate.output"),
		},
		Octaves: octaves,
		Depth:   viper.GetFloat64("generate.depth"),
		Smooth:  float32(viper.GetFloat64("generate.smooth")),
	}
	if req.Output.Width < 0 || req.Output.Height < 0 {
		return fmt.Errorf("invalid size %dx%d: width and height must be non-negative", req.Output.Width, req.Output.Height)
	}

	sampler, err := newSampler()
	if err != nil {
		return err
	}
	gen, err := pipeline.NewGenerator(sampler, logger)
	if err != nil {
		return fmt.Errorf("failed to init generator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting image generation",
		"octaves", octaves.Count,
		"persistence", octaves.Persistence,
		"frequency", octaves.Frequency,
		"amplitude", octaves.Amplitude,
		"width", req.Output.Width,
		"height", req.Output.Height,
		"output", req.Output.Path,
	)

	if _, err := gen.Generate(ctx, req); err != nil {
		return fmt.Errorf("failed to generate image: %w", err)
	}

	logger.Info("Image generated", "path", req.Output.Path)
	return nil
}

// parseOctaveArgs parses the four positional values. Each must be a complete
// number with nothing trailing; the octave count is an unsigned integer.
func parseOctaveArgs(args []string) (noise.Octaves, error) {
	if len(args) != 4 {
		return noise.Octaves{}, fmt.Errorf("expected 4 arguments, got %d", len(args))
	}

	count, err := strconv.ParseUint(args[0], 10, 31)
	if err != nil {
		return noise.Octaves{}, fmt.Errorf("invalid number format: %s", args[0])
	}

	var floats [3]float64
	for i, arg := range args[1:] {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return noise.Octaves{}, fmt.Errorf("invalid number format: %s", arg)
		}
		floats[i] = v
	}

	return noise.Octaves{
		Count:       int(count),
		Persistence: floats[0],
		Frequency:   floats[1],
		Amplitude:   floats[2],
	}, nil
}
