// Package pipeline wires the noise field, the octave compositor, the
// rasterizer and the encoders into single calls used by the CLI.
package pipeline

import (
	"context"
	"fmt"
	"image"

	"log/slog"

	"github.com/MeKo-Tech/noysway/internal/noise"
	"github.com/MeKo-Tech/noysway/internal/raster"
	"github.com/MeKo-Tech/noysway/internal/tiff"
)

// Request describes one still image to render and write.
type Request struct {
	Output  tiff.Descriptor
	Octaves noise.Octaves
	Depth   float64
	Smooth  float32
}

// Generator renders composited noise into TIFF files.
type Generator struct {
	sampler noise.Sampler
	logger  *slog.Logger
}

// NewGenerator prepares a generator around a sampler.
func NewGenerator(s noise.Sampler, logger *slog.Logger) (*Generator, error) {
	if s == nil {
		return nil, fmt.Errorf("sampler must not be nil")
	}
	return &Generator{sampler: s, logger: logger}, nil
}

// Render produces the pixel grid for req without touching the filesystem.
func (g *Generator) Render(ctx context.Context, req Request) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Octaves.Validate(); err != nil {
		return nil, err
	}

	g.log().Debug("Rendering field",
		"width", req.Output.Width,
		"height", req.Output.Height,
		"octaves", req.Octaves.Count,
		"persistence", req.Octaves.Persistence,
		"frequency", req.Octaves.Frequency,
		"amplitude", req.Octaves.Amplitude,
		"depth", req.Depth)

	img, err := raster.Render(g.sampler, req.Output.Width, req.Output.Height, req.Depth, req.Octaves)
	if err != nil {
		return nil, fmt.Errorf("failed to render field: %w", err)
	}
	if req.Smooth > 0 {
		g.log().Debug("Smoothing field", "sigma", req.Smooth)
		img = raster.Smooth(img, req.Smooth)
	}
	return img, nil
}

// Generate renders req and writes it to req.Output.Path, returning the
// rendered image.
func (g *Generator) Generate(ctx context.Context, req Request) (*image.Gray, error) {
	if req.Output.Path == "" {
		return nil, fmt.Errorf("output path must not be empty")
	}

	img, err := g.Render(ctx, req)
	if err != nil {
		return nil, err
	}

	g.log().Info("Writing image", "path", req.Output.Path, "dpi", req.Output.DPI)
	if err := tiff.WriteFile(req.Output, img); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	return img, nil
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
