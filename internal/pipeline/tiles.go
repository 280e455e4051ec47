package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"log/slog"

	"github.com/MeKo-Tech/noysway/internal/noise"
	"github.com/MeKo-Tech/noysway/internal/raster"
	"github.com/MeKo-Tech/noysway/internal/tile"
)

// TileRenderer renders z/x/y windows of the field as PNG tiles. It holds
// no mutable state and may be shared by any number of goroutines.
type TileRenderer struct {
	sampler noise.Sampler
	grid    tile.Grid
	octaves noise.Octaves
	depth   float64
	smooth  float32
	logger  *slog.Logger
}

// TileOptions configures a TileRenderer.
type TileOptions struct {
	Grid    tile.Grid
	Octaves noise.Octaves
	Depth   float64
	Smooth  float32
}

// NewTileRenderer validates opts and returns a renderer.
func NewTileRenderer(s noise.Sampler, opts TileOptions, logger *slog.Logger) (*TileRenderer, error) {
	if s == nil {
		return nil, fmt.Errorf("sampler must not be nil")
	}
	if opts.Grid.TileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive")
	}
	if err := opts.Octaves.Validate(); err != nil {
		return nil, err
	}
	return &TileRenderer{
		sampler: s,
		grid:    opts.Grid,
		octaves: opts.Octaves,
		depth:   opts.Depth,
		smooth:  opts.Smooth,
		logger:  logger,
	}, nil
}

// Grid returns the tile grid the renderer was built with.
func (r *TileRenderer) Grid() tile.Grid {
	return r.grid
}

// Image renders the tile's pixel grid.
func (r *TileRenderer) Image(ctx context.Context, coords tile.Coords) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.grid.Valid(coords) {
		return nil, fmt.Errorf("tile %s outside the tiled extent", coords)
	}

	x, y, scale := r.grid.Origin(coords)
	size := r.grid.TileSize
	img, err := raster.RenderRegion(r.sampler, x, y, scale, size, size, r.depth, r.octaves)
	if err != nil {
		return nil, fmt.Errorf("failed to render tile %s: %w", coords, err)
	}
	if r.smooth > 0 {
		img = raster.Smooth(img, r.smooth)
	}
	return img, nil
}

// RenderTile renders the tile and encodes it as PNG.
func (r *TileRenderer) RenderTile(ctx context.Context, coords tile.Coords) ([]byte, error) {
	img, err := r.Image(ctx, coords)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode tile %s: %w", coords, err)
	}
	r.log().Debug("Rendered tile", "coords", coords.String(), "bytes", buf.Len())
	return buf.Bytes(), nil
}

func (r *TileRenderer) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}
