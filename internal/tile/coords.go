// Package tile addresses square windows of the noise plane with z/x/y
// coordinates, the same way slippy-map tiles address the globe.
package tile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Coords represents a tile coordinate (z/x/y). Row 0 is the top of the plane.
type Coords struct {
	Z uint32 // Zoom level
	X uint32 // Column
	Y uint32 // Row
}

// String returns the tile coordinate as a string in format "z{zoom}_x{x}_y{y}"
func (c Coords) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", c.Z, c.X, c.Y)
}

// Path returns the file path for this tile
func (c Coords) Path(extension string) string {
	return fmt.Sprintf("%s.%s", c.String(), extension)
}

// NewCoords creates a new Coords from zoom, x, y values
func NewCoords(z, x, y uint32) Coords {
	return Coords{Z: z, X: x, Y: y}
}

// ParseCoords parses a tile string like "z13_x4297_y2754" into Coords
func ParseCoords(s string) (Coords, error) {
	var c Coords
	_, err := fmt.Sscanf(s, "z%d_x%d_y%d", &c.Z, &c.X, &c.Y)
	if err != nil {
		return c, fmt.Errorf("invalid tile coordinate format: %s", s)
	}
	return c, nil
}

// Grid maps tile coordinates onto field space. At RefZoom one pixel covers
// one field unit, so a RefZoom tile matches what a full-size render
// produces for the same cells. Each zoom level below RefZoom doubles the
// field span of a pixel.
type Grid struct {
	TileSize int
	RefZoom  uint32
}

// MaxZoom is the deepest zoom level a Grid addresses. Column and row
// indices stay below 2^MaxZoom, so they fit in uint32 with room to iterate.
const MaxZoom = 30

// DefaultGrid uses 256 px tiles with one field unit per pixel at zoom 8.
var DefaultGrid = Grid{TileSize: 256, RefZoom: 8}

// Extent returns the bounded square of the plane that is tiled. Zoom z
// splits it into 2^z tiles per axis.
func (g Grid) Extent() orb.Bound {
	side := float64(g.TileSize) * math.Ldexp(1, int(g.RefZoom))
	return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{side, side}}
}

// Valid reports whether c lies inside the tiled extent.
func (g Grid) Valid(c Coords) bool {
	n := uint64(1) << c.Z
	return c.Z <= MaxZoom && uint64(c.X) < n && uint64(c.Y) < n
}

// Scale returns the field units covered by one pixel at zoom z.
func (g Grid) Scale(z uint32) float64 {
	return math.Ldexp(1, int(g.RefZoom)-int(z))
}

// Origin returns the field coordinates of the tile's top-left pixel and the
// per-pixel step.
func (g Grid) Origin(c Coords) (x, y, scale float64) {
	scale = g.Scale(c.Z)
	span := float64(g.TileSize) * scale
	return float64(c.X) * span, float64(c.Y) * span, scale
}

// Bound returns the field-space rectangle covered by the tile.
func (g Grid) Bound(c Coords) orb.Bound {
	x, y, scale := g.Origin(c)
	span := float64(g.TileSize) * scale
	return orb.Bound{
		Min: orb.Point{x, y},
		Max: orb.Point{x + span, y + span},
	}
}

// TilesInBound returns every tile whose rectangle overlaps b, across the
// zoom range. b is clipped to Extent first.
func (g Grid) TilesInBound(b orb.Bound, zoomMin, zoomMax int) []Coords {
	tiles := make([]Coords, 0, g.TileCount(b, zoomMin, zoomMax))
	for z := zoomMin; z <= zoomMax; z++ {
		r, ok := g.rangeAt(b, uint32(z))
		if !ok {
			continue
		}
		r.ForEach(func(c Coords) {
			tiles = append(tiles, c)
		})
	}
	return tiles
}

// TileCount returns the number of tiles TilesInBound would produce.
func (g Grid) TileCount(b orb.Bound, zoomMin, zoomMax int) int {
	count := 0
	for z := zoomMin; z <= zoomMax; z++ {
		if r, ok := g.rangeAt(b, uint32(z)); ok {
			count += r.Count()
		}
	}
	return count
}

func (g Grid) rangeAt(b orb.Bound, z uint32) (TileRange, bool) {
	ext := g.Extent()
	if g.TileSize <= 0 || z > MaxZoom || !b.Intersects(ext) {
		return TileRange{}, false
	}
	b = orb.Bound{
		Min: orb.Point{math.Max(b.Min[0], ext.Min[0]), math.Max(b.Min[1], ext.Min[1])},
		Max: orb.Point{math.Min(b.Max[0], ext.Max[0]), math.Min(b.Max[1], ext.Max[1])},
	}
	if b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] {
		return TileRange{}, false
	}
	span := float64(g.TileSize) * g.Scale(z)
	first := func(v float64) uint32 {
		return uint32(math.Floor(v / span))
	}
	// Max is exclusive: a bound ending exactly on a tile edge does not
	// reach into the next tile.
	last := func(v float64) uint32 {
		return uint32(math.Ceil(v/span)) - 1
	}
	return TileRange{
		MinZ: z, MaxZ: z,
		MinX: first(b.Min[0]), MaxX: last(b.Max[0]),
		MinY: first(b.Min[1]), MaxY: last(b.Max[1]),
	}, true
}

// TileRange represents a range of tiles to render
type TileRange struct {
	MinZ, MaxZ uint32 // Zoom range
	MinX, MaxX uint32 // X range
	MinY, MaxY uint32 // Y range
}

// ForEach calls the given function for each tile in the range
func (r TileRange) ForEach(fn func(Coords)) {
	for z := r.MinZ; z <= r.MaxZ; z++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			for y := r.MinY; y <= r.MaxY; y++ {
				fn(NewCoords(z, x, y))
			}
		}
	}
}

// Count returns the total number of tiles in this range. The product is
// taken in 64 bits; a full zoom-16 level already has 2^32 tiles.
func (r TileRange) Count() int {
	if r.MaxZ < r.MinZ || r.MaxX < r.MinX || r.MaxY < r.MinY {
		return 0
	}
	xCount := uint64(r.MaxX-r.MinX) + 1
	yCount := uint64(r.MaxY-r.MinY) + 1
	zCount := uint64(r.MaxZ-r.MinZ) + 1
	return int(zCount * xCount * yCount)
}
