package tile

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestCoordsString(t *testing.T) {
	tests := []struct {
		coords   Coords
		expected string
	}{
		{Coords{Z: 13, X: 4297, Y: 2754}, "z13_x4297_y2754"},
		{Coords{Z: 0, X: 0, Y: 0}, "z0_x0_y0"},
		{Coords{Z: 18, X: 12345, Y: 67890}, "z18_x12345_y67890"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.coords.String()
			if result != tt.expected {
				t.Errorf("String() = %s, want %s", result, tt.expected)
			}
		})
	}
}

func TestCoordsPath(t *testing.T) {
	coords := Coords{Z: 8, X: 3, Y: 5}

	tests := []struct {
		ext      string
		expected string
	}{
		{"png", "z8_x3_y5.png"},
		{"tif", "z8_x3_y5.tif"},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			result := coords.Path(tt.ext)
			if result != tt.expected {
				t.Errorf("Path(%s) = %s, want %s", tt.ext, result, tt.expected)
			}
		})
	}
}

func TestParseCoords(t *testing.T) {
	tests := []struct {
		input    string
		expected Coords
		wantErr  bool
	}{
		{"z13_x4297_y2754", Coords{Z: 13, X: 4297, Y: 2754}, false},
		{"z0_x0_y0", Coords{Z: 0, X: 0, Y: 0}, false},
		{"invalid", Coords{}, true},
		{"z13-x4297-y2754", Coords{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseCoords(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCoords() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && result != tt.expected {
				t.Errorf("ParseCoords() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestGridScale(t *testing.T) {
	g := Grid{TileSize: 256, RefZoom: 8}
	tests := []struct {
		z    uint32
		want float64
	}{
		{8, 1},
		{7, 2},
		{0, 256},
		{9, 0.5},
	}
	for _, tt := range tests {
		if got := g.Scale(tt.z); got != tt.want {
			t.Errorf("Scale(%d) = %v, want %v", tt.z, got, tt.want)
		}
	}
}

func TestGridOriginAndBound(t *testing.T) {
	g := Grid{TileSize: 256, RefZoom: 8}

	x, y, scale := g.Origin(NewCoords(8, 3, 5))
	if x != 768 || y != 1280 || scale != 1 {
		t.Errorf("Origin(z8_x3_y5) = (%v, %v, %v), want (768, 1280, 1)", x, y, scale)
	}

	b := g.Bound(NewCoords(7, 1, 0))
	want := orb.Bound{Min: orb.Point{512, 0}, Max: orb.Point{1024, 512}}
	if !b.Equal(want) {
		t.Errorf("Bound(z7_x1_y0) = %v, want %v", b, want)
	}

	if !g.Bound(NewCoords(0, 0, 0)).Equal(g.Extent()) {
		t.Errorf("zoom 0 tile should cover the whole extent")
	}
}

func TestGridValid(t *testing.T) {
	g := DefaultGrid
	if !g.Valid(NewCoords(2, 3, 3)) {
		t.Error("z2_x3_y3 should be valid")
	}
	if g.Valid(NewCoords(2, 4, 0)) {
		t.Error("z2_x4_y0 should be out of range")
	}
	if g.Valid(NewCoords(40, 0, 0)) {
		t.Error("z40 should be out of range")
	}
}

func TestTilesInBound(t *testing.T) {
	g := Grid{TileSize: 256, RefZoom: 8}

	// Exactly one zoom-8 tile.
	b := orb.Bound{Min: orb.Point{256, 256}, Max: orb.Point{512, 512}}
	tiles := g.TilesInBound(b, 8, 8)
	if len(tiles) != 1 || tiles[0] != NewCoords(8, 1, 1) {
		t.Fatalf("TilesInBound = %v, want [z8_x1_y1]", tiles)
	}

	// Straddling an edge touches two columns.
	b = orb.Bound{Min: orb.Point{200, 0}, Max: orb.Point{300, 10}}
	tiles = g.TilesInBound(b, 8, 8)
	if len(tiles) != 2 {
		t.Fatalf("TilesInBound = %v, want 2 tiles", tiles)
	}

	// Across zooms 6..8 the same 1024 unit square is 1 + 2x2 + 4x4 tiles.
	b = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1024, 1024}}
	if n := g.TileCount(b, 6, 8); n != 21 {
		t.Errorf("TileCount = %d, want 21", n)
	}
	if n := len(g.TilesInBound(b, 6, 8)); n != 21 {
		t.Errorf("len(TilesInBound) = %d, want 21", n)
	}

	// Outside the extent nothing is produced.
	b = orb.Bound{Min: orb.Point{-100, -100}, Max: orb.Point{-1, -1}}
	if n := g.TileCount(b, 0, 8); n != 0 {
		t.Errorf("TileCount outside extent = %d, want 0", n)
	}

	// A bound larger than the extent is clipped.
	b = orb.Bound{Min: orb.Point{-1e9, -1e9}, Max: orb.Point{1e9, 1e9}}
	if n := g.TileCount(b, 0, 2); n != 1+4+16 {
		t.Errorf("TileCount clipped = %d, want 21", n)
	}
}

func TestTileRange(t *testing.T) {
	tr := TileRange{
		MinZ: 13, MaxZ: 13,
		MinX: 4297, MaxX: 4298,
		MinY: 2754, MaxY: 2755,
	}

	count := tr.Count()
	expected := 4 // 2x2 tiles
	if count != expected {
		t.Errorf("Count() = %d, want %d", count, expected)
	}

	var tiles []Coords
	tr.ForEach(func(c Coords) {
		tiles = append(tiles, c)
	})

	if len(tiles) != expected {
		t.Errorf("ForEach visited %d tiles, want %d", len(tiles), expected)
	}
}

func TestTileCountDeepZoom(t *testing.T) {
	g := DefaultGrid

	full := TileRange{MinZ: 16, MaxZ: 16, MaxX: 1<<16 - 1, MaxY: 1<<16 - 1}
	if n := full.Count(); n != 1<<32 {
		t.Errorf("full zoom-16 Count() = %d, want %d", n, 1<<32)
	}

	// 4^16 + 4^17 tiles over the whole extent.
	if n := g.TileCount(g.Extent(), 16, 17); n != 1<<32+1<<34 {
		t.Errorf("TileCount(16..17) = %d, want %d", n, 1<<32+1<<34)
	}

	if n := g.TileCount(g.Extent(), MaxZoom+1, MaxZoom+3); n != 0 {
		t.Errorf("TileCount beyond MaxZoom = %d, want 0", n)
	}
	if g.Valid(NewCoords(MaxZoom+1, 0, 0)) {
		t.Errorf("zoom %d should be invalid", MaxZoom+1)
	}
	if (TileRange{MinZ: 3, MaxZ: 3, MinX: 5, MaxX: 4}).Count() != 0 {
		t.Error("inverted range should be empty")
	}
}
