package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/noysway/internal/mbtiles"
	"github.com/MeKo-Tech/noysway/internal/tile"
)

// Archive is an opened MBTiles file used as the TileArchive behind
// OnDemandTiles. Its metadata is read once at open.
type Archive struct {
	reader *mbtiles.Reader
	meta   mbtiles.Metadata
}

// OpenArchive opens the MBTiles file at path.
func OpenArchive(path string) (*Archive, error) {
	reader, err := mbtiles.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MBTiles: %w", err)
	}
	meta, err := reader.Metadata()
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to read MBTiles metadata: %w", err)
	}
	return &Archive{reader: reader, meta: meta}, nil
}

func (a *Archive) Lookup(coords tile.Coords) ([]byte, error) {
	return a.reader.ReadTile(coords)
}

func (a *Archive) Metadata() mbtiles.Metadata { return a.meta }

func (a *Archive) Close() error { return a.reader.Close() }

// TileJSON is the subset of the TileJSON 2.2 document that describes the
// tile endpoint. Bounds and center are in field units, not degrees.
type TileJSON struct {
	TileJSON    string     `json:"tilejson"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Version     string     `json:"version,omitempty"`
	Scheme      string     `json:"scheme"`
	Tiles       []string   `json:"tiles"`
	MinZoom     int        `json:"minzoom"`
	MaxZoom     int        `json:"maxzoom"`
	Bounds      []float64  `json:"bounds,omitempty"`
	Center      []float64  `json:"center,omitempty"`
	Noise       *noiseJSON `json:"noise,omitempty"`
}

type noiseJSON struct {
	Backend     string  `json:"backend"`
	Seed        int64   `json:"seed"`
	Octaves     int     `json:"octaves"`
	Persistence float64 `json:"persistence"`
	Frequency   float64 `json:"frequency"`
	Amplitude   float64 `json:"amplitude"`
	Depth       float64 `json:"depth"`
	TileSize    int     `json:"tile_size"`
	RefZoom     int     `json:"ref_zoom"`
}

// NewTileJSON describes meta with tile URLs rooted at baseURL.
func NewTileJSON(meta mbtiles.Metadata, baseURL string) TileJSON {
	tj := TileJSON{
		TileJSON:    "2.2.0",
		Name:        meta.Name,
		Description: meta.Description,
		Version:     meta.Version,
		Scheme:      "xyz",
		Tiles:       []string{baseURL + "/tiles/z{z}_x{x}_y{y}.png"},
		MinZoom:     meta.MinZoom,
		MaxZoom:     meta.MaxZoom,
	}
	if b := meta.Bounds; !b.IsZero() {
		c := b.Center()
		tj.Bounds = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
		tj.Center = []float64{c[0], c[1], float64(meta.MinZoom)}
	}
	if n := meta.Noise; n.Octaves > 0 {
		tj.Noise = &noiseJSON{
			Backend:     n.Backend,
			Seed:        n.Seed,
			Octaves:     n.Octaves,
			Persistence: n.Persistence,
			Frequency:   n.Frequency,
			Amplitude:   n.Amplitude,
			Depth:       n.Depth,
			TileSize:    n.TileSize,
			RefZoom:     n.RefZoom,
		}
	}
	return tj
}

func tileJSONHandler(meta mbtiles.Metadata, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		statusJSON(w, NewTileJSON(meta, scheme+"://"+r.Host), log)
	}
}
