// Package mbtiles stores rendered noise tiles in an MBTiles (SQLite)
// archive and reads them back.
package mbtiles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

var (
	// ErrTileNotFound is returned by Reader.ReadTile for a missing tile.
	ErrTileNotFound = errors.New("mbtiles: tile not found")
	// ErrParamsMismatch is returned when resuming an archive rendered with
	// different noise parameters.
	ErrParamsMismatch = errors.New("mbtiles: noise parameters differ from archive")
)

// NoiseParams records how the archived tiles were rendered, so a reader
// can reproduce or extend the archive.
type NoiseParams struct {
	Backend     string
	Seed        int64
	Octaves     int
	Persistence float64
	Frequency   float64
	Amplitude   float64
	Depth       float64
	TileSize    int
	RefZoom     int
}

// Metadata contains MBTiles metadata fields.
type Metadata struct {
	Name        string // Human-readable tileset identifier
	Format      string // Tile data type (png)
	Description string
	Type        string // "baselayer" or "overlay"
	Version     string
	Bounds      orb.Bound // Field-space extent of the archived tiles
	MinZoom     int
	MaxZoom     int
	Noise       NoiseParams
}

const noisePrefix = "noise_"

// ToMap converts Metadata to a map for database insertion.
func (m Metadata) ToMap() map[string]string {
	result := map[string]string{
		"minzoom": strconv.Itoa(m.MinZoom),
		"maxzoom": strconv.Itoa(m.MaxZoom),
	}

	if m.Name != "" {
		result["name"] = m.Name
	}
	if m.Format != "" {
		result["format"] = m.Format
	}
	if !m.Bounds.IsZero() {
		result["bounds"] = fmt.Sprintf("%g,%g,%g,%g",
			m.Bounds.Min[0], m.Bounds.Min[1], m.Bounds.Max[0], m.Bounds.Max[1])
		c := m.Bounds.Center()
		result["center"] = fmt.Sprintf("%g,%g,%d", c[0], c[1], m.MinZoom)
	}
	if m.Description != "" {
		result["description"] = m.Description
	}
	if m.Type != "" {
		result["type"] = m.Type
	}
	if m.Version != "" {
		result["version"] = m.Version
	}

	n := m.Noise
	if n.Backend != "" {
		result[noisePrefix+"backend"] = n.Backend
	}
	result[noisePrefix+"seed"] = strconv.FormatInt(n.Seed, 10)
	result[noisePrefix+"octaves"] = strconv.Itoa(n.Octaves)
	result[noisePrefix+"persistence"] = formatFloat(n.Persistence)
	result[noisePrefix+"frequency"] = formatFloat(n.Frequency)
	result[noisePrefix+"amplitude"] = formatFloat(n.Amplitude)
	result[noisePrefix+"depth"] = formatFloat(n.Depth)
	result[noisePrefix+"tile_size"] = strconv.Itoa(n.TileSize)
	result[noisePrefix+"ref_zoom"] = strconv.Itoa(n.RefZoom)

	return result
}

// metadataFromMap is the inverse of ToMap. Unparseable values are left zero.
func metadataFromMap(kv map[string]string) Metadata {
	m := Metadata{
		Name:        kv["name"],
		Format:      kv["format"],
		Description: kv["description"],
		Type:        kv["type"],
		Version:     kv["version"],
		MinZoom:     atoi(kv["minzoom"]),
		MaxZoom:     atoi(kv["maxzoom"]),
	}

	// bounds: "minX,minY,maxX,maxY"
	if parts := strings.Split(kv["bounds"], ","); len(parts) == 4 {
		var v [4]float64
		for i, part := range parts {
			v[i] = parseFloat(part)
		}
		m.Bounds = orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	}

	m.Noise = NoiseParams{
		Backend:     kv[noisePrefix+"backend"],
		Octaves:     atoi(kv[noisePrefix+"octaves"]),
		Persistence: parseFloat(kv[noisePrefix+"persistence"]),
		Frequency:   parseFloat(kv[noisePrefix+"frequency"]),
		Amplitude:   parseFloat(kv[noisePrefix+"amplitude"]),
		Depth:       parseFloat(kv[noisePrefix+"depth"]),
		TileSize:    atoi(kv[noisePrefix+"tile_size"]),
		RefZoom:     atoi(kv[noisePrefix+"ref_zoom"]),
	}
	if s, err := strconv.ParseInt(kv[noisePrefix+"seed"], 10, 64); err == nil {
		m.Noise.Seed = s
	}
	return m
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func atoi(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}
