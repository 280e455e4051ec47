package mbtiles

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/noysway/internal/tile"
)

func testMetadata() Metadata {
	return Metadata{
		Name:        "Test Tileset",
		Format:      "png",
		Description: "Test description",
		Type:        "baselayer",
		Version:     "1.0",
		MinZoom:     0,
		MaxZoom:     3,
		Bounds:      orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2048, 1024}},
		Noise: NoiseParams{
			Backend:     "improved",
			Seed:        42,
			Octaves:     8,
			Persistence: 0.75,
			Frequency:   0.00095,
			Amplitude:   0.5,
			Depth:       1.25,
			TileSize:    256,
			RefZoom:     3,
		},
	}
}

func TestWriter_New(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.mbtiles")

	w, err := New(dbPath, testMetadata())
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("Database file was not created")
	}

	var count int
	err = w.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tiles'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query schema: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected tiles table to exist, got count=%d", count)
	}

	var minzoom string
	err = w.db.QueryRow("SELECT value FROM metadata WHERE name='minzoom'").Scan(&minzoom)
	if err != nil {
		t.Fatalf("Failed to query minzoom: %v", err)
	}
	if minzoom != "0" {
		t.Errorf("minzoom = %q, want \"0\"", minzoom)
	}
}

func TestWriter_WriteTile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.mbtiles")

	w, err := New(dbPath, Metadata{Name: "Test", Format: "png"})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	c := tile.NewCoords(3, 5, 2)
	if err := w.WriteTile(c, []byte("fake png data")); err != nil {
		t.Fatalf("Failed to write tile: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
	if w.Written() != 1 {
		t.Errorf("Written() = %d, want 1", w.Written())
	}

	// Rows are stored TMS-flipped.
	var tileData []byte
	err = w.db.QueryRow("SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?",
		3, 5, (1<<3)-1-2).Scan(&tileData)
	if err != nil {
		t.Fatalf("Failed to read tile: %v", err)
	}

	plain, err := gzipDecompress(tileData)
	if err != nil {
		t.Fatalf("Stored tile is not gzip: %v", err)
	}
	if string(plain) != "fake png data" {
		t.Errorf("Stored tile = %q", plain)
	}
}

func TestWriter_BatchFlush(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.mbtiles")

	w, err := New(dbPath, Metadata{Name: "Test", Format: "png"})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	for i := 0; i < 150; i++ {
		if err := w.WriteTile(tile.NewCoords(8, uint32(i), 100), []byte("fake png data")); err != nil {
			t.Fatalf("Failed to write tile %d: %v", i, err)
		}
	}
	if w.Written() != DefaultBatchSize {
		t.Errorf("Expected one automatic flush of %d tiles, got %d", DefaultBatchSize, w.Written())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&count); err != nil {
		t.Fatalf("Failed to query tiles: %v", err)
	}
	if count != 150 {
		t.Errorf("Expected 150 tiles, got %d", count)
	}
}

func TestWriter_ReplaceExisting(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.mbtiles")

	w, err := New(dbPath, Metadata{Name: "Test", Format: "png"})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	c := tile.NewCoords(8, 100, 200)
	if err := w.WriteTile(c, []byte("first version")); err != nil {
		t.Fatalf("Failed to write first tile: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTile(c, []byte("second version")); err != nil {
		t.Fatalf("Failed to write second tile: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := w.db.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&count); err != nil {
		t.Fatalf("Failed to query tiles: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 tile (replaced), got %d", count)
	}
}

func writeArchive(t *testing.T, path string, meta Metadata, opts WriterOptions, coords ...tile.Coords) *Writer {
	t.Helper()

	w, err := Create(path, meta, opts)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	for _, c := range coords {
		if err := w.WriteTile(c, []byte(c.String())); err != nil {
			t.Fatalf("Failed to write tile %s: %v", c, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}
	return w
}

func TestWriter_ResumeKeepsTiles(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "resume.mbtiles")
	first := tile.NewCoords(2, 1, 3)
	second := tile.NewCoords(2, 2, 0)

	writeArchive(t, dbPath, testMetadata(), WriterOptions{}, first)

	w, err := Create(dbPath, testMetadata(), WriterOptions{Resume: true})
	if err != nil {
		t.Fatalf("Failed to resume: %v", err)
	}
	if !w.Has(first) {
		t.Errorf("Has(%s) = false after resume", first)
	}
	if w.Has(second) {
		t.Errorf("Has(%s) = true before it was written", second)
	}
	if w.Existing() != 1 {
		t.Errorf("Existing() = %d, want 1", w.Existing())
	}
	if err := w.WriteTile(second, []byte(second.String())); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if w.Written() != 1 {
		t.Errorf("Written() = %d, want 1", w.Written())
	}

	r, err := OpenReader(dbPath)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer r.Close()

	for _, c := range []tile.Coords{first, second} {
		data, err := r.ReadTile(c)
		if err != nil {
			t.Fatalf("Failed to read tile %s: %v", c, err)
		}
		if string(data) != c.String() {
			t.Errorf("Tile %s = %q", c, data)
		}
	}
}

func TestWriter_ResumeParamsMismatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "resume.mbtiles")
	writeArchive(t, dbPath, testMetadata(), WriterOptions{}, tile.NewCoords(0, 0, 0))

	meta := testMetadata()
	meta.Noise.Seed++
	_, err := Create(dbPath, meta, WriterOptions{Resume: true})
	if !errors.Is(err, ErrParamsMismatch) {
		t.Errorf("Expected ErrParamsMismatch, got %v", err)
	}
}

func TestWriter_FreshArchiveClearsTiles(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.mbtiles")
	writeArchive(t, dbPath, testMetadata(), WriterOptions{}, tile.NewCoords(1, 0, 0), tile.NewCoords(1, 1, 1))

	meta := testMetadata()
	meta.Noise.Octaves = 3
	w := writeArchive(t, dbPath, meta, WriterOptions{}, tile.NewCoords(0, 0, 0))
	if w.Existing() != 0 {
		t.Errorf("Existing() = %d on a fresh archive", w.Existing())
	}

	r, err := OpenReader(dbPath)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer r.Close()

	n, err := r.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestWriter_ResumeWidensMetadata(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "resume.mbtiles")

	meta := testMetadata()
	meta.MinZoom, meta.MaxZoom = 2, 3
	meta.Bounds = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{512, 512}}
	writeArchive(t, dbPath, meta, WriterOptions{})

	meta.MinZoom, meta.MaxZoom = 1, 2
	meta.Bounds = orb.Bound{Min: orb.Point{256, 256}, Max: orb.Point{1024, 768}}
	writeArchive(t, dbPath, meta, WriterOptions{Resume: true, BatchSize: 1, Level: 9})

	r, err := OpenReader(dbPath)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer r.Close()

	got, err := r.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	if got.MinZoom != 1 || got.MaxZoom != 3 {
		t.Errorf("Zoom range = %d..%d, want 1..3", got.MinZoom, got.MaxZoom)
	}
	want := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1024, 768}}
	if !got.Bounds.Equal(want) {
		t.Errorf("Bounds = %v, want %v", got.Bounds, want)
	}
}

func TestTMSRowIsInvolution(t *testing.T) {
	for z := uint32(0); z < 6; z++ {
		for y := uint32(0); y < 1<<z; y++ {
			if got := tmsRow(z, tmsRow(z, y)); got != y {
				t.Fatalf("tmsRow(%d, tmsRow(%d, %d)) = %d", z, z, y, got)
			}
		}
	}
}
