package mbtiles

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/noysway/internal/tile"
)

// Reader serves tiles from a finished archive. The file is opened
// read-only and immutable, so it must not be written while open.
type Reader struct {
	db   *sql.DB
	path string
}

// OpenReader opens the archive at path.
func OpenReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var tables int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('tiles', 'metadata')").Scan(&tables)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify schema: %w", err)
	}
	if tables != 2 {
		db.Close()
		return nil, fmt.Errorf("%s is not an MBTiles archive", path)
	}

	return &Reader{db: db, path: path}, nil
}

// Path returns the file the reader was opened on.
func (r *Reader) Path() string { return r.path }

// ReadTile returns the PNG bytes of c, or ErrTileNotFound.
func (r *Reader) ReadTile(c tile.Coords) ([]byte, error) {
	var blob []byte
	err := r.db.QueryRow(selectTileSQL, c.Z, c.X, tmsRow(c.Z, c.Y)).Scan(&blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, c)
	case err != nil:
		return nil, fmt.Errorf("failed to query tile %s: %w", c, err)
	}

	data, err := gzipDecompress(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress tile %s: %w", c, err)
	}
	return data, nil
}

// Count returns the number of stored tiles.
func (r *Reader) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tiles: %w", err)
	}
	return n, nil
}

// Metadata returns the archive metadata.
func (r *Reader) Metadata() (Metadata, error) {
	return readMetadata(r.db)
}

func (r *Reader) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
