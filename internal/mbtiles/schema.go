package mbtiles

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/MeKo-Tech/noysway/internal/tile"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS metadata (
		name TEXT NOT NULL,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS tiles (
		zoom_level INTEGER NOT NULL,
		tile_column INTEGER NOT NULL,
		tile_row INTEGER NOT NULL,
		tile_data BLOB NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
`

const (
	selectTileSQL = "SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?"
	insertTileSQL = "INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)"
)

// tmsRow flips an XYZ row into the TMS row stored by MBTiles. The flip is
// its own inverse.
func tmsRow(z, y uint32) uint32 {
	return uint32(uint64(1)<<z - 1 - uint64(y))
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func readMetadata(q querier) (Metadata, error) {
	rows, err := q.Query("SELECT name, value FROM metadata")
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		kv[name] = value.String
	}
	if err := rows.Err(); err != nil {
		return Metadata{}, fmt.Errorf("error iterating metadata: %w", err)
	}
	return metadataFromMap(kv), nil
}

// readTileKeys lists the XYZ coordinates of every stored tile.
func readTileKeys(q querier) (map[tile.Coords]struct{}, error) {
	rows, err := q.Query("SELECT zoom_level, tile_column, tile_row FROM tiles")
	if err != nil {
		return nil, fmt.Errorf("failed to list tiles: %w", err)
	}
	defer rows.Close()

	keys := make(map[tile.Coords]struct{})
	for rows.Next() {
		var z, x, row uint32
		if err := rows.Scan(&z, &x, &row); err != nil {
			return nil, fmt.Errorf("failed to scan tile row: %w", err)
		}
		keys[tile.NewCoords(z, x, tmsRow(z, row))] = struct{}{}
	}
	return keys, rows.Err()
}

func gzipCompress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	return io.ReadAll(gr)
}
