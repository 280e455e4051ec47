package mbtiles

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/klauspost/compress/gzip"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/noysway/internal/tile"
)

// DefaultBatchSize is the number of tiles buffered before a transaction.
const DefaultBatchSize = 100

// WriterOptions tunes a Writer. The zero value is usable.
type WriterOptions struct {
	// BatchSize is the number of tiles per insert transaction.
	BatchSize int
	// Level is the gzip level of stored blobs; 0 selects gzip.BestSpeed.
	Level int
	// Resume keeps the tiles already in the archive. The archive must have
	// been rendered with the same noise parameters; its bounds and zoom
	// range are widened to cover both runs. Without Resume the archive is
	// emptied first.
	Resume bool
}

// Writer batches tiles into an MBTiles database. It is safe for
// concurrent use.
type Writer struct {
	db   *sql.DB
	opts WriterOptions

	mu       sync.Mutex
	pending  []TileEntry
	existing map[tile.Coords]struct{}
	written  int
}

// TileEntry is a tile waiting to be committed.
type TileEntry struct {
	Coords tile.Coords
	Data   []byte // PNG, gzipped on commit
}

// New creates a fresh archive at path with default options.
func New(path string, meta Metadata) (*Writer, error) {
	return Create(path, meta, WriterOptions{})
}

// Create opens or creates the archive at path and records meta.
func Create(path string, meta Metadata, opts WriterOptions) (*Writer, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Level == 0 {
		opts.Level = gzip.BestSpeed
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{db: db, opts: opts, pending: make([]TileEntry, 0, opts.BatchSize)}
	if err := w.init(meta); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) init(meta Metadata) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := w.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	if _, err := w.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if w.opts.Resume {
		prev, err := readMetadata(tx)
		if err != nil {
			return err
		}
		if meta, err = mergeMetadata(prev, meta); err != nil {
			return err
		}
		if w.existing, err = readTileKeys(tx); err != nil {
			return err
		}
	} else if _, err := tx.Exec("DELETE FROM tiles"); err != nil {
		return fmt.Errorf("failed to clear tiles: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO metadata (name, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare metadata insert: %w", err)
	}
	defer stmt.Close()
	for key, value := range meta.ToMap() {
		if _, err := stmt.Exec(key, value); err != nil {
			return fmt.Errorf("failed to insert metadata %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata: %w", err)
	}
	return nil
}

// mergeMetadata combines the metadata of an archive being resumed with
// that of the new run.
func mergeMetadata(prev, next Metadata) (Metadata, error) {
	if prev.Noise.Octaves == 0 {
		// Not one of ours, or empty: nothing to reconcile.
		return next, nil
	}
	if prev.Noise != next.Noise {
		return Metadata{}, fmt.Errorf("%w: archive has %+v, run has %+v", ErrParamsMismatch, prev.Noise, next.Noise)
	}
	if !prev.Bounds.IsZero() {
		next.Bounds = next.Bounds.Union(prev.Bounds)
	}
	next.MinZoom = min(next.MinZoom, prev.MinZoom)
	next.MaxZoom = max(next.MaxZoom, prev.MaxZoom)
	return next, nil
}

// Has reports whether c was already in the archive when it was opened.
func (w *Writer) Has(c tile.Coords) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.existing[c]
	return ok
}

// Existing returns the number of tiles kept from a resumed archive.
func (w *Writer) Existing() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.existing)
}

// WriteTile queues a tile and commits the batch once it is full.
func (w *Writer) WriteTile(c tile.Coords, pngData []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, TileEntry{Coords: c, Data: pngData})
	if len(w.pending) >= w.opts.BatchSize {
		return w.commitLocked()
	}
	return nil
}

// Written returns the number of tiles committed by this writer.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Flush commits any queued tiles.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commitLocked()
}

func (w *Writer) commitLocked() error {
	if len(w.pending) == 0 {
		return nil
	}

	// Compress outside the transaction so a bad blob never opens one.
	blobs := make([][]byte, len(w.pending))
	for i, t := range w.pending {
		b, err := gzipCompress(t.Data, w.opts.Level)
		if err != nil {
			return fmt.Errorf("failed to compress tile %s: %w", t.Coords, err)
		}
		blobs[i] = b
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.Prepare(insertTileSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range w.pending {
		c := t.Coords
		if _, err := stmt.Exec(c.Z, c.X, tmsRow(c.Z, c.Y), blobs[i]); err != nil {
			return fmt.Errorf("failed to insert tile %s: %w", c, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.written += len(w.pending)
	w.pending = w.pending[:0]
	return nil
}

// Close commits queued tiles and closes the database.
func (w *Writer) Close() error {
	flushErr := w.Flush()
	if err := w.db.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return flushErr
}
