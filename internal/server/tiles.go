package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/noysway/internal/mbtiles"
	"github.com/MeKo-Tech/noysway/internal/tile"
)

// TileSource renders a tile on demand. pipeline.TileRenderer implements it.
type TileSource interface {
	RenderTile(ctx context.Context, coords tile.Coords) ([]byte, error)
}

// TileArchive looks up pre-rendered tiles. Archive implements it.
type TileArchive interface {
	Lookup(coords tile.Coords) ([]byte, error)
}

type OnDemandTilesConfig struct {
	CacheControl             string
	MaxConcurrentGenerations int
	GenerationTimeout        time.Duration
	// GenerateMissing renders tiles absent from the archive. Without an
	// archive every tile is rendered.
	GenerateMissing bool
}

// OnDemandTiles serves /tiles/z{z}_x{x}_y{y}.png from an optional archive,
// rendering missing tiles with a bounded number of concurrent renders.
type OnDemandTiles struct {
	source  TileSource
	archive TileArchive
	logger  *slog.Logger
	sem     chan struct{}
	cfg     OnDemandTilesConfig

	activeRenders  atomic.Int32
	totalRendered  atomic.Int64
	totalFailed    atomic.Int64
	totalArchived  atomic.Int64
	currentRenders sync.Map // tile coord string -> start time

	queuedRenders atomic.Int32
	queuedTiles   sync.Map // tile coord string -> queue time
}

// RenderStatus contains current render operation status.
type RenderStatus struct {
	ActiveRenders int      `json:"active_renders"`
	TotalRendered int64    `json:"total_rendered"`
	TotalFailed   int64    `json:"total_failed"`
	TotalArchived int64    `json:"total_archived"`
	CurrentTiles  []string `json:"current_tiles"`
	MaxConcurrent int      `json:"max_concurrent"`
	QueuedRenders int      `json:"queued_renders"`
	QueuedTiles   []string `json:"queued_tiles"`
}

// NewOnDemandTiles builds a tile handler. source may be nil when only the
// archive is served; archive may be nil when every tile is rendered.
func NewOnDemandTiles(source TileSource, archive TileArchive, cfg OnDemandTilesConfig, logger *slog.Logger) (*OnDemandTiles, error) {
	if source == nil && archive == nil {
		return nil, errors.New("tile handler needs a renderer or an archive")
	}
	if cfg.MaxConcurrentGenerations <= 0 {
		cfg.MaxConcurrentGenerations = 1
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 30 * time.Second
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}
	if archive == nil {
		cfg.GenerateMissing = true
	}
	if source == nil {
		cfg.GenerateMissing = false
	}

	return &OnDemandTiles{
		source:  source,
		archive: archive,
		cfg:     cfg,
		logger:  logger,
		sem:     make(chan struct{}, cfg.MaxConcurrentGenerations),
	}, nil
}

// Status returns the current render counters.
func (t *OnDemandTiles) Status() RenderStatus {
	return RenderStatus{
		ActiveRenders: int(t.activeRenders.Load()),
		TotalRendered: t.totalRendered.Load(),
		TotalFailed:   t.totalFailed.Load(),
		TotalArchived: t.totalArchived.Load(),
		CurrentTiles:  sortedKeys(&t.currentRenders),
		MaxConcurrent: t.cfg.MaxConcurrentGenerations,
		QueuedRenders: int(t.queuedRenders.Load()),
		QueuedTiles:   sortedKeys(&t.queuedTiles),
	}
}

func sortedKeys(m *sync.Map) []string {
	keys := []string{}
	m.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

func (t *OnDemandTiles) Handler() http.Handler {
	return http.HandlerFunc(t.serveTile)
}

func (t *OnDemandTiles) serveTile(w http.ResponseWriter, r *http.Request) {
	coords, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", t.cfg.CacheControl)

	if t.archive != nil {
		data, err := t.archive.Lookup(coords)
		switch {
		case err == nil:
			t.totalArchived.Add(1)
			writePNG(w, data, t.log())
			return
		case !errors.Is(err, mbtiles.ErrTileNotFound):
			t.log().Error("failed to read archived tile", "coords", coords.String(), "error", err)
			http.Error(w, "failed to read tile", http.StatusInternalServerError)
			return
		}
	}

	if !t.cfg.GenerateMissing {
		http.Error(w, fmt.Sprintf("tile not found: %s", coords), http.StatusNotFound)
		return
	}

	key := coords.String()
	t.queuedRenders.Add(1)
	t.queuedTiles.Store(key, time.Now())

	select {
	case t.sem <- struct{}{}:
		t.queuedRenders.Add(-1)
		t.queuedTiles.Delete(key)
		defer func() { <-t.sem }()
	case <-r.Context().Done():
		t.queuedRenders.Add(-1)
		t.queuedTiles.Delete(key)
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), t.cfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	t.activeRenders.Add(1)
	t.currentRenders.Store(key, start)

	data, err := t.source.RenderTile(ctx, coords)

	t.activeRenders.Add(-1)
	t.currentRenders.Delete(key)

	if err != nil {
		t.totalFailed.Add(1)
		t.log().Error("failed to render tile", "coords", key, "error", err)
		http.Error(w, fmt.Sprintf("failed to render tile %s: %v", key, err), http.StatusUnprocessableEntity)
		return
	}
	t.totalRendered.Add(1)
	t.log().Debug("tile rendered on-demand", "coords", key, "ms", time.Since(start).Milliseconds())

	writePNG(w, data, t.log())
}

func writePNG(w http.ResponseWriter, data []byte, log *slog.Logger) {
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(data); err != nil {
		log.Error("failed to write response", "error", err)
	}
}

func (t *OnDemandTiles) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

// parseTilePath parses /tiles/z{z}_x{x}_y{y}.png.
func parseTilePath(requestPath string) (tile.Coords, bool) {
	if !strings.HasPrefix(requestPath, "/tiles/") {
		return tile.Coords{}, false
	}
	base := path.Base(requestPath)
	if !strings.HasSuffix(base, ".png") {
		return tile.Coords{}, false
	}

	coords, err := tile.ParseCoords(strings.TrimSuffix(base, ".png"))
	if err != nil {
		return tile.Coords{}, false
	}
	// Sscanf accepts trailing text; insist on the canonical spelling.
	if coords.Path("png") != base {
		return tile.Coords{}, false
	}
	return coords, true
}

// statusJSON writes v as a JSON response.
func statusJSON(w http.ResponseWriter, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode status", "error", err)
	}
}
