package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noysway/internal/mbtiles"
	"github.com/MeKo-Tech/noysway/internal/noise"
	"github.com/MeKo-Tech/noysway/internal/pipeline"
	"github.com/MeKo-Tech/noysway/internal/tile"
	"github.com/MeKo-Tech/noysway/internal/worker"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Render a tile pyramid into an MBTiles archive",
	Long: `Render the noise field as a z/x/y tile pyramid and store it in an
MBTiles archive.

At --ref-zoom one pixel covers one field unit; every zoom level below it
doubles the span of a pixel. --bounds selects a field-space rectangle and
defaults to the whole tiled extent.

An existing archive is resumed: tiles already present are skipped and the
recorded bounds and zoom range are widened. Resuming requires the same noise
parameters; --force starts the archive over.`,
	Example: `  noysway tiles --zoom-max 4 --output noise.mbtiles
  noysway tiles --bounds 0,0,4096,4096 --zoom-min 6 --zoom-max 8 --octaves 6`,
	Args: cobra.NoArgs,
	RunE: runTiles,
}

func init() {
	rootCmd.AddCommand(tilesCmd)

	tilesCmd.Flags().String("bounds", "", "Field-space rectangle: minX,minY,maxX,maxY (default: whole extent)")
	tilesCmd.Flags().Int("zoom-min", 0, "Minimum zoom level")
	tilesCmd.Flags().Int("zoom-max", 4, "Maximum zoom level")
	tilesCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	tilesCmd.Flags().Bool("progress", true, "Show progress bar")
	tilesCmd.Flags().Bool("allow-failures", false, "Finish the archive even if some tiles fail")
	tilesCmd.Flags().Int("retries", 1, "Extra attempts for a tile that fails to render")
	tilesCmd.Flags().StringP("output", "o", "noise.mbtiles", "Output MBTiles file")
	tilesCmd.Flags().Bool("force", false, "Discard tiles already in the output archive")
	tilesCmd.Flags().Int("tile-size", tile.DefaultGrid.TileSize, "Tile size in pixels")
	tilesCmd.Flags().Uint32("ref-zoom", tile.DefaultGrid.RefZoom, "Zoom level at which one pixel is one field unit")

	tilesCmd.Flags().Int("octaves", 8, "Number of octaves")
	tilesCmd.Flags().Float64("persistence", 0.5, "Per-octave amplitude decay")
	tilesCmd.Flags().Float64("frequency", 0.01, "Frequency of the first octave")
	tilesCmd.Flags().Float64("amplitude", 1, "Amplitude of the first octave")
	tilesCmd.Flags().Float64("depth", 0, "Third noise coordinate shared by every tile")
	tilesCmd.Flags().Float32("smooth", 0, "Gaussian blur sigma applied to each tile (0 disables)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"tiles.bounds", "bounds"},
		{"tiles.zoom_min", "zoom-min"},
		{"tiles.zoom_max", "zoom-max"},
		{"tiles.workers", "workers"},
		{"tiles.progress", "progress"},
		{"tiles.allow_failures", "allow-failures"},
		{"tiles.retries", "retries"},
		{"tiles.output", "output"},
		{"tiles.force", "force"},
		{"tiles.tile_size", "tile-size"},
		{"tiles.ref_zoom", "ref-zoom"},
		{"tiles.octaves", "octaves"},
		{"tiles.persistence", "persistence"},
		{"tiles.frequency", "frequency"},
		{"tiles.amplitude", "amplitude"},
		{"tiles.depth", "depth"},
		{"tiles.smooth", "smooth"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, tilesCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runTiles(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	grid := tile.Grid{
		TileSize: viper.GetInt("tiles.tile_size"),
		RefZoom:  viper.GetUint32("tiles.ref_zoom"),
	}
	if grid.TileSize <= 0 {
		return fmt.Errorf("--tile-size must be positive, got %d", grid.TileSize)
	}

	bounds := grid.Extent()
	if s := viper.GetString("tiles.bounds"); s != "" {
		b, err := parseBounds(s)
		if err != nil {
			return fmt.Errorf("invalid bounds: %w", err)
		}
		bounds = b
	}

	zoomMin := viper.GetInt("tiles.zoom_min")
	zoomMax := viper.GetInt("tiles.zoom_max")
	if err := checkZoomRange(zoomMin, zoomMax); err != nil {
		return err
	}
	if n := grid.TileCount(bounds, zoomMin, zoomMax); n > maxBatchTiles {
		return fmt.Errorf("%d tiles requested, at most %d per run; narrow --bounds or the zoom range", n, maxBatchTiles)
	}

	octaves := noise.Octaves{
		Count:       viper.GetInt("tiles.octaves"),
		Persistence: viper.GetFloat64("tiles.persistence"),
		Frequency:   viper.GetFloat64("tiles.frequency"),
		Amplitude:   viper.GetFloat64("tiles.amplitude"),
	}
	if err := octaves.Validate(); err != nil {
		return err
	}
	depth := viper.GetFloat64("tiles.depth")

	workers := viper.GetInt("tiles.workers")
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	outputFile := viper.GetString("tiles.output")
	if outputFile == "" {
		return fmt.Errorf("--output is required")
	}

	sampler, err := newSampler()
	if err != nil {
		return err
	}
	renderer, err := pipeline.NewTileRenderer(sampler, pipeline.TileOptions{
		Grid:    grid,
		Octaves: octaves,
		Depth:   depth,
		Smooth:  float32(viper.GetFloat64("tiles.smooth")),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to init tile renderer: %w", err)
	}

	tiles := grid.TilesInBound(bounds, zoomMin, zoomMax)
	if len(tiles) == 0 {
		return fmt.Errorf("bounds %v do not overlap the tiled extent %v", bounds, grid.Extent())
	}

	logger.Info("Starting tile rendering",
		"bounds", fmt.Sprintf("%g,%g,%g,%g", bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1]),
		"zoom_range", fmt.Sprintf("%d-%d", zoomMin, zoomMax),
		"tiles", len(tiles),
		"workers", workers,
		"output", outputFile,
	)

	writer, err := mbtiles.Create(outputFile, mbtiles.Metadata{
		Name:        "noysway",
		Format:      "png",
		Description: "Multi-octave gradient noise",
		Type:        "baselayer",
		Version:     "1.0",
		Bounds:      bounds,
		MinZoom:     zoomMin,
		MaxZoom:     zoomMax,
		Noise: mbtiles.NoiseParams{
			Backend:     viper.GetString("noise.backend"),
			Seed:        viper.GetInt64("noise.seed"),
			Octaves:     octaves.Count,
			Persistence: octaves.Persistence,
			Frequency:   octaves.Frequency,
			Amplitude:   octaves.Amplitude,
			Depth:       depth,
			TileSize:    grid.TileSize,
			RefZoom:     int(grid.RefZoom),
		},
	}, mbtiles.WriterOptions{Resume: !viper.GetBool("tiles.force")})
	if errors.Is(err, mbtiles.ErrParamsMismatch) {
		return fmt.Errorf("%w (use --force to overwrite %s)", err, outputFile)
	}
	if err != nil {
		return fmt.Errorf("failed to create MBTiles writer: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			writer.Close() // nolint:errcheck
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received interrupt signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	tasks := make([]worker.Task, 0, len(tiles))
	for _, coords := range tiles {
		if writer.Has(coords) {
			continue
		}
		tasks = append(tasks, worker.Task{Coords: coords})
	}
	if skipped := len(tiles) - len(tasks); skipped > 0 {
		logger.Info("Resuming archive", "existing", writer.Existing(), "skipped", skipped)
	}

	progress := worker.NewProgress(os.Stderr, len(tasks), viper.GetBool("tiles.progress"))
	pool := worker.New(worker.Config{
		Workers:    workers,
		Renderer:   renderer,
		Retries:    viper.GetInt("tiles.retries"),
		OnProgress: progress.Callback(),
		OnResult: func(r worker.Result) error {
			progress.AddBytes(len(r.Data))
			return writer.WriteTile(r.Task.Coords, r.Data)
		},
	})

	results := pool.Run(ctx, tasks)
	progress.Done()

	var failedCount int
	for _, r := range results {
		if r.Err != nil {
			failedCount++
			logger.Error("Tile rendering failed", "coords", r.Task.Coords.String(), "error", r.Err)
		}
	}

	logger.Info(progress.Summary())

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("tile rendering interrupted: %w", err)
	}
	if failedCount > 0 {
		if !viper.GetBool("tiles.allow_failures") {
			return fmt.Errorf("%d tiles failed to render", failedCount)
		}
		logger.Warn("Some tiles failed to render, but continuing due to --allow-failures flag", "failed_count", failedCount)
	}

	logger.Info("Flushing MBTiles database...")
	closed = true
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish MBTiles: %w", err)
	}
	logger.Info("MBTiles generation complete", "path", outputFile, "tiles", writer.Written())
	return nil
}

// maxBatchTiles caps one tiles run; the task list is held in memory.
const maxBatchTiles = 1 << 26

func checkZoomRange(zoomMin, zoomMax int) error {
	if zoomMin < 0 || zoomMax < 0 {
		return fmt.Errorf("zoom levels must be non-negative")
	}
	if zoomMax > tile.MaxZoom {
		return fmt.Errorf("--zoom-max (%d) must be <= %d", zoomMax, tile.MaxZoom)
	}
	if zoomMin > zoomMax {
		return fmt.Errorf("--zoom-min (%d) must be <= --zoom-max (%d)", zoomMin, zoomMax)
	}
	return nil
}

// parseBounds parses "minX,minY,maxX,maxY" into a field-space rectangle.
func parseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}

	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		v[i] = f
	}

	if v[0] >= v[2] {
		return orb.Bound{}, fmt.Errorf("minX (%g) must be < maxX (%g)", v[0], v[2])
	}
	if v[1] >= v[3] {
		return orb.Bound{}, fmt.Errorf("minY (%g) must be < maxY (%g)", v[1], v[3])
	}

	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
