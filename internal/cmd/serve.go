package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noysway/internal/mbtiles"
	"github.com/MeKo-Tech/noysway/internal/noise"
	"github.com/MeKo-Tech/noysway/internal/pipeline"
	"github.com/MeKo-Tech/noysway/internal/preview"
	"github.com/MeKo-Tech/noysway/internal/raster"
	"github.com/MeKo-Tech/noysway/internal/server"
	"github.com/MeKo-Tech/noysway/internal/tile"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a live preview and noise tiles over HTTP",
	Long: `Serve the live preview and the tile pyramid.

GET /frame.png returns the current frame. POST /regenerate raises the
regenerate flag; the frame driver notices it on its next tick, advances the
depth and renders a new frame with the regenerate parameters. Tiles are
served from --mbtiles when given and rendered on demand otherwise.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	def := preview.DefaultConfig()

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Duration("interval", 16*time.Millisecond, "Frame driver tick interval")
	serveCmd.Flags().String("order", def.Order.String(), "Packed channel order of preview frames (rgbx, xrgb)")
	serveCmd.Flags().Int("width", def.Width, "Preview width in pixels")
	serveCmd.Flags().Int("height", def.Height, "Preview height in pixels")
	serveCmd.Flags().Bool("continuous", false, "Regenerate on every tick instead of on request")
	serveCmd.Flags().Float64("depth-step", def.DepthStep, "Depth advance per regeneration")

	serveCmd.Flags().String("mbtiles", "", "MBTiles archive to serve tiles from")
	serveCmd.Flags().Bool("generate-missing", true, "Render tiles missing from the archive on demand")
	serveCmd.Flags().Int("max-concurrent-generations", runtime.NumCPU(), "Max concurrent tile renders (default: number of CPUs)")
	serveCmd.Flags().Duration("generation-timeout", 30*time.Second, "Timeout per tile render")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for rendered tiles")
	serveCmd.Flags().Int("tile-size", tile.DefaultGrid.TileSize, "Tile size in pixels")
	serveCmd.Flags().Uint32("ref-zoom", tile.DefaultGrid.RefZoom, "Zoom level at which one pixel is one field unit")
	serveCmd.Flags().Int("tile-octaves", 8, "Number of octaves for rendered tiles")
	serveCmd.Flags().Float64("tile-persistence", 0.5, "Per-octave amplitude decay for rendered tiles")
	serveCmd.Flags().Float64("tile-frequency", 0.01, "Frequency of the first octave for rendered tiles")
	serveCmd.Flags().Float64("tile-amplitude", 1, "Amplitude of the first octave for rendered tiles")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.interval", "interval")
	mustBind("serve.order", "order")
	mustBind("serve.width", "width")
	mustBind("serve.height", "height")
	mustBind("serve.continuous", "continuous")
	mustBind("serve.depth_step", "depth-step")

	mustBind("serve.mbtiles", "mbtiles")
	mustBind("serve.generate_missing", "generate-missing")
	mustBind("serve.max_concurrent_generations", "max-concurrent-generations")
	mustBind("serve.generation_timeout", "generation-timeout")
	mustBind("serve.cache_control", "cache-control")
	mustBind("serve.tile_size", "tile-size")
	mustBind("serve.ref_zoom", "ref-zoom")
	mustBind("serve.tile_octaves", "tile-octaves")
	mustBind("serve.tile_persistence", "tile-persistence")
	mustBind("serve.tile_frequency", "tile-frequency")
	mustBind("serve.tile_amplitude", "tile-amplitude")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	interval := viper.GetDuration("serve.interval")
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", interval)
	}

	order, err := raster.ParseChannelOrder(viper.GetString("serve.order"))
	if err != nil {
		return err
	}

	sampler, err := newSampler()
	if err != nil {
		return err
	}

	cfg := preview.DefaultConfig()
	cfg.Width = viper.GetInt("serve.width")
	cfg.Height = viper.GetInt("serve.height")
	cfg.Order = order
	cfg.Continuous = viper.GetBool("serve.continuous")
	cfg.DepthStep = viper.GetFloat64("serve.depth_step")

	anim, err := preview.New(sampler, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start preview: %w", err)
	}

	tiles, tileMeta, closeTiles, err := newTileHandler(sampler)
	if err != nil {
		return err
	}
	defer closeTiles()

	handler := server.New(server.Routes{
		Preview:  server.NewPreviewHandler(anim, logger),
		Tiles:    tiles,
		TileJSON: tileMeta,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	logger.Info("Preview server listening",
		"addr", addr,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"order", order.String(),
		"interval", interval,
		"continuous", cfg.Continuous,
		"mbtiles", viper.GetString("serve.mbtiles"),
	)

	go func() {
		if err := anim.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Frame driver stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// newTileHandler builds the /tiles/ handler and the metadata served at
// /tiles.json. With an archive, tiles missing from it are rendered with the
// archive's recorded noise parameters when present.
func newTileHandler(sampler noise.Sampler) (*server.OnDemandTiles, *mbtiles.Metadata, func(), error) {
	grid := tile.Grid{
		TileSize: viper.GetInt("serve.tile_size"),
		RefZoom:  viper.GetUint32("serve.ref_zoom"),
	}
	opts := pipeline.TileOptions{
		Grid: grid,
		Octaves: noise.Octaves{
			Count:       viper.GetInt("serve.tile_octaves"),
			Persistence: viper.GetFloat64("serve.tile_persistence"),
			Frequency:   viper.GetFloat64("serve.tile_frequency"),
			Amplitude:   viper.GetFloat64("serve.tile_amplitude"),
		},
	}

	var archive server.TileArchive
	closeArchive := func() {}
	var meta mbtiles.Metadata
	if path := viper.GetString("serve.mbtiles"); path != "" {
		a, err := server.OpenArchive(path)
		if err != nil {
			return nil, nil, nil, err
		}
		archive = a
		closeArchive = func() {
			if err := a.Close(); err != nil {
				logger.Warn("Failed to close MBTiles", "error", err)
			}
		}

		meta = a.Metadata()
		if n := meta.Noise; n.Octaves > 0 {
			opts.Octaves = noise.Octaves{
				Count:       n.Octaves,
				Persistence: n.Persistence,
				Frequency:   n.Frequency,
				Amplitude:   n.Amplitude,
			}
			opts.Depth = n.Depth
			if n.TileSize > 0 {
				opts.Grid = tile.Grid{TileSize: n.TileSize, RefZoom: uint32(n.RefZoom)}
			}
			if n.Backend != viper.GetString("noise.backend") || n.Seed != viper.GetInt64("noise.seed") {
				logger.Warn("Archive was rendered with a different field; missing tiles will not match",
					"archive_backend", n.Backend, "archive_seed", n.Seed)
			}
		}
		logger.Info("Serving MBTiles archive", "path", path, "name", meta.Name,
			"zoom_range", fmt.Sprintf("%d-%d", meta.MinZoom, meta.MaxZoom))
	}

	renderer, err := pipeline.NewTileRenderer(sampler, opts, logger)
	if err != nil {
		closeArchive()
		return nil, nil, nil, fmt.Errorf("failed to init tile renderer: %w", err)
	}

	if archive == nil {
		meta = renderedMetadata(opts)
	}

	tiles, err := server.NewOnDemandTiles(renderer, archive, server.OnDemandTilesConfig{
		CacheControl:             viper.GetString("serve.cache_control"),
		MaxConcurrentGenerations: viper.GetInt("serve.max_concurrent_generations"),
		GenerationTimeout:        viper.GetDuration("serve.generation_timeout"),
		GenerateMissing:          viper.GetBool("serve.generate_missing"),
	}, logger)
	if err != nil {
		closeArchive()
		return nil, nil, nil, err
	}
	return tiles, &meta, closeArchive, nil
}

// renderedMetadata describes tiles rendered on demand with opts.
func renderedMetadata(opts pipeline.TileOptions) mbtiles.Metadata {
	return mbtiles.Metadata{
		Name:    "noysway",
		Format:  "png",
		Bounds:  opts.Grid.Extent(),
		MaxZoom: int(opts.Grid.RefZoom),
		Noise: mbtiles.NoiseParams{
			Backend:     viper.GetString("noise.backend"),
			Seed:        viper.GetInt64("noise.seed"),
			Octaves:     opts.Octaves.Count,
			Persistence: opts.Octaves.Persistence,
			Frequency:   opts.Octaves.Frequency,
			Amplitude:   opts.Octaves.Amplitude,
			Depth:       opts.Depth,
			TileSize:    opts.Grid.TileSize,
			RefZoom:     int(opts.Grid.RefZoom),
		},
	}
}
