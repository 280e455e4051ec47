package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MeKo-Tech/noysway/internal/noise"
	"github.com/MeKo-Tech/noysway/internal/raster"
	"github.com/MeKo-Tech/noysway/internal/tiff"
	"github.com/MeKo-Tech/noysway/internal/tile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOctaves = noise.Octaves{Count: 3, Persistence: 0.5, Frequency: 0.05, Amplitude: 1}

func TestGenerateWritesContainer(t *testing.T) {
	gen, err := NewGenerator(noise.NewReferenceField(), nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "example.tif")
	req := Request{
		Output:  tiff.Descriptor{Width: 12, Height: 7, DPI: 96, Path: path},
		Octaves: testOctaves,
		Depth:   1.5,
	}
	img, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	st, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(188+12*7), st.Size())

	info, err := tiff.ReadInfo(f, st.Size())
	require.NoError(t, err)
	assert.Equal(t, 12, info.Width)
	assert.Equal(t, 7, info.Height)
	assert.Equal(t, uint32(96), info.XDPI)

	payload := make([]byte, info.StripByteCount)
	_, err = f.ReadAt(payload, int64(info.StripOffset))
	require.NoError(t, err)

	want, err := raster.Render(noise.NewReferenceField(), 12, 7, 1.5, testOctaves)
	require.NoError(t, err)
	assert.Equal(t, want.Pix, payload)
	assert.Equal(t, want.Pix, img.Pix)
}

func TestGenerateGoldenScenario(t *testing.T) {
	gen, err := NewGenerator(noise.NewReferenceField(), nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "golden.tif")
	_, err = gen.Generate(context.Background(), Request{
		Output:  tiff.Descriptor{Width: 4, Height: 4, DPI: 96, Path: path},
		Octaves: noise.Octaves{Count: 1, Persistence: 0.5, Frequency: 0.01, Amplitude: 1},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 204)
	assert.Equal(t, []byte{
		128, 129, 130, 131,
		127, 129, 130, 131,
		127, 129, 130, 131,
		127, 129, 130, 131,
	}, data[188:])
}

func TestGenerateEmptyImage(t *testing.T) {
	gen, err := NewGenerator(noise.NewReferenceField(), nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "empty.tif")
	img, err := gen.Generate(context.Background(), Request{
		Output:  tiff.Descriptor{Path: path, DPI: 96},
		Octaves: testOctaves,
	})
	require.NoError(t, err)
	assert.Empty(t, img.Pix)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 188)
}

func TestGenerateRejectsBadRequests(t *testing.T) {
	gen, err := NewGenerator(noise.NewReferenceField(), nil)
	require.NoError(t, err)
	dir := t.TempDir()

	t.Run("zero octaves", func(t *testing.T) {
		path := filepath.Join(dir, "zero.tif")
		_, err := gen.Generate(context.Background(), Request{
			Output:  tiff.Descriptor{Width: 2, Height: 2, Path: path},
			Octaves: noise.Octaves{Persistence: 0.5, Frequency: 1, Amplitude: 1},
		})
		require.ErrorIs(t, err, noise.ErrNoOctaves)
		assert.NoFileExists(t, path)
	})

	t.Run("missing directory", func(t *testing.T) {
		path := filepath.Join(dir, "nope", "out.tif")
		_, err := gen.Generate(context.Background(), Request{
			Output:  tiff.Descriptor{Width: 2, Height: 2, Path: path},
			Octaves: testOctaves,
		})
		require.Error(t, err)
		assert.NoFileExists(t, path)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := gen.Generate(context.Background(), Request{
			Output:  tiff.Descriptor{Width: 2, Height: 2},
			Octaves: testOctaves,
		})
		require.Error(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := gen.Render(ctx, Request{
			Output:  tiff.Descriptor{Width: 2, Height: 2},
			Octaves: testOctaves,
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRenderSmooth(t *testing.T) {
	gen, err := NewGenerator(noise.NewField(7), nil)
	require.NoError(t, err)

	req := Request{
		Output:  tiff.Descriptor{Width: 32, Height: 32},
		Octaves: noise.Octaves{Count: 4, Persistence: 0.5, Frequency: 0.2, Amplitude: 1},
	}
	plain, err := gen.Render(context.Background(), req)
	require.NoError(t, err)

	req.Smooth = 2
	smooth, err := gen.Render(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, plain.Bounds(), smooth.Bounds())
	assert.NotEqual(t, plain.Pix, smooth.Pix)
}

func TestNewGeneratorNilSampler(t *testing.T) {
	_, err := NewGenerator(nil, nil)
	require.Error(t, err)
}

func TestTileRendererMatchesFullRender(t *testing.T) {
	grid := tile.Grid{TileSize: 8, RefZoom: 2}
	r, err := NewTileRenderer(noise.NewReferenceField(), TileOptions{Grid: grid, Octaves: testOctaves}, nil)
	require.NoError(t, err)

	full, err := raster.Render(noise.NewReferenceField(), 32, 32, 0, testOctaves)
	require.NoError(t, err)

	c := tile.NewCoords(2, 1, 2)
	data, err := r.RenderTile(context.Background(), c)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	gray, ok := decoded.(*image.Gray)
	require.True(t, ok, "decoded %T", decoded)

	sub := full.SubImage(image.Rect(8, 16, 16, 24)).(*image.Gray)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			require.Equal(t, sub.GrayAt(8+x, 16+y), gray.GrayAt(x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestTileRendererZoomedOut(t *testing.T) {
	grid := tile.Grid{TileSize: 4, RefZoom: 1}
	r, err := NewTileRenderer(noise.NewReferenceField(), TileOptions{Grid: grid, Octaves: testOctaves}, nil)
	require.NoError(t, err)

	img, err := r.Image(context.Background(), tile.NewCoords(0, 0, 0))
	require.NoError(t, err)

	want, err := raster.RenderRegion(noise.NewReferenceField(), 0, 0, 2, 4, 4, 0, testOctaves)
	require.NoError(t, err)
	assert.Equal(t, want.Pix, img.Pix)
}

func TestTileRendererRejectsOutOfRange(t *testing.T) {
	r, err := NewTileRenderer(noise.NewReferenceField(), TileOptions{Grid: tile.DefaultGrid, Octaves: testOctaves}, nil)
	require.NoError(t, err)

	_, err = r.RenderTile(context.Background(), tile.NewCoords(1, 2, 0))
	require.Error(t, err)

	_, err = NewTileRenderer(noise.NewReferenceField(), TileOptions{Grid: tile.Grid{}, Octaves: testOctaves}, nil)
	require.Error(t, err)
	_, err = NewTileRenderer(noise.NewReferenceField(), TileOptions{Grid: tile.DefaultGrid}, nil)
	require.ErrorIs(t, err, noise.ErrNoOctaves)
}

func TestTileRendererConcurrent(t *testing.T) {
	grid := tile.Grid{TileSize: 16, RefZoom: 4}
	r, err := NewTileRenderer(noise.NewField(99), TileOptions{Grid: grid, Octaves: testOctaves}, nil)
	require.NoError(t, err)

	c := tile.NewCoords(4, 3, 5)
	want, err := r.RenderTile(context.Background(), c)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.RenderTile(context.Background(), c)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(want, got) {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
