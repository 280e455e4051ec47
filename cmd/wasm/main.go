//go:build js && wasm
// +build js,wasm

package main

import (
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/MeKo-Tech/noysway/internal/noise"
	"github.com/MeKo-Tech/noysway/internal/raster"
	"github.com/MeKo-Tech/noysway/internal/tile"
)

// RenderRequest represents a frame render request from JS.
type RenderRequest struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Seed        int64   `json:"seed"`
	Backend     string  `json:"backend"`
	Octaves     int     `json:"octaves"`
	Persistence float64 `json:"persistence"`
	Frequency   float64 `json:"frequency"`
	Amplitude   float64 `json:"amplitude"`
	Depth       float64 `json:"depth"`
}

// TileKeyRequest represents a tile filename request from JS.
type TileKeyRequest struct {
	Zoom int `json:"zoom"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// renderFrame renders a frame in the browser and returns it as a
// Uint8ClampedArray of RGBA bytes, ready for ImageData.
func renderFrame(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return map[string]interface{}{"error": "missing arguments"}
	}

	var req RenderRequest
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		return map[string]interface{}{"error": fmt.Sprintf("failed to parse request: %v", err)}
	}

	o := noise.Octaves{
		Count:       req.Octaves,
		Persistence: req.Persistence,
		Frequency:   req.Frequency,
		Amplitude:   req.Amplitude,
	}
	if err := o.Validate(); err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	s, err := noise.NewSampler(req.Backend, req.Seed)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	img, err := raster.Render(s, req.Width, req.Height, req.Depth, o)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	rgba := raster.Pack(img, raster.OrderRGBX).RGBA()
	out := js.Global().Get("Uint8ClampedArray").New(len(rgba.Pix))
	js.CopyBytesToJS(out, rgba.Pix)
	return out
}

// tileKey returns the canonical tile filename so the browser can reliably
// hit a backend `noysway serve` instance.
func tileKey(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return map[string]interface{}{"error": "missing arguments"}
	}

	var req TileKeyRequest
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		return map[string]interface{}{"error": fmt.Sprintf("failed to parse request: %v", err)}
	}
	if req.Zoom < 0 || req.X < 0 || req.Y < 0 {
		return map[string]interface{}{"error": "tile coordinates must be non-negative"}
	}

	c := tile.NewCoords(uint32(req.Zoom), uint32(req.X), uint32(req.Y))
	return map[string]interface{}{
		"key":      c.String(),
		"filename": c.Path("png"),
	}
}

func main() {
	c := make(chan struct{})

	js.Global().Set("noyswayRender", js.FuncOf(renderFrame))
	js.Global().Set("noyswayTileKey", js.FuncOf(tileKey))

	fmt.Println("noysway WASM module loaded")
	<-c
}
