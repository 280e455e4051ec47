package server

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MeKo-Tech/noysway/internal/preview"
	"github.com/MeKo-Tech/noysway/internal/raster"
)

// maxPreviewSide caps the ?width= and ?height= of /frame.png.
const maxPreviewSide = 4096

// PreviewHandler exposes an Animator over HTTP: the current frame as PNG
// and a trigger that raises the regenerate flag.
type PreviewHandler struct {
	anim   *preview.Animator
	logger *slog.Logger
}

// NewPreviewHandler wraps anim.
func NewPreviewHandler(anim *preview.Animator, logger *slog.Logger) *PreviewHandler {
	return &PreviewHandler{anim: anim, logger: logger}
}

// Frame serves the latest frame. Optional width and height query
// parameters rescale it.
func (h *PreviewHandler) Frame(w http.ResponseWriter, r *http.Request) {
	frame := h.anim.Frame()

	width, height, err := previewSize(r, frame.Width, frame.Height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var img image.Image
	if width == frame.Width && height == frame.Height {
		img = frame.RGBA()
	} else {
		img = raster.Resize(frame.Gray(), width, height)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		h.log().Error("failed to encode frame", "error", err)
		http.Error(w, "failed to encode frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Depth", strconv.FormatFloat(frame.Depth, 'g', -1, 64))
	writePNG(w, buf.Bytes(), h.log())
}

// Regenerate raises the regenerate flag; the frame driver acts on its next tick.
func (h *PreviewHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	h.anim.RequestRegenerate()
	h.log().Debug("regenerate requested", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
}

// Status returns the animator status.
func (h *PreviewHandler) Status() preview.Status {
	return h.anim.Status()
}

func previewSize(r *http.Request, defW, defH int) (int, int, error) {
	parse := func(name string, def int) (int, error) {
		s := r.URL.Query().Get(name)
		if s == "" {
			return def, nil
		}
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 || v > maxPreviewSide {
			return 0, fmt.Errorf("invalid %s %q (want 1..%d)", name, s, maxPreviewSide)
		}
		return v, nil
	}
	wv, err := parse("width", defW)
	if err != nil {
		return 0, 0, err
	}
	hv, err := parse("height", defH)
	if err != nil {
		return 0, 0, err
	}
	return wv, hv, nil
}

func (h *PreviewHandler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
