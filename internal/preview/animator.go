// Package preview drives a live view of the field. A ticker goroutine owns
// rendering; other goroutines raise a regenerate flag and read immutable
// frame snapshots.
package preview

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/MeKo-Tech/noysway/internal/noise"
	"github.com/MeKo-Tech/noysway/internal/raster"
)

// Config configures an Animator.
type Config struct {
	Width  int
	Height int
	Order  raster.ChannelOrder
	// Initial shapes the first frame, Regenerate every frame after it.
	Initial    noise.Octaves
	Regenerate noise.Octaves
	// DepthStep is added to the depth on each regeneration.
	DepthStep float64
	// Continuous regenerates on every tick instead of waiting for a request.
	Continuous bool
}

// DefaultConfig returns the parameters of the stock preview window.
func DefaultConfig() Config {
	return Config{
		Width:      1024,
		Height:     1024,
		Order:      raster.OrderXRGB,
		Initial:    noise.Octaves{Count: 8, Persistence: 0.75, Frequency: 0.00095, Amplitude: 0.5},
		Regenerate: noise.Octaves{Count: 2, Persistence: 0.25, Frequency: 0.00095, Amplitude: 0.5},
		DepthStep:  1024,
	}
}

// Status is a point-in-time summary of the animator.
type Status struct {
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Order      string        `json:"order"`
	Depth      float64       `json:"depth"`
	Generation uint64        `json:"generation"`
	Pending    bool          `json:"pending"`
	Octaves    noise.Octaves `json:"octaves"`
	RenderTime string        `json:"render_time"`
}

// Animator renders frames on demand and publishes them as snapshots.
type Animator struct {
	sampler noise.Sampler
	cfg     Config
	logger  *slog.Logger

	regenerate atomic.Bool
	renderMu   sync.Mutex // serializes renders; guards depth

	depth float64

	mu         sync.RWMutex
	frame      raster.Frame
	octaves    noise.Octaves
	generation uint64
	renderTime time.Duration
}

// New renders the initial frame and returns a ready animator.
func New(s noise.Sampler, cfg Config, logger *slog.Logger) (*Animator, error) {
	if s == nil {
		return nil, fmt.Errorf("sampler must not be nil")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("preview size must be positive, got %dx%d", cfg.Width, cfg.Height)
	}
	if err := cfg.Initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial octaves: %w", err)
	}
	if err := cfg.Regenerate.Validate(); err != nil {
		return nil, fmt.Errorf("regenerate octaves: %w", err)
	}

	a := &Animator{sampler: s, cfg: cfg, logger: logger}
	if err := a.render(cfg.Initial); err != nil {
		return nil, err
	}
	return a, nil
}

// RequestRegenerate raises the regenerate flag. The next Tick observes it.
func (a *Animator) RequestRegenerate() {
	a.regenerate.Store(true)
}

// Tick consumes the regenerate flag and, if it was raised (or the animator
// is continuous), advances the depth and renders a new frame. It reports
// whether a frame was rendered.
func (a *Animator) Tick() (bool, error) {
	if !a.regenerate.Swap(false) && !a.cfg.Continuous {
		return false, nil
	}

	a.log().Info("Regenerating", "depth", a.Depth()+a.cfg.DepthStep)

	a.renderMu.Lock()
	a.depth += a.cfg.DepthStep
	a.renderMu.Unlock()

	if err := a.render(a.cfg.Regenerate); err != nil {
		return false, err
	}
	return true, nil
}

// Run ticks at the given interval until ctx is done. Render errors are
// logged and do not stop the loop.
func (a *Animator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Tick(); err != nil {
				a.log().Error("Failed to render frame", "error", err)
			}
		}
	}
}

// Frame returns the latest published frame. Its Pix is never written after
// publication, so callers may read it freely but must not modify it.
func (a *Animator) Frame() raster.Frame {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frame
}

// Depth returns the depth of the latest render.
func (a *Animator) Depth() float64 {
	a.renderMu.Lock()
	defer a.renderMu.Unlock()
	return a.depth
}

// Status returns a summary of the animator.
func (a *Animator) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{
		Width:      a.frame.Width,
		Height:     a.frame.Height,
		Order:      a.frame.Order.String(),
		Depth:      a.frame.Depth,
		Generation: a.generation,
		Pending:    a.regenerate.Load(),
		Octaves:    a.octaves,
		RenderTime: a.renderTime.String(),
	}
}

func (a *Animator) render(o noise.Octaves) error {
	a.renderMu.Lock()
	defer a.renderMu.Unlock()

	start := time.Now()
	img, err := raster.Render(a.sampler, a.cfg.Width, a.cfg.Height, a.depth, o)
	if err != nil {
		return fmt.Errorf("failed to render preview: %w", err)
	}
	frame := raster.Pack(img, a.cfg.Order)
	frame.Depth = a.depth
	elapsed := time.Since(start)

	a.mu.Lock()
	a.frame = frame
	a.octaves = o
	a.generation++
	a.renderTime = elapsed
	a.mu.Unlock()

	a.log().Debug("Published frame", "generation", a.generation, "depth", a.depth, "elapsed", elapsed)
	return nil
}

func (a *Animator) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}
