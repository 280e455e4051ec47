package noise

import (
	"fmt"

	"github.com/aquilax/go-perlin"
)

// Backend names accepted by NewSampler.
const (
	BackendImproved = "improved"
	BackendClassic  = "classic"
)

// Classic samples Ken Perlin's 1985 noise through go-perlin as a
// single harmonic. Octaves are summed by Composite.
type Classic struct {
	p *perlin.Perlin
}

// NewClassic returns a classic Perlin sampler seeded with seed.
func NewClassic(seed int64) *Classic {
	// alpha and beta only matter for n > 1.
	return &Classic{p: perlin.NewPerlin(2, 2, 1, seed)}
}

// Sample returns the classic noise value at (x, y, z), clamped to [-1, 1].
func (c *Classic) Sample(x, y, z float64) float64 {
	return clamp(c.p.Noise3D(x, y, z), -1, 1)
}

// NewSampler returns the sampler for a backend name. A zero seed with the
// improved backend selects the reference permutation.
func NewSampler(backend string, seed int64) (Sampler, error) {
	switch backend {
	case "", BackendImproved:
		if seed == 0 {
			return NewReferenceField(), nil
		}
		return NewField(seed), nil
	case BackendClassic:
		return NewClassic(seed), nil
	default:
		return nil, fmt.Errorf("unknown noise backend %q (want %s or %s)", backend, BackendImproved, BackendClassic)
	}
}
