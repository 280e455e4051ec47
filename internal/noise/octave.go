package noise

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoOctaves is returned by Composite and Validate when asked for fewer
// than one octave.
var ErrNoOctaves = errors.New("noise: octave count must be at least 1")

// Octaves parameterizes a fractal sum of noise samples.
type Octaves struct {
	Count       int     `json:"count"`
	Persistence float64 `json:"persistence"` // per-octave amplitude decay
	Frequency   float64 `json:"frequency"`   // frequency of octave 0
	Amplitude   float64 `json:"amplitude"`   // amplitude of octave 0
}

// Validate checks the parameters the way the command line does before any
// sampling happens. Composite itself only rejects Count < 1.
func (o Octaves) Validate() error {
	if o.Count < 1 {
		return fmt.Errorf("%w: got %d", ErrNoOctaves, o.Count)
	}
	if math.IsNaN(o.Persistence) || math.IsInf(o.Persistence, 0) {
		return fmt.Errorf("persistence must be finite, got %v", o.Persistence)
	}
	if !(o.Frequency > 0) || math.IsInf(o.Frequency, 0) {
		return fmt.Errorf("base frequency must be > 0, got %v", o.Frequency)
	}
	if !(o.Amplitude > 0) || math.IsInf(o.Amplitude, 0) {
		return fmt.Errorf("base amplitude must be > 0, got %v", o.Amplitude)
	}
	return nil
}

// Composite sums o.Count octaves of s at (x, y, z) and normalizes by the
// total amplitude. The result stays within [-1, 1] when 0 < Persistence < 1.
func Composite(s Sampler, x, y, z float64, o Octaves) (float64, error) {
	if o.Count < 1 {
		return 0, ErrNoOctaves
	}

	var total, maxAmplitude float64
	frequency := o.Frequency
	amplitude := o.Amplitude
	for i := 0; i < o.Count; i++ {
		total += s.Sample(x*frequency, y*frequency, z*frequency) * amplitude
		maxAmplitude += amplitude
		frequency *= 2
		amplitude *= o.Persistence
	}

	if maxAmplitude == 0 {
		return 0, fmt.Errorf("noise: octave amplitudes sum to zero")
	}
	return total / maxAmplitude, nil
}
