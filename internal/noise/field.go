// Package noise implements improved lattice gradient noise and its fractal
// octave composition.
package noise

import (
	"fmt"
	"math"
	"math/rand"
)

// Period is the lattice period of the permutation table. The field tiles
// every Period units along each axis.
const Period = 256

// Sampler is a deterministic scalar field over 3-D coordinates.
type Sampler interface {
	Sample(x, y, z float64) float64
}

// referencePermutation is Ken Perlin's reference table, used when no seed
// is given.
var referencePermutation = [Period]uint8{
	151, 160, 137, 91, 90, 15, 131, 13, 201, 95, 96, 53, 194, 233, 7, 225,
	140, 36, 103, 30, 69, 142, 8, 99, 37, 240, 21, 10, 23, 190, 6, 148,
	247, 120, 234, 75, 0, 26, 197, 62, 94, 252, 219, 203, 117, 35, 11, 32,
	57, 177, 33, 88, 237, 149, 56, 87, 174, 20, 125, 136, 171, 168, 68, 175,
	74, 165, 71, 134, 139, 48, 27, 166, 77, 146, 158, 231, 83, 111, 229, 122,
	60, 211, 133, 230, 220, 105, 92, 41, 55, 46, 245, 40, 244, 102, 143, 54,
	65, 25, 63, 161, 1, 216, 80, 73, 209, 76, 132, 187, 208, 89, 18, 169,
	200, 196, 135, 130, 116, 188, 159, 86, 164, 100, 109, 198, 173, 186, 3, 64,
	52, 217, 226, 250, 124, 123, 5, 202, 38, 147, 118, 126, 255, 82, 85, 212,
	207, 206, 59, 227, 47, 16, 58, 17, 182, 189, 28, 42, 223, 183, 170, 213,
	119, 248, 152, 2, 44, 154, 163, 70, 221, 153, 101, 155, 167, 43, 172, 9,
	129, 22, 39, 253, 19, 98, 108, 110, 79, 113, 224, 232, 178, 185, 112, 104,
	218, 246, 97, 228, 251, 34, 242, 193, 238, 210, 144, 12, 191, 179, 162, 241,
	81, 51, 145, 235, 249, 14, 239, 107, 49, 192, 214, 31, 181, 199, 106, 157,
	184, 84, 204, 176, 115, 121, 50, 45, 127, 4, 150, 254, 138, 236, 205, 93,
	222, 114, 67, 29, 24, 72, 243, 141, 128, 195, 78, 66, 215, 61, 156, 180,
}

// gradients holds the 12 cube-edge directions indexed by the low 4 hash
// bits, padded to 16 with the tetrahedron {1,1,0}, {0,-1,1}, {-1,1,0},
// {0,-1,-1} exactly as Perlin's grad(hash&15) picks them.
var gradients = [16][3]float64{
	{1, 1, 0}, {-1, 1, 0}, {1, -1, 0}, {-1, -1, 0},
	{1, 0, 1}, {-1, 0, 1}, {1, 0, -1}, {-1, 0, -1},
	{0, 1, 1}, {0, -1, 1}, {0, 1, -1}, {0, -1, -1},
	{1, 1, 0}, {0, -1, 1}, {-1, 1, 0}, {0, -1, -1},
}

// Field is an immutable improved-noise sampler. A Field is safe for
// concurrent use by multiple goroutines.
type Field struct {
	perm [2 * Period]uint8
}

// NewReferenceField returns a field built from the reference permutation.
func NewReferenceField() *Field {
	return newField(referencePermutation)
}

// NewField returns a field whose permutation is shuffled from seed.
func NewField(seed int64) *Field {
	r := rand.New(rand.NewSource(seed))
	var p [Period]uint8
	for i := range p {
		p[i] = uint8(i)
	}
	for i := Period - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return newField(p)
}

// NewFieldFromPermutation builds a field from an explicit table. Every value
// 0-255 must appear exactly once.
func NewFieldFromPermutation(p [Period]uint8) (*Field, error) {
	var seen [Period]bool
	for i, v := range p {
		if seen[v] {
			return nil, fmt.Errorf("permutation value %d repeated at index %d", v, i)
		}
		seen[v] = true
	}
	return newField(p), nil
}

func newField(p [Period]uint8) *Field {
	f := &Field{}
	for i := range f.perm {
		f.perm[i] = p[i&(Period-1)]
	}
	return f
}

// Permutation returns a copy of the base table.
func (f *Field) Permutation() [Period]uint8 {
	var p [Period]uint8
	copy(p[:], f.perm[:Period])
	return p
}

// Sample returns the noise value at (x, y, z), clamped to [-1, 1].
func (f *Field) Sample(x, y, z float64) float64 {
	fx, fy, fz := math.Floor(x), math.Floor(y), math.Floor(z)
	xi := int(int64(fx) & (Period - 1))
	yi := int(int64(fy) & (Period - 1))
	zi := int(int64(fz) & (Period - 1))

	x -= fx
	y -= fy
	z -= fz

	u := fade(x)
	v := fade(y)
	w := fade(z)

	p := &f.perm
	a := int(p[xi]) + yi
	aa := int(p[a]) + zi
	ab := int(p[a+1]) + zi
	b := int(p[xi+1]) + yi
	ba := int(p[b]) + zi
	bb := int(p[b+1]) + zi

	n := lerp(w,
		lerp(v,
			lerp(u, grad(p[aa], x, y, z), grad(p[ba], x-1, y, z)),
			lerp(u, grad(p[ab], x, y-1, z), grad(p[bb], x-1, y-1, z))),
		lerp(v,
			lerp(u, grad(p[aa+1], x, y, z-1), grad(p[ba+1], x-1, y, z-1)),
			lerp(u, grad(p[ab+1], x, y-1, z-1), grad(p[bb+1], x-1, y-1, z-1))))

	return clamp(n, -1, 1)
}

// fade is the quintic 6t^5 - 15t^4 + 10t^3.
func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(t, a, b float64) float64 { return a + t*(b-a) }

func grad(hash uint8, x, y, z float64) float64 {
	g := &gradients[hash&15]
	return g[0]*x + g[1]*y + g[2]*z
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
