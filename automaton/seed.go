package automaton

import (
	"fmt"

	"github.com/soypat/watershed"
)

// SeedOptions configures seed discovery.
type SeedOptions struct {
	// Threshold is the highest gradient a local minimum may have to become a seed.
	Threshold uint32
	// Rule selects the starting elevation of non-seed cells and must match the
	// rule the engine runs with.
	Rule Rule
}

// DefaultSeedOptions admits every local minimum of an 8-bit gradient as a seed.
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{Threshold: 255, Rule: RuleMin}
}

// Seed builds the terrain and generation-0 lattice for a width×height
// gradient surface. A cell is a seed when its gradient is ≤ every present
// 4-neighbor and ≤ opts.Threshold. Seeds are labeled 1, 2, 3… in row-major
// order; all other cells start [Unlabeled].
func Seed(gradient []uint8, width, height int, opts SeedOptions) (*Terrain, *Lattice, int, error) {
	if width <= 0 || height <= 0 {
		return nil, nil, 0, fmt.Errorf("seed surface %dx%d: %w", width, height, watershed.ErrInvalidConfig)
	} else if len(gradient) != width*height {
		return nil, nil, 0, fmt.Errorf("gradient holds %d values for %dx%d surface: %w",
			len(gradient), width, height, watershed.ErrDimensionMismatch)
	} else if err := opts.Rule.validate(); err != nil {
		return nil, nil, 0, err
	}
	n := width * height
	t := &Terrain{
		Width:    width,
		Height:   height,
		Gradient: make([]uint32, n),
		Seed:     make([]bool, n),
	}
	for i, g := range gradient {
		t.Gradient[i] = uint32(g)
	}

	gen0 := NewLattice(width, height)
	var label uint32
	for i := 0; i < n; i++ {
		g := t.Gradient[i]
		if g <= opts.Threshold && isLocalMinimum(t.Gradient, i, width, height) {
			label++
			t.Seed[i] = true
			gen0.Label[i] = label
			gen0.Elevation[i] = g
			continue
		}
		gen0.Label[i] = Unlabeled
		gen0.Elevation[i] = opts.Rule.initialElevation(g)
	}
	return t, gen0, int(label), nil
}

// SeedImage reads a [watershed.ShapeGray8] gradient image and seeds it with [Seed].
func SeedImage(img watershed.Image, opts SeedOptions) (*Terrain, *Lattice, int, error) {
	d := img.Dims()
	if err := d.Validate(); err != nil {
		return nil, nil, 0, fmt.Errorf("gradient image: %w", err)
	} else if d.Shape != watershed.ShapeGray8 {
		return nil, nil, 0, fmt.Errorf("gradient image shape %s: %w", d.Shape, watershed.ErrInvalidConfig)
	}
	plane := make([]uint8, d.Width*d.Height)
	row := make([]byte, d.SizeRow())
	for y := 0; y < d.Height; y++ {
		r, err := watershed.ImageRow(row, img, y)
		if err != nil {
			return nil, nil, 0, err
		}
		copy(plane[y*d.Width:], r)
	}
	return Seed(plane, d.Width, d.Height, opts)
}

func isLocalMinimum(grad []uint32, i, width, height int) bool {
	g := grad[i]
	for _, j := range Neighbors(i, width, height) {
		if j >= 0 && grad[j] < g {
			return false
		}
	}
	return true
}
