// Package automaton floods a gradient surface from its local minima with a
// synchronous cellular automaton. Each pass reads one generation of the
// lattice and writes the next; passes repeat until no cell changes or the
// pass budget runs out.
package automaton

import (
	"fmt"
	"math"
	"slices"

	"github.com/soypat/watershed"
)

// Unlabeled is the label of a cell no basin has reached yet.
const Unlabeled uint32 = 0

// unreachable is the elevation of cells outside the grid and of unlabeled
// cells flooded under [RuleMinimax]. No candidate is ever strictly below it.
const unreachable = math.MaxUint32

// Lattice is one generation of automaton state, stored row-major.
type Lattice struct {
	Width, Height int
	// Elevation is the propagated cost of each cell. It never increases.
	Elevation []uint32
	// Label is the basin of each cell or [Unlabeled].
	Label []uint32
}

// NewLattice allocates a zeroed width×height lattice.
func NewLattice(width, height int) *Lattice {
	n := width * height
	return &Lattice{
		Width:     width,
		Height:    height,
		Elevation: make([]uint32, n),
		Label:     make([]uint32, n),
	}
}

// Len returns the number of cells.
func (l *Lattice) Len() int { return l.Width * l.Height }

// At returns the elevation and label of the cell at (x,y).
func (l *Lattice) At(x, y int) (elevation, label uint32) {
	i := y*l.Width + x
	return l.Elevation[i], l.Label[i]
}

// Clone returns a deep copy of l.
func (l *Lattice) Clone() *Lattice {
	return &Lattice{
		Width:     l.Width,
		Height:    l.Height,
		Elevation: slices.Clone(l.Elevation),
		Label:     slices.Clone(l.Label),
	}
}

// Equal reports whether both lattices have the same size and cell states.
func (l *Lattice) Equal(other *Lattice) bool {
	return l.Width == other.Width && l.Height == other.Height &&
		slices.Equal(l.Elevation, other.Elevation) && slices.Equal(l.Label, other.Label)
}

// CountUnlabeled returns how many cells still hold [Unlabeled].
func (l *Lattice) CountUnlabeled() (n int) {
	for _, lbl := range l.Label {
		if lbl == Unlabeled {
			n++
		}
	}
	return n
}

// Basins returns the number of distinct non-sentinel labels.
func (l *Lattice) Basins() int {
	seen := make(map[uint32]struct{})
	for _, lbl := range l.Label {
		if lbl != Unlabeled {
			seen[lbl] = struct{}{}
		}
	}
	return len(seen)
}

// Dims returns the label surface dimensions as a [watershed.ShapeLabel32] image.
func (l *Lattice) Dims() watershed.Dims {
	return watershed.Dims{Width: l.Width, Height: l.Height, Stride: 4 * l.Width, Shape: watershed.ShapeLabel32}
}

func (l *Lattice) validate() error {
	if l == nil {
		return fmt.Errorf("nil lattice: %w", watershed.ErrDimensionMismatch)
	}
	n := l.Width * l.Height
	if len(l.Elevation) != n || len(l.Label) != n {
		return fmt.Errorf("lattice %dx%d holds %d elevations and %d labels: %w",
			l.Width, l.Height, len(l.Elevation), len(l.Label), watershed.ErrDimensionMismatch)
	}
	return nil
}

// Terrain is the read-only per-cell data shared by both generations.
type Terrain struct {
	Width, Height int
	Gradient      []uint32
	// Seed marks cells pinned to their initial label.
	Seed []bool
}

func (t *Terrain) validate(l *Lattice) error {
	if t == nil {
		return fmt.Errorf("nil terrain: %w", watershed.ErrDimensionMismatch)
	}
	n := t.Width * t.Height
	if len(t.Gradient) != n || len(t.Seed) != n {
		return fmt.Errorf("terrain %dx%d holds %d gradients and %d seed flags: %w",
			t.Width, t.Height, len(t.Gradient), len(t.Seed), watershed.ErrDimensionMismatch)
	}
	if err := l.validate(); err != nil {
		return err
	}
	if l.Width != t.Width || l.Height != t.Height {
		return fmt.Errorf("lattice %dx%d on terrain %dx%d: %w",
			l.Width, l.Height, t.Width, t.Height, watershed.ErrDimensionMismatch)
	}
	return nil
}

// Neighbor directions in tie-break priority order.
const (
	North = iota
	East
	South
	West
)

// Neighbors returns the linear indices of the north, east, south and west
// neighbors of cell i on a width×height grid. Absent neighbors are -1.
func Neighbors(i, width, height int) (nb [4]int) {
	x, y := i%width, i/width
	nb = [4]int{-1, -1, -1, -1}
	if y > 0 {
		nb[North] = i - width
	}
	if x < width-1 {
		nb[East] = i + 1
	}
	if y < height-1 {
		nb[South] = i + width
	}
	if x > 0 {
		nb[West] = i - 1
	}
	return nb
}
