package automaton

import (
	"github.com/soypat/watershed/internal/parallel"
)

// Surface addresses the lattice as 2D row surfaces with clamp-to-edge
// fetches instead of checked linear indices. A clamped fetch returns the
// cell itself, which can never strictly improve on itself, so borders
// behave exactly as absent neighbors do.
type Surface struct {
	Pool *parallel.Pool
}

var _ Relaxer = (*Surface)(nil)

// surface is a 2D view over a lattice's row-major buffers.
type surface struct {
	w, h  int
	elev  [][]uint32
	label [][]uint32
}

func newSurface(l *Lattice) surface {
	s := surface{
		w:     l.Width,
		h:     l.Height,
		elev:  make([][]uint32, l.Height),
		label: make([][]uint32, l.Height),
	}
	for y := range s.elev {
		s.elev[y] = l.Elevation[y*l.Width : (y+1)*l.Width]
		s.label[y] = l.Label[y*l.Width : (y+1)*l.Width]
	}
	return s
}

func (s *surface) fetch(x, y int) cell {
	x = min(max(x, 0), s.w-1)
	y = min(max(y, 0), s.h-1)
	return cell{elev: s.elev[y][x], label: s.label[y][x]}
}

// Relax implements [Relaxer].
func (s *Surface) Relax(p Pass) {
	src := newSurface(p.Current)
	dst := newSurface(p.Next)
	t := p.Terrain
	forBands(s.Pool, src.h, func(b parallel.Band) {
		changed := false
		var nb [4]cell
		for y := b.Y0; y < b.Y1; y++ {
			for x := 0; x < src.w; x++ {
				nb[North] = src.fetch(x, y-1)
				nb[East] = src.fetch(x+1, y)
				nb[South] = src.fetch(x, y+1)
				nb[West] = src.fetch(x-1, y)
				i := y*src.w + x
				nx, ch := p.Rule.relax(t.Seed[i], t.Gradient[i], src.fetch(x, y), &nb)
				dst.elev[y][x], dst.label[y][x] = nx.elev, nx.label
				changed = changed || ch
			}
		}
		p.Flag.Merge(changed)
	})
}
