package automaton

import (
	"fmt"
	"sync"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/internal/parallel"
)

// DefaultTileSize is the tile edge used when none is configured.
const DefaultTileSize = 16

// Tiled relaxes square tiles as independent work items. Each tile first
// stages its cells plus a one-cell halo from the current generation into a
// scratch block, then relaxes reading the scratch block only.
type Tiled struct {
	Pool     *parallel.Pool
	tileSize int
	scratch  sync.Pool
}

var _ Relaxer = (*Tiled)(nil)

// NewTiled returns a tiled relaxer. tileSize must be positive.
func NewTiled(tileSize int, pool *parallel.Pool) (*Tiled, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("tile size %d: %w", tileSize, watershed.ErrInvalidConfig)
	}
	return &Tiled{Pool: pool, tileSize: tileSize}, nil
}

// TileSize returns the tile edge length.
func (s *Tiled) TileSize() int { return s.tileSize }

// tileScratch holds a (tile+2)² block: the tile and its halo.
type tileScratch struct {
	cells []cell
}

// Relax implements [Relaxer].
func (s *Tiled) Relax(p Pass) {
	tiles := parallel.Tiles(p.Current.Width, p.Current.Height, s.tileSize)
	work := make([]func(), len(tiles))
	for i, tl := range tiles {
		work[i] = func() { s.relaxTile(p, tl) }
	}
	executeAll(s.Pool, work)
}

func (s *Tiled) relaxTile(p Pass, tl parallel.Tile) {
	w, h := p.Current.Width, p.Current.Height
	cur, next, t := p.Current, p.Next, p.Terrain
	sw, sh := tl.Width()+2, tl.Height()+2
	sc := s.get(sw * sh)
	defer s.scratch.Put(sc)

	// Stage: scratch (sx,sy) is grid cell (X0+sx-1, Y0+sy-1). Off-grid halo cells are absent.
	for sy := 0; sy < sh; sy++ {
		y := tl.Y0 + sy - 1
		row := sc.cells[sy*sw : (sy+1)*sw]
		if y < 0 || y >= h {
			for k := range row {
				row[k] = absent
			}
			continue
		}
		for sx := range row {
			x := tl.X0 + sx - 1
			if x < 0 || x >= w {
				row[sx] = absent
				continue
			}
			i := y*w + x
			row[sx] = cell{elev: cur.Elevation[i], label: cur.Label[i]}
		}
	}

	// Relax from scratch only.
	changed := false
	var nb [4]cell
	for ty := 0; ty < tl.Height(); ty++ {
		k := (ty+1)*sw + 1
		i := (tl.Y0+ty)*w + tl.X0
		for tx := 0; tx < tl.Width(); tx, k, i = tx+1, k+1, i+1 {
			nb[North] = sc.cells[k-sw]
			nb[East] = sc.cells[k+1]
			nb[South] = sc.cells[k+sw]
			nb[West] = sc.cells[k-1]
			nx, ch := p.Rule.relax(t.Seed[i], t.Gradient[i], sc.cells[k], &nb)
			next.Elevation[i], next.Label[i] = nx.elev, nx.label
			changed = changed || ch
		}
	}
	p.Flag.Merge(changed)
}

func (s *Tiled) get(n int) *tileScratch {
	if sc, ok := s.scratch.Get().(*tileScratch); ok && cap(sc.cells) >= n {
		sc.cells = sc.cells[:n]
		return sc
	}
	return &tileScratch{cells: make([]cell, n)}
}
