package automaton

import (
	"github.com/soypat/watershed/internal/parallel"
)

// Pass is one synchronous relaxation sweep. Relaxers read only Current and
// write every cell of Next; the two lattices never alias.
type Pass struct {
	Terrain *Terrain
	Current *Lattice
	Next    *Lattice
	Rule    Rule
	Flag    *ConvergenceFlag
}

// Relaxer runs one pass over the whole lattice and returns once every cell of
// Next is written and every local change flag is merged into Flag.
// Implementations differ in memory access only; for the same Pass they write
// identical Next lattices.
type Relaxer interface {
	Relax(p Pass)
}

// Global reads each cell's neighbors straight from the full current
// buffers by linear index. Rows are split into one band per worker.
type Global struct {
	Pool *parallel.Pool
}

var _ Relaxer = (*Global)(nil)

// Relax implements [Relaxer].
func (g *Global) Relax(p Pass) {
	w, h := p.Current.Width, p.Current.Height
	cur, next, t := p.Current, p.Next, p.Terrain
	forBands(g.Pool, h, func(b parallel.Band) {
		changed := false
		var nb [4]cell
		for i := b.Y0 * w; i < b.Y1*w; i++ {
			for d, j := range Neighbors(i, w, h) {
				if j < 0 {
					nb[d] = absent
				} else {
					nb[d] = cell{elev: cur.Elevation[j], label: cur.Label[j]}
				}
			}
			self := cell{elev: cur.Elevation[i], label: cur.Label[i]}
			nx, ch := p.Rule.relax(t.Seed[i], t.Gradient[i], self, &nb)
			next.Elevation[i], next.Label[i] = nx.elev, nx.label
			changed = changed || ch
		}
		p.Flag.Merge(changed)
	})
}

// forBands runs fn over row bands on pool, or inline as one band when pool is nil.
func forBands(pool *parallel.Pool, height int, fn func(parallel.Band)) {
	if pool == nil {
		fn(parallel.Band{Y0: 0, Y1: height})
		return
	}
	pool.ForBands(height, fn)
}

// executeAll runs work on pool, or sequentially when pool is nil.
func executeAll(pool *parallel.Pool, work []func()) {
	if pool == nil {
		for _, fn := range work {
			fn()
		}
		return
	}
	pool.ExecuteAll(work)
}
