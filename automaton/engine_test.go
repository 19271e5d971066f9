package automaton

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/internal/parallel"
)

func mustSeed(t *testing.T, grad []uint8, w, h int, rule Rule) (*Terrain, *Lattice) {
	t.Helper()
	opts := DefaultSeedOptions()
	opts.Rule = rule
	terrain, gen0, _, err := Seed(grad, w, h, opts)
	require.NoError(t, err)
	return terrain, gen0
}

func mustEngine(t *testing.T, cfg Config, pool *parallel.Pool) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, pool)
	require.NoError(t, err)
	return e
}

func randomGradient(rng *rand.Rand, w, h, levels int) []uint8 {
	g := make([]uint8, w*h)
	for i := range g {
		g[i] = uint8(rng.Intn(levels))
	}
	return g
}

// manhattanSlope returns a w×h surface rising by one per step away from (0,0).
func manhattanSlope(w, h int) []uint8 {
	g := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g[y*w+x] = uint8(x + y)
		}
	}
	return g
}

func TestEngineSingleMinimum(t *testing.T) {
	terrain, gen0 := mustSeed(t, manhattanSlope(4, 4), 4, 4, RuleMin)
	// The farthest cell is 6 steps from the seed, one more pass confirms the fixed point.
	cfg := DefaultConfig()
	cfg.MaxIterations = 8
	res, err := mustEngine(t, cfg, nil).Run(terrain, gen0)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 6, res.Iterations)
	assert.Equal(t, 7, res.Passes)
	assert.Empty(t, res.Warnings)
	for i, lbl := range res.Lattice.Label {
		assert.Equal(t, uint32(1), lbl, "cell %d", i)
		assert.Equal(t, uint32(0), res.Lattice.Elevation[i])
	}
	assert.Equal(t, 1, res.Lattice.Basins())
}

func TestEngineDefaultBudgetTimesOut(t *testing.T) {
	terrain, gen0 := mustSeed(t, manhattanSlope(4, 4), 4, 4, RuleMin)
	res, err := mustEngine(t, DefaultConfig(), nil).Run(terrain, gen0)
	require.NoError(t, err, "running out of budget is not fatal")
	assert.False(t, res.Converged)
	assert.Equal(t, 4, res.Passes)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], watershed.ErrConvergenceTimeout)
	// Cells within 4 steps are reached, the farthest ones are not.
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			_, lbl := res.Lattice.At(x, y)
			if x+y <= 4 {
				assert.Equal(t, uint32(1), lbl, "(%d,%d)", x, y)
			} else {
				assert.Equal(t, Unlabeled, lbl, "(%d,%d)", x, y)
			}
		}
	}
}

func TestEngineFlatSurface(t *testing.T) {
	grad := []uint8{5, 5, 5, 5, 5, 5, 5, 5, 5}
	terrain, gen0 := mustSeed(t, grad, 3, 3, RuleMin)
	for _, s := range Strategies {
		cfg := DefaultConfig()
		cfg.Strategy = s
		res, err := mustEngine(t, cfg, nil).Run(terrain, gen0)
		require.NoError(t, err)
		assert.True(t, res.Converged, s.String())
		assert.Equal(t, 0, res.Iterations, s.String())
		assert.Equal(t, 1, res.Passes, s.String())
		assert.Equal(t, 9, res.Lattice.Basins(), s.String())
	}
}

func TestEngineTwoOppositeMinima(t *testing.T) {
	const n = 8
	grad := make([]uint8, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			grad[y*n+x] = uint8(min(x+y, 2*(n-1)-x-y))
		}
	}
	terrain, gen0 := mustSeed(t, grad, n, n, RuleMin)
	require.True(t, terrain.Seed[0])
	require.True(t, terrain.Seed[n*n-1])

	cfg := DefaultConfig()
	cfg.MaxIterations = 2 * n
	res, err := mustEngine(t, cfg, nil).Run(terrain, gen0)
	require.NoError(t, err)
	require.True(t, res.Converged)
	lat := res.Lattice
	assert.Equal(t, 2, lat.Basins())
	assert.Zero(t, lat.CountUnlabeled())
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			_, lbl := lat.At(x, y)
			switch {
			case x+y < n-1:
				assert.Equal(t, uint32(1), lbl, "(%d,%d) closer to top-left", x, y)
			case x+y > n-1:
				assert.Equal(t, uint32(2), lbl, "(%d,%d) closer to bottom-right", x, y)
			}
		}
	}
	assert.True(t, contiguous(lat, 1))
	assert.True(t, contiguous(lat, 2))
}

// contiguous reports whether all cells holding label form one 4-connected region.
func contiguous(l *Lattice, label uint32) bool {
	start, total := -1, 0
	for i, lbl := range l.Label {
		if lbl == label {
			total++
			if start < 0 {
				start = i
			}
		}
	}
	if start < 0 {
		return false
	}
	seen := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, j := range Neighbors(i, l.Width, l.Height) {
			if j >= 0 && !seen[j] && l.Label[j] == label {
				seen[j] = true
				queue = append(queue, j)
			}
		}
	}
	return len(seen) == total
}

func TestEngineRunLeavesInputUntouched(t *testing.T) {
	terrain, gen0 := mustSeed(t, manhattanSlope(4, 4), 4, 4, RuleMin)
	before := gen0.Clone()
	_, err := mustEngine(t, DefaultConfig(), nil).Run(terrain, gen0)
	require.NoError(t, err)
	assert.True(t, before.Equal(gen0))
}

func TestStrategyEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const w, h = 37, 29
	grad := randomGradient(rng, w, h, 12)

	for _, rule := range Rules {
		terrain, gen0 := mustSeed(t, grad, w, h, rule)
		for _, budget := range []int{3, 5000} {
			ref, err := mustEngine(t, Config{Strategy: StrategyGlobal, TileSize: 1, MaxIterations: budget, Rule: rule}, nil).Run(terrain, gen0)
			require.NoError(t, err)
			for _, workers := range []int{1, 3, 8} {
				pool := parallel.NewPool(workers)
				for _, s := range Strategies {
					for _, tile := range []int{1, 3, 8, 16, 64} {
						if s != StrategyTiled && tile != 1 {
							continue
						}
						name := fmt.Sprintf("%s/%s/tile%d/workers%d/budget%d", rule, s, tile, workers, budget)
						cfg := Config{Strategy: s, TileSize: tile, MaxIterations: budget, Rule: rule}
						got, err := mustEngine(t, cfg, pool).Run(terrain, gen0)
						require.NoError(t, err, name)
						require.True(t, ref.Lattice.Equal(got.Lattice), name)
						assert.Equal(t, ref.Passes, got.Passes, name)
						assert.Equal(t, ref.Converged, got.Converged, name)
					}
				}
				pool.Close()
			}
			if budget == 5000 {
				assert.True(t, ref.Converged, "rule %s", rule)
				assert.Zero(t, ref.Lattice.CountUnlabeled(), "rule %s", rule)
			}
		}
	}
}

func TestMonotoneAndSeedsPinned(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	const w, h = 24, 17
	grad := randomGradient(rng, w, h, 30)
	pool := parallel.NewPool(4)
	defer pool.Close()

	for _, rule := range Rules {
		terrain, gen0 := mustSeed(t, grad, w, h, rule)
		for _, s := range Strategies {
			cfg := DefaultConfig()
			cfg.Strategy, cfg.Rule, cfg.TileSize = s, rule, 5
			e := mustEngine(t, cfg, pool)
			cur, next := gen0.Clone(), NewLattice(w, h)
			for pass := 0; pass < 200; pass++ {
				changed, err := e.Step(terrain, cur, next)
				require.NoError(t, err)
				for i := range cur.Elevation {
					require.LessOrEqual(t, next.Elevation[i], cur.Elevation[i], "%s/%s cell %d pass %d", rule, s, i, pass)
					if terrain.Seed[i] {
						require.Equal(t, gen0.Label[i], next.Label[i], "seed %d relabeled", i)
						require.Equal(t, gen0.Elevation[i], next.Elevation[i])
					}
				}
				if !changed {
					require.True(t, cur.Equal(next))
					// Another pass at the fixed point reports no change.
					again, err := e.Step(terrain, next, cur)
					require.NoError(t, err)
					require.False(t, again)
					break
				}
				cur, next = next, cur
			}
		}
	}
}

func TestEngineDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	grad := randomGradient(rng, 50, 40, 64)
	terrain, gen0 := mustSeed(t, grad, 50, 40, RuleMin)
	pool := parallel.NewPool(0)
	defer pool.Close()
	cfg := DefaultConfig()
	cfg.Strategy = StrategyTiled
	cfg.MaxIterations = 500
	e := mustEngine(t, cfg, pool)
	first, err := e.Run(terrain, gen0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := e.Run(terrain, gen0)
		require.NoError(t, err)
		require.True(t, first.Lattice.Equal(again.Lattice))
	}
}

func TestMinimaxFloodsByWaterLevel(t *testing.T) {
	// Two minima separated by a ridge of 9 with a saddle of 4 at the top.
	// The saddle is offered 4 by both basins and takes the east one.
	grad := []uint8{
		0, 4, 1,
		2, 9, 2,
		3, 9, 3,
	}
	terrain, gen0 := mustSeed(t, grad, 3, 3, RuleMinimax)
	cfg := DefaultConfig()
	cfg.Rule = RuleMinimax
	cfg.MaxIterations = 10
	res, err := mustEngine(t, cfg, nil).Run(terrain, gen0)
	require.NoError(t, err)
	require.True(t, res.Converged)
	lat := res.Lattice
	assert.Equal(t, []uint32{
		0, 4, 1,
		2, 9, 2,
		3, 9, 3,
	}, lat.Elevation, "each cell rises to its own gradient on a monotone path")
	assert.Equal(t, []uint32{
		1, 2, 2,
		1, 2, 2,
		1, 2, 2,
	}, lat.Label)
}

func TestEngineProfiling(t *testing.T) {
	terrain, gen0 := mustSeed(t, manhattanSlope(4, 4), 4, 4, RuleMin)
	cfg := DefaultConfig()
	cfg.MaxIterations = 8
	plain, err := mustEngine(t, cfg, nil).Run(terrain, gen0)
	require.NoError(t, err)
	assert.Nil(t, plain.Profile)

	cfg.Profiling = true
	prof, err := mustEngine(t, cfg, nil).Run(terrain, gen0)
	require.NoError(t, err)
	require.NotNil(t, prof.Profile)
	assert.Len(t, prof.Profile.Passes, prof.Passes)
	assert.True(t, plain.Lattice.Equal(prof.Lattice), "profiling never alters output")
	assert.GreaterOrEqual(t, prof.Profile.Total(), prof.Profile.Mean())
}

func TestEngineErrors(t *testing.T) {
	for _, cfg := range []Config{
		{Strategy: Strategy(7), TileSize: 16},
		{Strategy: StrategyTiled, TileSize: 0},
		{Strategy: StrategyGlobal, TileSize: 16, MaxIterations: -1},
		{Strategy: StrategyGlobal, TileSize: 16, Rule: Rule(3)},
	} {
		_, err := NewEngine(cfg, nil)
		assert.ErrorIs(t, err, watershed.ErrInvalidConfig, "%+v", cfg)
	}

	terrain, _ := mustSeed(t, manhattanSlope(4, 4), 4, 4, RuleMin)
	e := mustEngine(t, DefaultConfig(), nil)
	_, err := e.Run(terrain, NewLattice(3, 4))
	assert.ErrorIs(t, err, watershed.ErrDimensionMismatch)
	lat := NewLattice(4, 4)
	_, err = e.Step(terrain, lat, lat)
	assert.ErrorIs(t, err, watershed.ErrInvalidConfig)
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"global": StrategyGlobal, "Tiled": StrategyTiled, "local": StrategyTiled,
		"surface": StrategySurface, " image ": StrategySurface,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStrategy("naive")
	assert.ErrorIs(t, err, watershed.ErrInvalidConfig)

	r, err := ParseRule("MINIMAX")
	require.NoError(t, err)
	assert.Equal(t, RuleMinimax, r)
	_, err = ParseRule("max")
	assert.ErrorIs(t, err, watershed.ErrInvalidConfig)
}

func TestConvergenceFlag(t *testing.T) {
	var f ConvergenceFlag
	assert.False(t, f.Changed())
	pool := parallel.NewPool(4)
	defer pool.Close()
	work := make([]func(), 64)
	for i := range work {
		work[i] = func() { f.Merge(i == 37) }
	}
	pool.ExecuteAll(work)
	assert.True(t, f.Changed())
	f.Reset()
	assert.False(t, f.Changed())
	f.Merge(false)
	assert.False(t, f.Changed())
}
