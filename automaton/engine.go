package automaton

import (
	"fmt"
	"time"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/internal/parallel"
)

// Config configures an [Engine].
type Config struct {
	Strategy Strategy
	// TileSize is the tile edge of [StrategyTiled].
	TileSize int
	// MaxIterations bounds the number of passes. Zero means max(width, height).
	MaxIterations int
	// Profiling records per-pass wall time in [Result.Profile].
	Profiling bool
	Rule      Rule
}

// DefaultConfig returns the global strategy with the min rule and an automatic pass budget.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyGlobal,
		TileSize: DefaultTileSize,
		Rule:     RuleMin,
	}
}

// Validate reports configuration errors wrapping [watershed.ErrInvalidConfig].
func (c Config) Validate() error {
	switch {
	case c.Strategy < StrategyGlobal || c.Strategy > StrategySurface:
		return fmt.Errorf("strategy %d: %w", int(c.Strategy), watershed.ErrInvalidConfig)
	case c.TileSize <= 0:
		return fmt.Errorf("tile size %d: %w", c.TileSize, watershed.ErrInvalidConfig)
	case c.MaxIterations < 0:
		return fmt.Errorf("max iterations %d: %w", c.MaxIterations, watershed.ErrInvalidConfig)
	}
	return c.Rule.validate()
}

// Result is the outcome of [Engine.Run].
type Result struct {
	// Lattice is the last generation written.
	Lattice *Lattice
	// Passes is the number of relaxation passes run, including the final
	// pass that found no change.
	Passes int
	// Iterations is the number of passes that changed at least one cell.
	Iterations int
	// Converged is true when the last pass changed nothing.
	Converged bool
	// Warnings holds non-fatal conditions such as [watershed.ErrConvergenceTimeout].
	Warnings []error
	// Profile is nil unless profiling was enabled.
	Profile *Profile
}

// Engine runs the relaxation loop. An Engine may run many lattices but
// only one at a time.
type Engine struct {
	cfg     Config
	relaxer Relaxer
}

// NewEngine validates cfg and builds the relaxer for its strategy. pool may
// be nil to run every pass on the calling goroutine. The engine does not
// close pool.
func NewEngine(cfg Config, pool *parallel.Pool) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r, err := NewRelaxer(cfg.Strategy, cfg.TileSize, pool)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, relaxer: r}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Run floods gen0 over t until a pass changes nothing or the pass budget is
// spent. gen0 is not modified. Running out of budget is not an error: the
// result is returned with Converged false and a timeout warning.
func (e *Engine) Run(t *Terrain, gen0 *Lattice) (Result, error) {
	if err := t.validate(gen0); err != nil {
		return Result{}, err
	}
	budget := e.cfg.MaxIterations
	if budget == 0 {
		budget = max(t.Width, t.Height)
	}
	log := watershed.Logger()
	log.Debug("automaton start",
		"strategy", e.cfg.Strategy, "rule", e.cfg.Rule, "tile", e.cfg.TileSize,
		"width", t.Width, "height", t.Height, "budget", budget)

	cur := gen0.Clone()
	next := NewLattice(t.Width, t.Height)
	var (
		flag ConvergenceFlag
		res  Result
	)
	if e.cfg.Profiling {
		res.Profile = &Profile{Passes: make([]time.Duration, 0, budget)}
	}
	for res.Passes < budget {
		flag.Reset()
		start := time.Now()
		e.relaxer.Relax(Pass{Terrain: t, Current: cur, Next: next, Rule: e.cfg.Rule, Flag: &flag})
		if res.Profile != nil {
			elapsed := time.Since(start)
			res.Profile.Passes = append(res.Profile.Passes, elapsed)
			log.Debug("automaton pass", "step", res.Passes, "elapsed", elapsed)
		}
		res.Passes++
		if !flag.Changed() {
			res.Converged = true
			break
		}
		cur, next = next, cur
		res.Iterations++
	}
	res.Lattice = cur

	if res.Converged {
		log.Info("automaton converged", "step", res.Passes, "iterations", res.Iterations)
	} else {
		err := fmt.Errorf("%w: %d passes", watershed.ErrConvergenceTimeout, res.Passes)
		res.Warnings = append(res.Warnings, err)
		log.Warn("automaton did not converge", "passes", res.Passes, "unlabeled", cur.CountUnlabeled())
	}
	if res.Profile != nil {
		log.Debug("automaton profile", "total", res.Profile.Total(), "mean", res.Profile.Mean())
	}
	return res, nil
}

// Step runs a single pass from cur into next with the engine's relaxer and
// reports whether any cell changed.
func (e *Engine) Step(t *Terrain, cur, next *Lattice) (changed bool, err error) {
	if err := t.validate(cur); err != nil {
		return false, err
	} else if err := t.validate(next); err != nil {
		return false, err
	} else if cur == next {
		return false, fmt.Errorf("current and next generation alias: %w", watershed.ErrInvalidConfig)
	}
	var flag ConvergenceFlag
	e.relaxer.Relax(Pass{Terrain: t, Current: cur, Next: next, Rule: e.cfg.Rule, Flag: &flag})
	return flag.Changed(), nil
}
