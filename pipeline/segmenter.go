// Package pipeline chains the segmentation stages: luma, gradient, seeding,
// flooding and basin coloring.
package pipeline

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/automaton"
	"github.com/soypat/watershed/colorize"
	"github.com/soypat/watershed/filters"
	"github.com/soypat/watershed/internal/parallel"
)

// Output is the product of one [Segmenter.Segment] call.
type Output struct {
	// Labels is the final label surface.
	Labels *automaton.Lattice
	// Image is the recolored RGBA8888 result.
	Image *watershed.Buffer
	// Gradient is the Gray8 elevation surface the basins were flooded on.
	Gradient *watershed.Buffer
	// Seeds is the number of seeds found.
	Seeds int
	// Basins is the number of distinct basins painted.
	Basins int
	// Engine is the relaxation loop result.
	Engine automaton.Result
	// Warnings gathers the non-fatal conditions of every stage.
	Warnings []error
}

// Segmenter runs the whole segmentation of an image. It owns a worker pool
// shared by all parallel stages; call Close to release it.
type Segmenter struct {
	pool      *parallel.Pool
	gradient  *filters.GradientFilter
	colorizer *colorize.Colorizer

	mu     sync.Mutex
	cfg    Config
	engine *automaton.Engine // Rebuilt lazily after an engine control changes.
	gpu    *filters.GradientGPU
	ctrls  []watershed.Control
}

// New validates cfg and builds a segmenter.
func New(cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pool := parallel.NewPool(cfg.Workers)
	s := &Segmenter{
		pool:      pool,
		cfg:       cfg,
		gradient:  filters.NewGradient(cfg.Gradient, pool),
		colorizer: colorize.New(cfg.ColorMode, pool),
	}
	if err := s.gradient.SetCurve(cfg.Curve); err != nil {
		pool.Close()
		return nil, err
	}
	s.colorizer.SetBackground(cfg.Background)
	s.colorizer.SetLuma(cfg.Luma)
	s.ctrls = s.buildControls()
	return s, nil
}

// Close stops the worker pool. The segmenter must not be used afterwards.
func (s *Segmenter) Close() {
	s.mu.Lock()
	gpu := s.gpu
	s.gpu = nil
	s.mu.Unlock()
	if gpu != nil {
		gpu.Cleanup()
	}
	s.pool.Close()
}

// Config returns a snapshot of the current configuration, including control edits.
func (s *Segmenter) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UseGPU routes RGBA8888 inputs through g for the luma and gradient stages.
// The segmenter takes ownership of g and releases it on Close. Passing nil
// returns to the CPU filters.
func (s *Segmenter) UseGPU(g *filters.GradientGPU) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gpu != nil && s.gpu != g {
		s.gpu.Cleanup()
	}
	s.gpu = g
	if g != nil {
		g.SetModes(s.cfg.Luma, s.cfg.Gradient)
		// Curve was validated when it was set.
		_ = g.SetCurve(s.cfg.Curve)
	}
}

// Segment floods src, which must be RGB888 or RGBA8888, and paints its basins.
func (s *Segmenter) Segment(src watershed.Image) (*Output, error) {
	d := src.Dims()
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("segment input: %w", err)
	} else if d.Shape != watershed.ShapeRGB888 && d.Shape != watershed.ShapeRGBA8888 {
		return nil, fmt.Errorf("segment input shape %s: %w", d.Shape, watershed.ErrInvalidConfig)
	}
	s.mu.Lock()
	cfg, gpu := s.cfg, s.gpu
	engine, err := s.engineLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	log := watershed.Logger()

	grad, err := s.gradientSurface(src, cfg, gpu)
	if err != nil {
		return nil, err
	}
	terrain, gen0, seeds, err := automaton.SeedImage(grad, cfg.seed())
	if err != nil {
		return nil, err
	}
	log.Debug("seeded", "seeds", seeds, "width", d.Width, "height", d.Height)

	res, err := engine.Run(terrain, gen0)
	if err != nil {
		return nil, err
	}
	img, report, err := s.colorizer.Colorize(res.Lattice, src)
	if err != nil {
		return nil, err
	}
	out := &Output{
		Labels:   res.Lattice,
		Image:    img,
		Gradient: grad,
		Seeds:    seeds,
		Basins:   report.Basins,
		Engine:   res,
	}
	out.Warnings = append(out.Warnings, res.Warnings...)
	out.Warnings = append(out.Warnings, report.Warnings...)
	log.Info("segmented", "basins", out.Basins, "passes", res.Passes, "converged", res.Converged)
	return out, nil
}

// gradientSurface computes the Gray8 elevation surface of src.
func (s *Segmenter) gradientSurface(src watershed.Image, cfg Config, gpu *filters.GradientGPU) (*watershed.Buffer, error) {
	d := src.Dims()
	grad := watershed.NewBuffer(d.Width, d.Height, watershed.ShapeGray8)
	if gpu != nil && d.Shape == watershed.ShapeRGBA8888 {
		_, err := gpu.Process(grad.Pix, src, nil)
		if err == nil {
			return grad, nil
		}
		watershed.Logger().Warn("gpu gradient failed, using cpu", "err", err)
	}
	luma := watershed.NewBuffer(d.Width, d.Height, watershed.ShapeGray8)
	if _, err := filters.NewLuma(d.Shape, cfg.Luma, s.pool).Process(luma.Pix, src, nil); err != nil {
		return nil, fmt.Errorf("luma: %w", err)
	}
	if _, err := s.gradient.Process(grad.Pix, luma, nil); err != nil {
		return nil, fmt.Errorf("gradient: %w", err)
	}
	return grad, nil
}

func (s *Segmenter) engineLocked() (*automaton.Engine, error) {
	if s.engine != nil {
		return s.engine, nil
	}
	e, err := automaton.NewEngine(s.cfg.engine(), s.pool)
	if err != nil {
		return nil, err
	}
	s.engine = e
	return e, nil
}

// FromImage copies img into a tightly packed RGBA8888 buffer with
// non-premultiplied color, ready for [Segmenter.Segment].
func FromImage(img image.Image) *watershed.Buffer {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return &watershed.Buffer{
		D: watershed.Dims{
			Width:  b.Dx(),
			Height: b.Dy(),
			Stride: nrgba.Stride,
			Shape:  watershed.ShapeRGBA8888,
		},
		Pix: nrgba.Pix,
	}
}
