package pipeline

import (
	"fmt"
	"image/color"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/automaton"
	"github.com/soypat/watershed/colorize"
	"github.com/soypat/watershed/filters"
)

// Config configures a [Segmenter].
type Config struct {
	Strategy automaton.Strategy
	// TileSize is the tile edge of the tiled strategy.
	TileSize int
	// MaxIterations bounds the number of relaxation passes. Zero means max(width, height).
	MaxIterations int
	// Profiling records per-pass wall time. It never alters output.
	Profiling bool
	// Workers is the worker pool size. Zero means GOMAXPROCS.
	Workers int
	Rule    automaton.Rule

	Luma     filters.LumaMode
	Gradient filters.GradientOperator
	// Curve maps normalized gradient to elevation. Empty is the identity.
	Curve []watershed.CurvePoint
	// SeedThreshold is the highest gradient a local minimum may have to seed a basin.
	SeedThreshold uint32

	ColorMode  colorize.Mode
	Background color.RGBA
}

// DefaultConfig returns the configuration used when no option is given.
func DefaultConfig() Config {
	return Config{
		Strategy:      automaton.StrategyGlobal,
		TileSize:      automaton.DefaultTileSize,
		Rule:          automaton.RuleMin,
		Luma:          filters.LumaBT709,
		Gradient:      filters.GradientSobel,
		SeedThreshold: 255,
		ColorMode:     colorize.ModeMean,
		Background:    colorize.DefaultBackground,
	}
}

// Validate reports the first invalid field wrapping [watershed.ErrInvalidConfig].
func (c Config) Validate() error {
	if err := c.engine().Validate(); err != nil {
		return err
	}
	switch {
	case c.Workers < 0:
		return fmt.Errorf("workers %d: %w", c.Workers, watershed.ErrInvalidConfig)
	case c.Luma < filters.LumaBT709 || c.Luma > filters.LumaLightness:
		return fmt.Errorf("luma mode %d: %w", int(c.Luma), watershed.ErrInvalidConfig)
	case c.Gradient < filters.GradientSobel || c.Gradient > filters.GradientMorphological:
		return fmt.Errorf("gradient operator %d: %w", int(c.Gradient), watershed.ErrInvalidConfig)
	case c.ColorMode < colorize.ModeMean || c.ColorMode > colorize.ModeSeed:
		return fmt.Errorf("color mode %d: %w", int(c.ColorMode), watershed.ErrInvalidConfig)
	}
	return watershed.ValidateCurve(c.Curve)
}

func (c Config) engine() automaton.Config {
	return automaton.Config{
		Strategy:      c.Strategy,
		TileSize:      c.TileSize,
		MaxIterations: c.MaxIterations,
		Profiling:     c.Profiling,
		Rule:          c.Rule,
	}
}

func (c Config) seed() automaton.SeedOptions {
	return automaton.SeedOptions{Threshold: c.SeedThreshold, Rule: c.Rule}
}
