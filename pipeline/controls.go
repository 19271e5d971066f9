package pipeline

import (
	"github.com/soypat/watershed"
	"github.com/soypat/watershed/automaton"
	"github.com/soypat/watershed/colorize"
	"github.com/soypat/watershed/filters"
)

// Controls returns every editable parameter of the segmenter. Edits apply
// to the next call to Segment.
func (s *Segmenter) Controls() []watershed.Control { return s.ctrls }

func (s *Segmenter) buildControls() []watershed.Control {
	cfg := s.cfg
	// set edits the config under lock and drops the cached engine.
	set := func(edit func(c *Config)) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		edit(&s.cfg)
		s.engine = nil
		if s.gpu != nil {
			s.gpu.SetModes(s.cfg.Luma, s.cfg.Gradient)
		}
		return nil
	}
	ctrls := []watershed.Control{
		&watershed.ControlEnum[automaton.Strategy]{
			Name:        "Access Strategy",
			Description: "How each relaxation pass reads the lattice",
			Value:       cfg.Strategy,
			ValidValues: automaton.Strategies,
			OnChange: func(v automaton.Strategy) error {
				return set(func(c *Config) { c.Strategy = v })
			},
		},
		&watershed.ControlOrdered[int]{
			Name:        "Tile Size",
			Description: "Tile edge of the tiled strategy",
			Value:       cfg.TileSize,
			Min:         1,
			Max:         256,
			Step:        1,
			OnChange: func(v int) error {
				return set(func(c *Config) { c.TileSize = v })
			},
		},
		&watershed.ControlOrdered[int]{
			Name:        "Max Iterations",
			Description: "Relaxation pass budget, 0 for the larger image dimension",
			Value:       cfg.MaxIterations,
			Min:         0,
			Max:         1 << 20,
			Step:        1,
			OnChange: func(v int) error {
				return set(func(c *Config) { c.MaxIterations = v })
			},
		},
		&watershed.ControlEnum[automaton.Rule]{
			Name:        "Relaxation Rule",
			Description: "Elevation a neighbor offers when flooding",
			Value:       cfg.Rule,
			ValidValues: automaton.Rules,
			OnChange: func(v automaton.Rule) error {
				return set(func(c *Config) { c.Rule = v })
			},
		},
		&watershed.ControlOrdered[uint32]{
			Name:        "Seed Threshold",
			Description: "Highest gradient a local minimum may have to seed a basin",
			Value:       cfg.SeedThreshold,
			Min:         0,
			Max:         255,
			Step:        1,
			OnChange: func(v uint32) error {
				return set(func(c *Config) { c.SeedThreshold = v })
			},
		},
		&watershed.ControlEnum[filters.LumaMode]{
			Name:        "Luma Mode",
			Description: "Algorithm for color to luma conversion",
			Value:       cfg.Luma,
			ValidValues: filters.LumaModes,
			OnChange: func(v filters.LumaMode) error {
				s.colorizer.SetLuma(v)
				return set(func(c *Config) { c.Luma = v })
			},
		},
	}
	// Gradient operator and response curve: keep the config and GPU path in sync.
	for _, ctl := range s.gradient.Controls() {
		switch ctl := ctl.(type) {
		case *watershed.ControlEnum[filters.GradientOperator]:
			inner := ctl.OnChange
			ctl.OnChange = func(v filters.GradientOperator) error {
				if err := inner(v); err != nil {
					return err
				}
				return set(func(c *Config) { c.Gradient = v })
			}
		case *watershed.ControlCurve:
			inner := ctl.OnChange
			ctl.OnChange = func(pts []watershed.CurvePoint) error {
				if err := inner(pts); err != nil {
					return err
				}
				s.mu.Lock()
				s.cfg.Curve = pts
				gpu := s.gpu
				s.mu.Unlock()
				if gpu != nil {
					return gpu.SetCurve(pts)
				}
				return nil
			}
			ctl.Points = cfg.Curve
		}
		ctrls = append(ctrls, ctl)
	}
	for _, ctl := range s.colorizer.Controls() {
		if ctl, ok := ctl.(*watershed.ControlEnum[colorize.Mode]); ok {
			inner := ctl.OnChange
			ctl.OnChange = func(v colorize.Mode) error {
				if err := inner(v); err != nil {
					return err
				}
				return set(func(c *Config) { c.ColorMode = v })
			}
		}
		ctrls = append(ctrls, ctl)
	}
	return ctrls
}
