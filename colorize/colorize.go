// Package colorize paints every basin of a converged label surface with a
// single color derived from the source pixels it covers.
package colorize

import (
	"fmt"
	"image/color"
	"strings"
	"sync"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/automaton"
	"github.com/soypat/watershed/filters"
	"github.com/soypat/watershed/internal/parallel"
)

// Mode selects how a basin's color is derived.
type Mode int

const (
	// ModeMean paints the per-channel mean of the basin's source pixels.
	ModeMean Mode = iota
	// ModeLuma paints the mean luma of the basin as gray.
	ModeLuma
	// ModeSeed paints the source color of the basin's first pixel in scan order.
	ModeSeed
)

// Modes lists every valid [Mode].
var Modes = []Mode{ModeMean, ModeLuma, ModeSeed}

func (m Mode) String() string {
	switch m {
	case ModeMean:
		return "mean"
	case ModeLuma:
		return "luma"
	case ModeSeed:
		return "seed"
	default:
		return "unknown"
	}
}

// ParseMode parses the name returned by [Mode.String].
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(strings.TrimSpace(s), m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown color mode %q: %w", s, watershed.ErrInvalidConfig)
}

// DefaultBackground is painted over cells no basin reached.
var DefaultBackground = color.RGBA{A: 255}

// Report summarizes a colorizing run.
type Report struct {
	Basins    int
	Unlabeled int
	// Warnings holds [watershed.ErrUnlabeledPixels] when Unlabeled > 0.
	Warnings []error
}

// Colorizer paints basins. It is safe for concurrent use.
type Colorizer struct {
	Pool *parallel.Pool

	mu         sync.Mutex
	mode       Mode
	luma       filters.LumaMode
	background color.RGBA
	ctrls      []watershed.Control
}

// New returns a colorizer using mode, BT.709 luma and [DefaultBackground]. pool may be nil.
func New(mode Mode, pool *parallel.Pool) *Colorizer {
	c := &Colorizer{Pool: pool, mode: mode, luma: filters.LumaBT709, background: DefaultBackground}
	c.ctrls = []watershed.Control{
		&watershed.ControlEnum[Mode]{
			Name:        "Basin Color",
			Description: "How each basin's color is derived from its source pixels",
			Value:       mode,
			ValidValues: Modes,
			OnChange: func(m Mode) error {
				c.mu.Lock()
				c.mode = m
				c.mu.Unlock()
				return nil
			},
		},
	}
	return c
}

// SetBackground sets the color painted over unlabeled cells.
func (c *Colorizer) SetBackground(bg color.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.background = bg
}

// SetLuma sets the luma conversion used by [ModeLuma].
func (c *Colorizer) SetLuma(m filters.LumaMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.luma = m
}

// Controls returns the colorizer's editable parameters.
func (c *Colorizer) Controls() []watershed.Control { return c.ctrls }

// basinStats accumulates one basin's source samples.
type basinStats struct {
	sum   [3]uint64
	luma  uint64
	count uint64
	first [3]uint8
}

func (s *basinStats) add(r, g, b, l uint8) {
	if s.count == 0 {
		s.first = [3]uint8{r, g, b}
	}
	s.sum[0] += uint64(r)
	s.sum[1] += uint64(g)
	s.sum[2] += uint64(b)
	s.luma += uint64(l)
	s.count++
}

func (s *basinStats) color(mode Mode) color.RGBA {
	half := s.count / 2
	mean := func(sum uint64) uint8 { return uint8((sum + half) / s.count) }
	switch mode {
	case ModeLuma:
		l := mean(s.luma)
		return color.RGBA{R: l, G: l, B: l, A: 255}
	case ModeSeed:
		return color.RGBA{R: s.first[0], G: s.first[1], B: s.first[2], A: 255}
	default:
		return color.RGBA{R: mean(s.sum[0]), G: mean(s.sum[1]), B: mean(s.sum[2]), A: 255}
	}
}

// Colorize paints labels using the colors of src, which must be RGB888,
// RGBA8888 or Gray8 and match the label surface size. The first pass
// accumulates per-basin statistics; the second paints pixels in parallel.
// Unlabeled cells get the background color and are reported once in the
// returned [Report] rather than as an error.
func (c *Colorizer) Colorize(labels *automaton.Lattice, src watershed.Image) (*watershed.Buffer, Report, error) {
	var report Report
	if labels == nil {
		return nil, report, fmt.Errorf("nil label surface: %w", watershed.ErrDimensionMismatch)
	}
	sd := src.Dims()
	if err := sd.Validate(); err != nil {
		return nil, report, fmt.Errorf("colorize source: %w", err)
	} else if !sd.SameSize(labels.Dims()) || len(labels.Label) != labels.Len() {
		return nil, report, fmt.Errorf("labels %dx%d, source %dx%d: %w",
			labels.Width, labels.Height, sd.Width, sd.Height, watershed.ErrDimensionMismatch)
	}
	bpp := sd.Shape.BytesPerPixel()
	switch sd.Shape {
	case watershed.ShapeRGB888, watershed.ShapeRGBA8888, watershed.ShapeGray8:
	default:
		return nil, report, fmt.Errorf("colorize source shape %s: %w", sd.Shape, watershed.ErrInvalidConfig)
	}

	c.mu.Lock()
	mode, lumaMode, bg := c.mode, c.luma, c.background
	c.mu.Unlock()

	var maxLabel uint32
	for _, l := range labels.Label {
		maxLabel = max(maxLabel, l)
	}
	if int64(maxLabel) > int64(labels.Len()) {
		return nil, report, fmt.Errorf("label %d exceeds cell count %d: %w", maxLabel, labels.Len(), watershed.ErrInvalidConfig)
	}

	// Pass 1: accumulate.
	stats := make([]basinStats, maxLabel+1)
	w := sd.Width
	row := make([]byte, sd.SizeRow())
	for y := 0; y < sd.Height; y++ {
		px, err := watershed.ImageRow(row, src, y)
		if err != nil {
			return nil, report, err
		}
		for x := 0; x < w; x++ {
			lbl := labels.Label[y*w+x]
			if lbl == automaton.Unlabeled {
				report.Unlabeled++
				continue
			}
			r, g, b := sample(px, x, bpp)
			stats[lbl].add(r, g, b, lumaMode.Luma(r, g, b))
		}
	}
	palette := make([]color.RGBA, len(stats))
	palette[automaton.Unlabeled] = bg
	for l := 1; l < len(stats); l++ {
		if stats[l].count > 0 {
			palette[l] = stats[l].color(mode)
			report.Basins++
		}
	}

	// Pass 2: broadcast.
	out := watershed.NewBuffer(sd.Width, sd.Height, watershed.ShapeRGBA8888)
	paint := func(b parallel.Band) {
		for y := b.Y0; y < b.Y1; y++ {
			dst := out.Pix[y*out.D.Stride:]
			for x, lbl := range labels.Label[y*w : (y+1)*w] {
				p := palette[lbl]
				dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = p.R, p.G, p.B, p.A
			}
		}
	}
	if c.Pool != nil {
		c.Pool.ForBands(sd.Height, paint)
	} else {
		paint(parallel.Band{Y0: 0, Y1: sd.Height})
	}

	if report.Unlabeled > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Errorf("%w: %d of %d pixels painted background", watershed.ErrUnlabeledPixels, report.Unlabeled, labels.Len()))
		watershed.Logger().Warn("unlabeled pixels after flooding", "count", report.Unlabeled)
	}
	return out, report, nil
}

func sample(row []byte, x, bpp int) (r, g, b uint8) {
	p := row[x*bpp:]
	if bpp == 1 {
		return p[0], p[0], p[0]
	}
	return p[0], p[1], p[2]
}
