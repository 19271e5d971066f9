package filters

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/chewxy/math32"
	"github.com/soypat/watershed"
	"github.com/soypat/watershed/internal/parallel"
)

var errInPlaceNeighborhood = errors.New("neighborhood filter cannot run in-place")

// GradientOperator selects the edge-strength measure computed from luma.
// Every operator samples with clamp-to-edge borders and is symmetric, so the
// same input always produces the same gradient surface.
type GradientOperator int

const (
	// GradientSobel is the L1 Sobel magnitude (|gx|+|gy|)/8, which fits a byte exactly.
	GradientSobel GradientOperator = iota
	// GradientCentral is |L(x+1)-L(x-1)| + |L(y+1)-L(y-1)| saturated at 255.
	GradientCentral
	// GradientMorphological is max-min over the pixel and its 4 neighbors.
	GradientMorphological
)

// GradientOperators lists every valid [GradientOperator].
var GradientOperators = []GradientOperator{GradientSobel, GradientCentral, GradientMorphological}

func (op GradientOperator) String() string {
	switch op {
	case GradientSobel:
		return "sobel"
	case GradientCentral:
		return "central"
	case GradientMorphological:
		return "morphological"
	default:
		return "unknown"
	}
}

// ParseGradientOperator parses the name returned by [GradientOperator.String].
func ParseGradientOperator(s string) (GradientOperator, error) {
	for _, op := range GradientOperators {
		if strings.EqualFold(strings.TrimSpace(s), op.String()) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown gradient operator %q: %w", s, watershed.ErrInvalidConfig)
}

// GradientFilter converts a Gray8 luma surface into a Gray8 gradient-magnitude surface.
type GradientFilter struct {
	Pool *parallel.Pool

	mu       sync.Mutex
	operator GradientOperator
	curve    []watershed.CurvePoint
	lut      *[256]uint8 // nil when curve is identity.
	ctrls    []watershed.Control
}

// NewGradient creates a gradient filter with the given operator and an identity response curve.
// pool may be nil.
func NewGradient(op GradientOperator, pool *parallel.Pool) *GradientFilter {
	f := &GradientFilter{operator: op, Pool: pool}
	f.ctrls = []watershed.Control{
		&watershed.ControlEnum[GradientOperator]{
			Name:        "Gradient Operator",
			Description: "Edge-strength measure computed from luma",
			Value:       op,
			ValidValues: GradientOperators,
			OnChange: func(op GradientOperator) error {
				f.mu.Lock()
				f.operator = op
				f.mu.Unlock()
				return nil
			},
		},
		&watershed.ControlCurve{
			Name:        "Gradient Response",
			Description: "Maps normalized gradient magnitude to elevation; flattening the low end merges weak-edge basins",
			OnChange:    f.SetCurve,
		},
	}
	return f
}

// Operator returns the current gradient operator.
func (f *GradientFilter) Operator() GradientOperator {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.operator
}

// SetCurve replaces the response curve. A nil or empty curve is the identity.
func (f *GradientFilter) SetCurve(pts []watershed.CurvePoint) error {
	if err := watershed.ValidateCurve(pts); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.curve = pts
	if len(pts) == 0 {
		f.lut = nil
		return nil
	}
	lut := CurveLUT(pts)
	f.lut = &lut
	return nil
}

// ShapeIO implements [watershed.Filter].
func (f *GradientFilter) ShapeIO() (output, input watershed.Shape) {
	return watershed.ShapeGray8, watershed.ShapeGray8
}

// Controls implements [watershed.Filter].
func (f *GradientFilter) Controls() []watershed.Control { return f.ctrls }

// Process implements [watershed.Filter]. In-place processing is rejected
// since every output pixel reads its neighbors.
func (f *GradientFilter) Process(dst []byte, src watershed.Image, roi *image.Rectangle) (watershed.Dims, error) {
	if dst == nil {
		return watershed.Dims{}, errInPlaceNeighborhood
	}
	srcDims := src.Dims()
	if srcDims.Shape != watershed.ShapeGray8 {
		return watershed.Dims{}, errShapeMismatch
	}
	region := image.Rect(0, 0, srcDims.Width, srcDims.Height)
	if roi != nil {
		region = *roi
	}
	dstDims := watershed.Dims{
		Width:  region.Dx(),
		Height: region.Dy(),
		Stride: region.Dx(),
		Shape:  watershed.ShapeGray8,
	}
	dst, _, err := watershed.ValidateProcessArgs(dst, dstDims, src, roi)
	if err != nil {
		return watershed.Dims{}, err
	}
	luma, stride, err := loadPlane(src)
	if err != nil {
		return watershed.Dims{}, err
	}

	f.mu.Lock()
	op, lut := f.operator, f.lut
	f.mu.Unlock()

	w, h := srcDims.Width, srcDims.Height
	processBand := func(b parallel.Band) {
		for y := region.Min.Y + b.Y0; y < region.Min.Y+b.Y1; y++ {
			row := dst[(y-region.Min.Y)*dstDims.Stride:]
			for x := region.Min.X; x < region.Max.X; x++ {
				g := gradientAt(op, luma, stride, w, h, x, y)
				if lut != nil {
					g = lut[g]
				}
				row[x-region.Min.X] = g
			}
		}
	}
	if f.Pool != nil {
		f.Pool.ForBands(dstDims.Height, processBand)
	} else {
		processBand(parallel.Band{Y0: 0, Y1: dstDims.Height})
	}
	return dstDims, nil
}

// loadPlane returns the full single-byte plane of src, reading it into memory
// when src is not buffered.
func loadPlane(src watershed.Image) (plane []byte, stride int, err error) {
	d := src.Dims()
	if buffered, ok := src.(watershed.ImageBuffered); ok {
		if buf := buffered.Buffer(); buf != nil {
			if int64(len(buf)) < d.Size() {
				return nil, 0, io.ErrShortBuffer
			}
			return buf, d.Stride, nil
		}
	}
	plane = make([]byte, d.Width*d.Height)
	row := make([]byte, d.SizeRow())
	for y := 0; y < d.Height; y++ {
		r, err := watershed.ImageRow(row, src, y)
		if err != nil {
			return nil, 0, err
		}
		copy(plane[y*d.Width:], r)
	}
	return plane, d.Width, nil
}

// gradientAt evaluates op at (x,y) with clamp-to-edge sampling.
func gradientAt(op GradientOperator, l []byte, stride, w, h, x, y int) uint8 {
	xm, xp := max(x-1, 0), min(x+1, w-1)
	ym, yp := max(y-1, 0), min(y+1, h-1)
	at := func(x, y int) int { return int(l[y*stride+x]) }
	switch op {
	case GradientCentral:
		g := absInt(at(xp, y)-at(xm, y)) + absInt(at(x, yp)-at(x, ym))
		return uint8(min(g, 255))
	case GradientMorphological:
		c, n, s, e, wv := at(x, y), at(x, ym), at(x, yp), at(xp, y), at(xm, y)
		return uint8(max(c, n, s, e, wv) - min(c, n, s, e, wv))
	default: // GradientSobel
		gx := (at(xp, ym) + 2*at(xp, y) + at(xp, yp)) - (at(xm, ym) + 2*at(xm, y) + at(xm, yp))
		gy := (at(xm, yp) + 2*at(x, yp) + at(xp, yp)) - (at(xm, ym) + 2*at(x, ym) + at(xp, ym))
		return uint8((absInt(gx) + absInt(gy)) / 8)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// CurveLUT tabulates a piecewise-linear response curve over the 256 byte values.
// Inputs left of the first point or right of the last take that point's output.
// An empty curve yields the identity table.
func CurveLUT(pts []watershed.CurvePoint) (lut [256]uint8) {
	for i := range lut {
		if len(pts) == 0 {
			lut[i] = uint8(i)
			continue
		}
		y := evalCurve(pts, float32(i)/255)
		lut[i] = uint8(math32.Round(math32.Max(0, math32.Min(1, y)) * 255))
	}
	return lut
}

func evalCurve(pts []watershed.CurvePoint, x float32) float32 {
	if x <= pts[0].X {
		return pts[0].Y
	}
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		if x > b.X {
			continue
		}
		dx := b.X - a.X
		if dx == 0 {
			return b.Y
		}
		t := (x - a.X) / dx
		return a.Y + t*(b.Y-a.Y)
	}
	return pts[len(pts)-1].Y
}
