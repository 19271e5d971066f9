package filters

import (
	_ "embed"
	"errors"
	"image"
	"io"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/soypat/watershed"
)

//go:embed gradient.wgsl
var gradientShaderWGSL string

// GradientGPU computes luma and gradient magnitude in one WebGPU compute pass.
// Its output equals running [NewLuma] followed by [GradientFilter] with the
// same modes on the CPU.
type GradientGPU struct {
	computeGPU
	luma     LumaMode
	operator GradientOperator
	lut      *[256]uint8
	ctrls    []watershed.Control
	packed   []byte
}

// NewGradientGPU creates a GPU-accelerated luma+gradient filter.
func NewGradientGPU(device *wgpu.Device, queue *wgpu.Queue, luma LumaMode, op GradientOperator) (*GradientGPU, error) {
	f := &GradientGPU{}
	if err := f.init(device, queue, gradientShaderWGSL); err != nil {
		return nil, err
	}
	f.SetModes(luma, op)
	f.ctrls = f.buildControls()
	return f, nil
}

func (f *GradientGPU) buildControls() []watershed.Control {
	luma, op := f.Modes()
	return []watershed.Control{
		&watershed.ControlEnum[LumaMode]{
			Name:        "Luma Mode",
			Description: "Algorithm for color to luma conversion",
			Value:       luma,
			ValidValues: LumaModes,
			OnChange: func(m LumaMode) error {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.setModesLocked(m, f.operator)
				return nil
			},
		},
		&watershed.ControlEnum[GradientOperator]{
			Name:        "Gradient Operator",
			Description: "Edge-strength measure computed from luma",
			Value:       op,
			ValidValues: GradientOperators,
			OnChange: func(op GradientOperator) error {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.setModesLocked(f.luma, op)
				return nil
			},
		},
	}
}

// SetModes sets the luma conversion and gradient operator used by the shader.
func (f *GradientGPU) SetModes(luma LumaMode, op GradientOperator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setModesLocked(luma, op)
}

// Modes returns the luma conversion and gradient operator used by the shader.
func (f *GradientGPU) Modes() (LumaMode, GradientOperator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.luma, f.operator
}

func (f *GradientGPU) setModesLocked(luma LumaMode, op GradientOperator) {
	f.luma, f.operator = luma, op
	f.params[2], f.params[3] = uint32(luma), uint32(op)
}

// SetCurve sets the response curve applied to the read back gradient.
func (f *GradientGPU) SetCurve(pts []watershed.CurvePoint) error {
	if err := watershed.ValidateCurve(pts); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(pts) == 0 {
		f.lut = nil
		return nil
	}
	lut := CurveLUT(pts)
	f.lut = &lut
	return nil
}

// ShapeIO implements [watershed.Filter].
func (f *GradientGPU) ShapeIO() (output, input watershed.Shape) {
	return watershed.ShapeGray8, watershed.ShapeRGBA8888
}

// Controls implements [watershed.Filter].
func (f *GradientGPU) Controls() []watershed.Control { return f.ctrls }

// Process implements [watershed.Filter]. ROI and in-place processing are not supported.
func (f *GradientGPU) Process(dst []byte, src watershed.Image, roi *image.Rectangle) (watershed.Dims, error) {
	if roi != nil {
		return watershed.Dims{}, errors.New("gpu gradient does not support ROI")
	} else if dst == nil {
		return watershed.Dims{}, errInPlaceNeighborhood
	}
	srcDims := src.Dims()
	if srcDims.Shape != watershed.ShapeRGBA8888 {
		return watershed.Dims{}, errShapeMismatch
	}
	w, h := srcDims.Width, srcDims.Height
	dstDims := watershed.Dims{Width: w, Height: h, Stride: w, Shape: watershed.ShapeGray8}
	dst, _, err := watershed.ValidateProcessArgs(dst, dstDims, src, nil)
	if err != nil {
		return watershed.Dims{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	packed, err := f.pack(src)
	if err != nil {
		return watershed.Dims{}, err
	}
	out, err := f.run(packed, w, h)
	if err != nil {
		return watershed.Dims{}, err
	}
	for i, g := range out {
		v := uint8(g)
		if f.lut != nil {
			v = f.lut[v]
		}
		dst[i] = v
	}
	return dstDims, nil
}

// pack returns src as tightly packed RGBA rows, reusing the filter's staging slice.
func (f *GradientGPU) pack(src watershed.Image) ([]byte, error) {
	d := src.Dims()
	rowBytes := d.SizeRow()
	if buffered, ok := src.(watershed.ImageBuffered); ok {
		if buf := buffered.Buffer(); buf != nil && d.Stride == rowBytes {
			if int64(len(buf)) < d.Size() {
				return nil, io.ErrShortBuffer
			}
			return buf[:d.Size()], nil
		}
	}
	need := rowBytes * d.Height
	if cap(f.packed) < need {
		f.packed = make([]byte, need)
	}
	f.packed = f.packed[:need]
	for y := 0; y < d.Height; y++ {
		row, err := watershed.ImageRow(f.packed[y*rowBytes:], src, y)
		if err != nil {
			return nil, err
		}
		copy(f.packed[y*rowBytes:], row)
	}
	return f.packed, nil
}
