package filters

import (
	"errors"
	"image"
	"io"
	"sync"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/internal/parallel"
)

var errShapeMismatch = errors.New("pixel shape mismatch")

// PointFunc processes a contiguous row of pixels.
// dst and src contain rowWidth pixels worth of bytes in the output and input shapes.
type PointFunc func(dst, src []byte)

// PointFilter applies a per-pixel transformation using a callback function.
// It handles the iteration, buffering, and ROI logic common to all per-pixel filters.
// Rows are independent so they are processed in parallel bands when a Pool is set.
type PointFilter struct {
	In    watershed.Shape
	Out   watershed.Shape
	Fn    PointFunc
	Ctrls []watershed.Control
	// Pool runs row bands concurrently. A nil Pool processes rows on the calling goroutine.
	Pool *parallel.Pool
}

// ShapeIO implements [watershed.Filter].
func (f *PointFilter) ShapeIO() (output, input watershed.Shape) {
	return f.Out, f.In
}

// Controls implements [watershed.Filter].
func (f *PointFilter) Controls() []watershed.Control {
	return f.Ctrls
}

// Process implements [watershed.Filter].
func (f *PointFilter) Process(dst []byte, src watershed.Image, roi *image.Rectangle) (watershed.Dims, error) {
	if f.Fn == nil {
		return watershed.Dims{}, errNilPixelFunc
	}
	outShape, inShape := f.ShapeIO()
	srcDims := src.Dims()
	if srcDims.Shape != inShape {
		return watershed.Dims{}, errShapeMismatch
	}
	inBPP := inShape.BytesPerPixel()
	outBPP := outShape.BytesPerPixel()

	startX, startY := 0, 0
	endX, endY := srcDims.Width, srcDims.Height
	if roi != nil {
		startX, startY = roi.Min.X, roi.Min.Y
		endX, endY = roi.Max.X, roi.Max.Y
	}
	outWidth, outHeight := endX-startX, endY-startY
	outStride := outWidth * outBPP
	if dst == nil {
		// In-place keeps the source row spacing and so needs matching pixel sizes.
		if outBPP != inBPP {
			return watershed.Dims{}, errShapeMismatch
		}
		outStride = srcDims.Stride
	}
	dstDims := watershed.Dims{
		Width:  outWidth,
		Height: outHeight,
		Stride: outStride,
		Shape:  outShape,
	}
	dst, _, err := watershed.ValidateProcessArgs(dst, dstDims, src, roi)
	if err != nil {
		return watershed.Dims{}, err
	}

	var srcBuf []byte
	if buffered, ok := src.(watershed.ImageBuffered); ok {
		srcBuf = buffered.Buffer()
		if srcBuf != nil && int64(len(srcBuf)) < srcDims.Size() {
			return watershed.Dims{}, io.ErrShortBuffer
		}
	}
	srcRowBytes := srcDims.SizeRow()
	srcStart, srcEnd := startX*inBPP, endX*inBPP

	var (
		mu      sync.Mutex
		readErr error
	)
	processBand := func(b parallel.Band) {
		rowBuf := make([]byte, srcRowBytes) // Fallback buffer for ReadAt.
		for y := startY + b.Y0; y < startY+b.Y1; y++ {
			var srcRow []byte
			srcRowStart := y * srcDims.Stride
			if srcBuf != nil {
				srcRow = srcBuf[srcRowStart : srcRowStart+srcRowBytes]
			} else {
				if _, err := src.ReadAt(rowBuf, int64(srcRowStart)); err != nil {
					mu.Lock()
					readErr = err
					mu.Unlock()
					return
				}
				srcRow = rowBuf
			}
			dstRowStart := (y - startY) * outStride
			f.Fn(dst[dstRowStart:dstRowStart+outWidth*outBPP], srcRow[srcStart:srcEnd])
		}
	}
	if f.Pool != nil {
		f.Pool.ForBands(outHeight, processBand)
	} else {
		processBand(parallel.Band{Y0: 0, Y1: outHeight})
	}
	if readErr != nil {
		return watershed.Dims{}, readErr
	}
	return dstDims, nil
}

var errNilPixelFunc = errorString("nil PointFunc")

type errorString string

func (e errorString) Error() string { return string(e) }
