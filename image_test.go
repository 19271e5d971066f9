package watershed

import (
	"bytes"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDims(t *testing.T) {
	d := Dims{Width: 3, Height: 2, Stride: 12, Shape: ShapeRGB888}
	require.NoError(t, d.Validate())
	assert.Equal(t, 9, d.SizeRow())
	assert.Equal(t, int64(21), d.Size())
	assert.Equal(t, int64(6), d.NumPixels())

	d.Stride = 8
	assert.Error(t, d.Validate())
	assert.Error(t, Dims{Width: 1, Height: 1, Stride: 1}.Validate(), "undefined shape")
	assert.Equal(t, 4, ShapeLabel32.BytesPerPixel())
}

func TestBufferReadAt(t *testing.T) {
	b := NewBuffer(2, 2, ShapeGray8)
	copy(b.Pix, []byte{1, 2, 3, 4})
	row, err := ImageRow(make([]byte, 2), struct{ Image }{b}, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, row)

	p := make([]byte, 3)
	n, err := b.ReadAt(p, 2)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestImageRowShortBuffer(t *testing.T) {
	b := NewBuffer(2, 2, ShapeGray8)
	b.Pix = b.Pix[:3]
	_, err := ImageRow(make([]byte, 2), b, 1)
	assert.ErrorIs(t, err, io.ErrShortBuffer, "row 1 needs bytes 2 and 3")

	row, err := ImageRow(make([]byte, 2), b, 0)
	require.NoError(t, err)
	assert.Len(t, row, 2)
}

func TestBufferRGBA(t *testing.T) {
	b := NewBuffer(2, 1, ShapeRGBA8888)
	copy(b.Pix, []byte{1, 2, 3, 255, 4, 5, 6, 255})
	img, err := b.RGBA()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
	assert.Equal(t, b.Pix, img.Pix)

	_, err = NewBuffer(1, 1, ShapeGray8).RGBA()
	assert.Error(t, err)
}

func TestValidateProcessArgs(t *testing.T) {
	src := NewBuffer(4, 4, ShapeGray8)
	dstDims := Dims{Width: 4, Height: 4, Stride: 4, Shape: ShapeGray8}
	_, _, err := ValidateProcessArgs(make([]byte, 15), dstDims, src, nil)
	assert.Error(t, err, "short destination")

	roi := image.Rect(2, 2, 5, 3)
	_, _, err = ValidateProcessArgs(make([]byte, 16), dstDims, src, &roi)
	assert.Error(t, err, "roi outside image")

	dst, _, err := ValidateProcessArgs(nil, dstDims, src, nil)
	require.NoError(t, err)
	assert.Len(t, dst, 16, "in-place returns the source buffer")
}

func TestControls(t *testing.T) {
	var got int
	ctl := &ControlOrdered[int]{Name: "n", Min: 1, Max: 10, Value: 5, OnChange: func(v int) error { got = v; return nil }}
	require.NoError(t, ctl.ChangeValue(7))
	assert.Equal(t, 7, got)
	assert.ErrorIs(t, ctl.ChangeValue(11), ErrInvalidConfig)
	assert.Error(t, ctl.ChangeValue("7"))
	assert.Equal(t, 7, ctl.ActualValue())

	curve := &ControlCurve{Name: "c"}
	require.NoError(t, curve.ChangeValue([]CurvePoint{{X: 0, Y: 0}, {X: 1, Y: 0.5}}))
	assert.ErrorIs(t, curve.ChangeValue([]CurvePoint{{X: 0.5, Y: 0}, {X: 0.25, Y: 1}}), ErrInvalidConfig)
	assert.Len(t, curve.ActualValue(), 2)
}

func TestLogger(t *testing.T) {
	defer SetLogger(nil)
	assert.False(t, Logger().Enabled(t.Context(), slog.LevelError), "default logger discards")

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	Logger().Info("hello", "k", 1)
	assert.Contains(t, buf.String(), "hello")

	SetLogger(nil)
	assert.NotNil(t, Logger())
}
