package ppm

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWithComments(t *testing.T) {
	data := "P6\n# made by hand\n2 1\n# depth\n255\n" + string([]byte{255, 0, 0, 10, 20, 30})
	img, format, err := image.Decode(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "ppm", format)
	assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.At(0, 0))
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, img.At(1, 0))
}

func TestDecodeScalesMaxval(t *testing.T) {
	data := "P6 1 1 15 " + string([]byte{15, 0, 7})
	img, err := Decode(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 0, B: 119, A: 255}, img.At(0, 0))
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader("P6\n640 480\n255\n"))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"ascii":       "P3\n1 1\n255\n0 0 0\n",
		"bad maxval":  "P6\n1 1\n65535\n",
		"zero width":  "P6\n0 1\n255\n",
		"bad digit":   "P6\n1x 1\n255\n",
		"sample high": "P6 1 1 3 " + string([]byte{4, 0, 0}),
	}
	for name, data := range cases {
		_, err := Decode(strings.NewReader(data))
		assert.Error(t, err, name)
	}
	_, err := Decode(strings.NewReader("P6\n2 2\n255\n" + string([]byte{1, 2, 3})))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	_, err = Decode(strings.NewReader("P6\n2 2"))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestEncodeDecode(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 9)
	}
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("P6\n3 2\n255\n")))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, got.(*image.RGBA).Pix)
}

func TestEncodeGray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.Pix[0], src.Pix[1] = 7, 200
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src))
	assert.Equal(t, "P6\n2 1\n255\n"+string([]byte{7, 7, 7, 200, 200, 200}), buf.String())
}
