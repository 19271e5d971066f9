// Package ppm reads and writes binary (P6) portable pixmaps.
//
// Importing the package registers the decoder with [image.Decode], so
// imaging.Open reads .ppm files like any other format.
package ppm

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
)

const magic = "P6"

// maxDim bounds width and height so a corrupt header cannot request a huge allocation.
const maxDim = 1 << 15

var errNotPPM = errors.New("ppm: not a binary P6 pixmap")

func init() {
	image.RegisterFormat("ppm", magic, Decode, DecodeConfig)
}

type header struct {
	width, height, maxval int
}

// readHeader parses the magic number, width, height and maxval. Comments
// start with '#' and run to the end of the line. Exactly one whitespace byte
// separates maxval from the raster.
func readHeader(r *bufio.Reader) (header, error) {
	var m [2]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return header{}, err
	} else if string(m[:]) != magic {
		return header{}, errNotPPM
	}
	var fields [3]int
	for i := range fields {
		v, err := readUint(r)
		if err != nil {
			return header{}, err
		}
		fields[i] = v
	}
	h := header{width: fields[0], height: fields[1], maxval: fields[2]}
	switch {
	case h.width <= 0 || h.height <= 0 || h.width > maxDim || h.height > maxDim:
		return header{}, fmt.Errorf("ppm: bad dimensions %dx%d", h.width, h.height)
	case h.maxval <= 0 || h.maxval > 255:
		return header{}, fmt.Errorf("ppm: unsupported maxval %d", h.maxval)
	}
	return h, nil
}

// readUint skips whitespace and comments, then reads a decimal number and the
// single whitespace byte terminating it.
func readUint(r *bufio.Reader) (int, error) {
	var c byte
	var err error
	for {
		c, err = r.ReadByte()
		if err != nil {
			return 0, unexpected(err)
		}
		if c == '#' {
			if _, err = r.ReadString('\n'); err != nil {
				return 0, unexpected(err)
			}
			continue
		}
		if !isSpace(c) {
			break
		}
	}
	var digits []byte
	for ; !isSpace(c); c, err = r.ReadByte() {
		if err != nil {
			return 0, unexpected(err)
		} else if c < '0' || c > '9' {
			return 0, fmt.Errorf("ppm: unexpected byte %q in header", c)
		}
		digits = append(digits, c)
		if len(digits) > 6 {
			return 0, errors.New("ppm: header number too long")
		}
	}
	return strconv.Atoi(string(digits))
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// DecodeConfig returns the dimensions of a P6 pixmap without reading the raster.
func DecodeConfig(r io.Reader) (image.Config, error) {
	h, err := readHeader(bufio.NewReader(r))
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.RGBAModel, Width: h.width, Height: h.height}, nil
}

// Decode reads a P6 pixmap into an opaque RGBA image. Samples with a maxval
// below 255 are rescaled to the full 8-bit range.
func Decode(r io.Reader) (image.Image, error) {
	br := bufio.NewReader(r)
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	row := make([]byte, 3*h.width)
	for y := 0; y < h.height; y++ {
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, unexpected(err)
		}
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < h.width; x++ {
			for c := 0; c < 3; c++ {
				v := int(row[3*x+c])
				if v > h.maxval {
					return nil, fmt.Errorf("ppm: sample %d exceeds maxval %d", v, h.maxval)
				}
				if h.maxval != 255 {
					v = (v*255 + h.maxval/2) / h.maxval
				}
				dst[4*x+c] = uint8(v)
			}
			dst[4*x+3] = 255
		}
	}
	return img, nil
}

// Encode writes img as a P6 pixmap with maxval 255. Translucent pixels are
// composited over black.
func Encode(w io.Writer, img image.Image) error {
	b := img.Bounds()
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\n%d %d\n255\n", magic, b.Dx(), b.Dy()); err != nil {
		return err
	}
	row := make([]byte, 3*b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		switch src := img.(type) {
		case *image.RGBA:
			pix := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := range b.Dx() {
				copy(row[3*x:3*x+3], pix[4*x:4*x+3])
			}
		default:
			for x := range b.Dx() {
				c := color.RGBAModel.Convert(img.At(b.Min.X+x, y)).(color.RGBA)
				row[3*x], row[3*x+1], row[3*x+2] = c.R, c.G, c.B
			}
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}
