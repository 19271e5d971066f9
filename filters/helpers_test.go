package filters

import (
	"image"
	"image/png"
	"math/rand"
	"os"

	"github.com/soypat/watershed"
)

// generateRandomSquaresRGBA creates an RGBA image with random colored squares on a black background.
func generateRandomSquaresRGBA(rng *rand.Rand, width, height, numSquares, minSize, maxSize int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	for i := 0; i < numSquares; i++ {
		size := minSize + rng.Intn(maxSize-minSize+1)
		x := rng.Intn(width)
		y := rng.Intn(height)
		r := uint8(64 + rng.Intn(192))
		g := uint8(64 + rng.Intn(192))
		b := uint8(64 + rng.Intn(192))
		fillRectRGBA(img, x, y, size, size, r, g, b, 255)
	}
	return img
}

func fillRectRGBA(img *image.RGBA, x, y, w, h int, r, g, b, a uint8) {
	bounds := img.Bounds()
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			px, py := x+dx, y+dy
			if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
				idx := py*img.Stride + px*4
				img.Pix[idx] = r
				img.Pix[idx+1] = g
				img.Pix[idx+2] = b
				img.Pix[idx+3] = a
			}
		}
	}
}

func rgbaBuffer(img *image.RGBA) *watershed.Buffer {
	b := img.Bounds()
	return &watershed.Buffer{
		D:   watershed.Dims{Width: b.Dx(), Height: b.Dy(), Stride: img.Stride, Shape: watershed.ShapeRGBA8888},
		Pix: img.Pix,
	}
}

func grayBuffer(w, h int, pix ...uint8) *watershed.Buffer {
	return &watershed.Buffer{
		D:   watershed.Dims{Width: w, Height: h, Stride: w, Shape: watershed.ShapeGray8},
		Pix: pix,
	}
}

func saveGrayAsPNG(pix []byte, w, h int, path string) error {
	if err := os.MkdirAll("testdata", 0755); err != nil {
		return err
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// readerOnly hides the buffer so filters exercise their ReadAt fallback.
type readerOnly struct{ b *watershed.Buffer }

func (r readerOnly) Dims() watershed.Dims                     { return r.b.Dims() }
func (r readerOnly) ReadAt(p []byte, off int64) (int, error) { return r.b.ReadAt(p, off) }
