package parallel

// Band is a half-open range of rows [Y0, Y1).
type Band struct {
	Y0, Y1 int
}

// Bands splits height rows into at most parts contiguous bands of near-equal size.
// It returns nil when height is not positive.
func Bands(height, parts int) []Band {
	if height <= 0 {
		return nil
	}
	parts = max(1, min(parts, height))
	bands := make([]Band, 0, parts)
	per, extra := height/parts, height%parts
	y := 0
	for i := 0; i < parts; i++ {
		n := per
		if i < extra {
			n++
		}
		bands = append(bands, Band{Y0: y, Y1: y + n})
		y += n
	}
	return bands
}

// Tile is a rectangular region of a width×height grid. Edge tiles may be
// smaller than the nominal tile size.
type Tile struct {
	X0, Y0 int // Top-left cell, inclusive.
	X1, Y1 int // Bottom-right cell, exclusive.
}

// Width returns the number of columns in the tile.
func (t Tile) Width() int { return t.X1 - t.X0 }

// Height returns the number of rows in the tile.
func (t Tile) Height() int { return t.Y1 - t.Y0 }

// Tiles partitions a width×height grid into size×size tiles in row-major order.
func Tiles(width, height, size int) []Tile {
	if width <= 0 || height <= 0 || size <= 0 {
		return nil
	}
	cols := (width + size - 1) / size
	rows := (height + size - 1) / size
	tiles := make([]Tile, 0, cols*rows)
	for ty := 0; ty < rows; ty++ {
		for tx := 0; tx < cols; tx++ {
			tiles = append(tiles, Tile{
				X0: tx * size,
				Y0: ty * size,
				X1: min((tx+1)*size, width),
				Y1: min((ty+1)*size, height),
			})
		}
	}
	return tiles
}

// ForBands runs fn over height rows split into one band per worker and waits.
func (p *Pool) ForBands(height int, fn func(b Band)) {
	bands := Bands(height, p.workers)
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b) }
	}
	p.ExecuteAll(work)
}
