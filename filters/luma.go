package filters

import (
	"fmt"
	"strings"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/internal/parallel"
)

// LumaMode determines the algorithm for color to single-channel conversion.
type LumaMode int

const (
	// LumaBT709 uses ITU-R BT.709 weights: 0.2126*R + 0.7152*G + 0.0722*B
	LumaBT709 LumaMode = iota
	// LumaBT601 uses ITU-R BT.601 weights: 0.299*R + 0.587*G + 0.114*B
	LumaBT601
	// LumaAverage uses simple average: (R + G + B) / 3
	LumaAverage
	// LumaLightness uses min/max average: (max(R,G,B) + min(R,G,B)) / 2
	LumaLightness
)

// LumaModes lists every valid [LumaMode].
var LumaModes = []LumaMode{LumaBT709, LumaBT601, LumaAverage, LumaLightness}

func (m LumaMode) String() string {
	switch m {
	case LumaBT709:
		return "bt709"
	case LumaBT601:
		return "bt601"
	case LumaAverage:
		return "average"
	case LumaLightness:
		return "lightness"
	default:
		return "unknown"
	}
}

// ParseLumaMode parses the name returned by [LumaMode.String].
func ParseLumaMode(s string) (LumaMode, error) {
	for _, m := range LumaModes {
		if strings.EqualFold(strings.TrimSpace(s), m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown luma mode %q: %w", s, watershed.ErrInvalidConfig)
}

// Luma returns the single-channel intensity of an RGB sample.
// Weighted modes use the standard's decimal weights as integers and round half
// up, so the result is the exact weighted sum rounded on any substrate, GPU included.
func (m LumaMode) Luma(r, g, b uint8) uint8 {
	switch m {
	case LumaBT601:
		return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
	case LumaAverage:
		return uint8((uint32(r) + uint32(g) + uint32(b)) / 3)
	case LumaLightness:
		return uint8((uint32(min(r, g, b)) + uint32(max(r, g, b))) / 2)
	default: // LumaBT709
		return uint8((2126*uint32(r) + 7152*uint32(g) + 722*uint32(b) + 5000) / 10000)
	}
}

// NewLuma creates a filter converting RGB888 or RGBA8888 input into a Gray8 luma surface.
// pool may be nil.
func NewLuma(in watershed.Shape, mode LumaMode, pool *parallel.Pool) *PointFilter {
	filterMode := mode
	bpp := in.BytesPerPixel()
	return &PointFilter{
		In:   in,
		Out:  watershed.ShapeGray8,
		Pool: pool,
		Fn: func(dst, src []byte) {
			for i, j := 0, 0; i+2 < len(src) && j < len(dst); i, j = i+bpp, j+1 {
				dst[j] = filterMode.Luma(src[i], src[i+1], src[i+2])
			}
		},
		Ctrls: []watershed.Control{
			&watershed.ControlEnum[LumaMode]{
				Name:        "Luma Mode",
				Description: "Algorithm for color to luma conversion",
				Value:       filterMode,
				ValidValues: LumaModes,
				OnChange: func(m LumaMode) error {
					filterMode = m // Closure will assign and Fn above pick up.
					return nil
				},
			},
		},
	}
}
