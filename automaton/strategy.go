package automaton

import (
	"fmt"
	"strings"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/internal/parallel"
)

// Strategy selects how a pass accesses lattice memory.
type Strategy int

const (
	// StrategyGlobal is served by [Global].
	StrategyGlobal Strategy = iota
	// StrategyTiled is served by [Tiled].
	StrategyTiled
	// StrategySurface is served by [Surface].
	StrategySurface
)

// Strategies lists every valid [Strategy].
var Strategies = []Strategy{StrategyGlobal, StrategyTiled, StrategySurface}

func (s Strategy) String() string {
	switch s {
	case StrategyGlobal:
		return "global"
	case StrategyTiled:
		return "tiled"
	case StrategySurface:
		return "surface"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name. "local" and "image" are accepted as
// aliases of "tiled" and "surface".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "global":
		return StrategyGlobal, nil
	case "tiled", "local":
		return StrategyTiled, nil
	case "surface", "image":
		return StrategySurface, nil
	}
	return 0, fmt.Errorf("unknown strategy %q: %w", s, watershed.ErrInvalidConfig)
}

// NewRelaxer returns the [Relaxer] implementing s. tileSize is used by
// [StrategyTiled] only. pool may be nil.
func NewRelaxer(s Strategy, tileSize int, pool *parallel.Pool) (Relaxer, error) {
	switch s {
	case StrategyGlobal:
		return &Global{Pool: pool}, nil
	case StrategyTiled:
		return NewTiled(tileSize, pool)
	case StrategySurface:
		return &Surface{Pool: pool}, nil
	}
	return nil, fmt.Errorf("strategy %d: %w", int(s), watershed.ErrInvalidConfig)
}
