package watershed

import "errors"

var (
	// ErrInvalidConfig reports an unknown strategy, non-positive tile size or
	// budget, or any other option rejected before the automaton starts.
	ErrInvalidConfig = errors.New("watershed: invalid configuration")
	// ErrDimensionMismatch reports gradient, image or output surfaces of differing sizes.
	ErrDimensionMismatch = errors.New("watershed: dimension mismatch")
	// ErrConvergenceTimeout is a non-fatal warning: the iteration budget ran out
	// before a fixed point was reached and the best labeling so far was returned.
	ErrConvergenceTimeout = errors.New("watershed: iteration budget exhausted before convergence")
	// ErrUnlabeledPixels is a non-fatal warning: some pixels still held the
	// unlabeled sentinel when colorizing and were painted with the background color.
	ErrUnlabeledPixels = errors.New("watershed: unlabeled pixels")
)
