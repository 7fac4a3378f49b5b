package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input shape errors, detected before any permutation runs
	ErrShapeMismatch  = errors.New("input shape mismatch")
	ErrSubjectCount   = fmt.Errorf("%w: subject count", ErrShapeMismatch)
	ErrElementCount   = fmt.Errorf("%w: element count", ErrShapeMismatch)
	ErrFactorCount    = fmt.Errorf("%w: factor count", ErrShapeMismatch)
	ErrNotSymmetric   = errors.New("connectome matrix is not symmetric")
	ErrDirectedMatrix = errors.New("connectome matrix is directed")

	// Per-element fitting errors; any one of these invalidates the whole run
	ErrDegenerateDesign = errors.New("degenerate element-wise design")
	ErrRankDeficient    = fmt.Errorf("%w: rank deficient", ErrDegenerateDesign)

	// Configuration errors, reported before the engine starts
	ErrMissingParameter  = errors.New("missing required parameter")
	ErrUnsupportedConfig = errors.New("unsupported configuration")

	// Shuffle generation errors
	ErrShuffleSpace  = errors.New("shuffle space exhausted")
	ErrUnequalBlocks = errors.New("whole-block exchange requires equal block sizes")

	// Persistence errors
	ErrRunNotFound = errors.New("run not found")
)

// NewShapeError reports disagreeing dimensions between two named inputs.
func NewShapeError(what string, got, want int) error {
	return fmt.Errorf("%w: %s is %d, expected %d", ErrShapeMismatch, what, got, want)
}

// NewSubjectShapeError reports a subject whose data length disagrees with the cohort.
func NewSubjectShapeError(subject, got, want int) error {
	return fmt.Errorf("%w: subject %d has %d elements, expected %d", ErrElementCount, subject, got, want)
}

// NewDegenerateDesignError reports an element whose effective design has too
// few remaining rows to fit the model.
func NewDegenerateDesignError(element, remaining, factors int) error {
	return fmt.Errorf("%w: element %d has %d usable rows for %d factors", ErrDegenerateDesign, element, remaining, factors)
}

// NewMissingParameterError reports a strategy selected without a parameter it requires.
func NewMissingParameterError(strategy, param string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMissingParameter, strategy, param)
}

// IsFatalInput reports whether err should stop a run before or during the
// permutation loop, as opposed to degrading to a warning.
func IsFatalInput(err error) bool {
	return errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrDegenerateDesign) ||
		errors.Is(err, ErrMissingParameter)
}
