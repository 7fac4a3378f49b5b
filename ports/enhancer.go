package ports

// EnhancerPort transforms one hypothesis row of raw statistics into
// enhanced scores. Implementations must be safe for concurrent calls and
// must not retain or mutate the input slice.
type EnhancerPort interface {
	// Enhance maps raw per-element statistics to enhanced scores of the
	// same length. Larger stays larger: the map is monotone so maxima of
	// the null distribution remain comparable across arrangements.
	Enhance(raw []float64) ([]float64, error)
}
