package ports

// Assignment is one arrangement of subject labels. Exactly one of Order and
// Signs is set: Order for label permutations (target row i reads source row
// Order[i]), Signs for sign-flip designs (+1 or -1 per subject). Index 0 is
// reserved for the unpermuted arrangement, which every sequence emits first.
type Assignment struct {
	Index int
	Order []int
	Signs []float64
}

// IsIdentity reports whether the assignment leaves every subject in place
// with positive sign.
func (a Assignment) IsIdentity() bool {
	for i, o := range a.Order {
		if o != i {
			return false
		}
	}
	for _, s := range a.Signs {
		if s != 1 {
			return false
		}
	}
	return true
}

// Source returns the subject whose data lands in row i under the
// arrangement. Identity when no order is set.
func (a Assignment) Source(i int) int {
	if a.Order == nil {
		return i
	}
	return a.Order[i]
}

// Sign returns the sign applied to row i. Positive when no sign vector is
// set.
func (a Assignment) Sign(i int) float64 {
	if a.Signs == nil {
		return 1
	}
	return a.Signs[i]
}

// ShufflerPort produces a lazy, finite sequence of label arrangements for
// the permutation loop. Implementations guarantee the identity arrangement
// at Index 0 and no duplicate arrangement within one sequence.
//
// Iteration follows the bufio.Scanner convention: Next reports false when
// the sequence is done or generation failed, and Err distinguishes the two.
type ShufflerPort interface {
	// Next returns the next arrangement in index order.
	Next() (Assignment, bool)

	// Err returns the first generation failure, such as an exhausted
	// duplicate-rejection budget. Nil after a clean end of sequence.
	Err() error

	// Count returns the total number of arrangements the sequence yields,
	// including the identity.
	Count() int

	// Subjects returns the label count every arrangement covers.
	Subjects() int
}
