package ports

import (
	"context"

	"edgestat/domain/cohort"
	"edgestat/domain/connectome"
	"edgestat/domain/design"
)

// CohortReader assembles the subjects x elements observation table from an
// external source, together with the edge topology every subject shares.
// Implementations validate per-subject shape before agglomerating and fail
// fast on the first mismatched or asymmetric input.
type CohortReader interface {
	ReadCohort(ctx context.Context) (*cohort.Table, *connectome.Mat2Vec, error)
}

// DesignReader loads the subjects x factors design matrix and any
// per-element covariate columns that augment it.
type DesignReader interface {
	ReadDesign(ctx context.Context) (*design.Matrix, []design.ExtraColumn, error)
}

// HypothesisReader loads the contrast rows under test. Row width is checked
// against the total factor count, design columns plus extra columns.
type HypothesisReader interface {
	ReadHypotheses(ctx context.Context, totalFactors int) ([]design.Hypothesis, error)
}
