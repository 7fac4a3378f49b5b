package ports

import (
	"context"

	"edgestat/domain/design"
	"edgestat/domain/run"
)

// ResultWriter persists the output artifact set of a finished run. The
// hypothesis slice drives per-hypothesis file naming and the t versus F
// statistic labels.
type ResultWriter interface {
	WriteManifest(ctx context.Context, m *run.Manifest) error
	WriteResults(ctx context.Context, res *run.Result, hyps []design.Hypothesis) error
}
