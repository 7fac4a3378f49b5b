// Package app wires the statistical engine to its ports. Services here own
// run orchestration: loading inputs through reader ports, driving the
// permutation test, and persisting results through whichever writer and
// repository the caller configured.
package app

import (
	"context"
	"fmt"
	"time"

	"edgestat/adapters/stats/enhance"
	"edgestat/adapters/stats/glm"
	"edgestat/adapters/stats/shuffle"
	"edgestat/domain/cohort"
	"edgestat/domain/connectome"
	"edgestat/domain/core"
	"edgestat/domain/design"
	"edgestat/domain/run"
	"edgestat/internal"
	"edgestat/internal/permtest"
	"edgestat/ports"
)

// RunService coordinates a full permutation-testing run: input loading,
// model construction, the permutation phase, and persistence.
type RunService struct {
	repo    ports.RunRepository
	version string
	logger  *internal.Logger
}

// NewRunService creates a run service. The repository may be nil, in which
// case runs execute without a durable record.
func NewRunService(repo ports.RunRepository, version string) *RunService {
	return &RunService{
		repo:    repo,
		version: version,
		logger:  internal.NewDefaultLogger(),
	}
}

// RunRequest carries the inputs of one run. The three readers are
// mandatory. Writer may be nil for callers that only want the in-memory
// result. Workers <= 0 selects one worker per available CPU.
type RunRequest struct {
	Cohort     ports.CohortReader
	Design     ports.DesignReader
	Hypotheses ports.HypothesisReader
	Writer     ports.ResultWriter

	Config  run.Config
	Workers int
}

// RunResponse summarises a finished run. Result carries the full output
// matrices for callers that consume them in process; it is excluded from
// JSON along with MinFWEP, which is NaN for untested runs.
type RunResponse struct {
	RunID       core.RunID `json:"run_id"`
	Fingerprint string     `json:"fingerprint"`
	Subjects    int        `json:"subjects"`
	Elements    int        `json:"elements"`
	Factors     int        `json:"factors"`
	Hypotheses  int        `json:"hypotheses"`
	Tested      bool       `json:"tested"`
	RuntimeMs   int64      `json:"runtime_ms"`

	MinFWEP float64     `json:"-"`
	Result  *run.Result `json:"-"`
}

// Execute runs the complete pipeline for one request. The manifest is
// persisted before computation starts, so a run that fails mid-flight
// still has an attributable record with a failed status.
func (s *RunService) Execute(ctx context.Context, req RunRequest) (*RunResponse, error) {
	startTime := time.Now()

	if req.Cohort == nil || req.Design == nil || req.Hypotheses == nil {
		return nil, core.NewMissingParameterError("run request", "cohort, design and hypothesis readers")
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	table, topo, err := req.Cohort.ReadCohort(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cohort: %w", err)
	}
	s.logger.Info("number of subjects: %d", table.Subjects())
	s.logger.Info("connectome matrices: %d nodes, %d edges", topo.Nodes(), topo.Edges())

	dm, extras, err := req.Design.ReadDesign(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load design matrix: %w", err)
	}
	totalFactors := dm.Factors() + len(extras)
	s.logger.Info("number of factors: %d", totalFactors)
	if len(extras) > 0 {
		s.logger.Info("element-wise design matrix columns: %d", len(extras))
	}

	hyps, err := req.Hypotheses.ReadHypotheses(ctx, totalFactors)
	if err != nil {
		return nil, fmt.Errorf("failed to load hypotheses: %w", err)
	}
	s.logger.Info("number of hypotheses: %d", len(hyps))

	s.warnConfig(req.Config, dm, extras, table)

	names := make([]string, len(hyps))
	for i, h := range hyps {
		names[i] = h.Name()
	}
	shape := run.Shape{
		Subjects:   table.Subjects(),
		Elements:   table.Elements(),
		Nodes:      topo.Nodes(),
		Factors:    totalFactors,
		Hypotheses: len(hyps),
	}
	manifest := run.NewManifest(shape, names, req.Config, s.version)

	if req.Writer != nil {
		if err := req.Writer.WriteManifest(ctx, manifest); err != nil {
			return nil, fmt.Errorf("failed to write manifest: %w", err)
		}
	}
	if s.repo != nil {
		if err := s.repo.SaveManifest(ctx, manifest); err != nil {
			return nil, fmt.Errorf("failed to save manifest: %w", err)
		}
	}

	res, err := s.compute(ctx, manifest, table, topo, dm, extras, hyps, req)
	if err != nil {
		s.markFailed(ctx, manifest.RunID, err)
		return nil, err
	}

	if req.Writer != nil {
		if err := req.Writer.WriteResults(ctx, res, hyps); err != nil {
			err = fmt.Errorf("failed to write results: %w", err)
			s.markFailed(ctx, manifest.RunID, err)
			return nil, err
		}
	}
	if s.repo != nil {
		if err := s.repo.SaveResult(ctx, res); err != nil {
			err = fmt.Errorf("failed to save result: %w", err)
			s.markFailed(ctx, manifest.RunID, err)
			return nil, err
		}
	}
	s.setStatus(ctx, manifest.RunID, ports.RunCompleted, "")

	resp := &RunResponse{
		RunID:       manifest.RunID,
		Fingerprint: manifest.Fingerprint,
		Subjects:    table.Subjects(),
		Elements:    table.Elements(),
		Factors:     totalFactors,
		Hypotheses:  len(hyps),
		Tested:      res.Tested(),
		RuntimeMs:   time.Since(startTime).Milliseconds(),
		MinFWEP:     res.MinFWEP(),
		Result:      res,
	}
	s.logger.Info("run %s finished in %dms", resp.RunID, resp.RuntimeMs)
	return resp, nil
}

// compute builds the engine for one run and executes it. It owns the
// running status transition; failure handling stays with the caller.
func (s *RunService) compute(
	ctx context.Context,
	manifest *run.Manifest,
	table *cohort.Table,
	topo *connectome.Mat2Vec,
	dm *design.Matrix,
	extras []design.ExtraColumn,
	hyps []design.Hypothesis,
	req RunRequest,
) (*run.Result, error) {
	s.setStatus(ctx, manifest.RunID, ports.RunRunning, "")

	enhancer, err := enhance.New(req.Config, topo)
	if err != nil {
		return nil, err
	}
	stat, err := glm.New(table, dm, extras, hyps)
	if err != nil {
		return nil, err
	}
	shuffles, err := shuffle.NewGenerator(req.Config, table.Subjects())
	if err != nil {
		return nil, err
	}
	var baseline ports.ShufflerPort
	if req.Config.Nonstationarity {
		gen, err := shuffle.NewEmpiricalGenerator(req.Config, table.Subjects())
		if err != nil {
			return nil, err
		}
		baseline = gen
	}

	out, err := permtest.NewRunner(stat, enhancer, shuffles, baseline, req.Config, req.Workers).Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("permutation test failed: %w", err)
	}

	res := &run.Result{
		Manifest:          manifest,
		Statistic:         glm.OutputStatistic(out.Statistic, hyps),
		Enhanced:          out.Enhanced,
		Empirical:         out.Empirical,
		NullDist:          out.NullDist,
		NullContributions: out.Contributions,
		UncorrectedP:      out.UncorrectedP,
		FWEP:              out.FWEP,
	}
	if aux, ok := stat.(ports.AuxiliaryPort); ok {
		a, err := aux.Auxiliary()
		if err != nil {
			return nil, fmt.Errorf("failed to compute model-fit outputs: %w", err)
		}
		res.Betas = a.Betas
		res.AbsEffect = a.AbsEffect
		res.StdEffect = a.StdEffect
		res.Stdev = a.Stdev
		res.Cond = a.Cond
	}
	return res, nil
}

// warnConfig surfaces configuration oddities that do not stop a run.
func (s *RunService) warnConfig(cfg run.Config, dm *design.Matrix, extras []design.ExtraColumn, table *cohort.Table) {
	if cfg.ThresholdSet {
		switch cfg.Algorithm {
		case run.AlgorithmTFCE:
			s.logger.Warn("tfce is a threshold-free algorithm; -threshold option ignored")
		case run.AlgorithmNone:
			s.logger.Warn("No enhancement algorithm being used; -threshold option ignored")
		}
	}
	if !dm.HasConstantColumn() {
		s.logger.Warn("no constant column found in design matrix; model will not include a global intercept")
	}
	if !table.AllFinite() {
		s.logger.Info("non-finite values present in input data; affected subject rows are excluded per element")
	}
	if design.AnyExtraNonFinite(extras) {
		s.logger.Info("non-finite values present in element-wise design columns; affected subject rows are excluded per element")
	}
}

// markFailed records a failure on the run, without cancellation from the
// failed context masking the status write.
func (s *RunService) markFailed(ctx context.Context, id core.RunID, cause error) {
	s.setStatus(context.WithoutCancel(ctx), id, ports.RunFailed, cause.Error())
}

func (s *RunService) setStatus(ctx context.Context, id core.RunID, status ports.RunStatus, note string) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SetStatus(ctx, id, status, note); err != nil {
		s.logger.Error("failed to set run %s status to %s: %v", id, status, err)
	}
}
