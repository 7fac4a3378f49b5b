package run

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"edgestat/domain/core"
)

// Shape records the dimensions of the inputs a run was fitted against.
type Shape struct {
	Subjects   int `json:"subjects"`
	Elements   int `json:"elements"`
	Nodes      int `json:"nodes"`
	Factors    int `json:"factors"`
	Hypotheses int `json:"hypotheses"`
}

// Manifest is the truth source for a run: identity, input shape,
// configuration echo and a determinism fingerprint. It is written before
// any result artifact so a stored run can always be attributed and replayed.
type Manifest struct {
	RunID           core.RunID     `json:"run_id"`
	CreatedAt       core.Timestamp `json:"created_at"`
	Shape           Shape          `json:"shape"`
	HypothesisNames []string       `json:"hypothesis_names"`
	Config          Config         `json:"config"`
	CodeVersion     string         `json:"code_version"`
	Fingerprint     string         `json:"fingerprint"`
}

// NewManifest stamps a fresh manifest for a run about to start.
func NewManifest(shape Shape, names []string, cfg Config, codeVersion string) *Manifest {
	return &Manifest{
		RunID:           core.NewRunID(),
		CreatedAt:       core.Now(),
		Shape:           shape,
		HypothesisNames: append([]string(nil), names...),
		Config:          cfg,
		CodeVersion:     codeVersion,
		Fingerprint:     computeFingerprint(shape, names, cfg, codeVersion),
	}
}

// computeFingerprint hashes every determinism parameter of a run. Two runs
// with equal fingerprints over identical input data produce identical
// p-values.
func computeFingerprint(shape Shape, names []string, cfg Config, codeVersion string) string {
	data := fmt.Sprintf(
		"shape:%dx%dx%dx%dx%d|hyp:%s|alg:%s|err:%s|n:%d|strong:%t|thr:%g|tfce:%g,%g,%g|ns:%t,%g,%d|within:%v|whole:%v|seed:%d|code:%s",
		shape.Subjects, shape.Elements, shape.Nodes, shape.Factors, shape.Hypotheses,
		strings.Join(names, ","),
		cfg.Algorithm, cfg.Errors, cfg.Permutations, cfg.Strong, cfg.Threshold,
		cfg.TFCEDH, cfg.TFCEExtent, cfg.TFCEHeight,
		cfg.Nonstationarity, cfg.Skew, cfg.PermutationsNonstationarity,
		cfg.ExchangeWithin, cfg.ExchangeWhole,
		cfg.Seed, codeVersion,
	)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// Validate checks the manifest is complete enough to persist.
func (m *Manifest) Validate() error {
	if m.RunID == "" {
		return fmt.Errorf("%w: manifest missing run id", core.ErrUnsupportedConfig)
	}
	if m.Fingerprint == "" {
		return fmt.Errorf("%w: manifest missing fingerprint", core.ErrUnsupportedConfig)
	}
	if m.Shape.Subjects < 1 || m.Shape.Elements < 1 {
		return fmt.Errorf("%w: manifest shape %dx%d", core.ErrUnsupportedConfig, m.Shape.Subjects, m.Shape.Elements)
	}
	if len(m.HypothesisNames) != m.Shape.Hypotheses {
		return fmt.Errorf("%w: %d hypothesis names for %d hypotheses", core.ErrUnsupportedConfig, len(m.HypothesisNames), m.Shape.Hypotheses)
	}
	return m.Config.Validate()
}
