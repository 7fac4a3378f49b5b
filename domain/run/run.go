// Package run defines the durable record of a permutation-testing run: the
// configuration that produced it, the manifest that identifies it, and the
// result matrices it emitted.
package run

import (
	"fmt"

	"edgestat/domain/core"
)

// Algorithm selects the statistic enhancement transform.
type Algorithm string

const (
	// AlgorithmNBS enhances by supra-threshold connected-component size.
	AlgorithmNBS Algorithm = "nbs"
	// AlgorithmTFCE enhances by threshold-free cluster integration.
	AlgorithmTFCE Algorithm = "tfce"
	// AlgorithmNone passes the raw statistic through unchanged.
	AlgorithmNone Algorithm = "none"
)

// ParseAlgorithm maps a user-facing name to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmNBS, AlgorithmTFCE, AlgorithmNone:
		return Algorithm(s), nil
	}
	return "", fmt.Errorf("%w: unknown enhancement algorithm %q", core.ErrUnsupportedConfig, s)
}

// ErrorModel selects how the shuffler perturbs model errors.
type ErrorModel string

const (
	// ErrorsExchangeable permutes subject labels.
	ErrorsExchangeable ErrorModel = "ee"
	// ErrorsSymmetric flips observation signs, for paired designs.
	ErrorsSymmetric ErrorModel = "ise"
	// ErrorsBoth permutes labels and flips signs in the same arrangement.
	ErrorsBoth ErrorModel = "both"
)

// ParseErrorModel maps a user-facing name to an ErrorModel.
func ParseErrorModel(s string) (ErrorModel, error) {
	switch ErrorModel(s) {
	case ErrorsExchangeable, ErrorsSymmetric, ErrorsBoth:
		return ErrorModel(s), nil
	}
	return "", fmt.Errorf("%w: unknown error model %q", core.ErrUnsupportedConfig, s)
}

// Defaults match the reference implementation of connectome permutation
// testing; changing them silently would change every published p-value.
const (
	DefaultPermutations    = 5000
	DefaultTFCEDH          = 0.1
	DefaultTFCEExtent      = 0.4
	DefaultTFCEHeight      = 3.0
	DefaultEmpiricalSkew   = 1.0
	DefaultNonstationarity = false
)

// Config captures every knob of a run. It is echoed into the Manifest so a
// stored run can be reproduced from its record alone.
type Config struct {
	Algorithm Algorithm  `json:"algorithm"`
	Errors    ErrorModel `json:"errors"`

	Permutations int  `json:"permutations"`
	Strong       bool `json:"strong"`
	Seed         int64 `json:"seed"`

	// Threshold is the NBS supra-threshold cut. Required when Algorithm
	// is AlgorithmNBS, ignored otherwise.
	Threshold    float64 `json:"threshold,omitempty"`
	ThresholdSet bool    `json:"threshold_set,omitempty"`

	TFCEDH     float64 `json:"tfce_dh,omitempty"`
	TFCEExtent float64 `json:"tfce_e,omitempty"`
	TFCEHeight float64 `json:"tfce_h,omitempty"`

	// Nonstationarity enables the empirical per-element baseline divide.
	Nonstationarity             bool    `json:"nonstationarity"`
	Skew                        float64 `json:"skew,omitempty"`
	PermutationsNonstationarity int     `json:"permutations_nonstationarity,omitempty"`

	// ExchangeWithin assigns each subject a block label; labels are only
	// ever swapped inside a block. ExchangeWhole permutes equally sized
	// blocks as rigid units. At most one may be set.
	ExchangeWithin []int `json:"exchange_within,omitempty"`
	ExchangeWhole  []int `json:"exchange_whole,omitempty"`

	// NoTest skips the permutation phase entirely; only the one-shot
	// model fit outputs are produced.
	NoTest bool `json:"notest,omitempty"`
}

// DefaultConfig returns a Config with every tunable at its reference value.
func DefaultConfig() Config {
	return Config{
		Algorithm:                   AlgorithmTFCE,
		Errors:                      ErrorsExchangeable,
		Permutations:                DefaultPermutations,
		TFCEDH:                      DefaultTFCEDH,
		TFCEExtent:                  DefaultTFCEExtent,
		TFCEHeight:                  DefaultTFCEHeight,
		Skew:                        DefaultEmpiricalSkew,
		PermutationsNonstationarity: DefaultPermutations,
	}
}

// Validate rejects configurations that could never produce a valid run.
// Strategy-specific parameter checks (NBS threshold, TFCE step) belong to
// the enhancer constructors; this covers the run-level invariants.
func (c Config) Validate() error {
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}
	if _, err := ParseErrorModel(string(c.Errors)); err != nil {
		return err
	}
	if c.Permutations < 1 {
		return fmt.Errorf("%w: permutation count %d, need at least 1", core.ErrUnsupportedConfig, c.Permutations)
	}
	if c.Nonstationarity {
		if c.Skew <= 0 {
			return fmt.Errorf("%w: empirical skew %g, must be positive", core.ErrUnsupportedConfig, c.Skew)
		}
		if c.PermutationsNonstationarity < 1 {
			return fmt.Errorf("%w: nonstationarity permutation count %d, need at least 1", core.ErrUnsupportedConfig, c.PermutationsNonstationarity)
		}
	}
	if len(c.ExchangeWithin) > 0 && len(c.ExchangeWhole) > 0 {
		return fmt.Errorf("%w: within-block and whole-block exchangeability are mutually exclusive", core.ErrUnsupportedConfig)
	}
	return nil
}
