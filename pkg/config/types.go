package config

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ModelFile is the on-disk model document shared by the YAML and CUE
// front ends.
type ModelFile struct {
	// Name identifies the model.
	Name string `json:"name" yaml:"name" validate:"required"`

	// States names the core state variables, in order.
	States []string `json:"states" yaml:"states" validate:"required,min=1"`

	// AugmentedStates names auxiliary states appended after the core
	// block. May be empty.
	AugmentedStates []string `json:"augmented_states,omitempty" yaml:"augmented_states"`

	// Shocks names the exogenous shocks, in order.
	Shocks []string `json:"shocks" yaml:"shocks" validate:"required,min=1"`

	// ExpectationErrors names the expectational errors. May be empty
	// for backward-looking models.
	ExpectationErrors []string `json:"expectation_errors,omitempty" yaml:"expectation_errors"`

	// Solver holds the solver settings.
	Solver SolverSettings `json:"solver" yaml:"solver"`

	// Regimes holds one equilibrium-condition block per regime.
	Regimes []RegimeBlock `json:"regimes" yaml:"regimes" validate:"required,min=1,dive"`

	// Policies holds the credibility and policy configuration.
	Policies PolicySettings `json:"policies,omitempty" yaml:"policies"`
}

// SolverSettings maps onto solver.Config.
type SolverSettings struct {
	// Method is the solution method.
	Method string `json:"method,omitempty" yaml:"method" validate:"omitempty,oneof=gensys perturbation"`

	// RegimeSwitching enables the regime-switching solve.
	RegimeSwitching bool `json:"regime_switching,omitempty" yaml:"regime_switching"`

	// Gensys2Regimes lists the temporary-policy window regimes in
	// ascending order, anchor last.
	Gensys2Regimes []int `json:"gensys2_regimes,omitempty" yaml:"gensys2_regimes"`

	// TemporaryPolicyLength is the number of periods the temporary
	// policy is in force.
	TemporaryPolicyLength int `json:"temporary_policy_length,omitempty" yaml:"temporary_policy_length" validate:"min=0"`

	// StabilityDivider is the explosive-root threshold. Zero selects
	// the default of 1.
	StabilityDivider float64 `json:"stability_divider,omitempty" yaml:"stability_divider" validate:"min=0"`

	// SparseSplicing selects the sparse predictable-form conversion.
	SparseSplicing bool `json:"sparse_splicing,omitempty" yaml:"sparse_splicing"`

	// UncertainPolicy marks uncertain beliefs about the permanent
	// policy.
	UncertainPolicy bool `json:"uncertain_policy,omitempty" yaml:"uncertain_policy"`

	// UncertainTemporary marks per-period doubt about the temporary
	// policy.
	UncertainTemporary bool `json:"uncertain_temporary,omitempty" yaml:"uncertain_temporary"`

	// ReplaceConditions activates per-regime generator scripts.
	ReplaceConditions bool `json:"replace_conditions,omitempty" yaml:"replace_conditions"`
}

// RegimeBlock is one regime's equilibrium conditions. Exactly one of
// the matrix set, IdenticalTo, or Generator must be given.
type RegimeBlock struct {
	// Regime is the 1-based regime index.
	Regime int `json:"regime" yaml:"regime" validate:"required,min=1"`

	// Gamma0, Gamma1, C, Psi and Pi are the structural matrices, row
	// major.
	Gamma0 [][]float64 `json:"gamma0,omitempty" yaml:"gamma0"`
	Gamma1 [][]float64 `json:"gamma1,omitempty" yaml:"gamma1"`
	C      []float64   `json:"c,omitempty" yaml:"c"`
	Psi    [][]float64 `json:"psi,omitempty" yaml:"psi"`
	Pi     [][]float64 `json:"pi,omitempty" yaml:"pi"`

	// IdenticalTo declares this regime's conditions identical to an
	// earlier regime's.
	IdenticalTo int `json:"identical_to,omitempty" yaml:"identical_to" validate:"min=0"`

	// Generator is an inline Starlark script producing the matrices.
	// Consulted only when replace_conditions is active.
	Generator string `json:"generator,omitempty" yaml:"generator"`
}

// PolicySettings configures the policy registry.
type PolicySettings struct {
	// Candidates names the alternative policy keys, in weight order.
	Candidates []string `json:"candidates,omitempty" yaml:"candidates"`

	// Weights maps regimes to credibility weights over Candidates.
	Weights map[int][]float64 `json:"weights,omitempty" yaml:"weights"`

	// IdenticalTransitions maps a regime to an earlier regime whose
	// transition solution it shares.
	IdenticalTransitions map[int]int `json:"identical_transitions,omitempty" yaml:"identical_transitions"`
}

// ParsedModel is the result of parsing one or more model sources.
type ParsedModel struct {
	// Model is the decoded document. Zero when Errors is non-empty.
	Model ModelFile `json:"model"`

	// SourceFiles are the files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when parsing ran.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists validation errors with location information.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is a parse or validation error with location
// information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the document path to the error (e.g. "regimes[2].gamma0").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity"`
}

func (e ValidationError) String() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", loc, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

// toDense converts a row-major float grid to a dense matrix, checking
// row lengths and the expected shape.
func toDense(rows [][]float64, wantR, wantC int, name string) (*mat.Dense, error) {
	if len(rows) != wantR {
		return nil, fmt.Errorf("%s has %d rows, want %d", name, len(rows), wantR)
	}
	data := make([]float64, 0, wantR*wantC)
	for i, row := range rows {
		if len(row) != wantC {
			return nil, fmt.Errorf("%s row %d has %d columns, want %d", name, i, len(row), wantC)
		}
		data = append(data, row...)
	}
	return mat.NewDense(wantR, wantC, data), nil
}

// piDense builds the expectational-error loadings. A nil grid yields a
// single zero-loaded column, the backward-looking case.
func piDense(rows [][]float64, n int) (*mat.Dense, error) {
	if len(rows) == 0 {
		return mat.NewDense(n, 1, nil), nil
	}
	return toDense(rows, n, len(rows[0]), "pi")
}

func toVec(vals []float64, want int, name string) (*mat.VecDense, error) {
	if len(vals) != want {
		return nil, fmt.Errorf("%s has length %d, want %d", name, len(vals), want)
	}
	out := make([]float64, want)
	copy(out, vals)
	return mat.NewVecDense(want, out), nil
}
