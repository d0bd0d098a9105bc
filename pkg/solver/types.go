package solver

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// EquilibriumConditions holds the structural matrices of one regime's
// equilibrium system Γ0·x_t = Γ1·x_{t-1} + C + Ψ·ε_t + Π·η_t.
// Instances are immutable once built; regimes declared identical share
// values by deep copy, never by reference.
type EquilibriumConditions struct {
	// Gamma0 multiplies the current-period state vector.
	Gamma0 *mat.Dense

	// Gamma1 multiplies the lagged state vector.
	Gamma1 *mat.Dense

	// C is the constant term.
	C *mat.VecDense

	// Psi loads the exogenous shocks.
	Psi *mat.Dense

	// Pi loads the expectational errors.
	Pi *mat.Dense
}

// States returns the state dimension of the system.
func (ec *EquilibriumConditions) States() int {
	r, _ := ec.Gamma0.Dims()
	return r
}

// Shocks returns the number of exogenous shocks.
func (ec *EquilibriumConditions) Shocks() int {
	_, c := ec.Psi.Dims()
	return c
}

// ExpectationErrors returns the number of expectational errors.
func (ec *EquilibriumConditions) ExpectationErrors() int {
	_, c := ec.Pi.Dims()
	return c
}

// Validate checks internal dimensional consistency.
func (ec *EquilibriumConditions) Validate() error {
	if ec.Gamma0 == nil || ec.Gamma1 == nil || ec.C == nil || ec.Psi == nil || ec.Pi == nil {
		return NewPrecondition("equilibrium conditions are incomplete")
	}
	n, c0 := ec.Gamma0.Dims()
	if n != c0 {
		return NewPrecondition("Γ0 must be square, got %dx%d", n, c0)
	}
	if r, c := ec.Gamma1.Dims(); r != n || c != n {
		return NewPrecondition("Γ1 is %dx%d, want %dx%d", r, c, n, n)
	}
	if l := ec.C.Len(); l != n {
		return NewPrecondition("C has length %d, want %d", l, n)
	}
	if r, _ := ec.Psi.Dims(); r != n {
		return NewPrecondition("Ψ has %d rows, want %d", r, n)
	}
	if r, _ := ec.Pi.Dims(); r != n {
		return NewPrecondition("Π has %d rows, want %d", r, n)
	}
	return nil
}

// Clone returns a deep copy. Copies are fully independent of the
// receiver.
func (ec *EquilibriumConditions) Clone() *EquilibriumConditions {
	return &EquilibriumConditions{
		Gamma0: mat.DenseCopyOf(ec.Gamma0),
		Gamma1: mat.DenseCopyOf(ec.Gamma1),
		C:      mat.VecDenseCopyOf(ec.C),
		Psi:    mat.DenseCopyOf(ec.Psi),
		Pi:     mat.DenseCopyOf(ec.Pi),
	}
}

// TransitionSolution is the reduced-form law of motion for one regime:
// x_t = TTT·x_{t-1} + RRR·ε_t + CCC.
type TransitionSolution struct {
	// TTT is the state transition matrix.
	TTT *mat.Dense

	// RRR is the shock-loading matrix.
	RRR *mat.Dense

	// CCC is the constant vector.
	CCC *mat.VecDense
}

// States returns the (possibly augmented) state dimension.
func (ts *TransitionSolution) States() int {
	r, _ := ts.TTT.Dims()
	return r
}

// Clone returns a deep copy. Copies are fully independent of the
// receiver.
func (ts *TransitionSolution) Clone() *TransitionSolution {
	return &TransitionSolution{
		TTT: mat.DenseCopyOf(ts.TTT),
		RRR: mat.DenseCopyOf(ts.RRR),
		CCC: mat.VecDenseCopyOf(ts.CCC),
	}
}

// EqualWithin reports whether two solutions agree element-for-element
// within tol.
func (ts *TransitionSolution) EqualWithin(other *TransitionSolution, tol float64) bool {
	if other == nil {
		return false
	}
	return mat.EqualApprox(ts.TTT, other.TTT, tol) &&
		mat.EqualApprox(ts.RRR, other.RRR, tol) &&
		mat.EqualApprox(ts.CCC, other.CCC, tol)
}

// Residual evaluates max |Γ0·(TTT·x + RRR·ε + CCC) - Γ1·x - C - Ψ·ε|
// for unit basis states and shocks, measuring how well the solution
// satisfies the equilibrium conditions when no expectational errors
// remain. Used by callers and tests as a consistency check.
func (ts *TransitionSolution) Residual(ec *EquilibriumConditions) float64 {
	n := ec.States()
	var lhsT, rhsT mat.Dense
	lhsT.Mul(ec.Gamma0, ts.TTT)
	rhsT.Sub(&lhsT, ec.Gamma1)

	var lhsR, rhsR mat.Dense
	lhsR.Mul(ec.Gamma0, ts.RRR)
	rhsR.Sub(&lhsR, ec.Psi)

	var cTerm mat.VecDense
	cTerm.MulVec(ec.Gamma0, ts.CCC)
	cTerm.SubVec(&cTerm, ec.C)

	residual := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			residual = math.Max(residual, math.Abs(rhsT.At(i, j)))
		}
		for j := 0; j < ec.Shocks(); j++ {
			residual = math.Max(residual, math.Abs(rhsR.At(i, j)))
		}
		residual = math.Max(residual, math.Abs(cTerm.AtVec(i)))
	}
	return residual
}

// ComplexSolution carries the raw kernel output before its imaginary
// residue is discarded. CCC is an n×1 matrix.
type ComplexSolution struct {
	TTT *mat.CDense
	RRR *mat.CDense
	CCC *mat.CDense
}

// Eigenstate is the kernel's existence/uniqueness classification.
// (1, 1) means a unique bounded solution exists.
type Eigenstate struct {
	// Existence is 1 when a bounded solution exists.
	Existence int

	// Uniqueness is 1 when the bounded solution is unique.
	Uniqueness int
}

// Determinate reports whether the classification is the canonical
// unique-and-existent code.
func (e Eigenstate) Determinate() bool {
	return e.Existence == 1 && e.Uniqueness == 1
}

func (e Eigenstate) String() string {
	return fmt.Sprintf("(%d,%d)", e.Existence, e.Uniqueness)
}

// PredictableForm is the transformed system (Γ0', Γ1', Γ2', C', Ψ')
// used for backward construction inside a temporary-policy window.
type PredictableForm struct {
	Gamma0 *mat.Dense
	Gamma1 *mat.Dense
	Gamma2 *mat.Dense
	C      *mat.VecDense
	Psi    *mat.Dense

	// Sparse records whether the conversion ran on a sparse
	// representation.
	Sparse bool
}

// RegimeContext identifies the regime a collaborator is being invoked
// for.
type RegimeContext struct {
	// Regime is the 1-based regime index.
	Regime int

	// Regimes is the total number of regimes in the partition, or 1
	// for a non-regime-switching solve.
	Regimes int

	// Anchor is true when the regime is a temporary-policy window's
	// lift-off anchor.
	Anchor bool
}

// Model is the structural model handed to collaborators. The solver
// core only needs dimensional information; everything else belongs to
// the collaborator implementations.
type Model interface {
	// CoreStates is the size of the non-augmented state block.
	CoreStates() int

	// AugmentedStates is the state dimension after auxiliary and
	// measurement states are appended.
	AugmentedStates() int
}

// PolicyKind distinguishes the default solve path from a policy that
// carries its own solve procedure.
type PolicyKind int

const (
	// PolicyDefault delegates to the standard dispatcher path.
	PolicyDefault PolicyKind = iota

	// PolicyCustom supplies a distinct solve procedure.
	PolicyCustom
)

// ConditionsFunc generates equilibrium conditions for a regime under a
// particular policy.
type ConditionsFunc func(ctx context.Context, m Model, regime int) (*EquilibriumConditions, error)

// SolveFunc is a policy-owned solve procedure. A custom procedure owns
// blending and augmentation of its result.
type SolveFunc func(ctx context.Context, m Model) (*TransitionSolution, error)

// AltPolicy is a named policy with its own equilibrium-condition
// generator and, for PolicyCustom, its own solve procedure.
type AltPolicy struct {
	// Key identifies the policy.
	Key string

	// Kind selects the solve path.
	Kind PolicyKind

	// Conditions generates the policy's equilibrium conditions.
	Conditions ConditionsFunc

	// Solve is the custom solve procedure. Required when Kind is
	// PolicyCustom, ignored otherwise.
	Solve SolveFunc
}

// Validate checks the policy is internally consistent.
func (p AltPolicy) Validate() error {
	if p.Key == "" {
		return NewPrecondition("policy key is empty")
	}
	if p.Kind == PolicyCustom && p.Solve == nil {
		return NewPrecondition("policy %s is custom but has no solve procedure", p.Key)
	}
	return nil
}
