package solver

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Kernel solves one regime's equilibrium conditions via a generalized
// Schur (QZ) decomposition. The returned matrices are complex-valued;
// the adapter discards the imaginary residue after the classification
// is checked.
type Kernel interface {
	// Solve returns the raw solution and its existence/uniqueness
	// classification. An error is reserved for hard numerical
	// failures; an indeterminate system is reported through the
	// Eigenstate, not through err.
	Solve(ctx context.Context, ec *EquilibriumConditions, stabilityDivider float64) (*ComplexSolution, Eigenstate, error)
}

// PerturbationKernel is the alternative factorization kernel. It does
// not support regime switching.
type PerturbationKernel interface {
	// Decompose factors the model into jump and state matrices.
	Decompose(ctx context.Context, m Model) (jump, state *mat.Dense, err error)

	// Transition transforms a jump/state decomposition into the
	// (TTT, RRR) transition pair.
	Transition(jump, state *mat.Dense) (ttt, rrr *mat.Dense, err error)
}

// ConditionsBuilder constructs a regime's structural equilibrium
// conditions from the model.
type ConditionsBuilder interface {
	Build(ctx context.Context, m Model, regime int) (*EquilibriumConditions, error)
}

// Augmenter appends auxiliary and measurement states to a core
// transition solution, enlarging the state dimension.
type Augmenter interface {
	Augment(ctx context.Context, m Model, sol *TransitionSolution, rc RegimeContext) (*TransitionSolution, error)
}

// Blender combines a base transition solution with the solutions
// implied by the candidate policies under credibility weights,
// producing the agent-perceived transition matrices.
type Blender interface {
	Blend(ctx context.Context, weights []float64, candidates []AltPolicy, base *TransitionSolution, rc RegimeContext) (*TransitionSolution, error)
}

// PredictableFormer converts equilibrium conditions into the
// predictable form used for backward construction. sparse selects the
// sparse representation for large systems.
type PredictableFormer interface {
	Predictable(ctx context.Context, ec *EquilibriumConditions, sparse bool) (*PredictableForm, error)
}

// RecursionRequest is the input to a backward recursion through a
// temporary-policy window.
type RecursionRequest struct {
	// Weights holds per-period credibility weights over the candidate
	// terminals, one row per window period ordered first period
	// first. Nil when the temporary policy is fully credible.
	Weights [][]float64

	// Terminals are the candidate terminal solutions. The first entry
	// is the expected lift-off solution; further entries correspond
	// to the candidate policies in registry order.
	Terminals []*TransitionSolution

	// Anchor seeds the recursion at the far end of the window.
	Anchor *TransitionSolution

	// Form is the predictable form of the window's entry conditions.
	Form *PredictableForm

	// Periods is the number of periods inside the window.
	Periods int
}

// BackwardRecursor runs the backward recursion: at each step it
// combines the next period's transition solution, the current period's
// temporary-policy conditions and the per-period credibility weights
// into the current period's transition solution. The result is ordered
// first window regime to anchor and has Periods+1 entries.
type BackwardRecursor interface {
	Recurse(ctx context.Context, req RecursionRequest) ([]*TransitionSolution, error)
}
