package kernel

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/macrosolve/macrosolve/pkg/solver"
)

// StateSpaceFrom assembles the transition pair (TTT, RRR) from a
// jump/state decomposition. state (hx, nₛ×nₛ) is the law of motion of
// the predetermined block; jump (gx, nⱼ×nₛ) maps predetermined states
// into jump variables. The stacked vector orders predetermined states
// first:
//
//	TTT = | hx      0 |      RRR = | I  |
//	      | gx·hx   0 |            | gx |
//
// Shocks load the predetermined block one for one.
func StateSpaceFrom(jump, state *mat.Dense) (ttt, rrr *mat.Dense, err error) {
	ns, nsc := state.Dims()
	if ns != nsc {
		return nil, nil, solver.NewPrecondition("state matrix must be square, got %dx%d", ns, nsc)
	}
	nj, njc := jump.Dims()
	if njc != ns {
		return nil, nil, solver.NewPrecondition("jump matrix has %d columns for %d predetermined states", njc, ns)
	}

	n := ns + nj
	ttt = mat.NewDense(n, n, nil)
	ttt.Slice(0, ns, 0, ns).(*mat.Dense).Copy(state)
	var lower mat.Dense
	lower.Mul(jump, state)
	ttt.Slice(ns, n, 0, ns).(*mat.Dense).Copy(&lower)

	rrr = mat.NewDense(n, ns, nil)
	for i := 0; i < ns; i++ {
		rrr.Set(i, i, 1)
	}
	rrr.Slice(ns, n, 0, ns).(*mat.Dense).Copy(jump)
	return ttt, rrr, nil
}

// IdentityAugmenter is the augmentation for models whose core state
// block already is the full state vector.
type IdentityAugmenter struct{}

var _ solver.Augmenter = IdentityAugmenter{}

func (IdentityAugmenter) Augment(_ context.Context, _ solver.Model, sol *solver.TransitionSolution, _ solver.RegimeContext) (*solver.TransitionSolution, error) {
	return sol, nil
}
