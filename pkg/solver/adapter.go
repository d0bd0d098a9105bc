package solver

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// solveRegime invokes the rational-expectations kernel on one regime's
// equilibrium conditions and classifies the result. Any classification
// other than the canonical unique-and-existent code is a solve failure
// tagged with the regime. On success the complex-valued kernel output
// is coerced to real matrices; the imaginary residue left by the
// numerical decomposition is discarded, a documented approximation.
func (s *Solver) solveRegime(ctx context.Context, ec *EquilibriumConditions, regime int) (*TransitionSolution, error) {
	raw, eigen, err := s.kernel.Solve(ctx, ec, s.cfg.StabilityDivider)
	if err != nil {
		return nil, NewKernelError(regime, err)
	}
	if !eigen.Determinate() {
		s.logger.Debug().
			Int("regime", regime).
			Str("eu", eigen.String()).
			Msg("kernel reported indeterminate system")
		return nil, NewSolveFailure(regime, eigen)
	}
	return realParts(raw), nil
}

// realParts drops the imaginary components of a complex kernel
// solution.
func realParts(cs *ComplexSolution) *TransitionSolution {
	return &TransitionSolution{
		TTT: realDense(cs.TTT),
		RRR: realDense(cs.RRR),
		CCC: realVec(cs.CCC),
	}
}

func realDense(c *mat.CDense) *mat.Dense {
	r, cols := c.Dims()
	out := mat.NewDense(r, cols, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, real(c.At(i, j)))
		}
	}
	return out
}

func realVec(c *mat.CDense) *mat.VecDense {
	r, _ := c.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, real(c.At(i, 0)))
	}
	return out
}
