package kernel

import (
	"context"
	"errors"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/macrosolve/macrosolve/pkg/solver"
)

// DirectKernel solves purely backward-looking equilibrium systems,
// those whose expectational-error loadings Π are zero. The reduced
// form follows by inverting Γ0:
//
//	TTT = Γ0⁻¹·Γ1   RRR = Γ0⁻¹·Ψ   CCC = Γ0⁻¹·C
//
// Stability is classified against the divider: every eigenvalue of TTT
// must lie strictly inside the divider's modulus for the solution to
// be bounded. A backward-looking system has no expectational degrees
// of freedom, so uniqueness always holds; only existence can fail.
type DirectKernel struct{}

var _ solver.Kernel = DirectKernel{}

// Solve implements solver.Kernel for backward-looking systems. A
// system with non-zero Π loadings is rejected: forward-looking
// conditions need the generalized Schur kernel.
func (DirectKernel) Solve(_ context.Context, ec *solver.EquilibriumConditions, stabilityDivider float64) (*solver.ComplexSolution, solver.Eigenstate, error) {
	if err := ec.Validate(); err != nil {
		return nil, solver.Eigenstate{}, err
	}
	if !zeroMatrix(ec.Pi) {
		return nil, solver.Eigenstate{}, solver.NewUnsupportedConfiguration(
			"direct kernel cannot solve forward-looking systems (%d expectational errors loaded)", ec.ExpectationErrors())
	}

	var ttt mat.Dense
	if err := ttt.Solve(ec.Gamma0, ec.Gamma1); err != nil {
		return nil, solver.Eigenstate{}, solver.NewKernelError(0, err)
	}
	var rrr mat.Dense
	if err := rrr.Solve(ec.Gamma0, ec.Psi); err != nil {
		return nil, solver.Eigenstate{}, solver.NewKernelError(0, err)
	}
	var ccc mat.VecDense
	if err := ccc.SolveVec(ec.Gamma0, ec.C); err != nil {
		return nil, solver.Eigenstate{}, solver.NewKernelError(0, err)
	}

	eigen := solver.Eigenstate{Existence: 1, Uniqueness: 1}
	max, err := spectralRadius(&ttt)
	if err != nil {
		return nil, solver.Eigenstate{}, err
	}
	if max >= stabilityDivider {
		eigen.Existence = 0
	}
	return complexify(&ttt, &rrr, &ccc), eigen, nil
}

// spectralRadius returns the largest eigenvalue modulus of a.
func spectralRadius(a *mat.Dense) (float64, error) {
	var eig mat.Eigen
	if !eig.Factorize(a, mat.EigenNone) {
		return 0, solver.NewKernelError(0, errEigenFailed)
	}
	max := 0.0
	for _, v := range eig.Values(nil) {
		if m := cmplx.Abs(v); m > max {
			max = m
		}
	}
	return max, nil
}

var errEigenFailed = errors.New("eigenvalue factorization failed")

func zeroMatrix(a *mat.Dense) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if a.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// complexify lifts a real solution into the complex form the kernel
// contract returns.
func complexify(ttt, rrr *mat.Dense, ccc *mat.VecDense) *solver.ComplexSolution {
	return &solver.ComplexSolution{
		TTT: cdense(ttt),
		RRR: cdense(rrr),
		CCC: cvec(ccc),
	}
}

func cdense(a *mat.Dense) *mat.CDense {
	r, c := a.Dims()
	out := mat.NewCDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, complex(a.At(i, j), 0))
		}
	}
	return out
}

func cvec(v *mat.VecDense) *mat.CDense {
	n := v.Len()
	out := mat.NewCDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, complex(v.AtVec(i), 0))
	}
	return out
}
