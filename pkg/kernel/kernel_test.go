package kernel_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/macrosolve/macrosolve/pkg/kernel"
	"github.com/macrosolve/macrosolve/pkg/solver"
)

func backwardConditions(g0, g1 []float64) *solver.EquilibriumConditions {
	return &solver.EquilibriumConditions{
		Gamma0: mat.NewDense(2, 2, g0),
		Gamma1: mat.NewDense(2, 2, g1),
		C:      mat.NewVecDense(2, []float64{1, 0}),
		Psi:    mat.NewDense(2, 1, []float64{1, 0}),
		Pi:     mat.NewDense(2, 1, nil),
	}
}

func TestDirectKernelSolvesBackwardSystem(t *testing.T) {
	// Γ0 = 2I, Γ1 = I, so TTT = 0.5·I, RRR = Ψ/2, CCC = C/2.
	ec := backwardConditions(
		[]float64{2, 0, 0, 2},
		[]float64{1, 0, 0, 1},
	)
	raw, eigen, err := kernel.DirectKernel{}.Solve(context.Background(), ec, 1.0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !eigen.Determinate() {
		t.Fatalf("eigenstate = %s, want (1,1)", eigen)
	}
	if got := real(raw.TTT.At(0, 0)); got != 0.5 {
		t.Errorf("TTT[0,0] = %v, want 0.5", got)
	}
	if got := real(raw.RRR.At(0, 0)); got != 0.5 {
		t.Errorf("RRR[0,0] = %v, want 0.5", got)
	}
	if got := real(raw.CCC.At(0, 0)); got != 0.5 {
		t.Errorf("CCC[0] = %v, want 0.5", got)
	}
}

func TestDirectKernelClassifiesExplosiveSystem(t *testing.T) {
	// Γ0 = I, Γ1 = 2I: spectral radius 2 breaches the divider.
	ec := backwardConditions(
		[]float64{1, 0, 0, 1},
		[]float64{2, 0, 0, 2},
	)
	_, eigen, err := kernel.DirectKernel{}.Solve(context.Background(), ec, 1.0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if eigen.Existence != 0 || eigen.Uniqueness != 1 {
		t.Errorf("eigenstate = %s, want (0,1)", eigen)
	}
}

func TestDirectKernelRejectsForwardLookingSystem(t *testing.T) {
	ec := backwardConditions(
		[]float64{1, 0, 0, 1},
		[]float64{0.5, 0, 0, 0.5},
	)
	ec.Pi.Set(0, 0, 1)
	_, _, err := kernel.DirectKernel{}.Solve(context.Background(), ec, 1.0)
	if !solver.IsUnsupportedConfiguration(err) {
		t.Fatalf("expected unsupported-configuration error, got %v", err)
	}
}

func TestDirectKernelSingularGamma0(t *testing.T) {
	ec := backwardConditions(
		[]float64{1, 1, 1, 1},
		[]float64{0.5, 0, 0, 0.5},
	)
	_, _, err := kernel.DirectKernel{}.Solve(context.Background(), ec, 1.0)
	if err == nil {
		t.Fatal("expected an error for singular Γ0")
	}
}

func TestStateSpaceFromBlocks(t *testing.T) {
	state := mat.NewDense(2, 2, []float64{0.9, 0, 0, 0.8})
	jump := mat.NewDense(1, 2, []float64{0.5, 0.25})

	ttt, rrr, err := kernel.StateSpaceFrom(jump, state)
	if err != nil {
		t.Fatalf("StateSpaceFrom: %v", err)
	}
	if r, c := ttt.Dims(); r != 3 || c != 3 {
		t.Fatalf("TTT is %dx%d, want 3x3", r, c)
	}
	if got := ttt.At(0, 0); got != 0.9 {
		t.Errorf("TTT[0,0] = %v, want state block", got)
	}
	// Jump row: gx·hx = [0.45, 0.2].
	if got := ttt.At(2, 0); got != 0.45 {
		t.Errorf("TTT[2,0] = %v, want 0.45", got)
	}
	if got := ttt.At(2, 2); got != 0 {
		t.Errorf("TTT[2,2] = %v, want structural zero", got)
	}
	if got := rrr.At(0, 0); got != 1 {
		t.Errorf("RRR[0,0] = %v, want identity loading", got)
	}
	if got := rrr.At(2, 1); got != 0.25 {
		t.Errorf("RRR[2,1] = %v, want jump loading", got)
	}
}

func TestStateSpaceFromDimensionMismatch(t *testing.T) {
	state := mat.NewDense(2, 2, nil)
	jump := mat.NewDense(1, 3, nil)
	if _, _, err := kernel.StateSpaceFrom(jump, state); !solver.IsPrecondition(err) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

// fixedBuilder hands the same backward-looking conditions to every
// regime request.
type fixedBuilder struct {
	ec *solver.EquilibriumConditions
}

func (b fixedBuilder) Build(_ context.Context, _ solver.Model, _ int) (*solver.EquilibriumConditions, error) {
	return b.ec.Clone(), nil
}

type dimModel struct{ n int }

func (m dimModel) CoreStates() int      { return m.n }
func (m dimModel) AugmentedStates() int { return m.n }

func TestDirectKernelThroughDispatcherSatisfiesConditions(t *testing.T) {
	ec := backwardConditions(
		[]float64{1, 0, 0.3, 1},
		[]float64{0.7, 0.1, 0, 0.5},
	)
	s, err := solver.New(solver.DefaultConfig(),
		solver.PolicyRegistry{Active: solver.AltPolicy{Key: "historical", Kind: solver.PolicyDefault}},
		solver.Deps{Kernel: kernel.DirectKernel{}, Builder: fixedBuilder{ec: ec}, Augmenter: kernel.IdentityAugmenter{}},
		zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := s.Solve(context.Background(), dimModel{n: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if resid := res.Single().Residual(ec); resid > 1e-12 {
		t.Errorf("solution residual %g exceeds tolerance", resid)
	}
}
