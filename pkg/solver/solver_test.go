package solver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Test fixtures

type testModel struct {
	core      int
	augmented int
}

func (m testModel) CoreStates() int      { return m.core }
func (m testModel) AugmentedStates() int { return m.augmented }

// scriptedKernel returns preset solutions keyed by the (1,1) entry of
// Γ1, which the fixtures use as a regime fingerprint. It records the
// order of solve calls.
type scriptedKernel struct {
	solutions map[float64]*ComplexSolution
	eigens    map[float64]Eigenstate
	calls     []float64
	err       error
}

func (k *scriptedKernel) Solve(_ context.Context, ec *EquilibriumConditions, _ float64) (*ComplexSolution, Eigenstate, error) {
	key := ec.Gamma1.At(0, 0)
	k.calls = append(k.calls, key)
	if k.err != nil {
		return nil, Eigenstate{}, k.err
	}
	eigen, ok := k.eigens[key]
	if !ok {
		eigen = Eigenstate{Existence: 1, Uniqueness: 1}
	}
	sol, ok := k.solutions[key]
	if !ok {
		sol = complexDiagonal(ec.States(), key)
	}
	return sol, eigen, nil
}

// complexDiagonal builds a kernel solution whose TTT is key·I, with a
// small imaginary residue the adapter must discard.
func complexDiagonal(n int, key float64) *ComplexSolution {
	ttt := mat.NewCDense(n, n, nil)
	rrr := mat.NewCDense(n, 1, nil)
	ccc := mat.NewCDense(n, 1, nil)
	for i := 0; i < n; i++ {
		ttt.Set(i, i, complex(key, 1e-14))
		rrr.Set(i, 0, complex(1, -1e-14))
		ccc.Set(i, 0, complex(key/2, 1e-15))
	}
	return &ComplexSolution{TTT: ttt, RRR: rrr, CCC: ccc}
}

type mapBuilder struct {
	conds map[int]*EquilibriumConditions
	built []int
}

func (b *mapBuilder) Build(_ context.Context, _ Model, regime int) (*EquilibriumConditions, error) {
	b.built = append(b.built, regime)
	ec, ok := b.conds[regime]
	if !ok {
		return nil, fmt.Errorf("no conditions for regime %d", regime)
	}
	return ec.Clone(), nil
}

// convexBlender mixes the base solution with preset candidate
// solutions: (1-Σw)·base + Σ w_i·candidate_i.
type convexBlender struct {
	candidates map[string]*TransitionSolution
}

func (b *convexBlender) Blend(_ context.Context, weights []float64, candidates []AltPolicy, base *TransitionSolution, _ RegimeContext) (*TransitionSolution, error) {
	remainder := 1.0
	for _, w := range weights {
		remainder -= w
	}
	out := base.Clone()
	out.TTT.Scale(remainder, out.TTT)
	out.RRR.Scale(remainder, out.RRR)
	out.CCC.ScaleVec(remainder, out.CCC)
	for i, w := range weights {
		cand, ok := b.candidates[candidates[i].Key]
		if !ok {
			return nil, fmt.Errorf("no candidate solution for policy %s", candidates[i].Key)
		}
		var t mat.Dense
		t.Scale(w, cand.TTT)
		out.TTT.Add(out.TTT, &t)
		var r mat.Dense
		r.Scale(w, cand.RRR)
		out.RRR.Add(out.RRR, &r)
		var c mat.VecDense
		c.ScaleVec(w, cand.CCC)
		out.CCC.AddVec(out.CCC, &c)
	}
	return out, nil
}

type stubFormer struct {
	gotSparse bool
}

func (f *stubFormer) Predictable(_ context.Context, ec *EquilibriumConditions, sparse bool) (*PredictableForm, error) {
	f.gotSparse = sparse
	return &PredictableForm{
		Gamma0: mat.DenseCopyOf(ec.Gamma0),
		Gamma1: mat.DenseCopyOf(ec.Gamma1),
		Gamma2: mat.NewDense(ec.States(), ec.States(), nil),
		C:      mat.VecDenseCopyOf(ec.C),
		Psi:    mat.DenseCopyOf(ec.Psi),
		Sparse: sparse,
	}, nil
}

// haltonRecursor seeds the last slot with the anchor and fills earlier
// periods with scaled copies, mimicking a backward recursion's shape.
type haltonRecursor struct {
	lastReq RecursionRequest
}

func (r *haltonRecursor) Recurse(_ context.Context, req RecursionRequest) ([]*TransitionSolution, error) {
	r.lastReq = req
	out := make([]*TransitionSolution, req.Periods+1)
	out[req.Periods] = req.Anchor.Clone()
	for i := req.Periods - 1; i >= 0; i-- {
		next := out[i+1].Clone()
		next.TTT.Scale(0.5, next.TTT)
		out[i] = next
	}
	return out, nil
}

type offsetAugmenter struct{}

// Augment appends one auxiliary state that tracks the first core state.
func (offsetAugmenter) Augment(_ context.Context, m Model, sol *TransitionSolution, _ RegimeContext) (*TransitionSolution, error) {
	n := sol.States()
	_, shocks := sol.RRR.Dims()
	ttt := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			ttt.Set(i, j, sol.TTT.At(i, j))
		}
	}
	ttt.Set(n, 0, 1)
	rrr := mat.NewDense(n+1, shocks, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < shocks; j++ {
			rrr.Set(i, j, sol.RRR.At(i, j))
		}
	}
	ccc := mat.NewVecDense(n+1, nil)
	for i := 0; i < n; i++ {
		ccc.SetVec(i, sol.CCC.AtVec(i))
	}
	return &TransitionSolution{TTT: ttt, RRR: rrr, CCC: ccc}, nil
}

// conditionsFixture builds a 2-state system whose Γ1 (1,1) entry tags
// the regime.
func conditionsFixture(key float64) *EquilibriumConditions {
	return &EquilibriumConditions{
		Gamma0: identityDense(2),
		Gamma1: mat.NewDense(2, 2, []float64{key, 0, 0, key}),
		C:      mat.NewVecDense(2, nil),
		Psi:    mat.NewDense(2, 1, []float64{1, 1}),
		Pi:     mat.NewDense(2, 1, nil),
	}
}

func identityDense(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

func newTestSolver(t *testing.T, cfg Config, reg PolicyRegistry, deps Deps) *Solver {
	t.Helper()
	s, err := New(cfg, reg, deps, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func defaultPolicy() AltPolicy {
	return AltPolicy{Key: "historical", Kind: PolicyDefault}
}

// Tests

func TestSolveSingleCoercesComplexResidue(t *testing.T) {
	kernel := &scriptedKernel{}
	builder := &mapBuilder{conds: map[int]*EquilibriumConditions{1: conditionsFixture(0.9)}}
	s := newTestSolver(t, DefaultConfig(), PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: kernel, Builder: builder})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	sol := res.Single()
	if sol == nil {
		t.Fatal("expected a single solution")
	}
	if got := sol.TTT.At(0, 0); got != 0.9 {
		t.Errorf("TTT[0,0] = %v, want 0.9", got)
	}
	if got := sol.CCC.AtVec(1); got != 0.45 {
		t.Errorf("CCC[1] = %v, want 0.45", got)
	}
}

func TestSolveSingleAugmentedDimension(t *testing.T) {
	kernel := &scriptedKernel{}
	builder := &mapBuilder{conds: map[int]*EquilibriumConditions{1: conditionsFixture(0.5)}}
	s := newTestSolver(t, DefaultConfig(), PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: kernel, Builder: builder, Augmenter: offsetAugmenter{}})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 3})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := res.Single().States(); got != 3 {
		t.Errorf("augmented state count = %d, want 3", got)
	}
}

func TestSolveSingleResidual(t *testing.T) {
	ec := conditionsFixture(0.9)
	kernel := &scriptedKernel{}
	builder := &mapBuilder{conds: map[int]*EquilibriumConditions{1: ec}}
	s := newTestSolver(t, DefaultConfig(), PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: kernel, Builder: builder})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	// Fixture: Γ0 = I, Γ1 = 0.9·I, Ψ loads ones, so TTT = 0.9·I and
	// RRR = Ψ satisfy the system except the constant, which the
	// scripted kernel deliberately offsets.
	sol := res.Single()
	var resid mat.Dense
	resid.Mul(ec.Gamma0, sol.TTT)
	resid.Sub(&resid, ec.Gamma1)
	if !mat.EqualApprox(&resid, mat.NewDense(2, 2, nil), 1e-12) {
		t.Errorf("Γ0·TTT − Γ1 residual is non-zero: %v", mat.Formatted(&resid))
	}
}

func TestIndeterminateClassificationIsSolveFailure(t *testing.T) {
	// Existence without uniqueness must be rejected, not returned as
	// a degenerate solution.
	kernel := &scriptedKernel{eigens: map[float64]Eigenstate{0.7: {Existence: 1, Uniqueness: 0}}}
	builder := &mapBuilder{conds: map[int]*EquilibriumConditions{1: conditionsFixture(0.7)}}
	s := newTestSolver(t, DefaultConfig(), PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: kernel, Builder: builder})

	_, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if !IsSolveFailure(err) {
		t.Fatalf("expected solve failure, got %v", err)
	}
	var se *SolveError
	if !errors.As(err, &se) || se.Eigen == nil || se.Eigen.Existence != 1 || se.Eigen.Uniqueness != 0 {
		t.Errorf("error should carry the (1,0) classification, got %v", err)
	}
}

func regimeSwitchingConfig(n int) Config {
	cfg := DefaultConfig()
	cfg.RegimeSwitching = true
	cfg.Regimes = n
	return cfg
}

func TestBatchMatchesIndividualSolves(t *testing.T) {
	conds := map[int]*EquilibriumConditions{
		1: conditionsFixture(0.3),
		2: conditionsFixture(0.5),
		3: conditionsFixture(0.7),
	}

	batch := newTestSolver(t, regimeSwitchingConfig(3), PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: &scriptedKernel{}, Builder: &mapBuilder{conds: conds}})
	res, err := batch.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("batch Solve: %v", err)
	}

	for regime := 1; regime <= 3; regime++ {
		one := newTestSolver(t, DefaultConfig(), PolicyRegistry{Active: defaultPolicy()},
			Deps{Kernel: &scriptedKernel{}, Builder: &mapBuilder{conds: map[int]*EquilibriumConditions{1: conds[regime]}}})
		single, err := one.Solve(context.Background(), testModel{core: 2, augmented: 2})
		if err != nil {
			t.Fatalf("single Solve regime %d: %v", regime, err)
		}
		if !res.Solutions[regime].EqualWithin(single.Single(), 0) {
			t.Errorf("regime %d: batch and individual solves differ", regime)
		}
	}
}

func TestIdenticalConditionsCopyIndependence(t *testing.T) {
	conds := map[int]*EquilibriumConditions{1: conditionsFixture(0.4)}
	reg := PolicyRegistry{
		Active:              defaultPolicy(),
		IdenticalConditions: map[int]int{2: 1},
	}
	builder := &mapBuilder{conds: conds}
	s := newTestSolver(t, regimeSwitchingConfig(2), reg,
		Deps{Kernel: &scriptedKernel{}, Builder: builder})

	built, err := s.buildConditions(context.Background(), testModel{core: 2, augmented: 2}, []int{1, 2})
	if err != nil {
		t.Fatalf("buildConditions: %v", err)
	}
	if len(builder.built) != 1 || builder.built[0] != 1 {
		t.Errorf("builder invoked for %v, want only regime 1", builder.built)
	}
	if !mat.Equal(built[1].Gamma1, built[2].Gamma1) {
		t.Fatal("copied conditions differ from source")
	}
	built[2].Gamma1.Set(0, 0, 99)
	if built[1].Gamma1.At(0, 0) == 99 {
		t.Error("mutating the copy leaked into the source regime")
	}
}

func TestIdenticalTransitionsShortcut(t *testing.T) {
	conds := map[int]*EquilibriumConditions{
		1: conditionsFixture(0.4),
		2: conditionsFixture(0.4),
	}
	reg := PolicyRegistry{
		Active:               defaultPolicy(),
		IdenticalTransitions: map[int]int{2: 1},
	}
	kernel := &scriptedKernel{}
	s := newTestSolver(t, regimeSwitchingConfig(2), reg,
		Deps{Kernel: kernel, Builder: &mapBuilder{conds: conds}})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(kernel.calls) != 1 {
		t.Errorf("kernel called %d times, want 1 (regime 2 copied)", len(kernel.calls))
	}
	if !res.Solutions[1].EqualWithin(res.Solutions[2], 0) {
		t.Error("copied transition differs from source")
	}
	res.Solutions[2].TTT.Set(0, 0, 123)
	if res.Solutions[1].TTT.At(0, 0) == 123 {
		t.Error("mutating the copied transition leaked into the source")
	}
}

func TestBatchAbortsAtFailingRegime(t *testing.T) {
	conds := map[int]*EquilibriumConditions{
		1: conditionsFixture(0.3),
		2: conditionsFixture(0.5),
		3: conditionsFixture(0.7),
	}
	kernel := &scriptedKernel{eigens: map[float64]Eigenstate{0.5: {Existence: 0, Uniqueness: 1}}}
	s := newTestSolver(t, regimeSwitchingConfig(3), PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: kernel, Builder: &mapBuilder{conds: conds}})

	_, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err == nil {
		t.Fatal("expected solve failure")
	}
	regime, ok := FailingRegime(err)
	if !ok || regime != 2 {
		t.Errorf("FailingRegime = (%d, %t), want (2, true)", regime, ok)
	}
	for _, key := range kernel.calls {
		if key == 0.7 {
			t.Error("regime 3 was attempted after regime 2 failed")
		}
	}
}

func TestDegenerateBlendIdentity(t *testing.T) {
	conds := map[int]*EquilibriumConditions{1: conditionsFixture(0.6)}
	base := &TransitionSolution{
		TTT: mat.NewDense(2, 2, []float64{0.6, 0, 0, 0.6}),
		RRR: mat.NewDense(2, 1, []float64{1, 1}),
		CCC: mat.NewVecDense(2, []float64{0.3, 0.3}),
	}
	reg := PolicyRegistry{
		Active:     defaultPolicy(),
		Candidates: []AltPolicy{{Key: "historical", Kind: PolicyDefault}},
		Weights:    map[int][]float64{1: {1.0}},
	}
	blender := &convexBlender{candidates: map[string]*TransitionSolution{"historical": base}}
	s := newTestSolver(t, regimeSwitchingConfig(1), reg,
		Deps{Kernel: &scriptedKernel{}, Builder: &mapBuilder{conds: conds}, Blender: blender})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	// All mass on a single candidate identical to the actual policy:
	// the blend must collapse to the unblended solution.
	if !res.Solutions[1].EqualWithin(base, 1e-12) {
		t.Error("degenerate blend did not reduce to the single-policy solution")
	}
}

func TestWindowProducesAnchorTerminatedSequence(t *testing.T) {
	conds := map[int]*EquilibriumConditions{
		1: conditionsFixture(0.3),
		2: conditionsFixture(0.9), // temporary policy
		3: conditionsFixture(0.8), // lift-off anchor
	}
	cfg := regimeSwitchingConfig(3)
	cfg.Gensys2Regimes = []int{2, 3}
	cfg.TemporaryPolicyLength = 1

	former := &stubFormer{}
	recursor := &haltonRecursor{}
	s := newTestSolver(t, cfg, PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: &scriptedKernel{}, Builder: &mapBuilder{conds: conds}, Former: former, Recursor: recursor})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(res.Solutions) != 3 {
		t.Fatalf("got %d regimes, want 3", len(res.Solutions))
	}
	// Window of length 1: the anchor slot must hold the lift-off
	// solution exactly.
	if got := res.Solutions[3].TTT.At(0, 0); got != 0.8 {
		t.Errorf("anchor TTT[0,0] = %v, want the lift-off solution (0.8)", got)
	}
	if recursor.lastReq.Periods != 1 {
		t.Errorf("recursion periods = %d, want 1", recursor.lastReq.Periods)
	}
	if recursor.lastReq.Weights != nil {
		t.Error("fully credible window should carry no per-period weights")
	}
}

func TestWindowTruncatesAnchorToCoreBlock(t *testing.T) {
	conds := map[int]*EquilibriumConditions{
		1: conditionsFixture(0.3),
		2: conditionsFixture(0.9),
		3: conditionsFixture(0.8),
	}
	cfg := regimeSwitchingConfig(3)
	cfg.Gensys2Regimes = []int{2, 3}
	cfg.TemporaryPolicyLength = 1

	recursor := &haltonRecursor{}
	s := newTestSolver(t, cfg, PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: &scriptedKernel{}, Builder: &mapBuilder{conds: conds},
			Former: &stubFormer{}, Recursor: recursor, Augmenter: offsetAugmenter{}})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 3})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := recursor.lastReq.Anchor.States(); got != 2 {
		t.Errorf("recursion anchor has %d states, want core block of 2", got)
	}
	// Window regimes are augmented on the way out.
	if got := res.Solutions[2].States(); got != 3 {
		t.Errorf("window solution has %d states after augmentation, want 3", got)
	}
}

func TestWindowLengthMismatchIsPrecondition(t *testing.T) {
	conds := map[int]*EquilibriumConditions{
		1: conditionsFixture(0.3),
		2: conditionsFixture(0.9),
		3: conditionsFixture(0.8),
	}
	cfg := regimeSwitchingConfig(3)
	cfg.Gensys2Regimes = []int{2, 3}
	cfg.TemporaryPolicyLength = 4

	s := newTestSolver(t, cfg, PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: &scriptedKernel{}, Builder: &mapBuilder{conds: conds},
			Former: &stubFormer{}, Recursor: &haltonRecursor{}})

	_, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if !IsPrecondition(err) {
		t.Fatalf("expected precondition violation, got %v", err)
	}
}

func TestUncertainTemporaryFlagMustAgreeWithWeights(t *testing.T) {
	conds := map[int]*EquilibriumConditions{
		1: conditionsFixture(0.3),
		2: conditionsFixture(0.9),
		3: conditionsFixture(0.8),
	}
	cfg := regimeSwitchingConfig(3)
	cfg.Gensys2Regimes = []int{2, 3}
	cfg.TemporaryPolicyLength = 1
	cfg.UncertainTemporary = true // but no per-period weights supplied

	s := newTestSolver(t, cfg, PolicyRegistry{Active: defaultPolicy()},
		Deps{Kernel: &scriptedKernel{}, Builder: &mapBuilder{conds: conds},
			Former: &stubFormer{}, Recursor: &haltonRecursor{}})

	_, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if !IsPrecondition(err) {
		t.Fatalf("expected precondition violation, got %v", err)
	}
}

func TestUncertainTemporaryCollectsCandidateTerminals(t *testing.T) {
	conds := map[int]*EquilibriumConditions{
		1: conditionsFixture(0.3),
		2: conditionsFixture(0.9),
		3: conditionsFixture(0.8),
	}
	cfg := regimeSwitchingConfig(3)
	cfg.Gensys2Regimes = []int{2, 3}
	cfg.TemporaryPolicyLength = 1
	cfg.UncertainTemporary = true

	altConds := func(_ context.Context, _ Model, _ int) (*EquilibriumConditions, error) {
		return conditionsFixture(0.2), nil
	}
	reg := PolicyRegistry{
		Active:     defaultPolicy(),
		Candidates: []AltPolicy{{Key: "taylor", Kind: PolicyDefault, Conditions: altConds}},
		Weights:    map[int][]float64{2: {0.25}},
	}
	recursor := &haltonRecursor{}
	s := newTestSolver(t, cfg, reg,
		Deps{Kernel: &scriptedKernel{}, Builder: &mapBuilder{conds: conds},
			Former: &stubFormer{}, Recursor: recursor})

	_, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := len(recursor.lastReq.Terminals); got != 2 {
		t.Fatalf("got %d terminals, want lift-off plus one candidate", got)
	}
	if got := recursor.lastReq.Terminals[1].TTT.At(0, 0); got != 0.2 {
		t.Errorf("candidate terminal TTT[0,0] = %v, want 0.2", got)
	}
	if len(recursor.lastReq.Weights) != 1 || recursor.lastReq.Weights[0][0] != 0.25 {
		t.Errorf("per-period weights = %v, want [[0.25]]", recursor.lastReq.Weights)
	}
}

func TestUncertainLiftoffOverwritesFinalSlot(t *testing.T) {
	conds := map[int]*EquilibriumConditions{
		1: conditionsFixture(0.3),
		2: conditionsFixture(0.9),
		3: conditionsFixture(0.8),
	}
	cfg := regimeSwitchingConfig(3)
	cfg.Gensys2Regimes = []int{2, 3}
	cfg.TemporaryPolicyLength = 1
	cfg.UncertainPolicy = true

	weightedSol := &TransitionSolution{
		TTT: mat.NewDense(2, 2, []float64{0.1, 0, 0, 0.1}),
		RRR: mat.NewDense(2, 1, []float64{2, 2}),
		CCC: mat.NewVecDense(2, nil),
	}
	reg := PolicyRegistry{
		Active:     defaultPolicy(),
		Candidates: []AltPolicy{{Key: "taylor", Kind: PolicyDefault}},
		Weights:    map[int][]float64{3: {1.0}},
	}
	blender := &convexBlender{candidates: map[string]*TransitionSolution{"taylor": weightedSol}}
	s := newTestSolver(t, cfg, reg,
		Deps{Kernel: &scriptedKernel{}, Builder: &mapBuilder{conds: conds},
			Former: &stubFormer{}, Recursor: &haltonRecursor{}, Blender: blender})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Solutions[3].EqualWithin(weightedSol, 1e-12) {
		t.Error("final window slot should hold the credibility-weighted terminal")
	}
	// Earlier window slots come from the recursion seeded with the
	// perfect-credibility terminal, not the weighted one.
	if got := res.Solutions[2].TTT.At(0, 0); got != 0.4 {
		t.Errorf("first window slot TTT[0,0] = %v, want 0.4 (recursion on unweighted anchor)", got)
	}
}

func TestRegimeSwitchingUnsupportedOnPerturbationPath(t *testing.T) {
	cfg := Config{Method: MethodPerturbation, RegimeSwitching: true, Regimes: 2, StabilityDivider: 1}
	s := newTestSolver(t, cfg, PolicyRegistry{Active: defaultPolicy()},
		Deps{Perturbation: stubPerturbation{}})

	_, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if !IsUnsupportedConfiguration(err) {
		t.Fatalf("expected unsupported-configuration error, got %v", err)
	}
}

type stubPerturbation struct{}

func (stubPerturbation) Decompose(_ context.Context, _ Model) (*mat.Dense, *mat.Dense, error) {
	return mat.NewDense(1, 2, []float64{0.5, 0.5}), mat.NewDense(2, 2, []float64{0.9, 0, 0, 0.9}), nil
}

func (stubPerturbation) Transition(jump, state *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	n, _ := state.Dims()
	rrr := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		rrr.Set(i, 0, 1)
	}
	return mat.DenseCopyOf(state), rrr, nil
}

func TestPerturbationPath(t *testing.T) {
	cfg := Config{Method: MethodPerturbation, StabilityDivider: 1}
	s := newTestSolver(t, cfg, PolicyRegistry{Active: defaultPolicy()},
		Deps{Perturbation: stubPerturbation{}})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	sol := res.Single()
	if got := sol.TTT.At(0, 0); got != 0.9 {
		t.Errorf("TTT[0,0] = %v, want 0.9", got)
	}
	for i := 0; i < sol.CCC.Len(); i++ {
		if sol.CCC.AtVec(i) != 0 {
			t.Errorf("CCC[%d] = %v, want 0", i, sol.CCC.AtVec(i))
		}
	}
}

func TestCustomPolicySolveProcedure(t *testing.T) {
	custom := &TransitionSolution{
		TTT: mat.NewDense(1, 1, []float64{0.42}),
		RRR: mat.NewDense(1, 1, []float64{1}),
		CCC: mat.NewVecDense(1, nil),
	}
	reg := PolicyRegistry{
		Active: AltPolicy{
			Key:  "zero-rate",
			Kind: PolicyCustom,
			Solve: func(_ context.Context, _ Model) (*TransitionSolution, error) {
				return custom.Clone(), nil
			},
		},
	}
	kernel := &scriptedKernel{}
	s := newTestSolver(t, DefaultConfig(), reg,
		Deps{Kernel: kernel, Builder: &mapBuilder{conds: map[int]*EquilibriumConditions{}}})

	res, err := s.Solve(context.Background(), testModel{core: 1, augmented: 1})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Single().EqualWithin(custom, 0) {
		t.Error("custom policy result was altered by the dispatcher")
	}
	if len(kernel.calls) != 0 {
		t.Error("kernel should not run when the active policy is custom")
	}
}

func TestReplacementGenerators(t *testing.T) {
	cfg := regimeSwitchingConfig(2)
	cfg.ReplaceConditions = true
	reg := PolicyRegistry{
		Active: defaultPolicy(),
		Replacements: map[int]ConditionsFunc{
			2: func(_ context.Context, _ Model, _ int) (*EquilibriumConditions, error) {
				return conditionsFixture(0.11), nil
			},
		},
	}
	builder := &mapBuilder{conds: map[int]*EquilibriumConditions{1: conditionsFixture(0.3)}}
	s := newTestSolver(t, cfg, reg, Deps{Kernel: &scriptedKernel{}, Builder: builder})

	res, err := s.Solve(context.Background(), testModel{core: 2, augmented: 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := res.Solutions[2].TTT.At(0, 0); got != 0.11 {
		t.Errorf("regime 2 TTT[0,0] = %v, want replacement-generated 0.11", got)
	}
	if len(builder.built) != 1 {
		t.Errorf("default builder invoked for %v, want only regime 1", builder.built)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero divider", Config{Method: MethodGensys}},
		{"unknown method", Config{Method: "spectral", StabilityDivider: 1}},
		{"window without regime switching", Config{Method: MethodGensys, StabilityDivider: 1, Gensys2Regimes: []int{2, 3}}},
		{"non-contiguous window", Config{Method: MethodGensys, StabilityDivider: 1, RegimeSwitching: true, Regimes: 5, Gensys2Regimes: []int{2, 4}, TemporaryPolicyLength: 1}},
		{"window touching regime one", Config{Method: MethodGensys, StabilityDivider: 1, RegimeSwitching: true, Regimes: 3, Gensys2Regimes: []int{1, 2}, TemporaryPolicyLength: 1}},
		{"no regimes", Config{Method: MethodGensys, StabilityDivider: 1, RegimeSwitching: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRegistryWeightValidation(t *testing.T) {
	reg := PolicyRegistry{
		Active:     defaultPolicy(),
		Candidates: []AltPolicy{{Key: "taylor", Kind: PolicyDefault}},
		Weights:    map[int][]float64{1: {0.7, 0.6}},
	}
	if err := reg.Validate(1); err == nil {
		t.Error("length-mismatched weights should fail validation")
	}

	reg.Weights = map[int][]float64{1: {1.4}}
	if err := reg.Validate(1); err == nil {
		t.Error("weights summing past one should fail validation")
	}

	reg.Weights = map[int][]float64{1: {-0.1}}
	if err := reg.Validate(1); err == nil {
		t.Error("negative weights should fail validation")
	}

	reg.Weights = map[int][]float64{1: {0.4}}
	if err := reg.Validate(1); err != nil {
		t.Errorf("valid weights rejected: %v", err)
	}
}

func TestTruncateToCore(t *testing.T) {
	sol := &TransitionSolution{
		TTT: mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}),
		RRR: mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}),
		CCC: mat.NewVecDense(3, []float64{1, 2, 3}),
	}
	core := truncateToCore(sol, 2)
	if got := core.States(); got != 2 {
		t.Fatalf("truncated states = %d, want 2", got)
	}
	if core.TTT.At(1, 1) != 5 || core.RRR.At(1, 1) != 4 || core.CCC.AtVec(1) != 2 {
		t.Error("truncation picked the wrong block")
	}
	core.TTT.Set(0, 0, 42)
	if sol.TTT.At(0, 0) == 42 {
		t.Error("truncation aliased the source matrices")
	}
}
