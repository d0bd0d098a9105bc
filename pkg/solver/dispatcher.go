package solver

import (
	"context"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Solver is the top-level dispatcher. It owns the configuration and
// policy registry resolved by the caller and the collaborator set, and
// orchestrates the conditions cache, the permanent-regime batch and
// the temporary-policy splicer.
type Solver struct {
	cfg Config
	reg PolicyRegistry

	kernel    Kernel
	perturb   PerturbationKernel
	builder   ConditionsBuilder
	augmenter Augmenter
	blender   Blender
	former    PredictableFormer
	recursor  BackwardRecursor

	logger zerolog.Logger
}

// Deps is the collaborator set handed to New. Kernel and Builder are
// required on the gensys path, Perturbation on the perturbation path.
// Augmenter defaults to a pass-through; Blender, Former and Recursor
// are required only by the configurations that exercise them.
type Deps struct {
	Kernel       Kernel
	Perturbation PerturbationKernel
	Builder      ConditionsBuilder
	Augmenter    Augmenter
	Blender      Blender
	Former       PredictableFormer
	Recursor     BackwardRecursor
}

// New validates the configuration and registry and returns a solver.
func New(cfg Config, reg PolicyRegistry, deps Deps, logger zerolog.Logger) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	regimes := 1
	if cfg.RegimeSwitching {
		regimes = cfg.Regimes
	}
	if err := reg.Validate(regimes); err != nil {
		return nil, err
	}
	switch cfg.Method {
	case MethodGensys:
		if deps.Kernel == nil {
			return nil, NewPrecondition("gensys method requires a kernel")
		}
		if deps.Builder == nil {
			return nil, NewPrecondition("gensys method requires a conditions builder")
		}
	case MethodPerturbation:
		if deps.Perturbation == nil {
			return nil, NewPrecondition("perturbation method requires a perturbation kernel")
		}
	}
	if deps.Augmenter == nil {
		deps.Augmenter = passthroughAugmenter{}
	}
	return &Solver{
		cfg:       cfg,
		reg:       reg,
		kernel:    deps.Kernel,
		perturb:   deps.Perturbation,
		builder:   deps.Builder,
		augmenter: deps.Augmenter,
		blender:   deps.Blender,
		former:    deps.Former,
		recursor:  deps.Recursor,
		logger:    logger.With().Str("component", "solver").Logger(),
	}, nil
}

// Result maps each regime to its transition solution. A
// non-regime-switching solve yields a single entry under regime 1.
type Result struct {
	// Solutions is keyed by 1-based regime index.
	Solutions map[int]*TransitionSolution
}

// Single returns the sole solution of a non-regime-switching solve.
func (r *Result) Single() *TransitionSolution {
	return r.Solutions[1]
}

// Solve computes the transition solutions for the configured regime
// partition. Either every requested regime is populated or an error is
// returned with no partial result.
func (s *Solver) Solve(ctx context.Context, m Model) (*Result, error) {
	if s.cfg.Method == MethodPerturbation {
		if s.cfg.RegimeSwitching {
			return nil, NewUnsupportedConfiguration("regime switching is not supported by the perturbation kernel")
		}
		sol, err := s.solvePerturbation(ctx, m)
		if err != nil {
			return nil, err
		}
		return &Result{Solutions: map[int]*TransitionSolution{1: sol}}, nil
	}

	if !s.cfg.RegimeSwitching {
		sol, err := s.solveSingle(ctx, m)
		if err != nil {
			return nil, err
		}
		return &Result{Solutions: map[int]*TransitionSolution{1: sol}}, nil
	}

	return s.solveRegimeSwitching(ctx, m)
}

// solveSingle is the non-regime-switching gensys path: one conditions
// build, one kernel invocation (or the active policy's own solve
// procedure), an optional belief blend, then augmentation.
func (s *Solver) solveSingle(ctx context.Context, m Model) (*TransitionSolution, error) {
	rc := RegimeContext{Regime: 1, Regimes: 1}

	// A custom active policy owns its whole solve, including blending
	// and augmentation.
	if s.reg.Active.Kind == PolicyCustom {
		sol, err := s.reg.Active.Solve(ctx, m)
		if err != nil {
			return nil, &SolveError{Class: ClassSolveFailure, Message: "custom policy solve failed", Err: err}
		}
		return sol, nil
	}

	conds, err := s.buildConditions(ctx, m, []int{1})
	if err != nil {
		return nil, err
	}
	sol, err := s.solveRegime(ctx, conds[1], 0)
	if err != nil {
		return nil, err
	}
	if weights := s.reg.WeightsFor(1); len(weights) > 0 {
		if s.blender == nil {
			return nil, NewPrecondition("credibility weights supplied but no blender is registered")
		}
		sol, err = s.blender.Blend(ctx, weights, s.reg.Candidates, sol, rc)
		if err != nil {
			return nil, NewPrecondition("credibility blend failed: %v", err)
		}
	}
	return s.augment(ctx, m, sol, rc)
}

// solveRegimeSwitching runs the full partition: conditions for every
// regime, the permanent batch, then the temporary-policy window, whose
// splicer consumes the permanent regimes' terminal solution as its
// anchor.
func (s *Solver) solveRegimeSwitching(ctx context.Context, m Model) (*Result, error) {
	all := make([]int, s.cfg.Regimes)
	for i := range all {
		all[i] = i + 1
	}

	conds, err := s.buildConditions(ctx, m, all)
	if err != nil {
		return nil, err
	}

	window := s.cfg.Window()
	inWindow := make(map[int]bool, len(window))
	for _, r := range window {
		inWindow[r] = true
	}
	gensys := make([]int, 0, len(all))
	for _, r := range all {
		if !inWindow[r] {
			gensys = append(gensys, r)
		}
	}

	out := make(map[int]*TransitionSolution, len(all))
	if err := s.solveGensysRegimes(ctx, m, gensys, conds, out); err != nil {
		return nil, err
	}
	if len(window) > 0 {
		if err := s.spliceWindow(ctx, m, conds, out); err != nil {
			return nil, err
		}
	}
	s.logger.Info().Int("regimes", len(out)).Msg("regime-switching solve complete")
	return &Result{Solutions: out}, nil
}

// solvePerturbation runs the alternative kernel: a jump/state
// factorization followed by the transform into transition matrices.
// The constant vector is zero by construction of the factorization.
func (s *Solver) solvePerturbation(ctx context.Context, m Model) (*TransitionSolution, error) {
	jump, state, err := s.perturb.Decompose(ctx, m)
	if err != nil {
		return nil, &SolveError{Class: ClassSolveFailure, Message: "perturbation decomposition failed", Err: err}
	}
	ttt, rrr, err := s.perturb.Transition(jump, state)
	if err != nil {
		return nil, &SolveError{Class: ClassSolveFailure, Message: "perturbation transform failed", Err: err}
	}
	n, _ := ttt.Dims()
	sol := &TransitionSolution{TTT: ttt, RRR: rrr, CCC: mat.NewVecDense(n, nil)}
	return s.augment(ctx, m, sol, RegimeContext{Regime: 1, Regimes: 1})
}

func (s *Solver) augment(ctx context.Context, m Model, sol *TransitionSolution, rc RegimeContext) (*TransitionSolution, error) {
	aug, err := s.augmenter.Augment(ctx, m, sol, rc)
	if err != nil {
		return nil, NewPrecondition("regime %d: state augmentation failed: %v", rc.Regime, err)
	}
	return aug, nil
}

// passthroughAugmenter is the default when no augmentation collaborator
// is supplied: the core state block is the full state vector.
type passthroughAugmenter struct{}

func (passthroughAugmenter) Augment(_ context.Context, _ Model, sol *TransitionSolution, _ RegimeContext) (*TransitionSolution, error) {
	return sol, nil
}
