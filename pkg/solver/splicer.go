package solver

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// spliceWindow constructs the backward-consistent time-varying
// transition matrices for the temporary-policy window and writes them
// into out, one per window regime including the lift-off anchor.
//
// The terminal (anchor) solution is computed first and the window is
// built backward from it: rational expectations make each period's
// matrices depend on the next period's, not the previous one.
func (s *Solver) spliceWindow(ctx context.Context, m Model, conds map[int]*EquilibriumConditions, out map[int]*TransitionSolution) error {
	window := s.cfg.Window()
	if s.cfg.TemporaryPolicyLength != len(window)-1 {
		return NewPrecondition("temporary-policy length %d does not equal window size %d minus one",
			s.cfg.TemporaryPolicyLength, len(window))
	}
	anchor := s.cfg.Anchor()
	periods := window[:len(window)-1]

	// The uncertain-temporary flag and the per-period weights are
	// equivalent inputs; they must agree rather than one silently
	// winning.
	derived := false
	for _, r := range periods {
		if len(s.reg.WeightsFor(r)) > 0 {
			derived = true
			break
		}
	}
	if derived != s.cfg.UncertainTemporary {
		return NewPrecondition("uncertain-temporary flag %t disagrees with per-period credibility weights (%t)",
			s.cfg.UncertainTemporary, derived)
	}

	anchorConds, ok := conds[anchor]
	if !ok {
		return NewPrecondition("anchor regime %d has no equilibrium conditions", anchor)
	}

	// Terminal solution under the policy expected to hold at
	// lift-off, truncated to the core state block.
	terminal, err := s.solveLiftoff(ctx, m, anchorConds, anchor)
	if err != nil {
		return err
	}

	// A lift-off-credibility-weighted terminal is kept alongside the
	// perfect-credibility one: the recursion is seeded with the
	// latter, only the final slot ever sees the former.
	weighted := terminal
	anchorWeights := s.reg.WeightsFor(anchor)
	uncertainLiftoff := s.cfg.UncertainPolicy && len(anchorWeights) > 0
	if uncertainLiftoff {
		if s.blender == nil {
			return NewPrecondition("anchor regime %d carries credibility weights but no blender is registered", anchor)
		}
		weighted, err = s.blender.Blend(ctx, anchorWeights, s.reg.Candidates, terminal,
			RegimeContext{Regime: anchor, Regimes: s.cfg.Regimes, Anchor: true})
		if err != nil {
			return NewPrecondition("anchor regime %d: credibility blend failed: %v", anchor, err)
		}
	}

	if s.former == nil {
		return NewPrecondition("temporary-policy window requires a predictable-former")
	}
	if s.recursor == nil {
		return NewPrecondition("temporary-policy window requires a backward recursor")
	}

	entry, ok := conds[window[0]]
	if !ok {
		return NewPrecondition("window regime %d has no equilibrium conditions", window[0])
	}
	form, err := s.former.Predictable(ctx, entry, s.cfg.SparseSplicing)
	if err != nil {
		return fmt.Errorf("predictable form for regime %d: %w", window[0], err)
	}

	req := RecursionRequest{
		Terminals: []*TransitionSolution{terminal},
		Anchor:    terminal,
		Form:      form,
		Periods:   s.cfg.TemporaryPolicyLength,
	}
	if s.cfg.UncertainTemporary {
		// Agents may doubt the temporary policy holds at all, so the
		// recursion needs the terminal implied by every candidate
		// permanent policy, blended at every node.
		candidates, err := s.candidateTerminals(ctx, m, anchor)
		if err != nil {
			return err
		}
		req.Terminals = append(req.Terminals, candidates...)
		req.Weights = make([][]float64, len(periods))
		for i, r := range periods {
			req.Weights[i] = s.reg.WeightsFor(r)
		}
	}

	seq, err := s.recursor.Recurse(ctx, req)
	if err != nil {
		return fmt.Errorf("backward recursion: %w", err)
	}
	if len(seq) != len(window) {
		return fmt.Errorf("backward recursion returned %d solutions for a %d-regime window", len(seq), len(window))
	}

	// The final slot always holds the terminal solution; under
	// uncertain lift-off credibility it is the weighted one.
	if uncertainLiftoff {
		seq[len(seq)-1] = weighted
	} else {
		seq[len(seq)-1] = terminal
	}

	// The regime preceding the window already holds its own solution
	// from the permanent batch; only window regimes are augmented and
	// written here.
	for i, regime := range window {
		rc := RegimeContext{Regime: regime, Regimes: s.cfg.Regimes, Anchor: regime == anchor}
		aug, err := s.augment(ctx, m, seq[i], rc)
		if err != nil {
			return err
		}
		out[regime] = aug
	}
	s.logger.Debug().
		Ints("window", window).
		Int("anchor", anchor).
		Bool("uncertain_liftoff", uncertainLiftoff).
		Bool("uncertain_temporary", s.cfg.UncertainTemporary).
		Msg("spliced temporary-policy window")
	return nil
}

// solveLiftoff solves the anchor regime under the active policy and
// truncates the result to the core (non-augmented) state block.
func (s *Solver) solveLiftoff(ctx context.Context, m Model, ec *EquilibriumConditions, anchor int) (*TransitionSolution, error) {
	if s.reg.Active.Kind == PolicyCustom {
		sol, err := s.reg.Active.Solve(ctx, m)
		if err != nil {
			return nil, &SolveError{Class: ClassSolveFailure, Regime: anchor, Message: "custom lift-off solve failed", Err: err}
		}
		return truncateToCore(sol, m.CoreStates()), nil
	}
	sol, err := s.solveRegime(ctx, ec, anchor)
	if err != nil {
		return nil, err
	}
	return truncateToCore(sol, m.CoreStates()), nil
}

// candidateTerminals solves the anchor regime under every candidate
// permanent policy, truncated to the core block, in registry order.
func (s *Solver) candidateTerminals(ctx context.Context, m Model, anchor int) ([]*TransitionSolution, error) {
	terminals := make([]*TransitionSolution, 0, len(s.reg.Candidates))
	for _, p := range s.reg.Candidates {
		var sol *TransitionSolution
		var err error
		switch p.Kind {
		case PolicyCustom:
			sol, err = p.Solve(ctx, m)
			if err != nil {
				return nil, &SolveError{Class: ClassSolveFailure, Regime: anchor,
					Message: fmt.Sprintf("candidate policy %s solve failed", p.Key), Err: err}
			}
		default:
			if p.Conditions == nil {
				return nil, NewPrecondition("candidate policy %s has no conditions generator", p.Key)
			}
			ec, cerr := p.Conditions(ctx, m, anchor)
			if cerr != nil {
				return nil, fmt.Errorf("candidate policy %s conditions: %w", p.Key, cerr)
			}
			sol, err = s.solveRegime(ctx, ec, anchor)
			if err != nil {
				return nil, err
			}
		}
		terminals = append(terminals, truncateToCore(sol, m.CoreStates()))
	}
	return terminals, nil
}

// truncateToCore restricts a solution to its first n states.
func truncateToCore(sol *TransitionSolution, n int) *TransitionSolution {
	if sol.States() <= n {
		return sol.Clone()
	}
	_, shocks := sol.RRR.Dims()
	return &TransitionSolution{
		TTT: mat.DenseCopyOf(sol.TTT.Slice(0, n, 0, n)),
		RRR: mat.DenseCopyOf(sol.RRR.Slice(0, n, 0, shocks)),
		CCC: mat.VecDenseCopyOf(sol.CCC.SliceVec(0, n)),
	}
}
