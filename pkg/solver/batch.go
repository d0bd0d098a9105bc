package solver

import (
	"context"
	"sort"
)

// solveGensysRegimes solves a set of permanent regimes in strictly
// ascending order, writing augmented transition solutions into out.
// A failure at any regime aborts the batch; out is left untouched for
// regimes past the failing one.
func (s *Solver) solveGensysRegimes(ctx context.Context, m Model, regimes []int, conds map[int]*EquilibriumConditions, out map[int]*TransitionSolution) error {
	ordered := make([]int, len(regimes))
	copy(ordered, regimes)
	sort.Ints(ordered)

	for _, regime := range ordered {
		weights := s.reg.WeightsFor(regime)

		// Shortcut: under perfect credibility a regime declared to
		// share an earlier regime's transition can copy it outright.
		// The copy must be indistinguishable from solving
		// independently.
		if len(weights) == 0 {
			if src, ok := s.reg.IdenticalTransitions[regime]; ok {
				prev, solved := out[src]
				if !solved {
					return NewPrecondition("regime %d is declared transition-identical to regime %d, which is unsolved", regime, src)
				}
				out[regime] = prev.Clone()
				s.logger.Debug().Int("regime", regime).Int("source", src).Msg("copied transition solution")
				continue
			}
		}

		ec, ok := conds[regime]
		if !ok {
			return NewPrecondition("regime %d has no equilibrium conditions", regime)
		}

		sol, err := s.solveRegime(ctx, ec, regime)
		if err != nil {
			return err
		}

		rc := RegimeContext{Regime: regime, Regimes: s.cfg.Regimes}
		if len(weights) > 0 {
			if s.blender == nil {
				return NewPrecondition("regime %d carries credibility weights but no blender is registered", regime)
			}
			sol, err = s.blender.Blend(ctx, weights, s.reg.Candidates, sol, rc)
			if err != nil {
				return NewPrecondition("regime %d: credibility blend failed: %v", regime, err)
			}
		}

		sol, err = s.augment(ctx, m, sol, rc)
		if err != nil {
			return err
		}
		out[regime] = sol
		s.logger.Debug().Int("regime", regime).Int("states", sol.States()).Msg("solved permanent regime")
	}
	return nil
}
