package solver

import (
	"context"
	"sort"
)

// buildConditions populates equilibrium conditions for every requested
// regime, in ascending order so identical-regime copies can reference
// earlier results. For each regime the resolution order is: the
// identical-conditions map, then (when replace-conditions is active) a
// per-regime replacement generator, then the default builder. Every
// copy is a deep copy: no aliasing survives across regimes.
func (s *Solver) buildConditions(ctx context.Context, m Model, regimes []int) (map[int]*EquilibriumConditions, error) {
	ordered := make([]int, len(regimes))
	copy(ordered, regimes)
	sort.Ints(ordered)

	conds := make(map[int]*EquilibriumConditions, len(ordered))
	for _, regime := range ordered {
		ec, err := s.conditionsFor(ctx, m, regime, conds)
		if err != nil {
			return nil, err
		}
		if err := ec.Validate(); err != nil {
			return nil, NewPrecondition("regime %d: %v", regime, err)
		}
		conds[regime] = ec
	}
	return conds, nil
}

func (s *Solver) conditionsFor(ctx context.Context, m Model, regime int, conds map[int]*EquilibriumConditions) (*EquilibriumConditions, error) {
	if src, ok := s.reg.IdenticalConditions[regime]; ok {
		source, built := conds[src]
		if !built {
			return nil, NewPrecondition("regime %d is declared identical to regime %d, which has no conditions yet", regime, src)
		}
		s.logger.Debug().Int("regime", regime).Int("source", src).Msg("copied equilibrium conditions")
		return source.Clone(), nil
	}
	if s.cfg.ReplaceConditions {
		if gen, ok := s.reg.Replacements[regime]; ok {
			return gen(ctx, m, regime)
		}
	}
	return s.builder.Build(ctx, m, regime)
}
